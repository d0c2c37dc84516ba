package triage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/kb"
)

func checkoutIndex() *kb.Index {
	return kb.NewIndex([]kb.Entry{{
		ID:                "KB1",
		Title:             "Checkout failure 500",
		Symptoms:          []string{"checkout", "500", "card"},
		RecommendedAction: "Escalate to payments",
	}})
}

// stubProvider returns a fixed classification and records suggestion calls.
type stubProvider struct {
	kind     Kind
	profile  Profile
	suggest  string
	mu       sync.Mutex
	suggests int
	inputs   []string
}

func (p *stubProvider) Kind() Kind { return p.kind }

func (p *stubProvider) Classify(_ context.Context, description string) Classification {
	p.mu.Lock()
	p.inputs = append(p.inputs, description)
	p.mu.Unlock()
	return Classification{Profile: p.profile}
}

func (p *stubProvider) SuggestNextAction(_ context.Context, _ string, _ Profile, _ []kb.Match) Suggestion {
	p.mu.Lock()
	p.suggests++
	p.mu.Unlock()
	return Suggestion{Text: p.suggest}
}

// recordingNotifier captures escalations on a channel.
type recordingNotifier struct {
	ch  chan *Escalation
	err error
}

func (n *recordingNotifier) Notify(_ context.Context, e *Escalation) error {
	n.ch <- e
	return n.err
}

func TestNewService_Panics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func()
	}{
		{"nil provider", func() { NewService(nil, kb.NewIndex(nil), Options{}, nil, nil, nil) }},
		{"nil ranker", func() { NewService(NewRules(0.35), nil, Options{}, nil, nil, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic")
				}
			}()
			tt.build()
		})
	}
}

func TestTriage_KnownIssueScenario(t *testing.T) {
	t.Parallel()

	svc := NewService(NewRules(0.2), checkoutIndex(), Options{SimilarityThreshold: 0.2, MaxRelated: 3}, log.Nop(), nil, nil)

	res, err := svc.Triage(context.Background(), "Checkout keeps failing with 500 error on card payments")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if res.Severity != SeverityHigh {
		t.Errorf("severity = %s, want High", res.Severity)
	}
	if res.Category != CategoryBilling {
		t.Errorf("category = %s, want Billing", res.Category)
	}
	if !res.KnownIssue {
		t.Error("known_issue = false, want true")
	}
	if res.SuggestedNextStep != "Attach KB article & escalate to backend" {
		t.Errorf("next step = %q", res.SuggestedNextStep)
	}
	if len(res.RelatedIssues) != 1 || res.RelatedIssues[0].ID != "KB1" {
		t.Errorf("related = %+v, want KB1 first", res.RelatedIssues)
	}
}

func TestTriage_KnownIssueUsesProviderThreshold(t *testing.T) {
	t.Parallel()

	// The checkout ticket scores 0.4 against KB1.
	const desc = "Checkout keeps failing with 500 error on card payments"

	tests := []struct {
		name      string
		rules     float64
		opts      float64
		wantKnown bool
		wantStep  string
	}{
		{"provider below score", 0.2, 0.9, true, StepAttachAndEscalate},
		{"provider above score", 0.9, 0.2, false, StepEscalate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := NewService(NewRules(tt.rules), checkoutIndex(), Options{SimilarityThreshold: tt.opts}, nil, nil, nil)
			res, err := svc.Triage(context.Background(), desc)
			if err != nil {
				t.Fatalf("Triage: %v", err)
			}
			if res.KnownIssue != tt.wantKnown {
				t.Errorf("known_issue = %v, want %v", res.KnownIssue, tt.wantKnown)
			}
			if res.SuggestedNextStep != tt.wantStep {
				t.Errorf("next step = %q, want %q", res.SuggestedNextStep, tt.wantStep)
			}
		})
	}
}

func TestAssisted_ThresholdFromFallback(t *testing.T) {
	t.Parallel()

	a := NewAssisted(&mockLLM{}, NewRules(0.42), nil, Hooks{}, 0)
	if got := a.Threshold(); got != 0.42 {
		t.Errorf("Threshold = %v, want 0.42", got)
	}
}

func TestTriage_OutageScenario(t *testing.T) {
	t.Parallel()

	svc := NewService(NewRules(DefaultSimilarityThreshold), kb.NewIndex(nil), Options{SimilarityThreshold: DefaultSimilarityThreshold}, nil, nil, nil)

	res, err := svc.Triage(context.Background(), "Major outage preventing all logins")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Severity != SeverityCritical {
		t.Errorf("severity = %s, want Critical", res.Severity)
	}
	if res.KnownIssue {
		t.Error("known_issue = true, want false")
	}
	if res.SuggestedNextStep != "Escalate to backend team" {
		t.Errorf("next step = %q", res.SuggestedNextStep)
	}
	if res.RelatedIssues == nil || len(res.RelatedIssues) != 0 {
		t.Errorf("related = %#v, want empty non-nil", res.RelatedIssues)
	}
}

func TestTriage_ValidationError(t *testing.T) {
	t.Parallel()

	var rejected int
	var mu sync.Mutex
	svc := NewService(NewRules(0.35), checkoutIndex(), Options{}, log.Nop(), nil, nil)
	svc.hooks.OnRejected = func() {
		mu.Lock()
		rejected++
		mu.Unlock()
	}

	for _, in := range []string{"", "   ", "too short", "  123456789  ", "\t\tábcdéfghí\n"} {
		res, err := svc.Triage(context.Background(), in)
		if res != nil {
			t.Errorf("Triage(%q) returned result %+v, want nil", in, res)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Triage(%q) err = %v, want *ValidationError", in, err)
		}
		if !errors.Is(err, ErrDescriptionTooShort) {
			t.Errorf("Triage(%q) err does not wrap ErrDescriptionTooShort", in)
		}
		if ve.Field != "description" {
			t.Errorf("field = %q, want description", ve.Field)
		}
	}

	if rejected != 5 {
		t.Errorf("OnRejected calls = %d, want 5", rejected)
	}

	// exactly ten characters after trimming is accepted
	if _, err := svc.Triage(context.Background(), "  1234567890  "); err != nil {
		t.Errorf("ten characters rejected: %v", err)
	}
}

func TestTriage_PassesTrimmedDescription(t *testing.T) {
	t.Parallel()

	p := &stubProvider{kind: KindRules, profile: Profile{Summary: "s", Category: CategoryOther, Severity: SeverityLow}}
	svc := NewService(p, kb.NewIndex(nil), Options{}, nil, nil, nil)

	if _, err := svc.Triage(context.Background(), "\n  Something odd happened  \t"); err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if len(p.inputs) != 1 || p.inputs[0] != "Something odd happened" {
		t.Errorf("provider saw %q, want trimmed description", p.inputs)
	}
}

func TestTriage_Routing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		kind         Kind
		severity     Severity
		wantSuggests int
		wantStep     string
	}{
		{"rules low uses table", KindRules, SeverityLow, 0, StepGatherLogs},
		{"rules medium uses table", KindRules, SeverityMedium, 0, StepGatherLogs},
		{"rules high asks provider", KindRules, SeverityHigh, 1, "provider says"},
		{"rules critical asks provider", KindRules, SeverityCritical, 1, "provider says"},
		{"assisted low asks provider", KindAssisted, SeverityLow, 1, "provider says"},
		{"assisted high asks provider", KindAssisted, SeverityHigh, 1, "provider says"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &stubProvider{
				kind:    tt.kind,
				profile: Profile{Summary: "s", Category: CategoryBug, Severity: tt.severity},
				suggest: "provider says",
			}
			svc := NewService(p, kb.NewIndex(nil), Options{}, nil, nil, nil)

			res, err := svc.Triage(context.Background(), "Nothing matches this ticket text")
			if err != nil {
				t.Fatalf("Triage: %v", err)
			}
			if p.suggests != tt.wantSuggests {
				t.Errorf("SuggestNextAction calls = %d, want %d", p.suggests, tt.wantSuggests)
			}
			if res.SuggestedNextStep != tt.wantStep {
				t.Errorf("next step = %q, want %q", res.SuggestedNextStep, tt.wantStep)
			}
		})
	}
}

func TestTriage_StubLowNoMatch(t *testing.T) {
	t.Parallel()

	p := &stubProvider{kind: KindRules, profile: Profile{Summary: "s", Category: CategoryQuestion, Severity: SeverityLow}}
	svc := NewService(p, checkoutIndex(), Options{SimilarityThreshold: 0.35}, nil, nil, nil)

	res, err := svc.Triage(context.Background(), "How do I rename my workspace")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.SuggestedNextStep != "Ask for more logs & assign to support" {
		t.Errorf("next step = %q", res.SuggestedNextStep)
	}
}

func TestTriage_AssistedFallbackEndToEnd(t *testing.T) {
	t.Parallel()

	llm := &mockLLM{errs: []error{errors.New("unreachable"), errors.New("unreachable")}}
	rules := NewRules(0.2)
	a := NewAssisted(llm, rules, log.Nop(), Hooks{}, time.Second)
	svc := NewService(a, checkoutIndex(), Options{SimilarityThreshold: 0.2}, nil, nil, nil)

	res, err := svc.Triage(context.Background(), "Checkout keeps failing with 500 error on card payments")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	// Same answer the rules provider would give on its own.
	ruleSvc := NewService(rules, checkoutIndex(), Options{SimilarityThreshold: 0.2}, nil, nil, nil)
	want, _ := ruleSvc.Triage(context.Background(), "Checkout keeps failing with 500 error on card payments")
	if !reflect.DeepEqual(res, want) {
		t.Errorf("fallback result = %+v, want rules result %+v", res, want)
	}
	if llm.calls() != 2 {
		t.Errorf("llm calls = %d, want 2 (classify + suggest, no retries)", llm.calls())
	}
}

func TestTriage_MaxRelated(t *testing.T) {
	t.Parallel()

	var entries []kb.Entry
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		entries = append(entries, kb.Entry{ID: id, Title: "invoice error " + strings.ToLower(id)})
	}

	tests := []struct {
		max  int
		want int
	}{
		{0, DefaultMaxRelated},
		{1, 1},
		{2, 2},
		{10, 5},
	}
	for _, tt := range tests {
		svc := NewService(NewRules(0.35), kb.NewIndex(entries), Options{MaxRelated: tt.max}, nil, nil, nil)
		res, err := svc.Triage(context.Background(), "invoice error again today")
		if err != nil {
			t.Fatalf("Triage: %v", err)
		}
		if len(res.RelatedIssues) != tt.want {
			t.Errorf("MaxRelated %d: related = %d, want %d", tt.max, len(res.RelatedIssues), tt.want)
		}
	}
}

func TestTriage_Idempotent(t *testing.T) {
	t.Parallel()

	svc := NewService(NewRules(0.2), checkoutIndex(), Options{SimilarityThreshold: 0.2}, nil, nil, nil)
	const desc = "Checkout keeps failing with 500 error on card payments"

	first, err := svc.Triage(context.Background(), desc)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	for range 5 {
		again, err := svc.Triage(context.Background(), desc)
		if err != nil {
			t.Fatalf("Triage: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("results differ: %+v vs %+v", first, again)
		}
	}
}

func TestTriage_Concurrent(t *testing.T) {
	t.Parallel()

	svc := NewService(NewRules(0.2), checkoutIndex(), Options{SimilarityThreshold: 0.2}, nil, nil, nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Triage(context.Background(), "Checkout keeps failing with 500 error on card payments")
			if err != nil || !res.KnownIssue {
				t.Errorf("concurrent triage = %+v, %v", res, err)
			}
		}()
	}
	wg.Wait()
}

func TestTriage_NotifiesSevere(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{ch: make(chan *Escalation, 1)}
	svc := NewService(NewRules(0.2), checkoutIndex(), Options{SimilarityThreshold: 0.2}, nil, nil, n)

	res, err := svc.Triage(context.Background(), "  Checkout keeps failing with 500 error on card payments ")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	select {
	case esc := <-n.ch:
		if esc.ID == "" {
			t.Error("escalation has empty ID")
		}
		if esc.Description != "Checkout keeps failing with 500 error on card payments" {
			t.Errorf("description = %q", esc.Description)
		}
		if esc.Provider != KindRules {
			t.Errorf("provider = %s", esc.Provider)
		}
		if !reflect.DeepEqual(esc.Result, *res) {
			t.Errorf("escalation result = %+v, want %+v", esc.Result, *res)
		}
		if esc.At.IsZero() {
			t.Error("escalation timestamp is zero")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier not called for severe ticket")
	}
}

func TestTriage_DoesNotNotifyMinor(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{ch: make(chan *Escalation, 1)}
	svc := NewService(NewRules(0.35), checkoutIndex(), Options{}, nil, nil, n)

	if _, err := svc.Triage(context.Background(), "Typo on the pricing page footer"); err != nil {
		t.Fatalf("Triage: %v", err)
	}

	select {
	case esc := <-n.ch:
		t.Fatalf("unexpected escalation %+v", esc)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTriage_NotifyFailureDoesNotAffectResult(t *testing.T) {
	t.Parallel()

	notified := make(chan bool, 1)
	n := &recordingNotifier{ch: make(chan *Escalation, 1), err: errors.New("slack down")}
	svc := NewService(NewRules(0.35), kb.NewIndex(nil), Options{}, nil, nil, n)
	svc.hooks.OnNotify = func(failed bool) { notified <- failed }

	res, err := svc.Triage(context.Background(), "Major outage preventing all logins")
	if err != nil || res == nil {
		t.Fatalf("Triage = %+v, %v", res, err)
	}

	select {
	case failed := <-notified:
		if !failed {
			t.Error("OnNotify failed = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnNotify not called")
	}
}

func TestTriage_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	svc := NewService(NewRules(0.2), checkoutIndex(), Options{SimilarityThreshold: 0.2}, nil, m, nil)

	if _, err := svc.Triage(context.Background(), "Checkout keeps failing with 500 error on card payments"); err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if _, err := svc.Triage(context.Background(), "short"); err == nil {
		t.Fatal("expected validation error")
	}

	if got := metricValue(t, reg, "sift_triages_total", map[string]string{"category": "Billing", "severity": "High", "known_issue": "true"}); got != 1 {
		t.Errorf("sift_triages_total{Billing,High,true} = %v, want 1", got)
	}
	if got := metricValue(t, reg, "sift_triage_rejected_total", nil); got != 1 {
		t.Errorf("sift_triage_rejected_total = %v, want 1", got)
	}
	if got := metricValue(t, reg, "sift_triage_duration_seconds", map[string]string{"provider": "rules", "fallback": "false"}); got != 1 {
		t.Errorf("sift_triage_duration_seconds sample count = %v, want 1", got)
	}
}

// metricValue returns a counter value or histogram sample count for the
// series of name whose labels include want.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}
