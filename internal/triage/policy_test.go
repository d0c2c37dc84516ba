package triage

import (
	"context"
	"testing"

	"github.com/linnemanlabs/sift/internal/kb"
)

func TestNextStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		known, severe bool
		want          string
	}{
		{true, true, "Attach KB article & escalate to backend"},
		{true, false, "Attach KB article & respond to user"},
		{false, true, "Escalate to backend team"},
		{false, false, "Ask for more logs & assign to support"},
	}

	for _, tt := range tests {
		if got := NextStep(tt.known, tt.severe); got != tt.want {
			t.Errorf("NextStep(%v, %v) = %q, want %q", tt.known, tt.severe, got, tt.want)
		}
	}
}

func TestIsKnownIssue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		related   []kb.Match
		threshold float64
		want      bool
	}{
		{"no matches", nil, 0.35, false},
		{"below threshold", []kb.Match{{Similarity: 0.34}}, 0.35, false},
		{"at threshold", []kb.Match{{Similarity: 0.35}}, 0.35, true},
		{"above threshold", []kb.Match{{Similarity: 0.9}}, 0.35, true},
		{"only top match counts", []kb.Match{{Similarity: 0.1}, {Similarity: 0.9}}, 0.35, false},
		{"zero threshold", []kb.Match{{Similarity: 0.01}}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsKnownIssue(tt.related, tt.threshold); got != tt.want {
				t.Errorf("IsKnownIssue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeverityIsSevere(t *testing.T) {
	t.Parallel()

	want := map[Severity]bool{
		SeverityLow:      false,
		SeverityMedium:   false,
		SeverityHigh:     true,
		SeverityCritical: true,
	}
	for s, w := range want {
		if got := s.IsSevere(); got != w {
			t.Errorf("%s.IsSevere() = %v, want %v", s, got, w)
		}
	}
}

func TestRules_Provider(t *testing.T) {
	t.Parallel()

	r := NewRules(0.35)
	if r.Kind() != KindRules {
		t.Errorf("Kind = %s, want %s", r.Kind(), KindRules)
	}

	c := r.Classify(context.Background(), "Major outage preventing all logins")
	if c.Fallback || c.Reason != "" {
		t.Errorf("rules classification should never be a fallback: %+v", c)
	}
	if c.Profile.Severity != SeverityCritical || c.Profile.Category != CategoryLogin {
		t.Errorf("profile = %+v", c.Profile)
	}

	s := r.SuggestNextAction(context.Background(), "", c.Profile, []kb.Match{{Similarity: 0.5}})
	if s.Text != StepAttachAndEscalate || s.Fallback {
		t.Errorf("suggestion = %+v, want %q", s, StepAttachAndEscalate)
	}

	s = r.SuggestNextAction(context.Background(), "", Profile{Severity: SeverityLow}, []kb.Match{{Similarity: 0.2}})
	if s.Text != StepGatherLogs {
		t.Errorf("suggestion = %q, want %q", s.Text, StepGatherLogs)
	}
}

func TestBuildKBContext(t *testing.T) {
	t.Parallel()

	if got := buildKBContext(nil); got != "No KB context found." {
		t.Errorf("empty context = %q", got)
	}

	related := []kb.Match{
		{Title: "Checkout failure 500", Similarity: 0.4, RecommendedAction: "Escalate to payments"},
		{Title: "Card declined", Similarity: 1, RecommendedAction: "Ask for another card"},
		{Title: "Third", Similarity: 0.333, RecommendedAction: "c"},
		{Title: "Fourth", Similarity: 0.2, RecommendedAction: "d"},
	}
	want := "Related KB matches:\n" +
		"- Checkout failure 500 (score 0.4): Escalate to payments\n" +
		"- Card declined (score 1.0): Ask for another card\n" +
		"- Third (score 0.333): c"
	if got := buildKBContext(related); got != want {
		t.Errorf("context =\n%s\nwant\n%s", got, want)
	}
}
