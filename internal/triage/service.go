package triage

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/kb"
)

// DefaultSimilarityThreshold is the top-match similarity at or above which a
// ticket is treated as a known issue.
const DefaultSimilarityThreshold = 0.35

// DefaultMaxRelated is the default number of related issues returned.
const DefaultMaxRelated = 3

// Ranker finds knowledge base entries related to a description.
type Ranker interface {
	Rank(ctx context.Context, description string, limit int) []kb.Match
}

// Notifier receives escalations for severe tickets.
type Notifier interface {
	Notify(ctx context.Context, e *Escalation) error
}

// Escalation is a triaged severe ticket handed to a Notifier.
type Escalation struct {
	ID          string
	Description string
	Provider    Kind
	Result      Result
	At          time.Time
}

// Options tunes the known-issue decision and result size.
// SimilarityThreshold is only consulted for providers that do not carry
// their own threshold.
type Options struct {
	SimilarityThreshold float64
	MaxRelated          int
}

// thresholder is implemented by providers whose decision table has its own
// known-issue cutoff.
type thresholder interface {
	Threshold() float64
}

// Service is the business boundary for triage operations.
type Service struct {
	provider   Provider
	ranker     Ranker
	threshold  float64
	maxRelated int
	logger     log.Logger
	hooks      Hooks
	notifier   Notifier
}

// NewService creates a triage service. metrics and notifier may be nil.
func NewService(provider Provider, ranker Ranker, opts Options, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if provider == nil {
		panic(xerrors.New("triage provider is required"))
	}
	if ranker == nil {
		panic(xerrors.New("knowledge base ranker is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if opts.MaxRelated <= 0 {
		opts.MaxRelated = DefaultMaxRelated
	}
	// Result.KnownIssue must agree with the provider's next-step table.
	if t, ok := provider.(thresholder); ok {
		opts.SimilarityThreshold = t.Threshold()
	}

	var hooks Hooks
	if metrics != nil {
		hooks = metrics.Hooks()
	}

	return &Service{
		provider:   provider,
		ranker:     ranker,
		threshold:  opts.SimilarityThreshold,
		maxRelated: opts.MaxRelated,
		logger:     logger,
		hooks:      hooks,
		notifier:   notifier,
	}
}

// Triage classifies description, relates it to the knowledge base and picks a
// next step. The only error is a *ValidationError for unusable input;
// provider failures are absorbed by the provider's fallback.
func (s *Service) Triage(ctx context.Context, description string) (*Result, error) {
	if err := ValidateDescription(description); err != nil {
		if s.hooks.OnRejected != nil {
			s.hooks.OnRejected()
		}
		return nil, err
	}
	trimmed := strings.TrimSpace(description)

	id := ulid.Make().String()
	kind := s.provider.Kind()
	L := s.logger.With("triage_id", id, "provider", string(kind))

	ctx, span := tracer.Start(ctx, "triage.run", trace.WithAttributes(
		attribute.String("sift.triage.id", id),
		attribute.String("sift.provider.kind", string(kind)),
		attribute.Int("sift.ticket.length", utf8.RuneCountInString(trimmed)),
	))
	defer span.End()

	start := time.Now()

	cls := s.provider.Classify(ctx, trimmed)
	profile := cls.Profile
	related := s.ranker.Rank(ctx, trimmed, s.maxRelated)
	if related == nil {
		related = []kb.Match{}
	}

	known := IsKnownIssue(related, s.threshold)
	severe := profile.Severity.IsSevere()

	var next string
	suggestFallback := false
	if kind == KindAssisted || severe {
		sug := s.provider.SuggestNextAction(ctx, trimmed, profile, related)
		next = sug.Text
		suggestFallback = sug.Fallback
	} else {
		next = NextStep(known, severe)
	}

	result := &Result{
		Summary:           profile.Summary,
		Category:          profile.Category,
		Severity:          profile.Severity,
		RelatedIssues:     related,
		KnownIssue:        known,
		SuggestedNextStep: next,
	}

	fallback := cls.Fallback || suggestFallback
	dur := time.Since(start).Seconds()

	span.SetAttributes(
		attribute.String("sift.ticket.category", string(result.Category)),
		attribute.String("sift.ticket.severity", string(result.Severity)),
		attribute.Bool("sift.ticket.known_issue", known),
		attribute.Int("sift.kb.matches", len(related)),
		attribute.Bool("sift.provider.fallback", fallback),
	)

	L.Info(ctx, "triage complete",
		"category", result.Category,
		"severity", result.Severity,
		"known_issue", known,
		"related", len(related),
		"fallback", fallback,
		"duration", dur,
	)

	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(&CompleteEvent{
			Provider:   kind,
			Category:   result.Category,
			Severity:   result.Severity,
			KnownIssue: known,
			Related:    len(related),
			Fallback:   fallback,
			Duration:   dur,
		})
	}

	if severe && s.notifier != nil {
		esc := &Escalation{
			ID:          id,
			Description: trimmed,
			Provider:    kind,
			Result:      *result,
			At:          time.Now(),
		}
		esc.Result.RelatedIssues = slices.Clone(related)
		// detached so a finished request does not cancel the post.
		go s.notify(context.WithoutCancel(ctx), L, esc)
	}

	return result, nil
}

func (s *Service) notify(ctx context.Context, L log.Logger, esc *Escalation) {
	err := s.notifier.Notify(ctx, esc)
	if err != nil {
		L.Error(ctx, err, "escalation notification failed")
	}
	if s.hooks.OnNotify != nil {
		s.hooks.OnNotify(err != nil)
	}
}
