package triage

import (
	"context"

	"github.com/linnemanlabs/sift/internal/kb"
)

// Rules is the deterministic Provider. It is also the fallback for Assisted.
type Rules struct {
	threshold float64
}

// NewRules returns a rules provider that treats a top match scoring at least
// threshold as a known issue.
func NewRules(threshold float64) *Rules {
	return &Rules{threshold: threshold}
}

// Kind implements Provider.
func (r *Rules) Kind() Kind { return KindRules }

// Threshold is the known-issue cutoff used by the decision table.
func (r *Rules) Threshold() float64 { return r.threshold }

// Classify implements Provider.
func (r *Rules) Classify(_ context.Context, description string) Classification {
	p := HeuristicProfile(description)
	return Classification{
		Profile: normalizeProfile(p.Summary, string(p.Category), string(p.Severity), description),
	}
}

// SuggestNextAction implements Provider using the decision table.
func (r *Rules) SuggestNextAction(_ context.Context, _ string, profile Profile, related []kb.Match) Suggestion {
	return Suggestion{
		Text: NextStep(IsKnownIssue(related, r.threshold), profile.Severity.IsSevere()),
	}
}
