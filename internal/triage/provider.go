package triage

import (
	"context"
	"strings"

	"github.com/linnemanlabs/sift/internal/kb"
)

// Kind identifies a Provider implementation.
type Kind string

const (
	// KindRules classifies with keyword heuristics and the decision table.
	KindRules Kind = "rules"

	// KindAssisted classifies with an LLM backend and falls back to rules.
	KindAssisted Kind = "assisted"
)

// Provider classifies tickets and recommends next actions. Implementations
// never return errors: a failure is reported as a fallback value instead.
type Provider interface {
	Kind() Kind
	Classify(ctx context.Context, description string) Classification
	SuggestNextAction(ctx context.Context, description string, profile Profile, related []kb.Match) Suggestion
}

// Classification is either a provider-produced Profile, or, when Fallback is
// set, the rules-based Profile together with the reason the provider failed.
type Classification struct {
	Profile  Profile
	Fallback bool
	Reason   string
}

// Suggestion is a recommended next action with the same fallback contract
// as Classification.
type Suggestion struct {
	Text     string
	Fallback bool
	Reason   string
}

// normalizeProfile coerces raw provider output into a valid Profile. An empty
// summary is replaced with the description itself.
func normalizeProfile(summary, category, severity, description string) Profile {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = strings.TrimSpace(description)
	}
	return Profile{
		Summary:  truncateRunes(summary, MaxSummaryLen),
		Category: ParseCategory(category),
		Severity: ParseSeverity(severity),
	}
}
