package triage

import (
	"strings"

	"github.com/linnemanlabs/sift/internal/kb"
)

// Category is the functional area a ticket belongs to.
type Category string

const (
	CategoryBilling     Category = "Billing"
	CategoryLogin       Category = "Login"
	CategoryPerformance Category = "Performance"
	CategoryBug         Category = "Bug"
	CategoryQuestion    Category = "Question"
	CategoryOther       Category = "Other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryBilling,
	CategoryLogin,
	CategoryPerformance,
	CategoryBug,
	CategoryQuestion,
	CategoryOther,
}

// Severity is the urgency of a ticket.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Severities lists every valid severity, least urgent first.
var Severities = []Severity{
	SeverityLow,
	SeverityMedium,
	SeverityHigh,
	SeverityCritical,
}

// IsSevere reports whether s warrants escalation.
func (s Severity) IsSevere() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ParseCategory maps v case-insensitively onto a Category, defaulting to Other.
func ParseCategory(v string) Category {
	v = strings.TrimSpace(v)
	for _, c := range Categories {
		if strings.EqualFold(v, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// ParseSeverity maps v case-insensitively onto a Severity, defaulting to Medium.
func ParseSeverity(v string) Severity {
	v = strings.TrimSpace(v)
	for _, s := range Severities {
		if strings.EqualFold(v, string(s)) {
			return s
		}
	}
	return SeverityMedium
}

// Profile is the classification of one ticket description.
type Profile struct {
	Summary  string   `json:"summary"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of a triage run.
type Result struct {
	Summary           string     `json:"summary"`
	Category          Category   `json:"category"`
	Severity          Severity   `json:"severity"`
	RelatedIssues     []kb.Match `json:"related_issues"`
	KnownIssue        bool       `json:"known_issue"`
	SuggestedNextStep string     `json:"suggested_next_step"`
}
