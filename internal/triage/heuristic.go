package triage

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxSummaryLen caps Profile.Summary, in characters.
	MaxSummaryLen = 160

	// MaxNextStepLen caps suggested next steps produced by an LLM, in characters.
	MaxNextStepLen = 200
)

type categoryRule struct {
	category Category
	keywords []string
}

type severityRule struct {
	severity Severity
	keywords []string
}

// Checked in order; the first rule with a keyword hit wins.
var categoryRules = []categoryRule{
	{CategoryBilling, []string{"invoice", "billing", "payment", "charge", "refund"}},
	{CategoryLogin, []string{"login", "signin", "password", "reset", "2fa"}},
	{CategoryPerformance, []string{"slow", "latency", "lag", "timeout", "performance"}},
	{CategoryBug, []string{"error", "bug", "crash", "fail", "exception", "stacktrace"}},
	{CategoryQuestion, []string{"how", "can i", "where", "help", "question"}},
}

var severityRules = []severityRule{
	{SeverityCritical, []string{"outage", "down", "cannot access", "data loss", "major"}},
	{SeverityHigh, []string{"500", "fails", "failure", "security", "breach", "crash"}},
	{SeverityMedium, []string{"degraded", "intermittent", "slow", "issue"}},
	{SeverityLow, []string{"typo", "cosmetic", "question", "minor"}},
}

// HeuristicProfile classifies description with fixed keyword rules. Keywords
// match as substrings of the lowercased text, so "fail" also hits "failing".
func HeuristicProfile(description string) Profile {
	text := strings.TrimSpace(description)
	lowered := strings.ToLower(text)

	return Profile{
		Summary:  truncateRunes(firstSentence(text), MaxSummaryLen),
		Category: heuristicCategory(lowered),
		Severity: heuristicSeverity(lowered),
	}
}

func heuristicCategory(lowered string) Category {
	for _, rule := range categoryRules {
		if containsAny(lowered, rule.keywords) {
			return rule.category
		}
	}
	return CategoryOther
}

func heuristicSeverity(lowered string) Severity {
	for _, rule := range severityRules {
		if containsAny(lowered, rule.keywords) {
			return rule.severity
		}
	}
	return SeverityMedium
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// firstSentence returns text up to and including the first '.', '!' or '?'
// that is followed by whitespace, or all of text if there is none.
func firstSentence(text string) string {
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i+1:])
		if next != utf8.RuneError && unicode.IsSpace(next) {
			return text[:i+1]
		}
	}
	return text
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
