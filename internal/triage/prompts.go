package triage

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/sift/internal/kb"
)

const (
	classifyTemperature = 0.1
	classifyMaxTokens   = 300
	suggestTemperature  = 0.5
	suggestMaxTokens    = 150

	// maxPromptMatches bounds how many related issues are shown to the LLM.
	maxPromptMatches = 3
)

const classifySystemPrompt = `You are a support operations classifier. Extract structured JSON exactly as:
{"summary": "...", "category": "...", "severity": "..."}
Valid category: Billing | Login | Performance | Bug | Question | Other
Valid severity: Low | Medium | High | Critical
Make sure your response is only valid JSON with no extra words.`

const suggestSystemPrompt = `You are a senior support engineer. In 1-2 short actionable sentences, advise what the support agent should do next based on issue severity, category and KB context. Focus on revenue, service continuity, and user impact.`

func buildSuggestPrompt(description string, profile Profile, related []kb.Match) string {
	return fmt.Sprintf(`Description: %s
Category: %s
Severity: %s
%s
Respond with 1-2 short actionable sentences.`,
		description,
		profile.Category,
		profile.Severity,
		buildKBContext(related),
	)
}

func buildKBContext(related []kb.Match) string {
	if len(related) == 0 {
		return "No KB context found."
	}

	var b strings.Builder
	b.WriteString("Related KB matches:")
	for i, m := range related {
		if i == maxPromptMatches {
			break
		}
		fmt.Fprintf(&b, "\n- %s (score %s): %s", m.Title, formatScore(m.Similarity), m.RecommendedAction)
	}
	return b.String()
}

// formatScore renders a similarity the shortest way that round-trips,
// e.g. 0.4 and 0.333.
func formatScore(v float64) string {
	s := fmt.Sprintf("%g", v)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
