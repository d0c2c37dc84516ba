package triage

import "github.com/linnemanlabs/sift/internal/kb"

// Next steps chosen by the decision table.
const (
	StepAttachAndEscalate = "Attach KB article & escalate to backend"
	StepAttachAndRespond  = "Attach KB article & respond to user"
	StepEscalate          = "Escalate to backend team"
	StepGatherLogs        = "Ask for more logs & assign to support"
)

// IsKnownIssue reports whether the best match clears threshold. related must
// be ordered most similar first.
func IsKnownIssue(related []kb.Match, threshold float64) bool {
	return len(related) > 0 && related[0].Similarity >= threshold
}

// NextStep is the deterministic decision table.
func NextStep(knownIssue, severe bool) string {
	switch {
	case knownIssue && severe:
		return StepAttachAndEscalate
	case knownIssue:
		return StepAttachAndRespond
	case severe:
		return StepEscalate
	default:
		return StepGatherLogs
	}
}
