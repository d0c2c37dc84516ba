package triage

// Hooks receives instrumentation callbacks. Nil funcs are skipped.
type Hooks struct {
	// OnLLMCall fires after every LLM round trip.
	OnLLMCall func(op string, inputTokens, outputTokens int, duration float64, failed bool)

	// OnFallback fires when an assisted operation falls back to rules.
	OnFallback func(op string)

	// OnComplete fires once per successful triage.
	OnComplete func(e *CompleteEvent)

	// OnRejected fires when a description fails validation.
	OnRejected func()

	// OnNotify fires after an escalation notification attempt.
	OnNotify func(failed bool)
}

// CompleteEvent summarizes a finished triage for instrumentation.
type CompleteEvent struct {
	Provider   Kind
	Category   Category
	Severity   Severity
	KnownIssue bool
	Related    int
	Fallback   bool
	Duration   float64
}
