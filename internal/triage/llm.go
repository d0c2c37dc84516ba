package triage

import "context"

// LLM is the interface for any chat-completion backend.
type LLM interface {
	Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is a single-shot completion request.
type LLMRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64

	// JSON asks the backend to constrain output to a JSON object where it
	// supports doing so.
	JSON bool
}

// LLMResponse is the text a backend produced for an LLMRequest.
type LLMResponse struct {
	Text  string
	Model string
	Usage Usage
}

// Message is one turn of the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
