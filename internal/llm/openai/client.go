// Package openai implements triage.LLM on OpenAI-compatible chat completion
// APIs. The same client serves OpenAI itself and Groq.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/sift/internal/triage"
)

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultGroqModel = "llama3-8b-8192"
	GroqBaseURL      = "https://api.groq.com/openai/v1"
)

var errNoChoices = errors.New("chat completion returned no choices")

// Client implements the triage.LLM interface for chat completion APIs.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a client for the OpenAI API. An empty baseURL uses the
// library default.
func New(apiKey, baseURL, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// NewGroq creates a client for Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey, model string) *Client {
	if model == "" {
		model = DefaultGroqModel
	}
	return New(apiKey, GroqBaseURL, model)
}

// Send implements triage.LLM.
func (c *Client) Send(ctx context.Context, req *triage.LLMRequest) (*triage.LLMResponse, error) {
	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(req.System, req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}

	return &triage.LLMResponse{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: triage.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func toChatMessages(system string, msgs []triage.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}
