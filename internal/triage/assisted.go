package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/kb"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/triage")

// DefaultLLMTimeout bounds a single LLM call when no timeout is configured.
const DefaultLLMTimeout = 15 * time.Second

const (
	opClassify = "classify"
	opSuggest  = "suggest"
)

var (
	errEmptyResponse = errors.New("empty llm response")
	errNotJSONObject = errors.New("llm response is not a JSON object")
)

// Assisted is the LLM-backed Provider. Each operation makes exactly one LLM
// call; any failure falls back to Rules and is reported in the returned value.
type Assisted struct {
	llm      LLM
	fallback *Rules
	logger   log.Logger
	hooks    Hooks
	timeout  time.Duration
}

// NewAssisted creates an LLM-backed provider. A non-positive timeout uses
// DefaultLLMTimeout.
func NewAssisted(llm LLM, fallback *Rules, logger log.Logger, hooks Hooks, timeout time.Duration) *Assisted {
	if llm == nil {
		panic(xerrors.New("llm backend is required"))
	}
	if fallback == nil {
		panic(xerrors.New("fallback rules provider is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &Assisted{
		llm:      llm,
		fallback: fallback,
		logger:   logger,
		hooks:    hooks,
		timeout:  timeout,
	}
}

// Kind implements Provider.
func (a *Assisted) Kind() Kind { return KindAssisted }

// Threshold reports the fallback rules provider's known-issue cutoff.
func (a *Assisted) Threshold() float64 { return a.fallback.Threshold() }

// Classify implements Provider.
func (a *Assisted) Classify(ctx context.Context, description string) Classification {
	ctx, span := tracer.Start(ctx, "provider.classify", trace.WithAttributes(
		attribute.String("sift.provider.kind", string(KindAssisted)),
	))
	defer span.End()

	text, err := a.call(ctx, opClassify, &LLMRequest{
		System:      classifySystemPrompt,
		Messages:    []Message{{Role: "user", Content: description}},
		MaxTokens:   classifyMaxTokens,
		Temperature: classifyTemperature,
		JSON:        true,
	})
	if err == nil {
		var p Profile
		if p, err = parseProfile(text, description); err == nil {
			span.SetAttributes(
				attribute.String("sift.ticket.category", string(p.Category)),
				attribute.String("sift.ticket.severity", string(p.Severity)),
			)
			return Classification{Profile: p}
		}
	}

	a.recordFallback(ctx, span, opClassify, err)
	c := a.fallback.Classify(ctx, description)
	c.Fallback = true
	c.Reason = err.Error()
	return c
}

// SuggestNextAction implements Provider.
func (a *Assisted) SuggestNextAction(ctx context.Context, description string, profile Profile, related []kb.Match) Suggestion {
	ctx, span := tracer.Start(ctx, "provider.suggest", trace.WithAttributes(
		attribute.String("sift.provider.kind", string(KindAssisted)),
		attribute.Int("sift.kb.matches", len(related)),
	))
	defer span.End()

	text, err := a.call(ctx, opSuggest, &LLMRequest{
		System:      suggestSystemPrompt,
		Messages:    []Message{{Role: "user", Content: buildSuggestPrompt(description, profile, related)}},
		MaxTokens:   suggestMaxTokens,
		Temperature: suggestTemperature,
	})
	if err == nil {
		if s := cleanSuggestion(text); s != "" {
			return Suggestion{Text: s}
		}
		err = errEmptyResponse
	}

	a.recordFallback(ctx, span, opSuggest, err)
	s := a.fallback.SuggestNextAction(ctx, description, profile, related)
	s.Fallback = true
	s.Reason = err.Error()
	return s
}

// call performs one bounded LLM round trip.
func (a *Assisted) call(ctx context.Context, op string, req *LLMRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", op),
		attribute.Float64("gen_ai.request.temperature", req.Temperature),
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
	))
	defer span.End()

	start := time.Now()
	resp, err := a.llm.Send(ctx, req)
	dur := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("llm %s timed out after %s: %w", op, a.timeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if a.hooks.OnLLMCall != nil {
			a.hooks.OnLLMCall(op, 0, 0, dur, true)
		}
		return "", err
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if a.hooks.OnLLMCall != nil {
		a.hooks.OnLLMCall(op, resp.Usage.InputTokens, resp.Usage.OutputTokens, dur, false)
	}

	if strings.TrimSpace(resp.Text) == "" {
		return "", errEmptyResponse
	}
	return resp.Text, nil
}

func (a *Assisted) recordFallback(ctx context.Context, span trace.Span, op string, err error) {
	a.logger.Warn(ctx, "llm provider failed, using rules fallback",
		"operation", op,
		"error", err,
	)
	span.AddEvent("provider.fallback", trace.WithAttributes(
		attribute.String("sift.fallback.operation", op),
		attribute.String("sift.fallback.reason", err.Error()),
	))
	if a.hooks.OnFallback != nil {
		a.hooks.OnFallback(op)
	}
}

// parseProfile decodes the classifier's JSON answer. Surrounding markdown
// code fences are tolerated; anything else that is not a JSON object fails.
// Non-string field values count as absent.
func parseProfile(text, description string) (Profile, error) {
	raw := stripCodeFence(text)

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Profile{}, fmt.Errorf("%w: %w", errNotJSONObject, err)
	}
	if fields == nil {
		return Profile{}, errNotJSONObject
	}

	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	return normalizeProfile(str("summary"), str("category"), str("severity"), description), nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop an info string such as "json"
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// cleanSuggestion strips whitespace and wrapping quotes and caps the length.
func cleanSuggestion(text string) string {
	s := strings.TrimSpace(text)
	s = strings.Trim(s, "\"'")
	s = strings.TrimSpace(s)
	return truncateRunes(s, MaxNextStepLen)
}
