// Package bootstrap builds the triage components selected by configuration.
// It is shared by the server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/kb"
	"github.com/linnemanlabs/sift/internal/kb/pgkb"
	"github.com/linnemanlabs/sift/internal/llm/claude"
	"github.com/linnemanlabs/sift/internal/llm/ollama"
	"github.com/linnemanlabs/sift/internal/llm/openai"
	"github.com/linnemanlabs/sift/internal/postgres"
	"github.com/linnemanlabs/sift/internal/triage"
)

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// NewLLM returns the LLM client for the configured provider, or nil for the
// rules provider.
func NewLLM(c *cfg.Config) (triage.LLM, error) {
	switch c.LLMProvider {
	case cfg.ProviderRules:
		return nil, nil
	case cfg.ProviderClaude:
		return claude.New(c.ClaudeAPIKey, c.ClaudeModel), nil
	case cfg.ProviderOpenAI:
		return openai.New(c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAIModel), nil
	case cfg.ProviderGroq:
		return openai.NewGroq(c.GroqAPIKey, c.GroqModel), nil
	case cfg.ProviderOllama:
		return ollama.New(c.OllamaHost, c.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
}

// NewProvider returns the triage provider for the configured backend. Every
// LLM backend is wrapped in an Assisted provider that falls back to rules.
func NewProvider(c *cfg.Config, logger log.Logger, hooks triage.Hooks) (triage.Provider, error) {
	rules := triage.NewRules(c.SimilarityThreshold)

	llm, err := NewLLM(c)
	if err != nil {
		return nil, err
	}
	if llm == nil {
		return rules, nil
	}

	timeout := time.Duration(c.LLMTimeoutSeconds) * time.Second
	return triage.NewAssisted(llm, rules, logger.With("llm_provider", c.LLMProvider), hooks, timeout), nil
}

// LoadKnowledgeBase reads the knowledge base from PostgreSQL when a database
// URL is configured, otherwise from the KB file, and freezes it into an Index.
func LoadKnowledgeBase(ctx context.Context, c *cfg.Config, logger log.Logger) (*kb.Index, error) {
	var (
		src    kb.Source
		source string
	)
	if c.DatabaseURL != "" {
		store, closeStore, err := OpenKBStore(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer closeStore()
		src, source = store, "postgres"
	} else {
		src, source = kb.NewFileSource(c.KBPath, logger), c.KBPath
	}

	entries, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base from %s: %w", source, err)
	}

	idx := kb.NewIndex(entries)
	logger.Info(ctx, "knowledge base loaded", "source", source, "entries", idx.Len())
	return idx, nil
}

// OpenKBStore connects to PostgreSQL and returns the knowledge base store
// with a func that closes its pool.
func OpenKBStore(ctx context.Context, databaseURL string) (*pgkb.Store, func(), error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	store, err := pgkb.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("kb store: %w", err)
	}
	return store, pool.Close, nil
}
