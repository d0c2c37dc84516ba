package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/linnemanlabs/sift/internal/triage"
)

// LLM backends selectable with -llm-provider.
const (
	ProviderRules  = "rules"
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
)

// Providers lists every accepted -llm-provider value.
var Providers = []string{ProviderRules, ProviderClaude, ProviderOpenAI, ProviderGroq, ProviderOllama}

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	Environment           string

	KBPath              string
	DatabaseURL         string
	SimilarityThreshold float64
	MaxRelated          int

	LLMProvider       string
	LLMTimeoutSeconds int
	ClaudeAPIKey      string
	ClaudeModel       string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	GroqAPIKey        string
	GroqModel         string
	OllamaHost        string
	OllamaModel       string

	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.Environment, "environment", "development", "deployment environment reported by /api/v1/health")

	fs.StringVar(&c.KBPath, "kb-path", "kb/kb.json", "knowledge base file (.json, .yaml or .xlsx); ignored when -database-url is set")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the knowledge base (empty = read -kb-path)")
	fs.Float64Var(&c.SimilarityThreshold, "similarity-threshold", triage.DefaultSimilarityThreshold, "top match score at or above which a ticket is a known issue (0..1)")
	fs.IntVar(&c.MaxRelated, "max-related", triage.DefaultMaxRelated, "maximum related knowledge base entries per result (1..50)")

	fs.StringVar(&c.LLMProvider, "llm-provider", ProviderRules, "triage backend: "+strings.Join(Providers, "|"))
	fs.IntVar(&c.LLMTimeoutSeconds, "llm-timeout-seconds", 15, "per-call LLM timeout before falling back to rules (1..120)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude backend")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.OpenAIAPIKey, "openai-api-key", "", "API key for the OpenAI backend")
	fs.StringVar(&c.OpenAIBaseURL, "openai-base-url", "", "base URL for an OpenAI-compatible API (empty = api.openai.com)")
	fs.StringVar(&c.OpenAIModel, "openai-model", "gpt-4o-mini", "OpenAI model to use")
	fs.StringVar(&c.GroqAPIKey, "groq-api-key", "", "API key for the Groq backend")
	fs.StringVar(&c.GroqModel, "groq-model", "llama3-8b-8192", "Groq model to use")
	fs.StringVar(&c.OllamaHost, "ollama-host", "http://localhost:11434", "Ollama server URL")
	fs.StringVar(&c.OllamaModel, "ollama-model", "llama3", "Ollama model to use")

	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for severe ticket escalations (empty = disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	errs = append(errs, c.validateKB()...)
	errs = append(errs, c.validateLLM()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) validateKB() []error {
	var errs []error
	if c.KBPath == "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("KB_PATH or DATABASE_URL is required"))
	}
	if math.IsNaN(c.SimilarityThreshold) || c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid SIMILARITY_THRESHOLD %g (must be 0..1)", c.SimilarityThreshold))
	}
	if c.MaxRelated <= 0 || c.MaxRelated > 50 {
		errs = append(errs, fmt.Errorf("invalid MAX_RELATED %d (must be 1..50)", c.MaxRelated))
	}
	return errs
}

func (c *Config) validateLLM() []error {
	var errs []error

	if !slices.Contains(Providers, c.LLMProvider) {
		errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q (must be one of %s)", c.LLMProvider, strings.Join(Providers, ", ")))
		return errs
	}
	if c.LLMProvider == ProviderRules {
		return nil
	}

	if c.LLMTimeoutSeconds <= 0 || c.LLMTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS %d (must be 1..120)", c.LLMTimeoutSeconds))
	}

	switch c.LLMProvider {
	case ProviderClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required for the claude provider"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required for the claude provider"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			errs = append(errs, errors.New("GROQ_API_KEY is required for the groq provider"))
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			errs = append(errs, errors.New("OLLAMA_HOST is required for the ollama provider"))
		}
	}
	return errs
}
