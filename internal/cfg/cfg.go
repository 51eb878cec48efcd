// Package cfg loads service configuration from the environment.
package cfg

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Provider names a model backend the service can be configured to use.
const (
	ProviderBedrock = "bedrock"
	ProviderVertex  = "vertex"
	ProviderHF      = "hf"
	ProviderKaggle  = "kaggle"
	ProviderClaude  = "claude"
)

// Config holds everything the server needs, loaded from OKAPI_-prefixed
// environment variables.
type Config struct {
	Port                  int    `mapstructure:"PORT"`
	APIToken              string `mapstructure:"API_TOKEN"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	DrainSeconds          int    `mapstructure:"DRAIN_SECONDS"`
	ShutdownBudgetSeconds int    `mapstructure:"SHUTDOWN_BUDGET_SECONDS"`

	Provider         string  `mapstructure:"PROVIDER"`
	AITimeoutSeconds int     `mapstructure:"AI_TIMEOUT_SECONDS"`
	MaxInputTokens   int     `mapstructure:"MAX_INPUT_TOKENS"`
	MaxOutputTokens  int     `mapstructure:"MAX_OUTPUT_TOKENS"`
	Temperature      float64 `mapstructure:"TEMPERATURE"`

	PromptTemplate    string `mapstructure:"PROMPT_TEMPLATE"`
	PromptTemplateURL string `mapstructure:"PROMPT_TEMPLATE_URL"`
	Protocols         string `mapstructure:"PROTOCOLS"`

	BedrockAPIKey  string `mapstructure:"BEDROCK_API_KEY"`
	BedrockRegion  string `mapstructure:"BEDROCK_REGION"`
	BedrockModelID string `mapstructure:"BEDROCK_MODEL_ID"`

	VertexAccessToken string `mapstructure:"VERTEX_ACCESS_TOKEN"`
	VertexProject     string `mapstructure:"VERTEX_PROJECT"`
	VertexLocation    string `mapstructure:"VERTEX_LOCATION"`
	VertexModel       string `mapstructure:"VERTEX_MODEL"`

	HFToken string `mapstructure:"HF_TOKEN"`
	HFModel string `mapstructure:"HF_MODEL"`

	KaggleAPIKey  string `mapstructure:"KAGGLE_API_KEY"`
	KaggleBaseURL string `mapstructure:"KAGGLE_BASE_URL"`
	KaggleModel   string `mapstructure:"KAGGLE_MODEL"`

	ClaudeAPIKey string `mapstructure:"CLAUDE_API_KEY"`
	ClaudeModel  string `mapstructure:"CLAUDE_MODEL"`

	SlackWebhookURL string `mapstructure:"SLACK_WEBHOOK_URL"`
}

var keys = []string{
	"PORT", "API_TOKEN", "DATABASE_URL", "DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS",
	"PROVIDER", "AI_TIMEOUT_SECONDS", "MAX_INPUT_TOKENS", "MAX_OUTPUT_TOKENS", "TEMPERATURE",
	"PROMPT_TEMPLATE", "PROMPT_TEMPLATE_URL", "PROTOCOLS",
	"BEDROCK_API_KEY", "BEDROCK_REGION", "BEDROCK_MODEL_ID",
	"VERTEX_ACCESS_TOKEN", "VERTEX_PROJECT", "VERTEX_LOCATION", "VERTEX_MODEL",
	"HF_TOKEN", "HF_MODEL",
	"KAGGLE_API_KEY", "KAGGLE_BASE_URL", "KAGGLE_MODEL",
	"CLAUDE_API_KEY", "CLAUDE_MODEL",
	"SLACK_WEBHOOK_URL",
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OKAPI")
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("DRAIN_SECONDS", 30)
	v.SetDefault("SHUTDOWN_BUDGET_SECONDS", 60)
	v.SetDefault("PROVIDER", ProviderClaude)
	v.SetDefault("AI_TIMEOUT_SECONDS", 30)
	v.SetDefault("MAX_INPUT_TOKENS", 2000)
	v.SetDefault("MAX_OUTPUT_TOKENS", 500)
	v.SetDefault("TEMPERATURE", 0.2)
	v.SetDefault("BEDROCK_REGION", "us-east-1")
	v.SetDefault("VERTEX_LOCATION", "us-central1")
	v.SetDefault("CLAUDE_MODEL", "claude-3-5-haiku-latest")

	// AutomaticEnv alone does not feed Unmarshal; bind each key.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid OKAPI_PORT %d (must be 1..65535)", c.Port))
	}
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid OKAPI_DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid OKAPI_SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("OKAPI_SHUTDOWN_BUDGET_SECONDS %d must be greater than OKAPI_DRAIN_SECONDS %d",
			c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.AITimeoutSeconds <= 0 || c.AITimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid OKAPI_AI_TIMEOUT_SECONDS %d (must be 1..300)", c.AITimeoutSeconds))
	}
	if c.MaxInputTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid OKAPI_MAX_INPUT_TOKENS %d (must be positive)", c.MaxInputTokens))
	}
	if c.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid OKAPI_MAX_OUTPUT_TOKENS %d (must be positive)", c.MaxOutputTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("invalid OKAPI_TEMPERATURE %v (must be 0..2)", c.Temperature))
	}

	switch c.Provider {
	case ProviderBedrock:
		if c.BedrockAPIKey == "" {
			errs = append(errs, errors.New("OKAPI_BEDROCK_API_KEY is required for provider bedrock"))
		}
		if c.BedrockModelID == "" {
			errs = append(errs, errors.New("OKAPI_BEDROCK_MODEL_ID is required for provider bedrock"))
		}
	case ProviderVertex:
		if c.VertexAccessToken == "" {
			errs = append(errs, errors.New("OKAPI_VERTEX_ACCESS_TOKEN is required for provider vertex"))
		}
		if c.VertexProject == "" {
			errs = append(errs, errors.New("OKAPI_VERTEX_PROJECT is required for provider vertex"))
		}
		if c.VertexModel == "" {
			errs = append(errs, errors.New("OKAPI_VERTEX_MODEL is required for provider vertex"))
		}
	case ProviderHF:
		if c.HFToken == "" {
			errs = append(errs, errors.New("OKAPI_HF_TOKEN is required for provider hf"))
		}
		if c.HFModel == "" {
			errs = append(errs, errors.New("OKAPI_HF_MODEL is required for provider hf"))
		}
	case ProviderKaggle:
		if c.KaggleAPIKey == "" {
			errs = append(errs, errors.New("OKAPI_KAGGLE_API_KEY is required for provider kaggle"))
		}
		if c.KaggleBaseURL == "" {
			errs = append(errs, errors.New("OKAPI_KAGGLE_BASE_URL is required for provider kaggle"))
		}
		if c.KaggleModel == "" {
			errs = append(errs, errors.New("OKAPI_KAGGLE_MODEL is required for provider kaggle"))
		}
	case ProviderClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("OKAPI_CLAUDE_API_KEY is required for provider claude"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("OKAPI_CLAUDE_MODEL is required for provider claude"))
		}
	case "":
		errs = append(errs, errors.New("OKAPI_PROVIDER is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown OKAPI_PROVIDER %q (must be bedrock, vertex, hf, kaggle, or claude)", c.Provider))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
