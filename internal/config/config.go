package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Workflow  WorkflowConfig            `mapstructure:"workflow"`
	Pipelines PipelinesConfig           `mapstructure:"pipelines"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents LLM provider configuration such as Anthropic, OpenAI, or vLLM gateways.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"`     // anthropic, openai, vllm, custom
	BaseURL string        `mapstructure:"base_url"` // API base URL
	APIKey  string        `mapstructure:"api_key"`  // optional API key
	Timeout time.Duration `mapstructure:"timeout"`  // request timeout
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	DisplayName string  `mapstructure:"display_name"` // blinded name shown to study participants
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// WorkflowConfig describes the dynamic workflow orchestrator runtime parameters.
type WorkflowConfig struct {
	OrchestratorModel string `mapstructure:"orchestrator_model"`
	ExecutionModel    string `mapstructure:"execution_model"`
	MaxTurns          int    `mapstructure:"max_turns"`
	MaxConcurrent     int    `mapstructure:"max_concurrent"`
}

// PipelinesConfig binds the perturbation pipelines to configured models.
type PipelinesConfig struct {
	GeneratorModel  string   `mapstructure:"generator_model"`
	VerifierModels  []string `mapstructure:"verifier_models"`
	EvaluatorModels []string `mapstructure:"evaluator_models"`
	EngineModel     string   `mapstructure:"engine_model"`
	MaxConcurrent   int      `mapstructure:"max_concurrent"`
	MaxRetries      int      `mapstructure:"max_retries"`
}

// DatabaseConfig controls result persistence.
type DatabaseConfig struct {
	URL     string `mapstructure:"url"` // postgres connection string; empty disables persistence
	Enabled bool   `mapstructure:"enabled"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: RBSTUDIO_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RBSTUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secrets reference environment variables (e.g. api_key: ${ANTHROPIC_API_KEY}).
	for name, p := range cfg.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		cfg.Providers[name] = p
	}
	cfg.Database.URL = os.ExpandEnv(cfg.Database.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("workflow.max_turns", 15)
	v.SetDefault("workflow.max_concurrent", 5)

	v.SetDefault("pipelines.max_concurrent", 20)
	v.SetDefault("pipelines.max_retries", 3)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")

	v.SetDefault("server.addr", ":4075")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	var defaultFound bool
	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Workflow.MaxTurns <= 0 {
		return errors.New("workflow.max_turns must be > 0")
	}
	if c.Workflow.MaxConcurrent <= 0 {
		return errors.New("workflow.max_concurrent must be > 0")
	}
	if strings.TrimSpace(c.Workflow.OrchestratorModel) == "" {
		return errors.New("workflow.orchestrator_model must be set")
	}
	if strings.TrimSpace(c.Workflow.ExecutionModel) == "" {
		return errors.New("workflow.execution_model must be set")
	}

	orch, ok := c.Models[c.Workflow.OrchestratorModel]
	if !ok {
		return fmt.Errorf("workflow.orchestrator_model references unknown model %q", c.Workflow.OrchestratorModel)
	}
	if p := c.Providers[orch.Provider]; !strings.EqualFold(p.Type, "anthropic") {
		return fmt.Errorf("orchestrator model %q must use an anthropic provider, got type %q", c.Workflow.OrchestratorModel, p.Type)
	}
	if _, ok := c.Models[c.Workflow.ExecutionModel]; !ok {
		return fmt.Errorf("workflow.execution_model references unknown model %q", c.Workflow.ExecutionModel)
	}

	for _, modelID := range append([]string{c.Pipelines.GeneratorModel, c.Pipelines.EngineModel},
		append(c.Pipelines.VerifierModels, c.Pipelines.EvaluatorModels...)...) {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("pipelines references unknown model %q", modelID)
		}
	}
	if c.Pipelines.MaxConcurrent <= 0 {
		return errors.New("pipelines.max_concurrent must be > 0")
	}
	if c.Pipelines.MaxRetries < 0 {
		return errors.New("pipelines.max_retries must be >= 0")
	}

	if c.Database.Enabled && strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url must be set when database.enabled is true")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}
