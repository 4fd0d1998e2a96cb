// Declarative model configuration loaded from YAML or the environment
package llm

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultOllamaModel = "llama3.1:8b"
)

const DefaultOllamaBaseURL = "http://localhost:11434"

const DefaultRequestTimeout = 60 * time.Second

// ModelConfig is the serializable description of one model entry. It maps
// onto Options minus the injected collaborators (transports, host proxy,
// capability registry), which are wired in code.
type ModelConfig struct {
	Title         string            `yaml:"title" json:"title"`
	Provider      string            `yaml:"provider" json:"provider"`
	Model         string            `yaml:"model" json:"model"`
	APIKey        string            `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	APIBase       string            `yaml:"api_base,omitempty" json:"api_base,omitempty"`
	ContextLength int               `yaml:"context_length,omitempty" json:"context_length,omitempty"`
	SystemMessage string            `yaml:"system_message,omitempty" json:"system_message,omitempty"`
	Template      TemplateType      `yaml:"template,omitempty" json:"template,omitempty"`
	Timeout       time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// HTTPClient replaces the transport's default network client when set,
	// e.g. for non-interactive execution contexts. Injected in code, never
	// serialized.
	HTTPClient *http.Client `yaml:"-" json:"-"`

	CompletionDefaults CompletionOptions            `yaml:"completion_defaults,omitempty" json:"completion_defaults,omitempty"`
	ModelDefaults      map[string]CompletionOptions `yaml:"model_defaults,omitempty" json:"model_defaults,omitempty"`
}

// Config is the top-level file layout: a list of model entries plus the
// title of the one to use by default.
type Config struct {
	DefaultModel string        `yaml:"default_model,omitempty" json:"default_model,omitempty"`
	Models       []ModelConfig `yaml:"models" json:"models"`
}

// LoadConfig reads and validates a YAML model configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigurationError("config_read_failed", fmt.Sprintf("reading %s: %v", path, err))
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration bytes
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewConfigurationError("config_parse_failed", fmt.Sprintf("parsing config: %v", err))
	}
	if len(cfg.Models) == 0 {
		return nil, NewConfigurationError("config_empty", "config declares no models")
	}
	for i, m := range cfg.Models {
		if m.Model == "" {
			return nil, NewConfigurationError("missing_model", fmt.Sprintf("models[%d]: model is required", i))
		}
		if m.Provider == "" {
			return nil, NewConfigurationError("missing_provider", fmt.Sprintf("models[%d] (%s): provider is required", i, m.Model))
		}
	}
	return &cfg, nil
}

// Model returns the entry with the given title, or the default entry when
// title is empty.
func (c *Config) Model(title string) (ModelConfig, error) {
	if title == "" {
		title = c.DefaultModel
	}
	if title == "" {
		return c.Models[0], nil
	}
	for _, m := range c.Models {
		if m.Title == title {
			return m, nil
		}
	}
	return ModelConfig{}, NewConfigurationError("unknown_model", fmt.Sprintf("no model titled %q in config", title))
}

// Options converts a config entry into construction options. Transports and
// other collaborators are left nil for the caller (usually the factory) to
// fill in.
func (m ModelConfig) Options() Options {
	return Options{
		Title:              m.Title,
		Provider:           m.Provider,
		Model:              m.Model,
		APIKey:             m.APIKey,
		APIBase:            m.APIBase,
		ContextLength:      m.ContextLength,
		SystemMessage:      m.SystemMessage,
		TemplateType:       m.Template,
		Headers:            m.Headers,
		HTTPClient:         m.HTTPClient,
		CompletionDefaults: m.CompletionDefaults,
		ModelDefaults:      m.ModelDefaults,
	}
}

// parseTimeoutFromEnv parses a timeout in seconds from an environment
// variable, falling back to the default.
func parseTimeoutFromEnv(envVar string, defaultTimeout time.Duration) time.Duration {
	if timeoutStr := os.Getenv(envVar); timeoutStr != "" {
		if timeoutSecs, err := strconv.Atoi(timeoutStr); err == nil && timeoutSecs > 0 {
			return time.Duration(timeoutSecs) * time.Second
		}
	}
	return defaultTimeout
}

// ConfigFromEnv builds a single-model configuration from environment
// variables, preferring whichever provider has credentials set. Local Ollama
// is the fallback so development never needs an API key.
func ConfigFromEnv() ModelConfig {
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			apiKey = "dummy" // Some compatible endpoints don't check keys
		}
		model := DefaultOpenAIModel
		if customModel := os.Getenv("OPENAI_MODEL"); customModel != "" {
			model = customModel
		} else if customModel := os.Getenv("MODEL"); customModel != "" {
			model = customModel
		}
		return ModelConfig{
			Title:    "openai-compatible",
			Provider: "openai",
			Model:    model,
			APIKey:   apiKey,
			APIBase:  baseURL,
			Timeout:  parseTimeoutFromEnv("OPENAI_TIMEOUT", DefaultRequestTimeout),
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		model := DefaultOpenAIModel
		if customModel := os.Getenv("OPENAI_MODEL"); customModel != "" {
			model = customModel
		}
		return ModelConfig{
			Title:    "openai",
			Provider: "openai",
			Model:    model,
			APIKey:   apiKey,
			Timeout:  parseTimeoutFromEnv("OPENAI_TIMEOUT", DefaultRequestTimeout),
		}
	}

	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		model := DefaultGeminiModel
		if customModel := os.Getenv("GEMINI_MODEL"); customModel != "" {
			model = customModel
		}
		return ModelConfig{
			Title:    "gemini",
			Provider: "gemini",
			Model:    model,
			APIKey:   apiKey,
			Timeout:  parseTimeoutFromEnv("GEMINI_TIMEOUT", DefaultRequestTimeout),
		}
	}

	model := DefaultOllamaModel
	if customModel := os.Getenv("OLLAMA_MODEL"); customModel != "" {
		model = customModel
	}
	return ModelConfig{
		Title:    "ollama",
		Provider: "ollama",
		Model:    model,
		APIBase:  DefaultOllamaBaseURL,
		Timeout:  parseTimeoutFromEnv("OLLAMA_TIMEOUT", DefaultRequestTimeout),
	}
}
