package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rimnsai/rimns-web-ui/internal/handlers"
	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/services"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	generator(ctx context.Context, logger *slog.Logger) (stream.Generator, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port          string        `yaml:"port"`
	SystemPrompt  string        `yaml:"systemPrompt"`
	ErrorText     string        `yaml:"errorText"`
	TurnTimeout   time.Duration `yaml:"turnTimeout"`
	SessionTTL    time.Duration `yaml:"sessionTTL"`
	MaxUploadSize int64         `yaml:"maxUploadSize"`
	ArchivePath   string        `yaml:"archivePath"`
	LogLevel      string        `yaml:"logLevel"`
	CodeStyle     string        `yaml:"codeStyle"`
	LLM           llmConfig     `yaml:"llm"`
}

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
	ImageModel    string `yaml:"imageModel"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string                 `yaml:"apiKey"`
	BaseURL       string                 `yaml:"baseURL"`
	Parameters    services.LLMParameters `yaml:"parameters"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

const (
	defaultPort        = "8080"
	defaultTurnTimeout = 2 * time.Minute
	defaultSessionTTL  = 24 * time.Hour
)

func defaultConfig() config {
	return config{
		Port:        defaultPort,
		TurnTimeout: defaultTurnTimeout,
		SessionTTL:  defaultSessionTTL,
		LogLevel:    "info",
		LLM:         &geminiConfig{BaseLLMConfig: BaseLLMConfig{Provider: "gemini"}},
	}
}

// loadConfig reads the YAML configuration at path. A missing file yields the defaults, which talk to
// Gemini with the key from the environment.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port          string         `yaml:"port"`
		SystemPrompt  string         `yaml:"systemPrompt"`
		ErrorText     string         `yaml:"errorText"`
		TurnTimeout   *time.Duration `yaml:"turnTimeout"`
		SessionTTL    *time.Duration `yaml:"sessionTTL"`
		MaxUploadSize int64          `yaml:"maxUploadSize"`
		ArchivePath   string         `yaml:"archivePath"`
		LogLevel      string         `yaml:"logLevel"`
		CodeStyle     string         `yaml:"codeStyle"`
		LLM           map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	// An explicit zero disables the limit, only an absent key keeps the default.
	if rawConfig.TurnTimeout != nil {
		c.TurnTimeout = *rawConfig.TurnTimeout
	}
	if rawConfig.SessionTTL != nil {
		c.SessionTTL = *rawConfig.SessionTTL
	}
	if rawConfig.LogLevel != "" {
		c.LogLevel = rawConfig.LogLevel
	}
	c.SystemPrompt = rawConfig.SystemPrompt
	c.ErrorText = rawConfig.ErrorText
	c.MaxUploadSize = rawConfig.MaxUploadSize
	c.ArchivePath = rawConfig.ArchivePath
	c.CodeStyle = rawConfig.CodeStyle

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "gemini":
		llm = &geminiConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (c config) handlersConfig() handlers.Config {
	instruction := c.SystemPrompt
	if instruction == "" {
		instruction = models.DefaultSystemInstruction
	}
	return handlers.Config{
		Instruction:   instruction,
		ErrorText:     c.ErrorText,
		TurnTimeout:   c.TurnTimeout,
		SessionTTL:    c.SessionTTL,
		MaxUploadSize: c.MaxUploadSize,
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func (g geminiConfig) newGemini(ctx context.Context, logger *slog.Logger) (services.Gemini, error) {
	return services.NewGemini(ctx, services.GeminiConfig{
		APIKey:     envOr(g.APIKey, "GEMINI_API_KEY"),
		Model:      g.Model,
		ImageModel: g.ImageModel,
		BaseURL:    g.BaseURL,
	}, logger)
}

func (g geminiConfig) generator(ctx context.Context, logger *slog.Logger) (stream.Generator, error) {
	return g.newGemini(ctx, logger)
}

func (o openAIConfig) generator(_ context.Context, logger *slog.Logger) (stream.Generator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return services.NewOpenAI(envOr(o.APIKey, "OPENAI_API_KEY"), o.BaseURL, o.Model, o.Parameters, logger)
}

func (o ollamaConfig) generator(context.Context, *slog.Logger) (stream.Generator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return services.NewOllama(envOr(o.Host, "OLLAMA_HOST"), o.Model)
}

func (a anthropicConfig) generator(context.Context, *slog.Logger) (stream.Generator, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required")
	}
	return services.NewAnthropic(envOr(a.APIKey, "ANTHROPIC_API_KEY"), "", a.Model, a.MaxTokens)
}

func (o openRouterConfig) generator(_ context.Context, logger *slog.Logger) (stream.Generator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return services.NewOpenRouter(envOr(o.APIKey, "OPENROUTER_API_KEY"), "", o.Model, logger)
}
