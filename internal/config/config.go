// Package config provides unified configuration loading for pagemark.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pagemark service. It is built
// once at startup and passed by reference into the pipeline; nothing in
// the pipeline reads ambient state.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Render        RenderConfig        `yaml:"render"`
	Fetch         FetchConfig         `yaml:"fetch"`
	LLM           LLMConfig           `yaml:"llm"`
	Retry         RetryConfig         `yaml:"retry"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// PipelineConfig holds batching and concurrency settings.
type PipelineConfig struct {
	BatchSize                int `yaml:"batch_size"`                 // pages per transcription call, 1-10
	MaxConcurrentTranscribes int `yaml:"max_concurrent_transcribes"` // transcription admission gate
	MaxConcurrentRenders     int `yaml:"max_concurrent_renders"`     // render admission gate
}

// RenderConfig holds PDF rasterization settings.
type RenderConfig struct {
	ZoomFactor int `yaml:"zoom_factor"` // 1-4, pages render at 72*zoom DPI
}

// FetchConfig holds settings for downloading documents by URL.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// LLMConfig holds vision endpoint settings. The API key is taken from the
// environment only and never from a config file.
type LLMConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"-"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	TopP           float64       `yaml:"top_p"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RetryConfig holds backoff settings for transcription calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     10 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   100 << 20, // 100 MB
		},
		Pipeline: PipelineConfig{
			BatchSize:                1,
			MaxConcurrentTranscribes: 5,
			MaxConcurrentRenders:     4,
		},
		Render: RenderConfig{
			ZoomFactor: 2,
		},
		Fetch: FetchConfig{
			Timeout:  30 * time.Second,
			MaxBytes: 100 << 20,
		},
		LLM: LLMConfig{
			Endpoint:       "https://openrouter.ai/api/v1/chat/completions",
			Model:          "google/gemini-2.5-flash-preview-09-2025",
			Temperature:    0.1,
			MaxTokens:      4000,
			TopP:           0.95,
			RequestTimeout: 2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Pipeline.BatchSize < 1 || c.Pipeline.BatchSize > 10 {
		return fmt.Errorf("batch_size must be between 1 and 10, got %d", c.Pipeline.BatchSize)
	}

	if c.Pipeline.MaxConcurrentTranscribes < 1 {
		return fmt.Errorf("max_concurrent_transcribes must be at least 1")
	}

	if c.Pipeline.MaxConcurrentRenders < 1 {
		return fmt.Errorf("max_concurrent_renders must be at least 1")
	}

	if c.Render.ZoomFactor < 1 || c.Render.ZoomFactor > 4 {
		return fmt.Errorf("zoom_factor must be between 1 and 4, got %d", c.Render.ZoomFactor)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}

	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("invalid retry delays: base=%v max=%v", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}

	if !strings.HasPrefix(c.LLM.Endpoint, "http://") && !strings.HasPrefix(c.LLM.Endpoint, "https://") {
		return fmt.Errorf("llm endpoint must start with http:// or https://")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.BatchSize = n
		}
	}

	if v := os.Getenv("MAX_CONCURRENT_TRANSCRIBES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxConcurrentTranscribes = n
		}
	}

	if v := os.Getenv("MAX_CONCURRENT_RENDERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxConcurrentRenders = n
		}
	}

	if v := os.Getenv("PDF_ZOOM_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.ZoomFactor = n
		}
	}

	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = strings.TrimSuffix(v, "/")
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
