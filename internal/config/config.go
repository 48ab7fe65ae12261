package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the scrape-and-analyze server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Scraper  ScraperConfig
	AI       AIConfig
	Dispatch DispatchConfig
	Auth     AuthConfig
	LogLevel string
}

type ServerConfig struct {
	Port int
	Env  string
	// PublicURL is the externally reachable base URL the scraper posts webhooks to.
	PublicURL string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type ScraperConfig struct {
	BaseURL       string
	APIToken      string
	DatasetID     string
	Timeout       time.Duration
	WebhookSecret string
}

// Enabled reports whether outbound scrape triggering is configured.
func (c ScraperConfig) Enabled() bool {
	return c.APIToken != ""
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Gemini           GeminiConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type DispatchConfig struct {
	Mode        string
	Concurrency int
	Queue       string
}

type AuthConfig struct {
	APIKeyHashes    []string
	RateLimitPerMin int
}

const (
	DispatchGoroutine = "goroutine"
	DispatchAsynq     = "asynq"
)

var validProviders = map[string]bool{
	"ollama": true,
	"vllm":   true,
	"openai": true,
	"gemini": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:      envInt("SERVER_PORT", 8080),
			Env:       envString("SERVER_ENV", "development"),
			PublicURL: strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scraper: ScraperConfig{
			BaseURL:       strings.TrimRight(envString("BRIGHTDATA_API_URL", "https://api.brightdata.com"), "/"),
			APIToken:      os.Getenv("BRIGHTDATA_API_TOKEN"),
			DatasetID:     os.Getenv("BRIGHTDATA_DATASET_ID"),
			Timeout:       envDuration("BRIGHTDATA_TIMEOUT", 30*time.Second),
			WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000/v1"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.5-flash"),
			},
		},
		Dispatch: DispatchConfig{
			Mode:        envString("DISPATCH_MODE", DispatchGoroutine),
			Concurrency: envInt("DISPATCH_CONCURRENCY", 4),
			Queue:       envString("DISPATCH_QUEUE", "analysis"),
		},
		Auth: AuthConfig{
			APIKeyHashes:    envList("API_KEY_HASHES"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
		LogLevel: strings.ToLower(envString("LOG_LEVEL", "info")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, gemini; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must be positive")
	}

	if c.Scraper.Enabled() {
		if c.Scraper.DatasetID == "" {
			return fmt.Errorf("BRIGHTDATA_DATASET_ID is required when BRIGHTDATA_API_TOKEN is set")
		}
		if c.Server.PublicURL == "" {
			return fmt.Errorf("PUBLIC_URL is required when BRIGHTDATA_API_TOKEN is set")
		}
		if !isHTTPURL(c.Server.PublicURL) {
			return fmt.Errorf("PUBLIC_URL must start with http:// or https://, got %q", c.Server.PublicURL)
		}
		if !isHTTPURL(c.Scraper.BaseURL) {
			return fmt.Errorf("BRIGHTDATA_API_URL must start with http:// or https://, got %q", c.Scraper.BaseURL)
		}
	}

	switch c.Dispatch.Mode {
	case DispatchGoroutine, DispatchAsynq:
	default:
		return fmt.Errorf("DISPATCH_MODE must be one of goroutine, asynq; got %q", c.Dispatch.Mode)
	}
	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be at least 1")
	}

	if len(c.Auth.APIKeyHashes) == 0 {
		return fmt.Errorf("API_KEY_HASHES is required")
	}
	for _, h := range c.Auth.APIKeyHashes {
		if !strings.HasPrefix(h, "$2") {
			return fmt.Errorf("API_KEY_HASHES must contain bcrypt hashes")
		}
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
