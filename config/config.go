// Package config loads reportgraph settings from an optional .env file, an
// optional YAML file and REPORTGRAPH_* environment variables, in that order
// of precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/reportgraph/logging"
)

// LLM providers.
const (
	ProviderNone      = "none"
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Checkpoint backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config is the complete application configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Engine     EngineConfig     `yaml:"engine"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Log        LogConfig        `yaml:"log"`
}

// LLMConfig selects the planner's model client.
type LLMConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	RatePerMinute int     `yaml:"rate_per_minute"`
	OllamaURL     string  `yaml:"ollama_url"`

	// API keys are only read from the environment.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

// EngineConfig mirrors engine.Config.
type EngineConfig struct {
	CacheSize             int           `yaml:"cache_size"`
	SessionTTL            time.Duration `yaml:"session_ttl"`
	MaxSessions           int           `yaml:"max_sessions"`
	MaxNodeExecutions     int           `yaml:"max_node_executions"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions"`
}

// CheckpointConfig selects the checkpoint store.
type CheckpointConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	MongoURI      string        `yaml:"mongo_uri"`
	MongoDatabase string        `yaml:"mongo_database"`
	TTL           time.Duration `yaml:"ttl"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is json or text. Empty lets the caller decide.
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderNone,
			Temperature: 0.1,
			OllamaURL:   "http://localhost:11434",
		},
		Engine: EngineConfig{
			CacheSize:   128,
			SessionTTL:  time.Hour,
			MaxSessions: 10000,
		},
		Checkpoint: CheckpointConfig{
			Backend:       BackendMemory,
			MongoDatabase: "reportgraph",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadOptions tunes Load, mainly for tests.
type LoadOptions struct {
	// EnvFiles are loaded with godotenv before reading the environment.
	// Missing files are ignored. Defaults to ".env".
	EnvFiles []string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds the configuration. An empty path or a missing file skips the
// YAML layer.
func Load(path string, optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{EnvFiles: []string{".env"}, Getenv: os.Getenv}
	for _, fn := range optFns {
		fn(&opts)
	}

	for _, f := range opts.EnvFiles {
		// godotenv never overrides variables already set
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)

		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(opts.Getenv); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"REPORTGRAPH_LLM_PROVIDER":       &c.LLM.Provider,
		"REPORTGRAPH_LLM_MODEL":          &c.LLM.Model,
		"REPORTGRAPH_OLLAMA_URL":         &c.LLM.OllamaURL,
		"OPENAI_API_KEY":                 &c.LLM.OpenAIAPIKey,
		"ANTHROPIC_API_KEY":              &c.LLM.AnthropicAPIKey,
		"REPORTGRAPH_CHECKPOINT_BACKEND": &c.Checkpoint.Backend,
		"REPORTGRAPH_REDIS_ADDR":         &c.Checkpoint.RedisAddr,
		"REPORTGRAPH_POSTGRES_DSN":       &c.Checkpoint.PostgresDSN,
		"REPORTGRAPH_MONGO_URI":          &c.Checkpoint.MongoURI,
		"REPORTGRAPH_LOG_LEVEL":          &c.Log.Level,
		"REPORTGRAPH_LOG_FORMAT":         &c.Log.Format,
	}

	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REPORTGRAPH_LLM_RATE_PER_MINUTE":     &c.LLM.RatePerMinute,
		"REPORTGRAPH_CACHE_SIZE":              &c.Engine.CacheSize,
		"REPORTGRAPH_MAX_SESSIONS":            &c.Engine.MaxSessions,
		"REPORTGRAPH_MAX_NODE_EXECUTIONS":     &c.Engine.MaxNodeExecutions,
		"REPORTGRAPH_MAX_CONCURRENT_SESSIONS": &c.Engine.MaxConcurrentSessions,
	}

	for key, dst := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}

		*dst = n
	}

	durations := map[string]*time.Duration{
		"REPORTGRAPH_SESSION_TTL":    &c.Engine.SessionTTL,
		"REPORTGRAPH_CHECKPOINT_TTL": &c.Checkpoint.TTL,
	}

	for key, dst := range durations {
		v := getenv(key)
		if v == "" {
			continue
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}

		*dst = d
	}

	if v := getenv("REPORTGRAPH_LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: REPORTGRAPH_LLM_TEMPERATURE: %w", err)
		}

		c.LLM.Temperature = f
	}

	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.LLM.Provider) {
	case ProviderNone, ProviderMock, ProviderOllama:
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			problems = append(problems, "llm.provider openai requires OPENAI_API_KEY")
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			problems = append(problems, "llm.provider anthropic requires ANTHROPIC_API_KEY")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown llm.provider %q", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, "llm.temperature must be between 0 and 2")
	}

	if c.LLM.RatePerMinute < 0 {
		problems = append(problems, "llm.rate_per_minute must not be negative")
	}

	if c.Engine.CacheSize < 1 {
		problems = append(problems, "engine.cache_size must be positive")
	}

	if c.Engine.SessionTTL < 0 || c.Engine.MaxSessions < 0 || c.Engine.MaxNodeExecutions < 0 || c.Engine.MaxConcurrentSessions < 0 {
		problems = append(problems, "engine limits must not be negative")
	}

	switch strings.ToLower(c.Checkpoint.Backend) {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if c.Checkpoint.RedisAddr == "" {
			problems = append(problems, "checkpoint.backend redis requires redis_addr")
		}
	case BackendPostgres:
		if c.Checkpoint.PostgresDSN == "" {
			problems = append(problems, "checkpoint.backend postgres requires postgres_dsn")
		}
	case BackendMongo:
		if c.Checkpoint.MongoURI == "" {
			problems = append(problems, "checkpoint.backend mongo requires mongo_uri")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown checkpoint.backend %q", c.Checkpoint.Backend))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if f := strings.ToLower(c.Log.Format); f != "" && f != "json" && f != "text" {
		problems = append(problems, fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}

	return nil
}
