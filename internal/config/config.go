// Package config loads service configuration from defaults, an optional YAML
// file, and FILMSEARCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "FILMSEARCH"

// Grounding modes for chat answers.
const (
	GroundingNarrowed = "narrowed"
	GroundingFull     = "full"
	GroundingRanked   = "ranked"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Search   SearchConfig   `mapstructure:"search"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Session  SessionConfig  `mapstructure:"session"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Log      LogConfig      `mapstructure:"log"`
	GitHub   GitHubConfig   `mapstructure:"github"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // http | stdio
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	ChatModel      string `mapstructure:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Dimension      int    `mapstructure:"dimension"`
}

type SearchConfig struct {
	SimilarityThreshold float32 `mapstructure:"similarity_threshold"`
	PerFieldCap         int     `mapstructure:"per_field_cap"`
	FanOut              int     `mapstructure:"fan_out"`
	FrameworkEmbeddings bool    `mapstructure:"framework_embeddings"`
	PageSize            int     `mapstructure:"page_size"`
	ResolveWorkers      int     `mapstructure:"resolve_workers"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ChatConfig struct {
	ContextTurns int    `mapstructure:"context_turns"`
	Grounding    string `mapstructure:"grounding"`
	TopFields    int    `mapstructure:"top_fields"` // ranked grounding only
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GitHubConfig struct {
	Token string `mapstructure:"token"`
}

// Load reads .env (if present), then path (if non-empty), then environment
// overrides. OPENAI_API_KEY and GITHUB_TOKEN are honoured without the prefix.
func Load(path string) (*Config, error) {
	// .env is optional; production sets real environment variables.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "http")
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "films")

	v.SetDefault("postgres.dsn", "host=localhost user=postgres password=postgres dbname=films port=5432 sslmode=disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.dimension", 1536)

	v.SetDefault("search.similarity_threshold", 0.3)
	v.SetDefault("search.per_field_cap", 1)
	v.SetDefault("search.fan_out", 8)
	v.SetDefault("search.framework_embeddings", false)
	v.SetDefault("search.page_size", 18)
	v.SetDefault("search.resolve_workers", 6)

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_delay", 2*time.Second)

	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("chat.context_turns", 7)
	v.SetDefault("chat.grounding", GroundingNarrowed)
	v.SetDefault("chat.top_fields", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("github.token", "")
}

// Validate checks value ranges that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	var errs []error
	if c.Search.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("search.page_size must be positive, got %d", c.Search.PageSize))
	}
	if c.Search.PerFieldCap <= 0 {
		errs = append(errs, fmt.Errorf("search.per_field_cap must be positive, got %d", c.Search.PerFieldCap))
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.similarity_threshold must be in [0,1], got %v", c.Search.SimilarityThreshold))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay must not be negative"))
	}
	if c.OpenAI.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("openai.dimension must be positive, got %d", c.OpenAI.Dimension))
	}
	switch c.Chat.Grounding {
	case GroundingNarrowed, GroundingFull, GroundingRanked:
	default:
		errs = append(errs, fmt.Errorf("chat.grounding must be %q, %q or %q, got %q",
			GroundingNarrowed, GroundingFull, GroundingRanked, c.Chat.Grounding))
	}
	if c.Chat.ContextTurns < 0 {
		errs = append(errs, fmt.Errorf("chat.context_turns must not be negative, got %d", c.Chat.ContextTurns))
	}
	switch c.Server.Mode {
	case "http", "stdio":
	default:
		errs = append(errs, fmt.Errorf("server.mode must be http or stdio, got %q", c.Server.Mode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
