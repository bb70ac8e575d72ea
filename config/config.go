package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the meetscribe backend.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Reminders  RemindersConfig  `mapstructure:"reminders"`
}

// GeneralConfig contains HTTP server and auth settings.
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
}

// ProvidersConfig groups the external AI provider settings.
type ProvidersConfig struct {
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
	HuggingFace HuggingFaceConfig `mapstructure:"huggingface"`
}

// OpenAIConfig configures the primary completion/embedding provider.
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	ChunkChars      int           `mapstructure:"chunk_chars"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// GeminiConfig configures the secondary completion provider.
type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HuggingFaceConfig configures the tertiary, generic summarization provider.
type HuggingFaceConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryWait     time.Duration `mapstructure:"retry_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SummarizerConfig tunes the fallback orchestration.
type SummarizerConfig struct {
	// TransientMarkers are lowercase substrings that mark a provider error
	// as a capacity problem eligible for fallback.
	TransientMarkers []string `mapstructure:"transient_markers"`
	// TimeoutIsTransient controls whether a provider call timeout counts as
	// a transient failure (fallback) or a hard one (propagate).
	TimeoutIsTransient bool `mapstructure:"timeout_is_transient"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings (scheduler locks).
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// RemindersConfig drives the action-item reminder sweeper.
type RemindersConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"`
}

// LoadConfig loads configuration from an optional file plus environment
// variables. Missing file is fine; defaults cover everything but secrets.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("meetscribe")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MEETSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.listen", ":8080")
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")

	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	v.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("providers.openai.temperature", 0.5)
	v.SetDefault("providers.openai.max_tokens", 800)
	v.SetDefault("providers.openai.chunk_chars", 3000)
	v.SetDefault("providers.openai.timeout", "60s")

	v.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.gemini.model", "gemini-pro")
	v.SetDefault("providers.gemini.timeout", "60s")

	v.SetDefault("providers.huggingface.base_url", "https://api-inference.huggingface.co/models")
	v.SetDefault("providers.huggingface.model", "facebook/bart-large-cnn")
	v.SetDefault("providers.huggingface.max_input_chars", 1000)
	v.SetDefault("providers.huggingface.max_attempts", 3)
	v.SetDefault("providers.huggingface.retry_wait", "20s")
	v.SetDefault("providers.huggingface.timeout", "90s")

	v.SetDefault("summarizer.transient_markers", []string{"quota", "insufficient", "rate limit"})
	v.SetDefault("summarizer.timeout_is_transient", false)

	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.db", 0)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.periodic_logs", false)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.cron_spec", "*/5 * * * *")
}

// overrideFromEnv maps conventional environment variables onto config keys
// so secrets never have to live in a file.
func overrideFromEnv(v *viper.Viper) {
	for env, key := range map[string]string{
		"OPENAI_API_KEY":        "providers.openai.api_key",
		"GEMINI_API_KEY":        "providers.gemini.api_key",
		"HUGGINGFACE_API_KEY":   "providers.huggingface.api_key",
		"DATABASE_URL":          "storage.postgres.url",
		"POSTGRES_HOST":         "storage.postgres.host",
		"POSTGRES_PORT":         "storage.postgres.port",
		"POSTGRES_USER":         "storage.postgres.user",
		"POSTGRES_PASSWORD":     "storage.postgres.password",
		"POSTGRES_DB":           "storage.postgres.dbname",
		"REDIS_HOST":            "storage.redis.host",
		"REDIS_PORT":            "storage.redis.port",
		"REDIS_PASSWORD":        "storage.redis.password",
		"MEETSCRIBE_JWT_SECRET": "general.jwt_secret",
	} {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}
}
