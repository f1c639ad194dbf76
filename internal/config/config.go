// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/joho/godotenv"
)

// Response formats accepted by RESPONSE_FORMAT.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverBigQuery = "bigquery"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	defaultPort        = "8080"
	defaultDriver      = DriverSQLite
	defaultSQLiteURL   = "file:insights.db?_foreign_keys=on"
	defaultBQDataset   = "finance"
	defaultRedisURL    = "redis://localhost:6379/0"
	defaultArchivePath = "jsonfile:analysis_runs.jsonl"
)

// Config is the resolved process configuration.
type Config struct {
	Model        llm.Config
	FastModel    string
	QualityModel string

	// ResponseFormat selects keyword parsing of free text or structured JSON
	// answers.
	ResponseFormat string

	StoreDriver string
	DatabaseURL string
	BQProject   string
	BQDataset   string

	ArchiveURI  string
	NotionToken string
	NotionDBID  string
	RedisURL    string

	AnalysisTimeout time.Duration

	LogLevel  string
	LogFormat string
	Port      string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Model: llm.Config{
			Provider:        llm.Provider(strings.ToLower(get("MODEL_PROVIDER", string(llm.ProviderGemini)))),
			GeminiAPIKey:    get("GEMINI_API_KEY", getenv("GOOGLE_API_KEY")),
			OpenAIAPIKey:    get("OPENAI_API_KEY", ""),
			AnthropicAPIKey: get("ANTHROPIC_API_KEY", ""),
		},
		FastModel:    get("FAST_MODEL", ""),
		QualityModel: get("QUALITY_MODEL", ""),
		StoreDriver:  strings.ToLower(get("STORE_DRIVER", defaultDriver)),
		DatabaseURL:  get("DATABASE_URL", ""),
		BQProject:    get("BQ_PROJECT", ""),
		BQDataset:    get("BQ_DATASET", defaultBQDataset),
		ArchiveURI:   get("ARCHIVE_URI", defaultArchivePath),
		NotionToken:  get("NOTION_TOKEN", ""),
		NotionDBID:   get("NOTION_DB_ID", ""),
		RedisURL:     get("REDIS_URL", defaultRedisURL),
		LogLevel:     get("LOG_LEVEL", "info"),
		LogFormat:    get("LOG_FORMAT", logger.FormatConsole),
		Port:         get("PORT", defaultPort),
	}

	if raw := get("ANALYSIS_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("FromEnv: invalid ANALYSIS_TIMEOUT %q", raw)
		}
		cfg.AnalysisTimeout = d
	}

	cfg.ResponseFormat = strings.ToLower(get("RESPONSE_FORMAT", FormatText))
	if cfg.ResponseFormat != FormatText && cfg.ResponseFormat != FormatJSON {
		return nil, fmt.Errorf("FromEnv: unknown RESPONSE_FORMAT %q", cfg.ResponseFormat)
	}

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = defaultSQLiteURL
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("FromEnv: DATABASE_URL is required for the postgres driver")
		}
	case DriverBigQuery:
		if cfg.BQProject == "" {
			return nil, fmt.Errorf("FromEnv: BQ_PROJECT is required for the bigquery driver")
		}
	default:
		return nil, fmt.Errorf("FromEnv: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// Models returns the configured model identifiers, falling back to the
// provider defaults.
func (c *Config) Models() llm.ModelSet {
	m := llm.DefaultModels(c.Model.Provider)
	if c.FastModel != "" {
		m.Fast = c.FastModel
	}
	if c.QualityModel != "" {
		m.Quality = c.QualityModel
	}
	return m
}

// LoggerOptions returns the logger settings.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.LogLevel, Format: c.LogFormat}
}

// NotionEnabled reports whether results can be published to Notion.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDBID != ""
}
