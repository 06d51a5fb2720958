// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Matching  MatchingConfig
	Profiling ProfilingConfig
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig configures the PostgreSQL connection
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds a pgx-compatible connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// LLMConfig configures the optional Gemini-backed mapping stage.
// When APIKey is empty the AI stage is skipped and matching falls
// straight through to string similarity.
type LLMConfig struct {
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	RequestsPerMin int
}

// Enabled reports whether the AI mapping stage can be used
func (l LLMConfig) Enabled() bool {
	return l.APIKey != ""
}

// MatchingConfig tunes the account matching pipeline
type MatchingConfig struct {
	// SimilarityThreshold is the minimum blended similarity score Stage C
	// accepts. 0.3 keeps the last automated stage permissive; downstream
	// review relies on the recorded confidence.
	SimilarityThreshold float64
	// DefaultBatchSize bounds how many names one resolve call sends to the LLM
	DefaultBatchSize int
}

// ProfilingConfig configures the pprof debug server
type ProfilingConfig struct {
	Enabled bool
	Port    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "finmap"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "finmap"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LLM: LLMConfig{
			APIKey:         os.Getenv("GEMINI_API_KEY"),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			RequestTimeout: getEnvDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
			MaxRetries:     getEnvInt("LLM_MAX_RETRIES", 3),
			RetryDelay:     getEnvDuration("LLM_RETRY_DELAY", 2*time.Second),
			RequestsPerMin: getEnvInt("LLM_REQUESTS_PER_MIN", 30),
		},
		Matching: MatchingConfig{
			SimilarityThreshold: getEnvFloat("MATCH_SIMILARITY_THRESHOLD", 0.3),
			DefaultBatchSize:    getEnvInt("MATCH_DEFAULT_BATCH_SIZE", 5),
		},
		Profiling: ProfilingConfig{
			Enabled: getEnvBool("PPROF_ENABLED", false),
			Port:    getEnvInt("PPROF_PORT", 6060),
		},
	}

	if cfg.Database.Password == "" {
		if dsn := os.Getenv("DATABASE_URL"); dsn == "" {
			return nil, fmt.Errorf("DB_PASSWORD or DATABASE_URL must be set")
		}
	}

	return cfg, nil
}

// DSNFromEnv prefers DATABASE_URL, falling back to the discrete DB_* settings
func (c *Config) DSNFromEnv() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return c.Database.DSN()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
