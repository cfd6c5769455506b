package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Store   StoreConfig
	Server  ServerConfig
	LLM     LLMConfig
	Planner PlannerConfig
}

// StoreConfig selects and tunes the household store.
type StoreConfig struct {
	Driver           string // postgres, sqlite or redis
	DSN              string
	RedisURL         string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// LLMConfig holds provider settings. APIKey is the deployment default;
// callers may still bring their own key per request.
type LLMConfig struct {
	Provider string // openai or gemini
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// PlannerConfig bounds each model call made by the planner.
type PlannerConfig struct {
	CallTimeout        time.Duration
	MaxRetries         int
	RetryInitial       time.Duration
	ReceiptConcurrency int
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory is read first unless APP_ENV is production.
func LoadConfig() *Config {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "openai"))
	return &Config{
		Store: StoreConfig{
			Driver:           strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
			DSN:              getEnv("DB_URL", "file:zerowaste.db?_pragma=foreign_keys(1)"),
			RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		LLM: LLMConfig{
			Provider: provider,
			Model:    getEnv("LLM_MODEL", defaultModel(provider)),
			APIKey:   getEnv("LLM_API_KEY", providerKey(provider)),
			BaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:  getEnvAsDuration("LLM_HTTP_TIMEOUT", 60*time.Second),
		},
		Planner: PlannerConfig{
			CallTimeout:        getEnvAsDuration("PLANNER_CALL_TIMEOUT", 45*time.Second),
			MaxRetries:         getEnvAsInt("PLANNER_MAX_RETRIES", 1),
			RetryInitial:       getEnvAsDuration("PLANNER_RETRY_INITIAL", 500*time.Millisecond),
			ReceiptConcurrency: getEnvAsInt("RECEIPT_CONCURRENCY", 4),
		},
	}
}

func defaultModel(provider string) string {
	if provider == "gemini" {
		return "gemini-1.5-flash"
	}
	return "gpt-4o"
}

func providerKey(provider string) string {
	if provider == "gemini" {
		return os.Getenv("GEMINI_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the values the daemon cannot start without. A missing API
// key is allowed because callers can supply their own.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_URL is required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unsupported STORE_DRIVER "+c.Store.Driver, ErrInvalidInput)
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "gemini" {
		return NewAppError("CONFIG_ERROR", "unsupported LLM_PROVIDER "+c.LLM.Provider, ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Planner.MaxRetries < 0 || c.Planner.MaxRetries > 1 {
		return NewAppError("CONFIG_ERROR", "PLANNER_MAX_RETRIES must be 0 or 1", ErrInvalidInput)
	}
	if c.Planner.CallTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "PLANNER_CALL_TIMEOUT must be positive", ErrInvalidInput)
	}
	return nil
}
