package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Sequence allocator backends
const (
	SequenceBackendPostgres = "postgres"
	SequenceBackendRedis    = "redis"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL    string
	DBMaxConns     int
	AutoMigrate    bool
	MigrationsPath string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	CacheTTL      time.Duration

	// Ledger configuration
	SequenceBackend string
	EventChannel    string
	DefaultCurrency string

	// Retry policy for transient database failures
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DBMaxConns:           getEnvAsInt("DB_MAX_CONNS", 25),
		AutoMigrate:          getEnvAsBool("AUTO_MIGRATE", false),
		MigrationsPath:       getEnv("MIGRATIONS_PATH", "file://migrations"),
		RedisURL:             getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		CacheTTL:             time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		SequenceBackend:      getEnv("SEQUENCE_BACKEND", SequenceBackendPostgres),
		EventChannel:         getEnv("EVENT_CHANNEL", "coop.events"),
		DefaultCurrency:      getEnv("DEFAULT_CURRENCY", "NPR"),
		RetryMaxAttempts:     getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialInterval: time.Duration(getEnvAsInt("RETRY_INITIAL_INTERVAL_MS", 25)) * time.Millisecond,
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.SequenceBackend {
	case SequenceBackendPostgres, SequenceBackendRedis:
	default:
		return fmt.Errorf("SEQUENCE_BACKEND must be %q or %q, got %q",
			SequenceBackendPostgres, SequenceBackendRedis, c.SequenceBackend)
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
