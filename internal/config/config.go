package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	MongoDB MongoDBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	S3      S3Config
	OTEL    OTELConfig
	Log     LogConfig
	Session SessionConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	AllowedOrigins  string
	IdempotencyTTL  time.Duration
	ShutdownTimeout time.Duration
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds the HMAC secret used to verify access tokens
type JWTConfig struct {
	Secret string
}

// S3Config holds the optional history archive bucket
type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// OTELConfig holds OpenTelemetry exporter configuration
type OTELConfig struct {
	Enabled        bool
	Endpoint       string
	Headers        map[string]string
	PathPrefix     string
	Insecure       bool
	SampleRatio    float64
	ServiceVersion string
	Environment    string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string
	JSON     bool
	FileName string
	ToStdout bool
}

// SessionConfig holds guided session timing
type SessionConfig struct {
	RestGrace        time.Duration
	TimeUpGrace      time.Duration
	AutoAdvanceTimed bool
	CueBuffer        int
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "*"),
			IdempotencyTTL:  getEnvAsDuration("IDEMPOTENCY_TTL", 10*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "liftlog"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       int(getEnvAsInt64("REDIS_DB", 0)),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		S3: S3Config{
			Enabled:   getEnvAsBool("S3_ENABLED", false),
			Endpoint:  getEnv("S3_ENDPOINT", "http://localhost:8333"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    getEnv("S3_BUCKET", "liftlog-history"),
			AccessKey: getEnv("S3_ACCESS_KEY", "any"),
			SecretKey: getEnv("S3_SECRET_KEY", "any"),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        parseHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", "")),
			PathPrefix:     getEnv("OTEL_PATH_PREFIX", "/otlp"),
			Insecure:       getEnvAsBool("OTEL_INSECURE", false),
			SampleRatio:    getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
			ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
			Environment:    getEnv("ENVIRONMENT", "development"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			JSON:     getEnvAsBool("LOG_JSON", false),
			FileName: getEnv("LOG_FILE", ""),
			ToStdout: getEnvAsBool("LOG_TO_STDOUT", true),
		},
		Session: SessionConfig{
			RestGrace:        getEnvAsDuration("SESSION_REST_GRACE", time.Second),
			TimeUpGrace:      getEnvAsDuration("SESSION_TIME_UP_GRACE", 1500*time.Millisecond),
			AutoAdvanceTimed: getEnvAsBool("SESSION_AUTO_ADVANCE_TIMED", true),
			CueBuffer:        int(getEnvAsInt64("SESSION_CUE_BUFFER", 64)),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.OTEL.Enabled && c.OTEL.Endpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is set")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED is set")
	}
	if c.Session.RestGrace < 0 || c.Session.TimeUpGrace < 0 {
		return fmt.Errorf("session grace delays must not be negative")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// parseHeaders reads "k1=v1,k2=v2" as used by OTEL_EXPORTER_OTLP_HEADERS
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		headers[k] = strings.TrimSpace(v)
	}
	return headers
}
