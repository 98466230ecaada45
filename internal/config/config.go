// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/advisor-gateway/internal/backend"
)

// ErrMissingBackendURL is returned when ADVISOR_BACKEND_URL is not set.
var ErrMissingBackendURL = errors.New("ADVISOR_BACKEND_URL is required")

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	DeviceTTL       time.Duration
	GRPCHealthAddr  string
	Backend         BackendConfig
	Health          HealthConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// BackendConfig describes the remote advisor backend.
type BackendConfig struct {
	URL         string
	Contract    string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// HealthConfig controls the backend health probe.
type HealthConfig struct {
	Interval      time.Duration
	SlowThreshold time.Duration
}

// RateLimitConfig bounds chat requests per device.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/advisor.db"),
		DeviceTTL:      getEnvDuration("DEVICE_TTL", 30*24*time.Hour),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		Backend: BackendConfig{
			URL:         strings.TrimRight(strings.TrimSpace(os.Getenv("ADVISOR_BACKEND_URL")), "/"),
			Contract:    getEnv("BACKEND_CONTRACT", string(backend.ContractFlat)),
			Timeout:     getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
			MaxRetries:  getEnvInt("BACKEND_MAX_RETRIES", 3),
			BackoffBase: getEnvDuration("BACKEND_BACKOFF_BASE", time.Second),
		},
		Health: HealthConfig{
			Interval:      getEnvDuration("HEALTH_INTERVAL", 30*time.Second),
			SlowThreshold: getEnvDuration("HEALTH_SLOW_THRESHOLD", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return ErrMissingBackendURL
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ADVISOR_BACKEND_URL must be an absolute http(s) URL, got %q", c.Backend.URL)
	}
	if _, err := backend.ParseContract(c.Backend.Contract); err != nil {
		return fmt.Errorf("BACKEND_CONTRACT: %w", err)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("BACKEND_MAX_RETRIES must be >= 0")
	}
	if c.Backend.BackoffBase < 0 {
		return fmt.Errorf("BACKEND_BACKOFF_BASE must be >= 0")
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL must be > 0")
	}
	if c.Health.SlowThreshold <= 0 {
		return fmt.Errorf("HEALTH_SLOW_THRESHOLD must be > 0")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// BackendClientConfig converts the backend settings for backend.NewClient.
func (c *Config) BackendClientConfig() backend.Config {
	contract, _ := backend.ParseContract(c.Backend.Contract)
	cfg := backend.DefaultConfig(c.Backend.URL)
	cfg.Contract = contract
	cfg.Timeout = c.Backend.Timeout
	cfg.MaxRetries = c.Backend.MaxRetries
	cfg.BackoffBase = c.Backend.BackoffBase
	cfg.SlowThreshold = c.Health.SlowThreshold
	return cfg
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("1.5s") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
