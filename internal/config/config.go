package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Gateway   GatewayConfig
	Server    ServerConfig
	Session   SessionConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// GatewayConfig holds the agent gateway connection settings.
type GatewayConfig struct {
	URL string
	// Timeout bounds each gateway request. Zero means no timeout.
	Timeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SessionConfig holds panel session lifecycle settings.
type SessionConfig struct {
	// TTL is how long an unused session survives. Zero disables reaping.
	TTL time.Duration
}

// RedisConfig holds Redis connection settings. An empty Addr selects the
// in-process event bus.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// RateLimitConfig holds API rate limits.
type RateLimitConfig struct {
	RPS          float64
	Burst        int
	SessionRPS   float64
	SessionBurst int
}

// LogConfig holds zerolog settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
// Only CIMUT_GATEWAY_URL is required; everything else has a local default.
func Load() (*Config, error) {
	gatewayTimeout, err := getEnvDuration("CIMUT_GATEWAY_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CIMUT_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	// Find-fault-target calls run an LLM behind the gateway and can be slow.
	writeTimeout, err := getEnvDuration("CIMUT_SERVER_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sessionTTL, err := getEnvDuration("CIMUT_SESSION_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CIMUT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rps, err := getEnvFloat("CIMUT_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	burst, err := getEnvInt("CIMUT_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sessionRPS, err := getEnvFloat("CIMUT_SESSION_RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sessionBurst, err := getEnvInt("CIMUT_SESSION_RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Gateway: GatewayConfig{
			URL:     strings.TrimRight(getEnv("CIMUT_GATEWAY_URL", ""), "/"),
			Timeout: gatewayTimeout,
		},
		Server: ServerConfig{
			Addr:         getEnv("CIMUT_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("CIMUT_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Session: SessionConfig{
			TTL: sessionTTL,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CIMUT_REDIS_ADDR", ""),
			Password: getEnv("CIMUT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		RateLimit: RateLimitConfig{
			RPS:          rps,
			Burst:        burst,
			SessionRPS:   sessionRPS,
			SessionBurst: sessionBurst,
		},
		Log: LogConfig{
			Level:  getEnv("CIMUT_LOG_LEVEL", "info"),
			Format: getEnv("CIMUT_LOG_FORMAT", "json"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Gateway.URL == "" {
		return errors.New("CIMUT_GATEWAY_URL is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("CIMUT_GATEWAY_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CIMUT_GATEWAY_URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("CIMUT_GATEWAY_URL must include a host, got %q", c.Gateway.URL)
	}
	if u.Scheme == "http" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		log.Warn().Str("url", c.Gateway.URL).Msg("CIMUT_GATEWAY_URL uses plain http to a remote host")
	}

	// Bounds checks.
	if c.Gateway.Timeout < 0 {
		return fmt.Errorf("CIMUT_GATEWAY_TIMEOUT must not be negative, got %s", c.Gateway.Timeout)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CIMUT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CIMUT_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("CIMUT_SESSION_TTL must not be negative, got %s", c.Session.TTL)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("CIMUT_REDIS_DB must be >= 0, got %d", c.Redis.DB)
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("CIMUT_RATE_LIMIT_RPS must be positive, got %g", c.RateLimit.RPS)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("CIMUT_RATE_LIMIT_BURST must be >= 1, got %d", c.RateLimit.Burst)
	}
	if c.RateLimit.SessionRPS <= 0 {
		return fmt.Errorf("CIMUT_SESSION_RATE_LIMIT_RPS must be positive, got %g", c.RateLimit.SessionRPS)
	}
	if c.RateLimit.SessionBurst < 1 {
		return fmt.Errorf("CIMUT_SESSION_RATE_LIMIT_BURST must be >= 1, got %d", c.RateLimit.SessionBurst)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("CIMUT_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
