// Package server provides configuration helpers that define runtime defaults,
// sanitization, and rate-limiting parameters for the echo service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultWelcomeMessage is sent to every client right after the upgrade.
	DefaultWelcomeMessage = "Welcome to the WebSocket server!"

	// DefaultReplyPrefix is prepended to every payload echoed back to a client.
	DefaultReplyPrefix = "Hello, you sent: "

	defaultPort            = ":8080"
	defaultRefillInterval  = time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
// A Burst of zero disables rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	Port            string
	WelcomeMessage  string
	ReplyPrefix     string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration

	// PongWait enables keepalive: the server pings every 9/10 of PongWait and
	// drops clients that send nothing, not even a pong, within it. Zero disables it.
	PongWait time.Duration
}

func defaultConfig() Config {
	return Config{
		Port:           defaultPort,
		WelcomeMessage: DefaultWelcomeMessage,
		ReplyPrefix:    DefaultReplyPrefix,
		RateLimit: RateLimitConfig{
			RefillInterval: defaultRefillInterval,
		},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// sanitized returns a copy of cfg with missing or invalid values replaced by defaults.
// WelcomeMessage and ReplyPrefix are kept as given, so an empty prefix is allowed.
func (cfg Config) sanitized() Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize < 0 {
		cfg.MaxMessageSize = 0
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.PongWait < 0 {
		cfg.PongWait = 0
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = normalizePort(port)
	}

	if welcome, ok := os.LookupEnv("WELCOME_MESSAGE"); ok {
		cfg.WelcomeMessage = welcome
	}

	if prefix, ok := os.LookupEnv("REPLY_PREFIX"); ok {
		cfg.ReplyPrefix = prefix
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}

	if pongWait := os.Getenv("PONG_WAIT"); pongWait != "" {
		cfg.PongWait = parseSeconds(pongWait, cfg.PongWait)
	}

	return &cfg
}

// normalizePort accepts both "8080" and ":8080".
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
