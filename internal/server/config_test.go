package server

import (
	"reflect"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Expected port :8080, got %q", cfg.Port)
	}
	if cfg.WelcomeMessage != "Welcome to the WebSocket server!" {
		t.Errorf("Unexpected welcome message %q", cfg.WelcomeMessage)
	}
	if cfg.ReplyPrefix != "Hello, you sent: " {
		t.Errorf("Unexpected reply prefix %q", cfg.ReplyPrefix)
	}
	if cfg.MaxMessageSize != 0 {
		t.Errorf("Expected unlimited message size, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 0 {
		t.Errorf("Expected rate limiting to be disabled, got burst %d", cfg.RateLimit.Burst)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("Expected no origin allow list, got %v", cfg.AllowedOrigins)
	}
	if cfg.PongWait != 0 {
		t.Errorf("Expected keepalive to be disabled, got pong wait %s", cfg.PongWait)
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9002")
	t.Setenv("WELCOME_MESSAGE", "hi")
	t.Setenv("REPLY_PREFIX", "")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("SHUTDOWN_TIMEOUT", "7")
	t.Setenv("PONG_WAIT", "30")

	cfg := NewConfigFromEnv()

	want := Config{
		Port:           ":9002",
		WelcomeMessage: "hi",
		ReplyPrefix:    "",
		AllowedOrigins: []string{"http://a.example", "https://b.example"},
		MaxMessageSize: 1024,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: 3 * time.Second,
		},
		ShutdownTimeout: 7 * time.Second,
		PongWait:        30 * time.Second,
	}
	if !reflect.DeepEqual(*cfg, want) {
		t.Errorf("NewConfigFromEnv() = %+v, want %+v", *cfg, want)
	}
}

func TestNewConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "127.0.0.1:9000")
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "0")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	t.Setenv("PONG_WAIT", "-1")

	cfg := NewConfigFromEnv()
	def := NewConfig()

	if cfg.Port != "127.0.0.1:9000" {
		t.Errorf("Expected host:port to be kept, got %q", cfg.Port)
	}
	if cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("Expected default max message size, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit != def.RateLimit {
		t.Errorf("Expected default rate limit, got %+v", cfg.RateLimit)
	}
	if cfg.ShutdownTimeout != def.ShutdownTimeout {
		t.Errorf("Expected default shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.PongWait != 0 {
		t.Errorf("Expected keepalive to stay disabled, got %s", cfg.PongWait)
	}
}

func TestConfigSanitized(t *testing.T) {
	origins := []string{"http://localhost:8080"}
	cfg := Config{
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: -3},
		AllowedOrigins: origins,
		PongWait:       -time.Second,
	}

	got := cfg.sanitized()

	if got.Port != ":8080" {
		t.Errorf("Expected default port, got %q", got.Port)
	}
	if got.MaxMessageSize != 0 {
		t.Errorf("Expected negative size to become 0, got %d", got.MaxMessageSize)
	}
	if got.RateLimit.Burst != 0 || got.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected rate limit %+v", got.RateLimit)
	}
	if got.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected default shutdown timeout, got %s", got.ShutdownTimeout)
	}
	if got.PongWait != 0 {
		t.Errorf("Expected negative pong wait to become 0, got %s", got.PongWait)
	}

	got.AllowedOrigins[0] = "changed"
	if origins[0] != "http://localhost:8080" {
		t.Error("sanitized() must copy AllowedOrigins")
	}
}
