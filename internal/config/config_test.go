package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := LoadConfig()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DatabaseDriver)
	}
	if cfg.CompletionSweepInterval != 15*time.Minute {
		t.Errorf("expected 15m sweep interval, got %s", cfg.CompletionSweepInterval)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected 10s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.SessionDuration() != 24*time.Hour {
		t.Errorf("expected 24h sessions, got %s", cfg.SessionDuration())
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "host=db user=surf dbname=surf sslmode=disable")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RATE_LIMIT_CAPACITY", "5")
	t.Setenv("RATE_LIMIT_REFILL_PER_SECOND", "0.5")
	t.Setenv("RATE_LIMIT_PREFIX", "surf-staging")
	t.Setenv("COMPLETION_SWEEP_INTERVAL", "2m")
	t.Setenv("SESSION_DURATION_HOURS", "6")

	cfg := LoadConfig()

	if cfg.Port != "9090" || cfg.DatabaseDriver != "postgres" {
		t.Errorf("unexpected server/database settings: %+v", cfg)
	}
	if cfg.JWTSecret != "s3cret" || cfg.RedisAddr != "redis:6379" {
		t.Errorf("secrets not bound from environment: %+v", cfg)
	}
	if cfg.RateLimitCapacity != 5 || cfg.RateLimitRefillPerSecond != 0.5 || cfg.RateLimitPrefix != "surf-staging" {
		t.Errorf("unexpected rate limit settings: %d, %f, %q", cfg.RateLimitCapacity, cfg.RateLimitRefillPerSecond, cfg.RateLimitPrefix)
	}
	if cfg.CompletionSweepInterval != 2*time.Minute {
		t.Errorf("expected 2m sweep interval, got %s", cfg.CompletionSweepInterval)
	}
	if cfg.SessionDuration() != 6*time.Hour {
		t.Errorf("expected 6h sessions, got %s", cfg.SessionDuration())
	}
}

func TestSessionDurationFallback(t *testing.T) {
	cfg := &Config{}
	if cfg.SessionDuration() != 24*time.Hour {
		t.Errorf("expected 24h fallback, got %s", cfg.SessionDuration())
	}
}
