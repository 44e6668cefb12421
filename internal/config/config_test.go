package config_test

import (
	"testing"
	"time"

	"github.com/courier-chat/courier/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
	if cfg.Delivery.AckWindow != 30*time.Second {
		t.Fatalf("unexpected ack window %v", cfg.Delivery.AckWindow)
	}
	if cfg.Delivery.MaxAttempts != 5 {
		t.Fatalf("unexpected max attempts %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.Delivery.QueuePrefix != "courier:" {
		t.Fatalf("unexpected prefix %q", cfg.Delivery.QueuePrefix)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("COURIER_ACK_WINDOW", "2m")
	t.Setenv("COURIER_MAX_ATTEMPTS", "3")
	t.Setenv("COURIER_SWEEP_INTERVAL", "500ms")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
	if cfg.Delivery.AckWindow != 2*time.Minute {
		t.Fatalf("unexpected ack window %v", cfg.Delivery.AckWindow)
	}
	if cfg.Delivery.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.Delivery.SweepInterval != 500*time.Millisecond {
		t.Fatalf("unexpected sweep interval %v", cfg.Delivery.SweepInterval)
	}
}

func TestLoadFullAddr(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:8080")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("COURIER_ACK_WINDOW", "soon")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadNegativeDuration(t *testing.T) {
	t.Setenv("COURIER_SWEEP_INTERVAL", "-5s")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestLoadInvalidMaxAttempts(t *testing.T) {
	t.Setenv("COURIER_MAX_ATTEMPTS", "0")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for zero max attempts")
	}
}
