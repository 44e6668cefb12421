package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates service configuration.
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Delivery DeliveryConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	redis, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	delivery, err := loadDeliveryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Redis: redis, Delivery: delivery}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RedisConfig describes the durable queue store connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := parseIntEnv("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Password: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DB:       db,
	}, nil
}

// DeliveryConfig carries the reliable-delivery policy.
type DeliveryConfig struct {
	QueuePrefix   string
	AckWindow     time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
	WriteTimeout  time.Duration
}

func loadDeliveryConfig() (DeliveryConfig, error) {
	ackWindow, err := parseDurationEnv("COURIER_ACK_WINDOW", 30*time.Second)
	if err != nil {
		return DeliveryConfig{}, err
	}

	maxAttempts, err := parseIntEnv("COURIER_MAX_ATTEMPTS", 5)
	if err != nil {
		return DeliveryConfig{}, err
	}
	if maxAttempts < 1 {
		return DeliveryConfig{}, fmt.Errorf("COURIER_MAX_ATTEMPTS must be at least 1, got %d", maxAttempts)
	}

	sweepInterval, err := parseDurationEnv("COURIER_SWEEP_INTERVAL", 5*time.Second)
	if err != nil {
		return DeliveryConfig{}, err
	}

	writeTimeout, err := parseDurationEnv("COURIER_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return DeliveryConfig{}, err
	}

	return DeliveryConfig{
		QueuePrefix:   getEnvOrDefault("COURIER_QUEUE_PREFIX", "courier:"),
		AckWindow:     ackWindow,
		MaxAttempts:   maxAttempts,
		SweepInterval: sweepInterval,
		WriteTimeout:  writeTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
