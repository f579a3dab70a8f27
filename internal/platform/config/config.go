package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	AppURL      string `env:"APP_URL" default:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`
	InstanceID  string `env:"INSTANCE_ID"`

	LeaderboardCacheTTL     time.Duration `env:"LEADERBOARD_CACHE_TTL" default:"30s"`
	LeaderboardBuildLockTTL time.Duration `env:"LEADERBOARD_BUILD_LOCK_TTL" default:"30s"`
	ThrottleWindow          time.Duration `env:"THROTTLE_WINDOW" default:"3s"`
	PendingQueueTTL         time.Duration `env:"PENDING_QUEUE_TTL" default:"60s"`
	PendingForceFlushDepth  int           `env:"PENDING_FORCE_FLUSH_DEPTH" default:"50"`
	QueueSweepInterval      time.Duration `env:"QUEUE_SWEEP_INTERVAL" default:"10s"`

	BroadcastBatchSize      int           `env:"BROADCAST_BATCH_SIZE" default:"50"`
	LivenessInterval        time.Duration `env:"LIVENESS_INTERVAL" default:"30s"`
	MaxWebSocketConnections int           `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int           `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectRatePerIP        float64       `env:"CONNECT_RATE_PER_IP" default:"10"`
	ConnectBurstPerIP       int           `env:"CONNECT_BURST_PER_IP" default:"20"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" default:"contest.submissions"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" default:"contestpulse"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether the service runs with development settings.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// KafkaBrokerList splits KAFKA_BROKERS on commas. Empty means ingestion from Kafka is disabled.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func validate(cfg *Config) error {
	// Ordered so the first missing variable is reported deterministically.
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"JWT_SECRET", cfg.JWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"LEADERBOARD_CACHE_TTL", cfg.LeaderboardCacheTTL},
		{"LEADERBOARD_BUILD_LOCK_TTL", cfg.LeaderboardBuildLockTTL},
		{"THROTTLE_WINDOW", cfg.ThrottleWindow},
		{"PENDING_QUEUE_TTL", cfg.PendingQueueTTL},
		{"QUEUE_SWEEP_INTERVAL", cfg.QueueSweepInterval},
		{"LIVENESS_INTERVAL", cfg.LivenessInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if cfg.PendingQueueTTL <= cfg.ThrottleWindow {
		return fmt.Errorf("PENDING_QUEUE_TTL (%s) must exceed THROTTLE_WINDOW (%s)", cfg.PendingQueueTTL, cfg.ThrottleWindow)
	}
	if cfg.PendingForceFlushDepth < 1 {
		return errors.New("PENDING_FORCE_FLUSH_DEPTH must be at least 1")
	}
	if cfg.BroadcastBatchSize < 1 {
		return errors.New("BROADCAST_BATCH_SIZE must be at least 1")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.MaxConnectionsPerIP < 1 || cfg.ConnectBurstPerIP < 1 || cfg.ConnectRatePerIP <= 0 {
		return errors.New("MAX_CONNECTIONS_PER_IP, CONNECT_RATE_PER_IP and CONNECT_BURST_PER_IP must be positive")
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return nil
}
