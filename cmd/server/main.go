package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/auth"
	"github.com/pscheid92/contestpulse/internal/adapter/httpserver"
	"github.com/pscheid92/contestpulse/internal/adapter/kafka"
	"github.com/pscheid92/contestpulse/internal/adapter/memory"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/adapter/postgres"
	"github.com/pscheid92/contestpulse/internal/adapter/redis"
	"github.com/pscheid92/contestpulse/internal/adapter/websocket"
	"github.com/pscheid92/contestpulse/internal/app"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/pscheid92/contestpulse/internal/platform/config"
	"github.com/pscheid92/contestpulse/internal/platform/logging"
	"github.com/pscheid92/contestpulse/internal/platform/retry"
	"github.com/pscheid92/contestpulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// coordination bundles the shared store implementations, Redis backed or in memory.
type coordination struct {
	locker domain.Locker
	cache  domain.SnapshotCache
	queue  domain.PendingQueue
	bus    domain.Bus
	checks []httpserver.HealthCheck
	close  func()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.InstanceID = host + "-" + uuid.NewString()[:8]
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.Set) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	policy := retry.Startup
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Database not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	pool, err := retry.Do(ctx, policy, retry.Transient, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(m.Database))
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupCoordination(cfg *config.Config, m *metrics.Set, clock clockwork.Clock) coordination {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, running in single-instance mode with in-memory coordination")
		store := memory.NewStore(clock)
		return coordination{
			locker: store,
			cache:  store,
			queue:  store,
			bus:    memory.NewBus(),
			close:  func() {},
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	policy := retry.Startup
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	hooks := []goredis.Hook{
		redis.NewMetricsHook(m.Redis),
		redis.NewCircuitBreakerHook(redis.DefaultBreakerSettings, m.Redis),
	}
	client, err := retry.Do(ctx, policy, retry.Transient, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, hooks...)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	return coordination{
		locker: redis.NewLocker(client),
		cache:  redis.NewSnapshotCache(client),
		queue:  redis.NewPendingQueue(client),
		bus:    redis.NewBus(client),
		checks: []httpserver.HealthCheck{{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}},
		close: func() { _ = client.Close() },
	}
}

func setupKafka(ctx context.Context, cfg *config.Config, ingestor *app.Ingestor, clock clockwork.Clock) (*kafka.Consumer, <-chan struct{}) {
	done := make(chan struct{})
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		close(done)
		return nil, done
	}

	consumer, err := kafka.NewConsumer(kafka.Config{
		Brokers: brokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroupID,
	}, ingestor, app.SourceKafka, clock)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}

	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			slog.Error("Kafka consumer stopped with error", "error", err)
		}
	}()
	slog.Info("Kafka ingestion enabled", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	return consumer, done
}

type components struct {
	server     *httpserver.Server
	reconciler *app.QueueReconciler
	throttle   *app.Throttle
	relay      *app.Relay
	registry   *websocket.Registry
	consumer   *kafka.Consumer
	kafkaDone  <-chan struct{}
	cancel     context.CancelFunc
}

func runGracefulShutdown(c components) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		c.reconciler.Stop()
		if c.consumer != nil {
			if err := c.consumer.Close(); err != nil {
				slog.Warn("Kafka consumer close error", "error", err)
			}
		}

		// Open windows flush before the relay subscription goes away.
		c.throttle.Stop()
		c.cancel()
		<-c.kafkaDone
		c.relay.Wait()
		c.registry.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat, cfg.InstanceID)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	registry := metrics.NewRegistry()
	m := metrics.NewSet(registry)

	pool := setupDB(cfg, m)
	defer pool.Close()

	coord := setupCoordination(cfg, m, clock)
	defer coord.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := postgres.NewEventRepo(pool)
	contests := postgres.NewContestRepo(pool)
	tokens := auth.NewJWT(cfg.JWTSecret, clock)

	aggregator := app.NewAggregator(events, contests, clock, m.Leaderboard)
	leaderboard := app.NewLeaderboard(aggregator, coord.cache, coord.locker, app.LeaderboardConfig{
		CacheTTL:     cfg.LeaderboardCacheTTL,
		BuildLockTTL: cfg.LeaderboardBuildLockTTL,
		InstanceID:   cfg.InstanceID,
	}, clock, m.Leaderboard)

	connections := websocket.NewRegistry(tokens, websocket.RegistryConfig{
		BatchSize:        cfg.BroadcastBatchSize,
		LivenessInterval: cfg.LivenessInterval,
		MaxConnections:   cfg.MaxWebSocketConnections,
	}, clock, m.WebSocket)

	admission := websocket.NewAdmission(websocket.AdmissionConfig{
		MaxPerIP:   cfg.MaxConnectionsPerIP,
		RatePerIP:  cfg.ConnectRatePerIP,
		BurstPerIP: cfg.ConnectBurstPerIP,
	}, clock)

	relay := app.NewRelay(coord.bus, connections, m.Throttle)
	if err := relay.Start(ctx); err != nil {
		slog.Error("Failed to start broadcast relay", "error", err)
		os.Exit(1)
	}

	throttle := app.NewThrottle(app.DebounceConfig{
		Window:     cfg.ThrottleWindow,
		QueueTTL:   cfg.PendingQueueTTL,
		ForceDepth: int64(cfg.PendingForceFlushDepth),
		InstanceID: cfg.InstanceID,
	}, coord.locker, coord.queue, relay, leaderboard, clock, m.Throttle)

	ingestor := app.NewIngestor(events, contests, throttle, relay, leaderboard, clock, m.Ingest)

	reconciler := app.NewQueueReconciler(app.NewLeaderElector(coord.locker, cfg.InstanceID), coord.queue, throttle.Debouncers(), cfg.QueueSweepInterval, clock)
	go reconciler.Start(ctx)

	consumer, kafkaDone := setupKafka(ctx, cfg, ingestor, clock)

	healthChecks := append([]httpserver.HealthCheck{{
		Name:  "postgres",
		Check: func(ctx context.Context) error { return pool.Ping(ctx) },
	}}, coord.checks...)

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Leaderboard:      leaderboard,
		Ingest:           ingestor,
		Verifier:         tokens,
		WebSocketHandler: websocket.NewHandler(connections, admission, websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment())),
		MetricsHandler:   metrics.Handler(registry),
		HTTPMetrics:      m.HTTP,
		HealthChecks:     healthChecks,
	})

	done := runGracefulShutdown(components{
		server:     srv,
		reconciler: reconciler,
		throttle:   throttle,
		relay:      relay,
		registry:   connections,
		consumer:   consumer,
		kafkaDone:  kafkaDone,
		cancel:     cancel,
	})

	slog.Info("Server starting", "port", cfg.Port, "instance", cfg.InstanceID)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
