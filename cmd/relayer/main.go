// Package main runs the arbitration relayer: it scans the home and foreign
// proxies for requests and reconciles the stored requests against the chain
// on a fixed interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/marko911/arbitration-relayer/internal/adapter/evm"
	"github.com/marko911/arbitration-relayer/internal/config"
	"github.com/marko911/arbitration-relayer/internal/jobs"
	"github.com/marko911/arbitration-relayer/internal/platform/checkpoint"
	"github.com/marko911/arbitration-relayer/internal/platform/kafka"
	"github.com/marko911/arbitration-relayer/internal/platform/nats"
	"github.com/marko911/arbitration-relayer/internal/platform/objectstore"
	"github.com/marko911/arbitration-relayer/internal/platform/storage"
	"github.com/marko911/arbitration-relayer/internal/proxy"
	"github.com/marko911/arbitration-relayer/internal/proxy/foreign"
	"github.com/marko911/arbitration-relayer/internal/proxy/home"
	"github.com/marko911/arbitration-relayer/internal/reconcile"
	"github.com/marko911/arbitration-relayer/internal/report"
	"github.com/marko911/arbitration-relayer/internal/txsender"
)

func main() {
	var (
		configPath = flag.String("config", envOrDefault("RELAYER_CONFIG", "relayer.yaml"), "Path to the YAML config file")
		once       = flag.Bool("once", false, "Run every job once and exit")
		interval   = flag.Duration("interval", 0, "Override the polling interval")
		jobList    = flag.String("jobs", envOrDefault("RELAYER_JOBS", ""), "Comma separated jobs to run (default: all configured)")

		// Database configuration
		dbHost     = flag.String("db-host", envOrDefault("DB_HOST", ""), "Database host")
		dbPort     = flag.Int("db-port", envOrDefaultInt("DB_PORT", 0), "Database port")
		dbUser     = flag.String("db-user", envOrDefault("DB_USER", ""), "Database user")
		dbPassword = flag.String("db-password", envOrDefault("DB_PASSWORD", "relayer_dev"), "Database password")
		dbName     = flag.String("db-name", envOrDefault("DB_NAME", ""), "Database name")

		migrateDown = flag.Int("migrate-down", 0, "Roll back this many database migrations and exit")

		redisAddr     = flag.String("redis-addr", envOrDefault("REDIS_ADDR", ""), "Redis address")
		redisPassword = flag.String("redis-password", envOrDefault("REDIS_PASSWORD", ""), "Redis password")

		privateKey     = flag.String("private-key", envOrDefault("RELAYER_PRIVATE_KEY", ""), "Hex private key used to sign transactions")
		minioSecretKey = flag.String("minio-secret-key", envOrDefault("MINIO_SECRET_KEY", ""), "MinIO secret key")

		metricsAddr = flag.String("metrics-addr", envOrDefault("METRICS_ADDR", ":9094"), "Address for metrics endpoint")
		logLevel    = flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	)
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *interval > 0 {
		cfg.Interval = *interval
	}
	if *jobList != "" {
		cfg.Jobs = splitAndTrim(*jobList)
	}
	if *dbHost != "" {
		cfg.Postgres.Host = *dbHost
	}
	if *dbPort != 0 {
		cfg.Postgres.Port = *dbPort
	}
	if *dbUser != "" {
		cfg.Postgres.User = *dbUser
	}
	if *dbName != "" {
		cfg.Postgres.Database = *dbName
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if *migrateDown > 0 {
		if err := rollbackMigrations(context.Background(), postgresConfig(cfg, *dbPassword), *migrateDown); err != nil {
			slog.Error("failed to roll back migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("rolled back migrations", "steps", *migrateDown)
		return
	}

	if *privateKey == "" {
		slog.Error("a signing key is required (-private-key or RELAYER_PRIVATE_KEY)")
		os.Exit(1)
	}

	slog.Info("starting arbitration relayer",
		"interval", cfg.Interval,
		"jobs", cfg.Jobs,
		"request_store", cfg.RequestStore,
		"checkpoint_store", cfg.CheckpointStore,
		"once", *once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	fail := func(msg string, err error) {
		slog.Error(msg, "error", err)
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		os.Exit(1)
	}

	homeClient := evm.NewClient(&cfg.Home.RPC, logger)
	if err := homeClient.Connect(ctx); err != nil {
		fail("failed to connect home chain", err)
	}
	closers = append(closers, func() { homeClient.Close() })

	foreignClient := evm.NewClient(&cfg.Foreign.RPC, logger)
	if err := foreignClient.Connect(ctx); err != nil {
		fail("failed to connect foreign chain", err)
	}
	closers = append(closers, func() { foreignClient.Close() })

	senderCfg := txsender.Config{
		GasMultiplier:  cfg.Sender.GasMultiplier,
		PollInterval:   cfg.Sender.PollInterval,
		ReceiptTimeout: cfg.Sender.ReceiptTimeout,
	}
	homeSender, foreignSender, err := newSenders(ctx, homeClient, foreignClient, *privateKey, senderCfg, logger)
	if err != nil {
		fail("failed to create senders", err)
	}
	slog.Info("signing transactions", "from", homeSender.From().Hex())

	homeProxy := home.New(home.Config{
		Config: proxy.Config{
			Address:       cfg.Home.ProxyAddress(),
			StartBlock:    cfg.Home.StartBlock,
			MaxBlockRange: cfg.Home.MaxBlockRange,
		},
		Realitio:           cfg.Home.RealitioAddress(),
		RealitioStartBlock: cfg.Home.RealitioStartBlock,
	}, homeClient, homeSender)

	foreignProxy := foreign.New(proxy.Config{
		Address:       cfg.Foreign.ProxyAddress(),
		StartBlock:    cfg.Foreign.StartBlock,
		MaxBlockRange: cfg.Foreign.MaxBlockRange,
	}, foreignClient, foreignSender)

	stores, err := openStores(ctx, cfg, *dbPassword, *redisPassword, logger)
	if err != nil {
		fail("failed to open stores", err)
	}
	closers = append(closers, stores.close)

	publisher, closeSinks, err := openSinks(ctx, cfg, *minioSecretKey, logger)
	if err != nil {
		fail("failed to open report sinks", err)
	}
	closers = append(closers, closeSinks)

	deps := jobs.Deps{
		Checkpoints: stores.checkpoints,
		Requests:    stores.requests,
		Logger:      logger,
	}
	var enabled []jobs.Job
	for _, name := range cfg.Jobs {
		switch name {
		case config.JobNotified:
			enabled = append(enabled, jobs.NewNotifiedJob(homeProxy, deps))
		case config.JobRejected:
			enabled = append(enabled, jobs.NewRejectedJob(homeProxy, deps))
		case config.JobRuled:
			enabled = append(enabled, jobs.NewRuledJob(homeProxy, deps))
		case config.JobRequested:
			enabled = append(enabled, jobs.NewRequestedArbitrationsJob(foreignProxy, deps))
		}
	}

	runnerCfg := RunnerConfig{
		Interval:    cfg.Interval,
		MetricsAddr: *metricsAddr,
	}
	if *once {
		runnerCfg.MetricsAddr = ""
	}
	runner := NewRunner(runnerCfg, enabled, publisher, logger)
	if stores.db != nil {
		runner.AddHealthCheck("postgres", stores.db.Health)
	}

	if *once {
		if err := runner.Tick(ctx); err != nil {
			fail("run failed", err)
		}
		slog.Info("run complete")
		return
	}

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		fail("relayer error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	slog.Info("relayer shutdown complete")
}

// newSenders signs for both chains with one key. When both endpoints serve
// the same chain a single sender is shared so nonces come from one counter.
func newSenders(ctx context.Context, homeBackend, foreignBackend txsender.Backend, hexKey string, cfg txsender.Config, logger *slog.Logger) (*txsender.EthSender, *txsender.EthSender, error) {
	homeID, err := homeBackend.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("home chain id: %w", err)
	}
	foreignID, err := foreignBackend.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("foreign chain id: %w", err)
	}

	homeSender, err := txsender.NewFromHex(homeBackend, hexKey, cfg, logger.With("chain", "home"))
	if err != nil {
		return nil, nil, err
	}
	if homeID.Cmp(foreignID) == 0 {
		logger.Warn("home and foreign share a chain id, sharing one sender", "chain_id", homeID)
		return homeSender, homeSender, nil
	}

	foreignSender, err := txsender.NewFromHex(foreignBackend, hexKey, cfg, logger.With("chain", "foreign"))
	if err != nil {
		return nil, nil, err
	}
	return homeSender, foreignSender, nil
}

type storeSet struct {
	requests    reconcile.RequestStore
	checkpoints reconcile.CheckpointStore
	db          *storage.DB
	closers     []func()
}

func (s *storeSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores builds the request and checkpoint stores named by cfg. Postgres
// is opened and migrated once even when both stores use it.
func openStores(ctx context.Context, cfg config.Config, dbPassword, redisPassword string, logger *slog.Logger) (*storeSet, error) {
	s := &storeSet{}

	var db *storage.DB
	if cfg.RequestStore == config.BackendPostgres || cfg.CheckpointStore == config.BackendPostgres {
		dbCfg := postgresConfig(cfg, dbPassword)

		var err error
		db, err = storage.New(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		s.closers = append(s.closers, db.Close)

		if err := db.Migrate(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("connected to database and applied migrations",
			"host", dbCfg.Host,
			"database", dbCfg.Database,
		)
		s.db = db
	}

	switch cfg.RequestStore {
	case config.BackendPostgres:
		s.requests = storage.NewRequestRepository(db)
	default:
		s.requests = storage.NewMemoryRequestStore()
	}

	switch cfg.CheckpointStore {
	case config.BackendPostgres:
		s.checkpoints = storage.NewCheckpointRepository(db)
	case config.BackendRedis:
		rs, err := checkpoint.NewRedisStore(checkpoint.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  redisPassword,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.closers = append(s.closers, func() { rs.Close() })
		s.checkpoints = rs
	default:
		s.checkpoints = checkpoint.NewMemoryStore()
	}

	return s, nil
}

func postgresConfig(cfg config.Config, password string) storage.Config {
	dbCfg := storage.DefaultConfig()
	dbCfg.Host = cfg.Postgres.Host
	dbCfg.Port = cfg.Postgres.Port
	dbCfg.User = cfg.Postgres.User
	dbCfg.Password = password
	dbCfg.Database = cfg.Postgres.Database
	dbCfg.SSLMode = cfg.Postgres.SSLMode
	if cfg.Postgres.MaxConns > 0 {
		dbCfg.MaxConns = cfg.Postgres.MaxConns
	}
	return dbCfg
}

func rollbackMigrations(ctx context.Context, dbCfg storage.Config, steps int) error {
	db, err := storage.New(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	return db.MigrateDown(ctx, steps)
}

// openSinks connects every enabled report sink.
func openSinks(ctx context.Context, cfg config.Config, minioSecretKey string, logger *slog.Logger) (*report.Multi, func(), error) {
	var (
		sinks   []report.Publisher
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATS.Enabled {
		natsCfg := nats.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		client, err := nats.Connect(ctx, natsCfg, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })

		if _, err := nats.EnsureStream(ctx, client.JetStream(), nats.DefaultReportsStreamConfig()); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("ensure reports stream: %w", err)
		}
		sinks = append(sinks, nats.NewReportPublisher(client.JetStream()))
	}

	if cfg.Kafka.Enabled {
		admin, err := kafka.NewTopicManager(cfg.Kafka.Brokers)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		topics := kafka.DefaultTopicConfigs()
		topics[0].Name = cfg.Kafka.Topic
		err = admin.EnsureTopics(ctx, topics)
		if err == nil {
			err = admin.WaitForTopic(ctx, cfg.Kafka.Topic, 30*time.Second)
		}
		admin.Close()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("ensure reports topic: %w", err)
		}

		producer, err := kafka.NewReportProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, producer.Close)
		sinks = append(sinks, producer)
	}

	if cfg.MinIO.Enabled {
		archiver, err := objectstore.NewArchiver(ctx, objectstore.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			Bucket:    cfg.MinIO.Bucket,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: minioSecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Prefix:    cfg.MinIO.Prefix,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, archiver)
	}

	multi := report.NewMulti(logger, sinks...)
	logger.Info("report sinks configured", "count", multi.Len())
	return multi, closeAll, nil
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
