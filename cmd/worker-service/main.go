package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/config"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/events"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/metrics"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/queue"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/scoring"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/scrape"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/store"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/webhook"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/worker"
	"github.com/michaeladamstrickland/Convexa-sub009/shared/logger"
	"github.com/michaeladamstrickland/Convexa-sub009/shared/postgresql"
	"github.com/michaeladamstrickland/Convexa-sub009/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	if err := rabbitClient.Qos(cfg.RabbitMQ.Consumer.PrefetchCount); err != nil {
		return fmt.Errorf("failed to set consumer prefetch: %w", err)
	}

	registry := metrics.NewRegistry()

	// Build the worker manager with one pool per job type
	manager := buildManager(cfg, appLogger.Logger, dbClient, rabbitClient, registry)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker manager: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	// Serve counters and latency quantiles for scraping and debugging
	metricsSrv := startMetricsServer(cfg.Worker.MetricsPort, registry, appLogger.Logger)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Cancel context to stop pools, then wait for in-flight jobs
	cancel()
	manager.Stop(cfg.Worker.ShutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Metrics server shutdown failed",
			slog.Any("error", err),
		)
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// buildManager wires stores, handlers and pools for every job type
func buildManager(
	cfg *config.Config,
	logger *slog.Logger,
	dbClient *postgresql.Client,
	rabbitClient *rabbitmq.Client,
	registry *metrics.Registry,
) *worker.Manager {
	db := dbClient.GetDB()
	jobStore := store.NewJobStore(db, logger)
	recordStore := store.NewRecordStore(db, logger)
	subscriptionStore := store.NewSubscriptionStore(db, logger)
	deliveryStore := store.NewDeliveryStore(db, logger)
	activityStore := store.NewActivityStore(db, logger)

	enqueuer := queue.NewEnqueuer(jobStore, rabbitClient, logger)
	emitter := events.NewEmitter(subscriptionStore, enqueuer, logger)

	adapters := make([]scrape.Adapter, 0, len(cfg.Ingestion.Sources))
	for source, baseURL := range cfg.Ingestion.Sources {
		adapters = append(adapters, scrape.NewListingAdapter(source, baseURL, cfg.Ingestion.AdapterTimeout))
	}

	ingestHandler := worker.NewIngestHandler(
		scrape.NewRegistry(adapters...),
		recordStore,
		enqueuer,
		emitter,
		registry,
		cfg.Enrichment.MaxAttempts,
		logger,
	)
	enrichHandler := worker.NewEnrichHandler(
		recordStore,
		scoring.NewPropertyScorer(),
		enqueuer,
		emitter,
		activityStore,
		registry,
		logger,
	)
	matchmakeHandler := worker.NewMatchmakeHandler(
		recordStore,
		emitter,
		activityStore,
		registry,
		logger,
	)
	deliverHandler := worker.NewDeliverHandler(
		subscriptionStore,
		deliveryStore,
		webhook.NewSender(cfg.Webhook.RequestTimeout),
		registry,
		cfg.Webhook.MaxAttempts,
		cfg.Webhook.BackoffBase,
		logger,
	)

	pools := []struct {
		jobType     string
		concurrency int
		handler     worker.Handler
		backoff     func(int) time.Duration
	}{
		{domain.JobTypeIngest, cfg.Worker.Pools.Ingest, ingestHandler, worker.LinearBackoff(cfg.Ingestion.BackoffBase)},
		{domain.JobTypeEnrich, cfg.Worker.Pools.Enrich, enrichHandler, worker.LinearBackoff(cfg.Enrichment.BackoffBase)},
		{domain.JobTypeMatchmake, cfg.Worker.Pools.Matchmake, matchmakeHandler, nil},
		{domain.JobTypeDeliver, cfg.Worker.Pools.Deliver, deliverHandler, nil},
	}

	manager := worker.NewManager(logger)
	for _, p := range pools {
		manager.Register(worker.NewPool(
			worker.PoolConfig{
				JobType:     p.jobType,
				QueueName:   cfg.RabbitMQ.Queues[p.jobType],
				Concurrency: p.concurrency,
				JobTimeout:  cfg.Worker.JobTimeout,
				Backoff:     p.backoff,
			},
			rabbitClient,
			jobStore,
			p.handler,
			emitter,
			registry,
			logger,
		))
	}

	return manager
}

// startMetricsServer exposes the registry snapshot on the metrics port
func startMetricsServer(port int, registry *metrics.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"convexa-worker-service"}`))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.Snapshot()); err != nil {
			logger.Error("Failed to encode metrics snapshot",
				slog.Any("error", err),
			)
		}
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting metrics server",
			slog.String("address", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed",
				slog.Any("error", err),
			)
		}
	}()

	return srv
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client with one queue per job type
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	bindings := make([]rabbitmq.QueueBinding, 0, len(cfg.Queues))
	for _, jobType := range []string{domain.JobTypeIngest, domain.JobTypeEnrich, domain.JobTypeMatchmake, domain.JobTypeDeliver} {
		bindings = append(bindings, rabbitmq.QueueBinding{
			Name:       cfg.Queues[jobType],
			RoutingKey: jobType,
		})
	}

	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		ExchangeDurable:   cfg.Exchange.Durable,
		Bindings:          bindings,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
