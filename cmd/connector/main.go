package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"zoom_connector/internal/backoff"
	"zoom_connector/internal/config"
	"zoom_connector/internal/domain"
	"zoom_connector/internal/mapper"
	"zoom_connector/internal/notify"
	"zoom_connector/internal/publisher"
	"zoom_connector/internal/service"
	"zoom_connector/internal/storage/postgres"
	"zoom_connector/internal/zoom"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	historicalStart, err := cfg.Sync.HistoricalStartDate()
	if err != nil {
		logger.Error("invalid historical start date", "error", err)
		os.Exit(1)
	}

	// Initialize stores
	participantStore := postgres.NewParticipantStore(db)
	watermarkStore := postgres.NewWatermarkStore(db, historicalStart)
	txManager := postgres.NewTransactionManager(db)

	// Initialize Zoom source
	policy := backoff.NewExponentialPolicy(
		cfg.Zoom.Retry.InitialBackoff,
		cfg.Zoom.Retry.MaxBackoff,
		cfg.Zoom.Retry.MaxAttempts,
	)
	client := zoom.New(zoom.Config{
		APIKey:    cfg.Zoom.APIKey,
		APISecret: cfg.Zoom.APISecret,
		BaseURL:   cfg.Zoom.BaseURL,
		PageSize:  cfg.Zoom.PageSize,
		Timeout:   cfg.Zoom.Timeout,
	}, policy, logger)

	mailer := notify.NewMailer(cfg.Mailer, logger)

	// The run-event publisher is optional; runs proceed without it.
	var events service.Publisher
	if cfg.Events.Enabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.Events.URL,
			Exchange:   cfg.Events.Exchange,
			RoutingKey: cfg.Events.RoutingKey,
			QueueName:  cfg.Events.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	pipeline := service.NewPipelineService(
		service.ClientSource{Client: client},
		mapper.New(cfg.Sync.MappingFailureThreshold, logger),
		participantStore,
		watermarkStore,
		txManager,
		mailer,
		events,
		logger,
		cfg.Sync,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting attendance sync",
		"report_types", cfg.Sync.ReportTypes,
		"safety_lag", cfg.Sync.SafetyLag,
		"max_window", cfg.Sync.MaxWindow,
	)

	failed := false
	for _, reportType := range cfg.Sync.ReportTypes {
		result, err := pipeline.Run(ctx, reportType)
		if err != nil {
			failed = true
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if result.Status == domain.RunNoWork {
			logger.Info("no work for report type", "report_type", reportType)
			continue
		}

		// Post-run audit: how many rows the warehouse now holds for the
		// window just loaded. Differs from records_loaded when a window is
		// re-extracted over existing rows.
		count, err := participantStore.CountForWindow(ctx, result.WindowStart, result.WindowEnd)
		if err != nil {
			logger.Warn("window audit failed", "report_type", reportType, "error", err)
			continue
		}
		logger.Info("window audit",
			"report_type", reportType,
			"window_start", result.WindowStart,
			"window_end", result.WindowEnd,
			"rows_in_window", count,
			"records_loaded", result.RecordsLoaded,
		)
	}

	if failed {
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
