package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wastewatch/api"
	"wastewatch/config"
	"wastewatch/live"
	"wastewatch/log"
	"wastewatch/metrics"
	"wastewatch/models"
	"wastewatch/services"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		panic("Failed to load " + cfg.Timezone + " timezone: " + err.Error())
	}
	time.Local = loc

	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	ranges, err := services.LoadRanges(cfg.RangesFile)
	if err != nil {
		logger.Fatal("Failed to load range table", zap.Error(err), zap.String("path", cfg.RangesFile))
	}

	if cfg.HasSource("firebase") && (cfg.FirebaseDbUrl == "" || cfg.FirebaseServiceAccountJSON == "") {
		logger.Fatal("Firebase configuration is required for the firebase snapshot source")
	}

	metrics.Init()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	var firebaseService *services.FirebaseService
	if cfg.FirebaseDbUrl != "" && cfg.FirebaseServiceAccountJSON != "" {
		firebaseService, err = services.NewFirebaseService(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
		}
		defer firebaseService.Close()
	}

	var telegramService *services.TelegramService
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
	}

	var notifiers []services.Notifier
	var alerter services.StatusAlerter
	if telegramService != nil {
		notifiers = append(notifiers, telegramService)
		alerter = telegramService
	}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, services.NewWebhookAlertService(logger, cfg.AlertWebhookURL))
		logger.Info("Webhook alert service initialized", zap.String("url", cfg.AlertWebhookURL))
	}

	var publisher services.PlantPublisher
	if firebaseService != nil {
		publisher = firebaseService
	}

	tracker := services.NewDeviceTracker(cfg.OfflineWindow, alerter, publisher, logger)
	evaluator := services.NewEvaluator(ranges)
	capacities := services.NewCapacityStore(cfg.PlantCapacity)
	hub := live.NewHub(logger)

	opts := []services.MonitorOption{
		services.WithBroadcaster(hub),
		services.WithNotifiers(notifiers...),
	}

	var cache *services.SnapshotCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, evaluation cache disabled", zap.Error(err))
		} else {
			cache = services.NewSnapshotCache(services.NewRedisKVStore(rdb), cfg.CacheTTL)
			opts = append(opts, services.WithCache(cache))
			logger.Info("Evaluation cache enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	var batchWriter *services.BatchWriterService
	if firebaseService != nil {
		events := make(chan *models.FaultEvent, cfg.FaultBatchSize*4)
		batchWriter = services.NewBatchWriterService(cfg, firebaseService, logger)
		go batchWriter.Start(ctx, events)
		opts = append(opts, services.WithFaultEvents(events))

		devices, err := firebaseService.ListDevices(ctx)
		if err != nil {
			logger.Warn("Failed to list devices", zap.Error(err))
		} else {
			tracker.SyncDevices(devices)
		}
		if err := firebaseService.WatchDevices(ctx, tracker.SyncDevices); err != nil {
			logger.Warn("Failed to watch devices", zap.Error(err))
		}
	}

	monitor := services.NewMonitor(evaluator, capacities, tracker, logger, opts...)

	// Snapshot sources
	var sources []services.SnapshotSource
	for _, name := range cfg.SnapshotSources {
		switch name {
		case "firebase":
			sources = append(sources, firebaseService)
		case "rabbitmq":
			rabbitService, err := services.NewRabbitMQService(cfg, logger)
			if err != nil {
				logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
			}
			defer rabbitService.Close()
			sources = append(sources, rabbitService)
		case "mqtt":
			mqttSource, err := services.NewMQTTSource(cfg, logger)
			if err != nil {
				logger.Fatal("Failed to initialize MQTT source", zap.Error(err))
			}
			defer mqttSource.Close()
			sources = append(sources, mqttSource)
		case "simulator":
			sources = append(sources, services.NewSnapshotSimulator(cfg.SimulatorDevices, cfg.SimulatorInterval, 0.1, logger))
		default:
			logger.Fatal("Unknown snapshot source", zap.String("source", name))
		}
	}

	stream, err := services.MergeSources(ctx, logger, sources...)
	if err != nil {
		logger.Fatal("Failed to subscribe to snapshot sources", zap.Error(err))
	}

	go hub.Run(ctx)
	go tracker.Start(ctx, cfg.SweepInterval)

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx, stream)
	}()

	handler := api.NewAPIHandler(tracker, evaluator, capacities, cache, hub, logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.SetupRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	// Send startup notification
	if telegramService != nil {
		if err := telegramService.SendStartupMessage(cfg.SnapshotSources); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	logger.Info("Wastewater monitoring service started",
		zap.Strings("sources", cfg.SnapshotSources),
		zap.Int("parameters", len(ranges)),
		zap.Float64("default_plant_capacity", cfg.PlantCapacity),
		zap.Duration("offline_window", cfg.OfflineWindow),
		zap.Int("notifiers", len(notifiers)),
	)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping services")
	case <-ctx.Done():
	}
	cancel()

	// Perform cleanup
	logger.Info("Starting cleanup")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	select {
	case <-monitorDone:
	case <-time.After(5 * time.Second):
		logger.Warn("Monitor did not stop in time")
	}

	if batchWriter != nil {
		if batchWriter.WaitForShutdown(10 * time.Second) {
			logger.Info("Fault events flushed")
		} else {
			logger.Warn("Cleanup timeout, pending fault events may be lost")
		}
	}

	logger.Info("Wastewater monitoring service stopped")
}
