// Package main provides the main entry point for the Outreach campaign broadcast engine
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calyxsuite/outreach/app/handlers"
	"github.com/calyxsuite/outreach/app/router"
	"github.com/calyxsuite/outreach/app/scheduler"
	"github.com/calyxsuite/outreach/app/services"
	businessflow "github.com/calyxsuite/outreach/business_flow"
	"github.com/calyxsuite/outreach/config"
	"github.com/calyxsuite/outreach/repository"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application holds the wired components and their shutdown hooks
type Application struct {
	router    router.Router
	config    *config.Config
	stopFuncs []func()
}

func main() {
	log.Println("Starting Outreach broadcast engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics)
	}

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger to stdout, a rotated file, or both
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	switch cfg.Output {
	case "file":
		log.SetOutput(rotated)
	case "both":
		log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
}

// serveMetrics exposes the Prometheus registry on a dedicated listener
func serveMetrics(cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Metrics server listening on %s%s", addr, cfg.Path)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}

// initializeDatabase opens the database connection with pooling configured
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache opens the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Redis connection established")
	return rc, nil
}

// initializeApplication wires repositories, services, flows, and workers
func initializeApplication(cfg *config.Config) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	contactRepo := repository.NewContactRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	taskRepo := repository.NewDeliveryTaskRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	renderer := services.NewRenderer()
	tracking, err := services.NewTrackingTokenService(&cfg.Tracking)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracking service: %w", err)
	}
	mailer := services.NewMailer(&cfg.Mail)
	smsSender := services.NewSMSSender(&cfg.SMS)
	notifier := services.NewNotifier(mailer)

	// Broadcast lock: Redis when available, in-process otherwise
	var locker businessflow.BroadcastLocker
	if rc != nil {
		locker = businessflow.NewRedisBroadcastLocker(rc, cfg.Cache.RedisPrefix)
	} else {
		locker = businessflow.NewLocalBroadcastLocker()
	}

	// Flows
	resolver := businessflow.NewAudienceResolver(contactRepo, segmentRepo)
	emailBroadcast := businessflow.NewEmailBroadcastFlow(
		campaignRepo, userRepo, recipientRepo, taskRepo, auditRepo,
		resolver, locker, notifier, db, cfg.Broadcast.LockTTL,
	)
	smsBroadcast := businessflow.NewSMSBroadcastFlow(
		campaignRepo, userRepo, recipientRepo, taskRepo, auditRepo,
		resolver, locker, notifier, db, cfg.Broadcast.LockTTL,
	)
	emailDelivery := businessflow.NewEmailDeliveryFlow(
		recipientRepo, auditRepo, renderer, tracking, mailer, cfg.Tracking.UnsubscribeTTL,
	)
	smsDelivery := businessflow.NewSMSDeliveryFlow(
		recipientRepo, auditRepo, renderer, smsSender,
	)

	// Delivery task worker
	worker := scheduler.NewDeliveryWorker(taskRepo, emailDelivery, smsDelivery, log.Default(), scheduler.DeliveryWorkerOptions{
		PollInterval: cfg.Broadcast.WorkerPollInterval,
		BatchSize:    cfg.Broadcast.WorkerBatchSize,
		PoolSize:     cfg.Broadcast.WorkerPoolSize,
		TaskTimeout:  cfg.Broadcast.DeliveryTimeout,
		MaxAttempts:  cfg.Broadcast.MaxDeliveryAttempts,
	})
	stopFuncs = append(stopFuncs, worker.Start(context.Background()))

	// HTTP surface
	broadcastHandler := handlers.NewBroadcastHandler(campaignRepo, recipientRepo, emailBroadcast, smsBroadcast)
	r := router.NewFiberRouter(cfg, broadcastHandler)

	return &Application{
		router:    r,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
