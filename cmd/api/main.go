package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/credit-network/internal/config"
	"github.com/Dan9191/credit-network/internal/handler"
	"github.com/Dan9191/credit-network/internal/notify"
	"github.com/Dan9191/credit-network/internal/ratelimit"
	"github.com/Dan9191/credit-network/internal/repository"
	"github.com/Dan9191/credit-network/internal/scheduler"
	"github.com/Dan9191/credit-network/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize database
	db, err := repository.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Ping(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatalf("Failed to initialize schema: %v", err)
	}
	cancel()
	repo := repository.NewRepository(db)

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		logger.Fatalf("Invalid encryption key: %v", err)
	}

	// Event fan-out
	dispatcher := notify.NewWebhookDispatcher(repo, key, logger, cfg.WebhookWorkers, cfg.WebhookTimeout)
	dispatcher.Start()
	defer dispatcher.Stop()
	notifiers := notify.Multi{dispatcher}
	if cfg.EmailEnabled() {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg, logger))
		logger.Infof("Email alerts enabled for %s", cfg.AdminEmail)
	}

	jobs := scheduler.New(nil, cfg.DefaultGraceDays, logger)
	limiter, err := newLimiter(cfg, jobs)
	if err != nil {
		logger.Fatalf("Failed to initialize rate limiter: %v", err)
	}

	// Initialize layers
	svc, err := service.NewService(repo, logger, cfg,
		service.WithNotifier(notifiers),
		service.WithRegistrationLimiter(limiter),
		service.WithWebhookDeliverer(dispatcher),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize service: %v", err)
	}
	h := handler.NewHandler(svc, logger, cfg, db)

	jobs.SetSweeper(svc)
	if err := jobs.Start(cfg.DefaultSweepSchedule); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s (driver=%s)", addr, cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		logger.Errorf("Server failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Errorf("Scheduler shutdown failed: %v", err)
	}
	logger.Info("Server stopped")
}

// newLimiter builds the registration limiter selected by RATE_LIMIT_BACKEND
func newLimiter(cfg *config.Config, jobs *scheduler.Scheduler) (ratelimit.Limiter, error) {
	switch cfg.RateLimitBackend {
	case "token":
		tb := ratelimit.NewTokenBucket(cfg.RegistrationLimit, cfg.RegistrationWindow)
		jobs.AddPruner(func() int { return tb.Prune(cfg.RegistrationWindow) })
		return tb, nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewRedisLimiter(client, cfg.RegistrationLimit, cfg.RegistrationWindow), nil
	default:
		sw := ratelimit.NewSlidingWindow(cfg.RegistrationLimit, cfg.RegistrationWindow)
		jobs.AddPruner(sw.Prune)
		return sw, nil
	}
}
