package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"account_service/internal/auth"
	"account_service/internal/config"
	httpserver "account_service/internal/http_server"
	"account_service/internal/images"
	"account_service/internal/lib/logger/sl"
	"account_service/internal/lib/verification"
	"account_service/internal/mailer"
	"account_service/internal/metrics"
	"account_service/internal/rabbitmq"
	"account_service/internal/storage/memory"
	"account_service/internal/storage/postgres"
	"account_service/internal/storage/redis"
	"account_service/internal/storage/sqlite"
	"account_service/internal/users"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type accountStore interface {
	auth.AccountStore
	users.AccountStore
}

type pendingStore interface {
	auth.PendingStore
}

type imageStore interface {
	users.ImageStore
}

func main() {
	envErr := godotenv.Load()

	cfg := config.MustLoad(config.FetchConfigPath("./config/config.yaml"))

	log := setupLogger(cfg.Env)

	if envErr != nil {
		log.Debug("no .env file found; relying on existing environment")
	}

	log.Info("starting account service", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service failed", sl.Err(err))
		os.Exit(1)
	}

	log.Info("Main service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	accounts, closeAccounts, err := setupAccountStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAccounts()

	pending, closePending, err := setupPendingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePending()

	publisher, closePublisher, err := setupPublisher(cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	imgs, err := setupImageStore(ctx, cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	authService := auth.New(log, accounts, pending, publisher, auth.Config{
		TokenSecret:    cfg.Tokens.SessionTokenSecret,
		TokenTTL:       cfg.Tokens.SessionTokenTTL,
		BcryptCost:     cfg.Auth.BcryptCost,
		MaxOTPAttempts: cfg.Auth.MaxOTPAttempts,
	}, auth.WithRecorder(m))

	usersService := users.New(log, accounts, imgs)

	router := httpserver.NewRouter(httpserver.Deps{
		Log:         log,
		Validate:    validator.New(),
		Auth:        authService,
		Users:       usersService,
		TokenSecret: cfg.Tokens.SessionTokenSecret,
		Metrics:     m,
		Registry:    registry,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: httpserver.WriteTimeout(cfg.HTTPServer.Timeout),
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	return nil
}

func setupAccountStore(ctx context.Context, cfg *config.Config) (accountStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		s, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}

		return s, func() { _ = s.Close() }, nil
	default:
		s, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect postgres: %w", err)
		}

		return s, s.Close, nil
	}
}

func setupPendingStore(ctx context.Context, cfg *config.Config) (pendingStore, func(), error) {
	switch cfg.Auth.PendingStore {
	case config.PendingStoreRedis:
		s, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Auth.PendingTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}

		return s, func() { _ = s.Close() }, nil
	default:
		s := memory.NewPendingStore(cfg.Auth.PendingTTL)
		s.Start(ctx)

		return s, s.Stop, nil
	}
}

func setupPublisher(cfg *config.Config) (verification.Publisher, func(), error) {
	switch cfg.Auth.OTPDelivery {
	case config.OTPDeliveryRabbitMQ:
		c, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect rabbitmq: %w", err)
		}

		return c, c.Close, nil
	default:
		m := mailer.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)

		return m, func() {}, nil
	}
}

func setupImageStore(ctx context.Context, cfg *config.Config) (imageStore, error) {
	switch cfg.Images.Backend {
	case config.ImagesBackendS3:
		s, err := images.NewS3(ctx, images.S3Config{
			Bucket:        cfg.Images.S3Bucket,
			Region:        cfg.Images.S3Region,
			Endpoint:      cfg.Images.S3Endpoint,
			AccessKey:     cfg.Images.S3AccessKey,
			SecretKey:     cfg.Images.S3SecretKey,
			PublicBaseURL: cfg.Images.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init s3: %w", err)
		}

		return s, nil
	default:
		return images.NewLocal(cfg.Images.Dir, cfg.Images.PublicBaseURL), nil
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
