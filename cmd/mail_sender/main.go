package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"account_service/internal/config"
	"account_service/internal/lib/logger/sl"
	"account_service/internal/mailer"
	"account_service/internal/models"
	"account_service/internal/rabbitmq"

	"github.com/joho/godotenv"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoadMailSender(config.FetchConfigPath("./config/config.yaml"))
	log := setupLogger(cfg.Env)

	log.Info("Starting mail_sender", slog.String("env", cfg.Env), slog.String("queue", cfg.RabbitMQ.QueueName))

	if err := consume(ctx, cfg, log); err != nil {
		log.Error("consumer stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("service gracefully stopped")
}

func consume(ctx context.Context, cfg *config.MailSender, log *slog.Logger) error {
	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		return err
	}
	defer r.Close()

	m := mailer.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)

	log.Info("consumer successfully started")

	err = r.StartReading(ctx, log, func(ctx context.Context, msg models.Message) error {
		if err := m.SendMessage(ctx, msg); err != nil {
			log.Error("failed to send message", slog.String("email", msg.Email), sl.Err(err))
			return err
		}

		log.Info("message sent successfully", slog.String("email", msg.Email))

		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutting down consumer...")

	return nil
}

func setupLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == envLocal || env == envDev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if env == envLocal {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
