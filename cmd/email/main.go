package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopstack/orderdesk/internal/email"
	"github.com/shopstack/orderdesk/internal/messaging"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	brokers := strings.Split(kafkaBrokers, ",")
	statusConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderStatusChanged, "email-notifier")
	defer func() { _ = statusConsumer.Close() }()
	codeConsumer := messaging.NewConsumer(brokers, messaging.TopicTrackingCodeIssued, "email-notifier")
	defer func() { _ = codeConsumer.Close() }()

	handler := email.NewNotificationHandler(&email.LogSender{Logger: logger}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting email notifier", "brokers", brokers)

	errs := make(chan error, 2)
	go func() { errs <- statusConsumer.Consume(ctx, handler.HandleStatusChanged) }()
	go func() { errs <- codeConsumer.Consume(ctx, handler.HandleTrackingCode) }()

	if err := <-errs; err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
