package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/shopstack/orderdesk/internal/config"
	"github.com/shopstack/orderdesk/internal/inventory"
	"github.com/shopstack/orderdesk/internal/orders"
	"github.com/shopstack/orderdesk/internal/storage"
	"github.com/shopstack/orderdesk/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	transitDays := config.Int(logger, "DELIVERY_TRANSIT_DAYS", 3)
	interval := time.Duration(config.Int(logger, "SWEEP_INTERVAL_MINUTES", 60)) * time.Minute

	ledger := inventory.NewLedger(logger)
	orderRepo := storage.NewOrderRepository(db, ledger)
	customerRepo := storage.NewCustomerRepository(db)
	lifecycle := orders.NewLifecycleService(orderRepo, customerRepo, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting delivery sweeper", "interval", interval.String(), "transit_days", transitDays)

	sweep := func() {
		moved, err := lifecycle.RunDeliverySweep(ctx, transitDays)
		if err != nil {
			logger.Error("delivery sweep failed", "error", err)
			return
		}
		if moved > 0 {
			logger.Info("delivery sweep completed", "orders_delivered", moved)
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
