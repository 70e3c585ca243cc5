package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/shopstack/orderdesk/internal/config"
	"github.com/shopstack/orderdesk/internal/inventory"
	"github.com/shopstack/orderdesk/internal/messaging"
	"github.com/shopstack/orderdesk/internal/orders"
	"github.com/shopstack/orderdesk/internal/payment"
	"github.com/shopstack/orderdesk/internal/storage"
	"github.com/shopstack/orderdesk/internal/telemetry"
	"github.com/shopstack/orderdesk/internal/tracking"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orderdesk", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orderdesk", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

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

	ledger := inventory.NewLedger(logger)
	orderRepo := storage.NewOrderRepository(db, ledger)
	productRepo := storage.NewProductRepository(db)
	customerRepo := storage.NewCustomerRepository(db)

	var codes tracking.CodeStore
	var limiter tracking.RateLimiter
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisClient.Close() }()

		store := storage.NewRedisCodeStore(redisClient)
		codes, limiter = store, store
	} else {
		logger.Warn("REDIS_ADDR not set, using process-local code store; not safe for multiple instances")
		store := tracking.NewMemoryCodeStore()
		codes, limiter = store, store
	}

	var createdProducer, statusProducer, trackingProducer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		createdProducer = messaging.NewProducer(brokers, messaging.TopicOrderCreated)
		statusProducer = messaging.NewProducer(brokers, messaging.TopicOrderStatusChanged)
		trackingProducer = messaging.NewProducer(brokers, messaging.TopicTrackingCodeIssued)
		defer func() {
			_ = createdProducer.Close()
			_ = statusProducer.Close()
			_ = trackingProducer.Close()
		}()
	}

	transitDays := config.Int(logger, "DELIVERY_TRANSIT_DAYS", 3)

	checkoutService := orders.NewCheckoutService(orderRepo, productRepo, customerRepo, producerOrNil(createdProducer), logger)
	lifecycleService := orders.NewLifecycleService(orderRepo, customerRepo, producerOrNil(statusProducer), logger)
	trackingService := tracking.NewService(orderRepo, customerRepo, codes, limiter, producerOrNil(trackingProducer), logger)

	orderHandler := orders.NewHandler(checkoutService, lifecycleService, orderRepo, customerRepo, logger)
	trackingHandler := tracking.NewHandler(trackingService, customerRepo, transitDays, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(orderHandler.HandleCheckout))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("GET /orders/number/{number}", telemetry.WithHTTPRoute(orderHandler.HandleGetByNumber))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleTransition))
	mux.HandleFunc("GET /tracking/{identifier}", telemetry.WithHTTPRoute(trackingHandler.HandleTrack))
	mux.HandleFunc("POST /tracking/{identifier}/code", telemetry.WithHTTPRoute(trackingHandler.HandleRequestCode))
	mux.HandleFunc("POST /tracking/{identifier}/verify", telemetry.WithHTTPRoute(trackingHandler.HandleVerifyCode))
	mux.Handle("GET /metrics", metricsHandler)

	gatewayURL := os.Getenv("PAYMENT_GATEWAY_URL")
	if gatewayURL != "" {
		paymentClient := payment.NewClient(gatewayURL, os.Getenv("PAYMENT_GATEWAY_API_KEY"), logger)
		paymentHandler := payment.NewHandler(paymentClient, orderRepo, customerRepo, logger)
		webhookHandler := payment.NewWebhookHandler(lifecycleService, os.Getenv("PAYMENT_WEBHOOK_TOKEN"), logger)
		mux.HandleFunc("POST /orders/{id}/payment-link", telemetry.WithHTTPRoute(paymentHandler.HandleCreateLink))
		mux.HandleFunc("POST /webhooks/payment", telemetry.WithHTTPRoute(webhookHandler.HandleWebhook))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "orderdesk",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orderdesk server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// producerOrNil keeps a typed-nil *messaging.Producer from masquerading as a
// non-nil interface inside the services.
func producerOrNil(p *messaging.Producer) orders.Publisher {
	if p == nil {
		return nil
	}
	return p
}
