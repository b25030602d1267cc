package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/fulfillment/internal/config"
	"github.com/nikolayk812/fulfillment/internal/gateway"
	"github.com/nikolayk812/fulfillment/internal/metrics"
	"github.com/nikolayk812/fulfillment/internal/notifier"
	"github.com/nikolayk812/fulfillment/internal/repository"
	"github.com/nikolayk812/fulfillment/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	txm, err := repository.NewTxManager(pool)
	if err != nil {
		return err
	}

	publisher, err := notifier.NewKafkaPublisher(cfg.KafkaBrokers)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	gw, err := gateway.NewStripe(cfg.StripeAPIKey, cfg.GatewayTimeout)
	if err != nil {
		return err
	}

	topics := notifier.DefaultTopics()
	srvMetrics := metrics.New("fulfillment")

	fulfillment, err := service.NewFulfillment(txm, topics, logger, srvMetrics)
	if err != nil {
		return err
	}

	catalog, err := service.NewCatalog(txm, logger)
	if err != nil {
		return err
	}

	payments, err := service.NewPayments(txm, gw, topics, logger, srvMetrics)
	if err != nil {
		return err
	}

	relay, err := notifier.NewRelay(txm.Store().Outbox(), publisher, logger, srvMetrics, cfg.RelayInterval, cfg.RelayBatch)
	if err != nil {
		return err
	}

	h := &handlers{
		fulfillment: fulfillment,
		catalog:     catalog,
		payments:    payments,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
		r.Post("/{orderID}/status", h.advanceOrder)
	})

	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Get("/{productID}", h.getProduct)
		r.Put("/{productID}/price", h.updateProductPrice)
		r.Post("/{productID}/deactivate", h.deactivateProduct)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.processPayment)
		r.Get("/{paymentID}", h.getPayment)
		r.Get("/by-order/{orderID}", h.getPaymentByOrder)
		r.Post("/{paymentID}/refund", h.refundPayment)
		r.Post("/{paymentID}/cancel", h.cancelPayment)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := relay.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
