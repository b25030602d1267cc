// stock-projector keeps a live stock view in redis for storefront display.
// It consumes product.stock.updated events and writes the latest quantity
// per product, an independent downstream of the fulfillment core.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/nikolayk812/fulfillment/internal/config"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const consumerGroup = "stock-projector"

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.KafkaBrokers, ","),
		Topic:    domain.EventProductStockUpdate,
		GroupID:  consumerGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() { _ = reader.Close() }()

	logger.Info("consuming", zap.String("topic", domain.EventProductStockUpdate))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		var event domain.StockEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn("skip malformed stock event", zap.Error(err))
			continue
		}

		key := "stock:" + event.ProductID
		if err := rdb.Set(ctx, key, event.StockQuantity, 0).Err(); err != nil {
			logger.Warn("redis set failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}
