package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	KafkaBrokers string
	RedisAddr    string

	StripeAPIKey   string
	GatewayTimeout time.Duration

	RelayInterval time.Duration
	RelayBatch    int
}

// Load reads the whole configuration from the environment. Requiredness is
// per binary: the server needs DatabaseURL, the projector does not.
func Load() (Config, error) {
	return Config{
		Port:           getenv("PORT", "8080"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		KafkaBrokers:   getenv("KAFKA_BROKERS", "localhost:9092"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		StripeAPIKey:   strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
		GatewayTimeout: getenvDuration("GATEWAY_TIMEOUT_MS", 10_000),
		RelayInterval:  getenvDuration("RELAY_INTERVAL_MS", 1_000),
		RelayBatch:     getenvInt("RELAY_BATCH", 100),
	}, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallbackMS int) time.Duration {
	return time.Duration(getenvInt(key, fallbackMS)) * time.Millisecond
}
