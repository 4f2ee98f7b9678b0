package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PriceOracleURL   string        `envconfig:"PRICE_ORACLE_URL" default:"http://localhost:8081"`
	TokenMetricsURL  string        `envconfig:"TOKEN_METRICS_URL" default:"http://localhost:8082"`
	TradeExecutorURL string        `envconfig:"TRADE_EXECUTOR_URL" default:"http://localhost:8083"`
	ExecutorAPIKey   string        `envconfig:"TRADE_EXECUTOR_API_KEY" default:""`
	Timeout          time.Duration `envconfig:"CONNECTOR_TIMEOUT" default:"15s"`
	TradeTimeout     time.Duration `envconfig:"TRADE_EXECUTOR_TIMEOUT" default:"60s"`
	RateLimit        float64       `envconfig:"CONNECTOR_RATE_LIMIT" default:"10"` // requests per second
	RateBurst        int           `envconfig:"CONNECTOR_RATE_BURST" default:"5"`
	PriceBatchSize   int           `envconfig:"PRICE_BATCH_SIZE" default:"50"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
