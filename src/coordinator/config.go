package coordinator

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Workers      int           `envconfig:"COORDINATOR_WORKERS" default:"8"`
	TradeTimeout time.Duration `envconfig:"COORDINATOR_TRADE_TIMEOUT" default:"90s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
