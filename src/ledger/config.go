package ledger

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TxTimeout time.Duration `envconfig:"LEDGER_TX_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
