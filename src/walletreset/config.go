package walletreset

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TxTimeout   time.Duration `envconfig:"WALLET_RESET_TX_TIMEOUT" default:"30s"`
	LockTimeout time.Duration `envconfig:"WALLET_RESET_LOCK_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
