package lock

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TTL           time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	RetryDelay    time.Duration `envconfig:"LOCK_RETRY_DELAY" default:"50ms"`
	MaxRetryDelay time.Duration `envconfig:"LOCK_MAX_RETRY_DELAY" default:"1s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
