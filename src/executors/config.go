package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod time.Duration `envconfig:"LOOP_PERIOD" default:"5s"`
	BatchSize  int           `envconfig:"EXECUTOR_BATCH_SIZE" default:"100"`
	StaleAfter time.Duration `envconfig:"EXECUTOR_STALE_AFTER" default:"5m"`
	StaleLimit int           `envconfig:"EXECUTOR_STALE_LIMIT" default:"50"`

	// ReplayFrom, when set, starts polling after this signal id instead of the latest one.
	ReplayFrom uint `envconfig:"EXECUTOR_REPLAY_FROM" default:"0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
