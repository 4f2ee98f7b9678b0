package scheduler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SnapshotInterval time.Duration `envconfig:"SCHEDULER_SNAPSHOT_INTERVAL" default:"1h"`
	JobTimeout       time.Duration `envconfig:"SCHEDULER_JOB_TIMEOUT" default:"5m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
