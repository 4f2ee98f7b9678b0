package executor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServeOps    bool `envconfig:"EXECUTOR_SERVE_OPS" default:"true"`
	MonitorOn   bool `envconfig:"EXECUTOR_MONITOR" default:"true"`
	SnapshotsOn bool `envconfig:"EXECUTOR_SNAPSHOTS" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
