package controller

import (
	"fmt"
	"sync"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Service string `envconfig:"APP_NAME" default:"agentengine"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

var (
	serviceOnce sync.Once
	service     string
)

// ServiceName is the APP_NAME exceptions are recorded under.
func ServiceName() string {
	serviceOnce.Do(func() { service = GetConfig().Service })
	return service
}
