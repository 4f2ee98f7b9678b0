package cache

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

type Config struct {
	Backend        string        `envconfig:"CACHE_BACKEND" default:"redis"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	BadgerPath     string        `envconfig:"BADGER_PATH" default:""` // empty runs badger in memory
	EntryTTL       time.Duration `envconfig:"CACHE_ENTRY_TTL" default:"10m"`
	AgentConfigTTL time.Duration `envconfig:"CACHE_AGENT_CONFIG_TTL" default:"5m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// New opens the backend selected by config.
func New(config Config) (Cache, error) {
	switch config.Backend {
	case BackendBadger:
		return NewBadgerCache(config.BadgerPath)
	case BackendRedis, "":
		return NewRedisCache(config.RedisAddr, config.RedisPassword)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}
