package risk

import "github.com/kelseyhightower/envconfig"

type Config struct {
	PresetsFile string `envconfig:"RISK_PRESETS_FILE" default:""`
}

func GetConfig() Config {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		panic(err)
	}
	return config
}
