package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every variable, e.g. SOURCEMAPS_API_KEY.
const EnvPrefix = "SOURCEMAPS"

type EnvVars struct {
	APIKey   string `envconfig:"API_KEY"`
	Endpoint string `envconfig:"ENDPOINT" default:"https://upload.bugsnag.com/sourcemap"`

	Timeout     time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	RetryDelay  time.Duration `envconfig:"RETRY_DELAY" default:"1s"`

	// Concurrency bounds how many source maps are uploaded at once.
	Concurrency int `envconfig:"CONCURRENCY" default:"5"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func LoadEnv() (*EnvVars, error) {
	var v EnvVars
	if err := envconfig.Process(EnvPrefix, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
