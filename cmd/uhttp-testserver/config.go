package main

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config is the test server configuration. Values come from defaults, an
// optional testserver.yaml in the working directory and UHTTP_TESTSERVER_*
// environment variables, in increasing order of precedence.
type Config struct {
	Address      string        `mapstructure:"address"`
	TimeoutDelay time.Duration `mapstructure:"timeoutDelay"`
	XSRFToken    string        `mapstructure:"xsrfToken"`
	Development  bool          `mapstructure:"development"`
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("address", "localhost:43760")
	v.SetDefault("timeoutDelay", "500ms")
	v.SetDefault("xsrfToken", "uhttp-xsrf-token")
	v.SetDefault("development", false)

	v.SetEnvPrefix("UHTTP_TESTSERVER")
	v.AutomaticEnv()

	v.SetConfigName("testserver")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func newConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg)
	return cfg, err
}
