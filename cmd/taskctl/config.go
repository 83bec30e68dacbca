package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds taskctl settings resolved from flags, environment and file.
type Config struct {
	APIURL      string
	DatabaseURL string
	Timeout     time.Duration
	Human       bool
	ConfigFile  string
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("api-url", "http://localhost:4000")
	v.SetDefault("database-url", "")
	v.SetDefault("timeout", "2m")
	v.SetDefault("human", false)
}

// newViper prepares a viper instance with defaults, env binding and the
// optional config file. An explicit configFile must exist.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("TASKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taskctl"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func configFrom(v *viper.Viper) (Config, error) {
	timeout, err := time.ParseDuration(v.GetString("timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid timeout %q: %w", v.GetString("timeout"), err)
	}
	return Config{
		APIURL:      strings.TrimRight(v.GetString("api-url"), "/"),
		DatabaseURL: v.GetString("database-url"),
		Timeout:     timeout,
		Human:       v.GetBool("human"),
		ConfigFile:  v.ConfigFileUsed(),
	}, nil
}
