package logging

import (
	"io"
	"os"
	"strings"
)

// Config describes how a binary's logger is built. The zero value is usable:
// New fills every empty field from the environment or a fixed default.
type Config struct {
	ServiceName string
	// Environment toggles the development encoder when set to "development".
	Environment string
	// LogLevel is one of debug, info, warn or error. Anything else logs at info.
	LogLevel string
	// OutputPath accepts stdout, stderr or a file that is opened for append.
	OutputPath string
	// Writer takes precedence over OutputPath.
	Writer io.Writer
}

// DefaultConfig reads ENVIRONMENT and LOG_LEVEL, the same variables the
// task API deployment sets on its containers.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "unknown"
	}
	if c.Environment == "" {
		c.Environment = envOr("ENVIRONMENT", "development")
	}
	if c.LogLevel == "" {
		c.LogLevel = envOr("LOG_LEVEL", "info")
	}
	if c.OutputPath == "" {
		c.OutputPath = "stdout"
	}
	return c
}

func (c Config) WithServiceName(name string) Config {
	c.ServiceName = name
	return c
}

func (c Config) WithEnvironment(env string) Config {
	c.Environment = env
	return c
}

func (c Config) WithLogLevel(level string) Config {
	c.LogLevel = level
	return c
}

func (c Config) WithWriter(w io.Writer) Config {
	c.Writer = w
	return c
}

func (c Config) IsDevelopment() bool { return strings.EqualFold(c.Environment, "development") }

func (c Config) IsProduction() bool { return strings.EqualFold(c.Environment, "production") }

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// writer resolves the destination for encoded entries.
func (c Config) writer() (io.Writer, error) {
	if c.Writer != nil {
		return c.Writer, nil
	}
	switch strings.ToLower(c.OutputPath) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(c.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
