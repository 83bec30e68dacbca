// Package config provides environment variable-based configuration loading.
//
// Purpose:
//
//	This package defines the task-api configuration structure and loads it
//	from environment variables using envconfig. The Postgres connection is
//	described either by DATABASE_URL or by the SEQ_* variables the deployed
//	container receives from the infrastructure definition.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: Environment variable parsing
//
// Key Responsibilities:
//   - Config struct defines all service configuration fields
//   - Load reads and validates environment variables
//   - DSN builds the Postgres connection string
//   - MustLoad exits the process if configuration is invalid
//
// Debugging Notes:
//   - ENVIRONMENT=production switches the connection to sslmode=require
//     (encrypted, certificate not verified)
//   - DATABASE_URL wins over SEQ_* when both are present
//   - Use RedactedDSN when logging the connection string
//
// Thread Safety:
//   - Config struct is read-only after loading (safe for concurrent read access)
//
// Error Handling:
//   - Load returns wrapped errors from envconfig.Process and Validate
//   - MustLoad writes to stderr and exits on error
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/MGabrielaGuerrero/devops/shared/go/logging"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Execution models accepted by EXECUTION_MODEL.
const (
	ModelCooperative = "cooperative"
	ModelParallel    = "parallel"
)

const defaultPostgresPort = "5432"

// Config represents runtime configuration for the task-api binary.
// All fields are populated from environment variables with defaults where specified.
type Config struct {
	// ServiceName is emitted in logs, metrics and traces.
	ServiceName string `envconfig:"SERVICE_NAME" default:"task-api"`
	// HTTPPort is the port the HTTP server listens on.
	HTTPPort int `envconfig:"HTTP_PORT" default:"4000"`
	// Environment describes the deployment environment; "production" enables TLS to Postgres.
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// LogLevel controls the zap level (debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// SeqUser is the Postgres user name.
	SeqUser string `envconfig:"SEQ_USER"`
	// SeqPassword is the Postgres password.
	SeqPassword string `envconfig:"SEQ_PW"`
	// SeqDatabase is the Postgres database name.
	SeqDatabase string `envconfig:"SEQ_DB"`
	// SeqPort is the Postgres port; 5432 when empty.
	SeqPort string `envconfig:"SEQ_PORT"`
	// SeqHost is the Postgres host.
	SeqHost string `envconfig:"SEQ_HOST"`
	// DatabaseURL overrides the SEQ_* variables when set.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	// DBMaxConns bounds the connection pool.
	DBMaxConns int32 `envconfig:"DB_MAX_CONNS" default:"10"`

	// StorageDriver selects the persistence collaborator (postgres, sqlite, memory).
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `envconfig:"SQLITE_PATH" default:"tasks.db"`
	// MigrateOnStart applies the embedded schema migrations before serving.
	MigrateOnStart bool `envconfig:"MIGRATE_ON_START" default:"true"`

	// ExecutionModel selects how application requests share the execution context.
	ExecutionModel string `envconfig:"EXECUTION_MODEL" default:"cooperative"`
	// WorkerPoolSize bounds the parallel model; 0 means unbounded.
	WorkerPoolSize int `envconfig:"WORKER_POOL_SIZE" default:"0"`
	// LoadDuration is how long GET /load keeps the execution context busy.
	LoadDuration time.Duration `envconfig:"LOAD_DURATION" default:"10s"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses.
	// If empty, audit events are logged instead of sent to Kafka.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	// KafkaTopic is the topic audit events are written to.
	KafkaTopic string `envconfig:"KAFKA_TOPIC" default:"tasks.audit"`
	// KafkaClientID is the client ID used when connecting to Kafka.
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"task-api"`
	// KafkaPublishTimeout caps how long one audit event may block a response.
	KafkaPublishTimeout time.Duration `envconfig:"KAFKA_PUBLISH_TIMEOUT" default:"2s"`

	// ShutdownTimeout is the drain budget on top of one in-flight /load.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// OTLPEndpoint is the collector address; empty disables trace export.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`
	// OTLPProtocol is grpc or http.
	OTLPProtocol string `envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"false"`
}

// Load reads environment variables into Config, applying defaults where necessary.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// MustLoad returns Config or exits the process.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Validate checks enumerated values and the inputs the selected driver needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" && (c.SeqHost == "" || c.SeqDatabase == "" || c.SeqUser == "") {
			errs = append(errs, errors.New("postgres driver requires DATABASE_URL or SEQ_HOST, SEQ_DB and SEQ_USER"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite driver requires SQLITE_PATH"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	switch c.ExecutionModel {
	case ModelCooperative, ModelParallel:
	default:
		errs = append(errs, fmt.Errorf("unknown EXECUTION_MODEL %q", c.ExecutionModel))
	}
	if c.WorkerPoolSize < 0 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must not be negative"))
	}
	if c.LoadDuration <= 0 {
		errs = append(errs, errors.New("LOAD_DURATION must be positive"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the deployment runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SSLMode returns the libpq sslmode for the current environment.
func (c *Config) SSLMode() string {
	if c.IsProduction() {
		return "require"
	}
	return "disable"
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	port := c.SeqPort
	if port == "" {
		port = defaultPostgresPort
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.SeqUser, c.SeqPassword),
		Host:     net.JoinHostPort(c.SeqHost, port),
		Path:     "/" + c.SeqDatabase,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode()}}.Encode(),
	}
	return u.String()
}

// RedactedDSN returns DSN with credentials masked for logging.
func (c *Config) RedactedDSN() string {
	return logging.RedactString(c.DSN())
}

// DrainTimeout is how long shutdown waits for in-flight requests. A /load that
// started just before the signal holds the execution context for
// LoadDuration, so the budget is ShutdownTimeout on top of it.
func (c *Config) DrainTimeout() time.Duration {
	grace := c.ShutdownTimeout
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return c.LoadDuration + grace
}

// KafkaBrokerList splits KafkaBrokers into trimmed, non-empty addresses.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
