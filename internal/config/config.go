// Package config loads the application configuration from layered YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"repokit/internal/infrastructure/persistence/sqlstore"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Backends a repository can be opened against.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Environment    Environment    `yaml:"environment" env:"ENVIRONMENT" validate:"required,oneof=development staging production"`
	Server         Server         `yaml:"server" envPrefix:"SERVER_"`
	Store          Store          `yaml:"store" envPrefix:"STORE_"`
	Logging        Logging        `yaml:"logging" envPrefix:"LOG_"`
	Features       Features       `yaml:"features" envPrefix:"FEATURE_"`
	Metrics        Metrics        `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing        Tracing        `yaml:"tracing" envPrefix:"TRACING_"`
	Events         Events         `yaml:"events" envPrefix:"EVENTS_"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker" envPrefix:"BREAKER_"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-"`
}

type Server struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:"," validate:"dive,required"`
}

// Store selects and configures the persistence backend.
type Store struct {
	Backend string `yaml:"backend" env:"BACKEND" validate:"required,oneof=memory dynamodb postgres sqlite"`

	// DynamoDB
	Region          string `yaml:"region" env:"REGION"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	ProductsTable   string `yaml:"products_table" env:"PRODUCTS_TABLE"`
	CategoriesTable string `yaml:"categories_table" env:"CATEGORIES_TABLE"`
	CounterTable    string `yaml:"counter_table" env:"COUNTER_TABLE"`
	ConsistentRead  bool   `yaml:"consistent_read" env:"CONSISTENT_READ"`
	PageSize        int32  `yaml:"page_size" env:"PAGE_SIZE" validate:"min=0"`

	// Postgres and SQLite. Dialect is taken from Backend.
	SQL     sqlstore.Config `yaml:"sql" envPrefix:"SQL_"`
	Migrate bool            `yaml:"migrate" env:"MIGRATE"`
}

type Logging struct {
	Level         string        `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format        string        `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
	LogRequests   bool          `yaml:"log_requests" env:"REQUESTS"`
	SlowThreshold time.Duration `yaml:"slow_threshold" env:"SLOW_THRESHOLD" validate:"min=0"`
}

// Features toggles the optional session decorators.
type Features struct {
	EnableMetrics        bool `yaml:"enable_metrics" env:"ENABLE_METRICS"`
	EnableTracing        bool `yaml:"enable_tracing" env:"ENABLE_TRACING"`
	EnableEvents         bool `yaml:"enable_events" env:"ENABLE_EVENTS"`
	EnableCircuitBreaker bool `yaml:"enable_circuit_breaker" env:"ENABLE_CIRCUIT_BREAKER"`
}

type Metrics struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE" validate:"required"`
	Path      string `yaml:"path" env:"PATH" validate:"startswith=/"`
}

type Tracing struct {
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME" validate:"required"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	SampleRate  float64 `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"min=0,max=1"`
}

type Events struct {
	EventBusName string `yaml:"event_bus_name" env:"BUS_NAME"`
	Source       string `yaml:"source" env:"SOURCE" validate:"required"`
}

type CircuitBreaker struct {
	MaxRequests      uint32        `yaml:"max_requests" env:"MAX_REQUESTS" validate:"min=1"`
	Interval         time.Duration `yaml:"interval" env:"INTERVAL" validate:"min=0"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	FailureThreshold float64       `yaml:"failure_threshold" env:"FAILURE_THRESHOLD" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" env:"MIN_REQUESTS" validate:"min=1"`
}

var validate = validator.New()

// Validate checks field rules and the settings the selected backend and
// features depend on.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %s", describe(verrs))
		}
		return err
	}

	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.ProductsTable == "" || c.Store.CategoriesTable == "" || c.Store.CounterTable == "" {
			return errors.New("dynamodb backend requires products, categories and counter tables")
		}
	case BackendPostgres, BackendSQLite:
		if err := c.Store.SQL.Validate(); err != nil {
			return err
		}
	}
	if c.Features.EnableTracing && c.Tracing.Endpoint == "" {
		return errors.New("tracing endpoint is required when tracing is enabled")
	}
	if c.Features.EnableEvents && c.Events.EventBusName == "" {
		return errors.New("event bus name is required when events are enabled")
	}
	return nil
}

// SQLConfig returns the database/sql settings with the dialect of the selected backend.
func (c *Config) SQLConfig() sqlstore.Config {
	cfg := c.Store.SQL
	cfg.Dialect = c.Store.Backend
	return cfg
}

func (c *Config) IsDevelopment() bool { return c.Environment == Development }

func describe(errs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
	}
	return msg
}
