package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"repokit/internal/infrastructure/persistence/sqlstore"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "REPOKIT_"

// Loader layers configuration sources. From lowest to highest priority:
//  1. defaults
//  2. base.yaml
//  3. <environment>.yaml
//  4. local.yaml, development only
//  5. REPOKIT_* environment variables
type Loader struct {
	basePath    string
	environment Environment
}

func NewLoader(basePath string, environment Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{
		basePath:    basePath,
		environment: environment,
	}
}

// BasePath is the directory the YAML files are read from.
func (l *Loader) BasePath() string { return l.basePath }

// Load builds and validates a fresh Config.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults(l.environment)
	cfg.LoadedFrom = []string{"defaults"}

	files := []string{"base", string(l.environment)}
	if l.environment == Development {
		files = append(files, "local")
	}
	for _, name := range files {
		path, err := l.loadFile(name, cfg)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", name, err)
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(name string, cfg *Config) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.basePath, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	return "", fs.ErrNotExist
}

// Defaults returns a configuration that runs without any files, on the
// in-memory backend.
func Defaults(environment Environment) *Config {
	level := "info"
	format := "json"
	if environment == Development {
		level = "debug"
		format = "console"
	}
	return &Config{
		Environment: environment,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Store: Store{
			Backend:         BackendMemory,
			Region:          "us-east-1",
			ProductsTable:   "repokit-products-" + string(environment),
			CategoriesTable: "repokit-categories-" + string(environment),
			CounterTable:    "repokit-counters-" + string(environment),
			SQL: sqlstore.Config{
				PingTimeout:     5 * time.Second,
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Logging: Logging{
			Level:         level,
			Format:        format,
			LogRequests:   environment == Development,
			SlowThreshold: 500 * time.Millisecond,
		},
		Features: Features{
			EnableMetrics:        true,
			EnableCircuitBreaker: true,
		},
		Metrics: Metrics{
			Namespace: "repokit",
			Path:      "/metrics",
		},
		Tracing: Tracing{
			ServiceName: "repokit",
			SampleRate:  0.1,
		},
		Events: Events{
			Source: "repokit",
		},
		CircuitBreaker: CircuitBreaker{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// EnvironmentFromEnv reads REPOKIT_ENVIRONMENT, defaulting to development.
func EnvironmentFromEnv() Environment {
	if v := os.Getenv(EnvPrefix + "ENVIRONMENT"); v != "" {
		return Environment(v)
	}
	return Development
}

// Load reads the configuration directory named by REPOKIT_CONFIG_DIR, or ./config.
func Load() (*Config, error) {
	return NewLoader(os.Getenv(EnvPrefix+"CONFIG_DIR"), EnvironmentFromEnv()).Load()
}
