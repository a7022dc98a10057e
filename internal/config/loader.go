// Package config loads layered service configuration and watches it for
// changes in development.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from several sources. Later sources override
// earlier ones:
//  1. defaults
//  2. base.yaml or base.json
//  3. <environment>.yaml or <environment>.json
//  4. local.yaml or local.json, development only
//  5. environment variables
type Loader struct {
	basePath    string
	environment Environment
	lookupEnv   func(string) (string, bool)
	fileLoaders []FileLoader
}

// FileLoader decodes one configuration file format onto a Config.
type FileLoader interface {
	Load(reader io.Reader, target any) error
	Extension() string
}

// NewLoader creates a loader reading files under basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	l := &Loader{
		basePath:    basePath,
		environment: env,
		lookupEnv:   os.LookupEnv,
	}
	l.RegisterLoader(&YAMLLoader{})
	l.RegisterLoader(&JSONLoader{})
	return l
}

// RegisterLoader adds a file format. Formats are tried in registration order.
func (l *Loader) RegisterLoader(loader FileLoader) {
	l.fileLoaders = append(l.fileLoaders, loader)
}

// BasePath returns the directory configuration files are read from.
func (l *Loader) BasePath() string {
	return l.basePath
}

// Load applies every source and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := l.defaultConfig()
	sources := []string{"defaults"}

	layers := []string{"base", strings.ToLower(string(l.environment))}
	if l.environment == Development {
		layers = append(layers, "local")
	}
	for _, name := range layers {
		path, err := l.loadFile(name, cfg)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", name, err)
		}
		sources = append(sources, path)
	}

	if err := l.loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	cfg.LoadedFrom = append(sources, "environment")
	cfg.applyEnvironmentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the first existing <name>.<ext> onto cfg and returns its
// path.
func (l *Loader) loadFile(name string, cfg *Config) (string, error) {
	for _, loader := range l.fileLoaders {
		path := filepath.Join(l.basePath, name+"."+loader.Extension())
		file, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		err = loader.Load(file, cfg)
		file.Close()
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	return "", fs.ErrNotExist
}

// loadEnvironmentVariables overlays the variables the deployment sets.
// Malformed numeric or duration values are errors rather than silently
// ignored.
func (l *Loader) loadEnvironmentVariables(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVER_HOST", &cfg.Server.Host)
	num("SERVER_PORT", &cfg.Server.Port)

	str("TRIPLESTORE_PROVIDER", &cfg.TripleStore.Provider)
	str("TRIPLESTORE_ENDPOINT", &cfg.TripleStore.Endpoint)
	str("TRIPLESTORE_REPOSITORY", &cfg.TripleStore.Repository)
	dur("TRIPLESTORE_TIMEOUT", &cfg.TripleStore.Timeout)
	num("TRIPLESTORE_MAX_RETRIES", &cfg.TripleStore.MaxRetries)

	str("DOCUMENTSTORE_PROVIDER", &cfg.DocumentStore.Provider)
	str("TABLE_NAME", &cfg.DocumentStore.TableName)
	str("AWS_REGION", &cfg.DocumentStore.Region)
	str("DYNAMODB_ENDPOINT", &cfg.DocumentStore.Endpoint)

	dur("ONTOLOGY_CACHE_TTL", &cfg.Ontology.CacheTTL)
	dur("ONTOLOGY_CLEANUP_INTERVAL", &cfg.Ontology.CleanupInterval)
	if v, ok := l.lookupEnv("ONTOLOGY_WARMUP"); ok && v != "" {
		cfg.Ontology.Warmup = splitList(v)
	}
	num("RESOLUTION_PAGE_SIZE", &cfg.Resolution.PageSize)

	str("LOG_LEVEL", &cfg.Logging.Level)
	flag("ENABLE_METRICS", &cfg.Metrics.Enabled)
	flag("ENABLE_TRACING", &cfg.Tracing.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)

	flag("ENABLE_EVENTS", &cfg.Events.Enabled)
	str("EVENT_BUS_NAME", &cfg.Events.EventBusName)
	str("EVENT_SOURCE", &cfg.Events.Source)

	if v, ok := l.lookupEnv("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// defaultConfig runs the service against the embedded stores.
func (l *Loader) defaultConfig() *Config {
	return &Config{
		Environment: l.environment,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
			MaxRequestSize:  1 << 20,
		},
		TripleStore: TripleStore{
			Provider:     "memory",
			Endpoint:     "http://localhost:8080/rdf4j-server",
			Repository:   "opensilex",
			Timeout:      30 * time.Second,
			MaxRetries:   3,
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			Breaker: Breaker{
				MaxRequests:      5,
				Interval:         30 * time.Second,
				Timeout:          60 * time.Second,
				FailureThreshold: 0.8,
				MinRequests:      5,
			},
		},
		DocumentStore: DocumentStore{
			Provider:  "memory",
			TableName: "opensilex-" + strings.ToLower(string(l.environment)),
			Region:    "us-east-1",
		},
		Ontology: Ontology{
			CacheTTL:        30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Resolution: Resolution{PageSize: 1000},
		Logging:    Logging{Level: "info"},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "opensilex",
			Path:      "/metrics",
		},
		Tracing: Tracing{
			ServiceName: "opensilex-backend",
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 0.1,
		},
		Events: Events{
			EventBusName: "default",
			Source:       "opensilex-backend",
		},
		CORS: CORS{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		},
	}
}

// YAMLLoader decodes YAML files. Durations are written as "30s" or "5m".
type YAMLLoader struct{}

func (y *YAMLLoader) Load(reader io.Reader, target any) error {
	err := yaml.NewDecoder(reader).Decode(target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (y *YAMLLoader) Extension() string { return "yaml" }

// JSONLoader decodes JSON files. Durations are nanosecond integers.
type JSONLoader struct{}

func (j *JSONLoader) Load(reader io.Reader, target any) error {
	return json.NewDecoder(reader).Decode(target)
}

func (j *JSONLoader) Extension() string { return "json" }

// DefaultLoader reads files from CONFIG_DIR (default "config") for the
// environment named by ENVIRONMENT.
func DefaultLoader() *Loader {
	return NewLoader(os.Getenv("CONFIG_DIR"), getEnvironment())
}

// Load loads configuration through DefaultLoader.
func Load() (*Config, error) {
	return DefaultLoader().Load()
}
