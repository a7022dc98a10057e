package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete service configuration.
type Config struct {
	Environment   Environment       `yaml:"environment" json:"environment" validate:"oneof=development staging production"`
	Server        Server            `yaml:"server" json:"server"`
	TripleStore   TripleStore       `yaml:"triple_store" json:"triple_store"`
	DocumentStore DocumentStore     `yaml:"document_store" json:"document_store"`
	Ontology      Ontology          `yaml:"ontology" json:"ontology"`
	Resolution    Resolution        `yaml:"resolution" json:"resolution"`
	Prefixes      map[string]string `yaml:"prefixes" json:"prefixes"`
	Logging       Logging           `yaml:"logging" json:"logging"`
	Metrics       Metrics           `yaml:"metrics" json:"metrics"`
	Tracing       Tracing           `yaml:"tracing" json:"tracing"`
	Events        Events            `yaml:"events" json:"events"`
	CORS          CORS              `yaml:"cors" json:"cors"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-" json:"-"`
}

type Server struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`
	MaxRequestSize  int64         `yaml:"max_request_size" json:"max_request_size" validate:"gt=0"`
}

// Address returns host:port for the listener.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TripleStore selects and configures the RDF backend.
type TripleStore struct {
	Provider     string        `yaml:"provider" json:"provider" validate:"oneof=rdf4j memory"`
	Endpoint     string        `yaml:"endpoint" json:"endpoint" validate:"required_if=Provider rdf4j"`
	Repository   string        `yaml:"repository" json:"repository" validate:"required_if=Provider rdf4j"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries" validate:"min=0"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min" json:"retry_wait_min"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max" json:"retry_wait_max" validate:"gtefield=RetryWaitMin"`
	Breaker      Breaker       `yaml:"breaker" json:"breaker"`
}

// Breaker configures the circuit breaker in front of the triple store.
type Breaker struct {
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" json:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" json:"min_requests"`
}

// DocumentStore selects and configures the document backend.
type DocumentStore struct {
	Provider  string `yaml:"provider" json:"provider" validate:"oneof=dynamodb memory"`
	TableName string `yaml:"table_name" json:"table_name" validate:"required_if=Provider dynamodb"`
	Region    string `yaml:"region" json:"region"`
	// Endpoint overrides the AWS endpoint, for DynamoDB Local.
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"omitempty,url"`
}

// Ontology configures the ontology metadata cache.
type Ontology struct {
	CacheTTL        time.Duration `yaml:"cache_ttl" json:"cache_ttl" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" validate:"gt=0"`
	// Warmup lists root classes loaded at startup, prefixed or absolute.
	Warmup []string `yaml:"warmup" json:"warmup"`
}

type Resolution struct {
	PageSize int `yaml:"page_size" json:"page_size" validate:"gt=0"`
}

type Logging struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace" validate:"required_if=Enabled true"`
	Path      string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" validate:"gte=0,lte=1"`
}

// Events configures cache invalidation fan-out through EventBridge.
type Events struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	EventBusName string `yaml:"event_bus_name" json:"event_bus_name" validate:"required_if=Enabled true"`
	Source       string `yaml:"source" json:"source" validate:"required_if=Enabled true"`
}

type CORS struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

var validate = validator.New()

// Validate checks the configuration and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether hot reload and local overrides apply.
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// applyEnvironmentDefaults tightens settings for deployed environments.
func (c *Config) applyEnvironmentDefaults() {
	switch c.Environment {
	case Production:
		if c.Logging.Level == "debug" {
			c.Logging.Level = "info"
		}
		c.Tracing.Insecure = false
	case Development:
		if c.Tracing.SampleRatio == 0 {
			c.Tracing.SampleRatio = 1
		}
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "opensilex-backend"
	}
}

// getEnvironment reads ENVIRONMENT, defaulting to development.
func getEnvironment() Environment {
	switch env := Environment(strings.ToLower(os.Getenv("ENVIRONMENT"))); env {
	case Staging, Production:
		return env
	default:
		return Development
	}
}
