package di

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	awsDynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsEventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"opensilex-backend/internal/config"
	"opensilex-backend/internal/domain/rdf"
	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/decorators"
	"opensilex-backend/internal/infrastructure/documentstore/ddb"
	docmemory "opensilex-backend/internal/infrastructure/documentstore/memory"
	"opensilex-backend/internal/infrastructure/messaging"
	"opensilex-backend/internal/infrastructure/observability"
	triplememory "opensilex-backend/internal/infrastructure/triplestore/memory"
	"opensilex-backend/internal/infrastructure/triplestore/rdf4j"
	"opensilex-backend/internal/interfaces/http/handlers"
	"opensilex-backend/internal/interfaces/http/router"
	"opensilex-backend/internal/ontology"
	"opensilex-backend/internal/repository"
	"opensilex-backend/internal/resolution"
	"opensilex-backend/internal/resources"
)

// Origin identifies this instance on the invalidation bus.
type Origin string

// AWSClients holds the AWS service clients. A client is nil when no
// configured component needs it.
type AWSClients struct {
	DynamoDB    *awsDynamodb.Client
	EventBridge *awsEventbridge.Client
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return apperrors.NewLogger(string(cfg.Environment), cfg.Logging.Level)
}

func provideOrigin() Origin {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return Origin(id)
	}
	return Origin(uuid.NewString())
}

// provideMetrics returns nil when metrics are disabled; every consumer
// accepts a nil collector.
func provideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideTracerProvider(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	return observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
}

func providePrefixes(cfg *config.Config) *rdf.Prefixes {
	return rdf.NewPrefixes(cfg.Prefixes)
}

// provideAWSClients loads the AWS configuration only when DynamoDB or
// EventBridge is in use, so local runs need no credentials.
func provideAWSClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AWSClients, error) {
	needDynamo := cfg.DocumentStore.Provider == "dynamodb"
	if !needDynamo && !cfg.Events.Enabled {
		return &AWSClients{}, nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var opts []func(*awsConfig.LoadOptions) error
	if cfg.DocumentStore.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.DocumentStore.Region))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: awsTransport(),
	}

	clients := &AWSClients{}
	if needDynamo {
		clients.DynamoDB = awsDynamodb.NewFromConfig(awsCfg, func(o *awsDynamodb.Options) {
			o.HTTPClient = httpClient
			o.RetryMaxAttempts = 3
			o.RetryMode = aws.RetryModeAdaptive
			if cfg.DocumentStore.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DocumentStore.Endpoint)
			}
		})
	}
	if cfg.Events.Enabled {
		clients.EventBridge = awsEventbridge.NewFromConfig(awsCfg, func(o *awsEventbridge.Options) {
			o.HTTPClient = httpClient
			o.RetryMaxAttempts = 3
		})
	}
	logger.Info("AWS clients initialized",
		zap.Bool("dynamodb", clients.DynamoDB != nil),
		zap.Bool("eventbridge", clients.EventBridge != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return clients, nil
}

// awsTransport keeps connections alive across warm Lambda invocations; the
// pool is smaller there since one container serves one request at a time.
func awsTransport() *http.Transport {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	return &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func storeLogging(cfg *config.Config) decorators.LoggingConfig {
	lc := decorators.DefaultLoggingConfig()
	lc.LogQueries = cfg.IsDevelopment()
	return lc
}

func provideTripleStore(cfg *config.Config, logger *zap.Logger) (repository.TripleStore, error) {
	store, err := newTripleStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	return decorators.NewLoggingTripleStore(store, logger, storeLogging(cfg)), nil
}

func newTripleStore(cfg *config.Config, logger *zap.Logger) (repository.TripleStore, error) {
	switch cfg.TripleStore.Provider {
	case "rdf4j":
		ts := cfg.TripleStore
		rcfg := rdf4j.DefaultConfig()
		rcfg.Endpoint = ts.Endpoint
		rcfg.Repository = ts.Repository
		if ts.Timeout > 0 {
			rcfg.Timeout = ts.Timeout
		}
		rcfg.RetryMax = ts.MaxRetries
		if ts.RetryWaitMin > 0 {
			rcfg.RetryWaitMin = ts.RetryWaitMin
		}
		if ts.RetryWaitMax > 0 {
			rcfg.RetryWaitMax = ts.RetryWaitMax
		}
		if ts.Breaker.FailureThreshold > 0 {
			rcfg.Breaker = rdf4j.BreakerConfig{
				MaxRequests:      ts.Breaker.MaxRequests,
				Interval:         ts.Breaker.Interval,
				Timeout:          ts.Breaker.Timeout,
				FailureThreshold: ts.Breaker.FailureThreshold,
				MinRequests:      ts.Breaker.MinRequests,
			}
		}
		return rdf4j.NewStore(rcfg, logger)
	case "memory":
		return triplememory.NewStore(logger), nil
	default:
		return nil, fmt.Errorf("unknown triple store provider %q", cfg.TripleStore.Provider)
	}
}

func provideTripleReader(store repository.TripleStore) repository.TripleReader {
	return store
}

func provideDocumentStore(cfg *config.Config, clients *AWSClients, logger *zap.Logger) (repository.DocumentStore, error) {
	var store repository.DocumentStore
	switch cfg.DocumentStore.Provider {
	case "dynamodb":
		if clients.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb client not initialized")
		}
		store = ddb.NewStore(clients.DynamoDB, cfg.DocumentStore.TableName, logger)
	case "memory":
		store = docmemory.NewStore(logger)
	default:
		return nil, fmt.Errorf("unknown document store provider %q", cfg.DocumentStore.Provider)
	}
	return decorators.NewLoggingDocumentStore(store, logger, storeLogging(cfg)), nil
}

func provideResolver(reader repository.TripleReader, cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *resolution.Resolver {
	return resolution.NewResolver(reader, cfg.Resolution.PageSize, logger, metrics)
}

func provideOntologyCache(reader repository.TripleReader, cfg *config.Config, prefixes *rdf.Prefixes, logger *zap.Logger, metrics *observability.Collector) (*ontology.Cache, error) {
	warmup := make([]rdf.URI, 0, len(cfg.Ontology.Warmup))
	for _, raw := range cfg.Ontology.Warmup {
		u, err := prefixes.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ontology warmup class: %w", err)
		}
		warmup = append(warmup, u)
	}
	source := ontology.NewSPARQLDescriptorSource(reader, logger)
	return ontology.NewCache(source, ontology.Config{
		TTL:             cfg.Ontology.CacheTTL,
		CleanupInterval: cfg.Ontology.CleanupInterval,
		Warmup:          warmup,
	}, logger, ontology.WithMetrics(metrics)), nil
}

// provideInvalidationPublisher returns a nil interface when events are
// disabled.
func provideInvalidationPublisher(cfg *config.Config, clients *AWSClients, origin Origin, logger *zap.Logger) ontology.InvalidationPublisher {
	if !cfg.Events.Enabled || clients.EventBridge == nil {
		return nil
	}
	return messaging.NewEventBridgePublisher(clients.EventBridge, cfg.Events.EventBusName, cfg.Events.Source, string(origin), logger)
}

func provideResolveHandler(resolver *resolution.Resolver, prefixes *rdf.Prefixes, cfg *config.Config, logger *zap.Logger) *handlers.ResolveHandler {
	return handlers.NewResolveHandler(resolver, prefixes, cfg.Server.MaxRequestSize, logger)
}

func provideResourceHandler(service *resources.Service, prefixes *rdf.Prefixes, cfg *config.Config, logger *zap.Logger) *handlers.ResourceHandler {
	return handlers.NewResourceHandler(service, prefixes, cfg.Server.MaxRequestSize, logger)
}

func provideEventsHandler(invalidator *ontology.Invalidator, origin Origin, logger *zap.Logger) *handlers.EventsHandler {
	return handlers.NewEventsHandler(invalidator, string(origin), logger)
}

func provideRouter(h router.Handlers, cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) *chi.Mux {
	opts := router.Options{
		ServiceName:    cfg.Tracing.ServiceName,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        metrics,
		MetricsPath:    cfg.Metrics.Path,
		Tracing:        cfg.Tracing.Enabled,
	}
	if cfg.CORS.Enabled {
		opts.CORS = &cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
			ExposedHeaders: []string{"X-Request-ID", "Location"},
			MaxAge:         cfg.CORS.MaxAge,
		}
	}
	return router.New(h, opts, logger)
}
