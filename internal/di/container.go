// Package di assembles the service's dependency graph.
package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"opensilex-backend/internal/config"
	"opensilex-backend/internal/domain/rdf"
	"opensilex-backend/internal/infrastructure/observability"
	"opensilex-backend/internal/interfaces/http/handlers"
	"opensilex-backend/internal/interfaces/http/router"
	"opensilex-backend/internal/ontology"
	"opensilex-backend/internal/repository"
	"opensilex-backend/internal/resolution"
	"opensilex-backend/internal/resources"
	"opensilex-backend/internal/transaction"
)

// Container holds the assembled service.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Origin    Origin
	ColdStart *ColdStartTracker

	Metrics *observability.Collector
	Tracer  *observability.TracerProvider

	AWS       *AWSClients
	Triples   repository.TripleStore
	Documents repository.DocumentStore

	Prefixes    *rdf.Prefixes
	Coordinator *transaction.Coordinator
	Resolver    *resolution.Resolver
	Ontology    *ontology.Cache
	Invalidator *ontology.Invalidator
	Resources   *resources.Service

	Handlers router.Handlers
	Router   *chi.Mux
}

// NewContainer builds every dependency from cfg.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	start := time.Now()
	c := &Container{Config: cfg, ColdStart: NewColdStartTracker(), Origin: provideOrigin()}

	var err error
	if c.Logger, err = provideLogger(cfg); err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	c.Metrics = provideMetrics(cfg)
	if c.Tracer, err = provideTracerProvider(ctx, cfg); err != nil {
		// Tracing is optional; the service runs without it.
		c.Logger.Warn("Failed to initialize tracing", zap.Error(err))
		c.Tracer = &observability.TracerProvider{}
	}
	c.Prefixes = providePrefixes(cfg)

	if c.AWS, err = provideAWSClients(ctx, cfg, c.Logger); err != nil {
		return nil, err
	}
	if c.Triples, err = provideTripleStore(cfg, c.Logger); err != nil {
		return nil, fmt.Errorf("failed to create triple store: %w", err)
	}
	if c.Documents, err = provideDocumentStore(cfg, c.AWS, c.Logger); err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}

	reader := provideTripleReader(c.Triples)
	c.Coordinator = transaction.NewCoordinator(c.Triples, c.Documents, c.Logger, c.Metrics)
	c.Resolver = provideResolver(reader, cfg, c.Logger, c.Metrics)
	if c.Ontology, err = provideOntologyCache(reader, cfg, c.Prefixes, c.Logger, c.Metrics); err != nil {
		return nil, err
	}
	c.Invalidator = ontology.NewInvalidator(c.Ontology, provideInvalidationPublisher(cfg, c.AWS, c.Origin, c.Logger), c.Logger)
	c.Resources = resources.NewService(c.Coordinator, c.Resolver, c.Logger)

	c.Handlers = router.Handlers{
		Resolve:   provideResolveHandler(c.Resolver, c.Prefixes, cfg, c.Logger),
		Ontology:  handlers.NewOntologyHandler(c.Ontology, c.Invalidator, c.Prefixes, c.Logger),
		Resources: provideResourceHandler(c.Resources, c.Prefixes, cfg, c.Logger),
		Events:    provideEventsHandler(c.Invalidator, c.Origin, c.Logger),
		Health:    handlers.NewHealthHandler(reader, c.Logger),
	}
	c.Router = provideRouter(c.Handlers, cfg, c.Metrics, c.Logger)

	c.Logger.Info("Container initialized",
		zap.String("environment", string(cfg.Environment)),
		zap.String("triple_store", cfg.TripleStore.Provider),
		zap.String("document_store", cfg.DocumentStore.Provider),
		zap.String("origin", string(c.Origin)),
		zap.Strings("config_sources", cfg.LoadedFrom),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c, nil
}

// Start launches background work: cache warmup and the expiry sweeper.
func (c *Container) Start(ctx context.Context) {
	c.Ontology.Start(ctx)
}

// WatchConfig applies reloaded settings that can change at runtime.
func (c *Container) WatchConfig(w *config.Watcher) {
	w.OnChange(func(updated *config.Config) {
		c.Ontology.SetTTL(updated.Ontology.CacheTTL)
	})
}

// Shutdown stops background work and flushes telemetry.
func (c *Container) Shutdown(ctx context.Context) error {
	c.Ontology.Stop()
	var errs []error
	if c.Tracer != nil {
		if err := c.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	// Sync fails on stderr/stdout for some platforms; ignore it.
	_ = c.Logger.Sync()
	return errors.Join(errs...)
}
