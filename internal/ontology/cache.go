// Package ontology serves class hierarchies and applicable properties
// computed from the triple store, caching them per class.
//
// A Cache is constructed explicitly and owned by the application container.
// Lookups for a missing key share one population call; population failures
// reach every waiter and are never stored. Entries expire a fixed duration
// after they are written. Mutators of ontology structure must call
// InvalidateClasses or InvalidateProperties; the cache does not observe store
// writes.
package ontology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	model "opensilex-backend/internal/domain/ontology"
	"opensilex-backend/internal/domain/rdf"
	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/cache"
	"opensilex-backend/internal/infrastructure/observability"
)

// Cache names used in metrics and logs.
const (
	CacheClasses    = "classes"
	CacheProperties = "properties"
)

// DefaultTTL is used when Config.TTL is not positive.
const DefaultTTL = 30 * time.Minute

// Config configures a Cache.
type Config struct {
	TTL time.Duration
	// CleanupInterval is the period of the expired-entry sweeper started by
	// Start. Zero disables sweeping; expired entries are still never served.
	CleanupInterval time.Duration
	// Warmup lists classes whose tree and properties are loaded by Start.
	Warmup []rdf.URI
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records lookups, populations and invalidations.
func WithMetrics(m *observability.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is the ontology metadata cache.
type Cache struct {
	source  model.DescriptorSource
	cfg     Config
	ttl     atomic.Int64
	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Collector
	tracer  trace.Tracer

	classes    *cache.Table[rdf.URI, *model.ClassTree]
	properties *cache.Table[rdf.URI, *model.PropertyList]
	group      singleflight.Group

	populations atomic.Int64
	failures    atomic.Int64

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCache creates a cache over source.
func NewCache(source model.DescriptorSource, cfg Config, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		source: source,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
		tracer: otel.Tracer("opensilex/ontology"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.classes = cache.NewTable[rdf.URI, *model.ClassTree](c.now)
	c.properties = cache.NewTable[rdf.URI, *model.PropertyList](c.now)
	c.SetTTL(cfg.TTL)
	return c
}

// TTL returns the lifetime given to new entries.
func (c *Cache) TTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

// SetTTL changes the lifetime of entries written from now on. A non-positive
// value selects DefaultTTL.
func (c *Cache) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.ttl.Store(int64(ttl))
}

// SearchSubClassesOf returns the subclass tree rooted at parent. A non-empty
// pattern bypasses the cache. ignoreRoot strips parent from the returned
// tree; cached entries always hold the full tree. Returned trees are shared
// and must not be modified.
func (c *Cache) SearchSubClassesOf(ctx context.Context, parent rdf.URI, pattern string, ignoreRoot bool) (*model.ClassTree, error) {
	var (
		tree *model.ClassTree
		err  error
	)
	if pattern != "" {
		c.metrics.CacheLookup(CacheClasses, "bypass")
		tree, err = c.source.SubClassesOf(ctx, parent, pattern)
	} else {
		tree, err = lookup(ctx, c, CacheClasses, c.classes, parent, func(ctx context.Context) (*model.ClassTree, error) {
			return c.source.SubClassesOf(ctx, parent, "")
		})
	}
	if err != nil {
		return nil, err
	}
	if ignoreRoot {
		return tree.WithoutRoot(), nil
	}
	return tree, nil
}

// GetProperties returns the datatype and object properties applicable to
// domain. The returned list is shared and must not be modified.
func (c *Cache) GetProperties(ctx context.Context, domain rdf.URI) (*model.PropertyList, error) {
	return lookup(ctx, c, CacheProperties, c.properties, domain, func(ctx context.Context) (*model.PropertyList, error) {
		data, err := c.source.DataProperties(ctx, domain)
		if err != nil {
			return nil, err
		}
		object, err := c.source.ObjectProperties(ctx, domain)
		if err != nil {
			return nil, err
		}
		return &model.PropertyList{Domain: domain, Properties: append(data, object...)}, nil
	})
}

// InvalidateClasses drops every subclass tree and every property list, since
// property applicability follows the class hierarchy. Populations in flight
// are not stored.
func (c *Cache) InvalidateClasses() {
	classes := c.classes.Clear()
	properties := c.properties.Clear()
	c.metrics.CacheInvalidated(CacheClasses)
	c.reportSizes()
	c.logger.Info("Ontology class cache invalidated",
		zap.Int("class_entries", classes),
		zap.Int("property_entries", properties),
	)
}

// InvalidateProperties drops every property list.
func (c *Cache) InvalidateProperties() {
	properties := c.properties.Clear()
	c.metrics.CacheInvalidated(CacheProperties)
	c.reportSizes()
	c.logger.Info("Ontology property cache invalidated", zap.Int("property_entries", properties))
}

func (c *Cache) reportSizes() {
	c.metrics.CacheSize(CacheClasses, c.classes.Len())
	c.metrics.CacheSize(CacheProperties, c.properties.Len())
}

func lookup[V any](ctx context.Context, c *Cache, name string, table *cache.Table[rdf.URI, V], key rdf.URI, populate func(context.Context) (V, error)) (V, error) {
	if v, ok := table.Get(key); ok {
		c.metrics.CacheLookup(name, "hit")
		return v, nil
	}
	c.metrics.CacheLookup(name, "miss")

	// Keying flights by generation keeps callers arriving after an
	// invalidation from joining a population started before it.
	generation := table.Generation()
	flight := fmt.Sprintf("%s/%d/%s", name, generation, key)

	ch := c.group.DoChan(flight, func() (any, error) {
		if v, ok := table.Get(key); ok {
			return v, nil
		}
		v, err := populateEntry(context.WithoutCancel(ctx), c, name, key, populate)
		if err != nil {
			return nil, err
		}
		if !table.SetIfGeneration(key, v, c.TTL(), generation) {
			c.logger.Debug("Discarded population computed before invalidation",
				zap.String("cache", name),
				zap.String("key", key.String()),
			)
		}
		c.metrics.CacheSize(name, table.Len())
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func populateEntry[V any](ctx context.Context, c *Cache, name string, key rdf.URI, populate func(context.Context) (V, error)) (V, error) {
	ctx, span := c.tracer.Start(ctx, "ontology.populate", trace.WithAttributes(
		attribute.String("cache", name),
		attribute.String("key", key.String()),
	))
	defer span.End()

	start := time.Now()
	c.populations.Add(1)
	v, err := recoverPopulate(ctx, populate)
	c.metrics.CachePopulated(name, err)
	if err != nil {
		c.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "population failed")
		c.logger.Warn("Ontology cache population failed",
			zap.String("cache", name),
			zap.String("key", key.String()),
			zap.Error(err),
		)
		var zero V
		return zero, &apperrors.CachePopulationError{Key: key.String(), Cause: err}
	}
	c.logger.Debug("Ontology cache entry populated",
		zap.String("cache", name),
		zap.String("key", key.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return v, nil
}

// recoverPopulate turns a panic in the descriptor source into an error.
// singleflight would otherwise re-panic it on a goroutine no middleware
// can recover.
func recoverPopulate[V any](ctx context.Context, populate func(context.Context) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("descriptor source panicked: %v", r)
		}
	}()
	return populate(ctx)
}

// Stats reports cache statistics.
type Stats struct {
	Classes     cache.Stats
	Properties  cache.Stats
	Populations int64
	Failures    int64
}

// Stats returns current statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Classes:     c.classes.Stats(),
		Properties:  c.properties.Stats(),
		Populations: c.populations.Load(),
		Failures:    c.failures.Load(),
	}
}

// Warmup loads the tree and properties of every configured warmup class.
func (c *Cache) Warmup(ctx context.Context) error {
	var errs []error
	for _, class := range c.cfg.Warmup {
		if _, err := c.SearchSubClassesOf(ctx, class, "", false); err != nil {
			errs = append(errs, err)
		}
		if _, err := c.GetProperties(ctx, class); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start warms the cache and runs the expired-entry sweeper until Stop is
// called or ctx ends. Warmup failures are logged. Calling Start on a running
// cache does nothing.
func (c *Cache) Start(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Stop ends the goroutine launched by Start and waits for it.
func (c *Cache) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

func (c *Cache) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := c.Warmup(ctx); err != nil {
		c.logger.Warn("Ontology cache warmup incomplete", zap.Error(err))
	} else if len(c.cfg.Warmup) > 0 {
		c.logger.Info("Ontology cache warmed", zap.Int("classes", len(c.cfg.Warmup)))
	}

	if c.cfg.CleanupInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *Cache) cleanupExpired() {
	removed := c.classes.CleanupExpired() + c.properties.CleanupExpired()
	if removed > 0 {
		c.reportSizes()
		c.logger.Debug("Cleaned up expired ontology cache entries", zap.Int("count", removed))
	}
}
