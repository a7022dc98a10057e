package ontology

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
)

// Scope selects what an invalidation drops.
type Scope string

const (
	ScopeClasses    Scope = "classes"
	ScopeProperties Scope = "properties"
)

// ParseScope validates an invalidation scope received from a caller.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeClasses, ScopeProperties:
		return Scope(s), nil
	}
	return "", apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("unknown invalidation scope %q", s)).Build()
}

// InvalidationPublisher announces a local invalidation to peer instances.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, scope string) error
}

// Invalidator invalidates the local cache and announces it to peers.
type Invalidator struct {
	cache     *Cache
	publisher InvalidationPublisher
	logger    *zap.Logger
}

// NewInvalidator creates an invalidator. publisher may be nil for a single
// instance deployment.
func NewInvalidator(cache *Cache, publisher InvalidationPublisher, logger *zap.Logger) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{cache: cache, publisher: publisher, logger: logger}
}

// Invalidate applies scope locally, then publishes it. The local cache is
// invalidated even when publishing fails.
func (i *Invalidator) Invalidate(ctx context.Context, scope Scope) error {
	if err := i.Apply(scope); err != nil {
		return err
	}
	if i.publisher == nil {
		return nil
	}
	if err := i.publisher.PublishInvalidation(ctx, string(scope)); err != nil {
		i.logger.Warn("Failed to announce ontology cache invalidation",
			zap.String("scope", string(scope)),
			zap.Error(err),
		)
		return apperrors.External(apperrors.CodeEventPublishFailed, "ontology cache invalidated locally but peers were not notified").
			WithOperation("Invalidate").
			WithResource("ontology-cache").
			WithCause(err).
			WithRetryable(true).
			Build()
	}
	return nil
}

// Apply invalidates the local cache only. It is used for invalidations
// announced by peers.
func (i *Invalidator) Apply(scope Scope) error {
	switch scope {
	case ScopeClasses:
		i.cache.InvalidateClasses()
	case ScopeProperties:
		i.cache.InvalidateProperties()
	default:
		return apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("unknown invalidation scope %q", scope)).Build()
	}
	return nil
}
