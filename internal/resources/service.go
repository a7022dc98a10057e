// Package resources registers annotated resources. A registration is written
// to both stores in one coordinated transaction: typing triples in the
// resource's graph and a document holding its metadata.
package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/cayleygraph/quad"
	"go.uber.org/zap"

	"opensilex-backend/internal/domain/rdf"
	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/repository"
	"opensilex-backend/internal/resolution"
	"opensilex-backend/internal/transaction"
)

// Collection is the document collection holding registrations.
const Collection = "resources"

// Registration describes a resource to register.
type Registration struct {
	URI      rdf.URI
	Type     rdf.URI
	Graph    rdf.Graph
	Label    string
	Metadata map[string]any
}

// Document is the stored side of a registration. It records the quads written
// so that removal deletes exactly those.
type Document struct {
	URI       string         `json:"uri" dynamodbav:"uri"`
	Type      string         `json:"type" dynamodbav:"type"`
	Graph     string         `json:"graph" dynamodbav:"graph"`
	Label     string         `json:"label,omitempty" dynamodbav:"label,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at" dynamodbav:"created_at"`
}

func (d *Document) quads() []quad.Quad {
	graph := quad.IRI(d.Graph)
	subject := quad.IRI(d.URI)
	out := []quad.Quad{{
		Subject:   subject,
		Predicate: quad.IRI(rdf.RDFType),
		Object:    quad.IRI(d.Type),
		Label:     graph,
	}}
	if d.Label != "" {
		out = append(out, quad.Quad{
			Subject:   subject,
			Predicate: quad.IRI(rdf.RDFSLabel),
			Object:    quad.String(d.Label),
			Label:     graph,
		})
	}
	return out
}

// Service registers, reads and removes resources.
type Service struct {
	coordinator *transaction.Coordinator
	resolver    *resolution.Resolver
	now         func() time.Time
	logger      *zap.Logger
}

// NewService creates the service. resolver is only used for reads within the
// open triple-store transaction.
func NewService(coordinator *transaction.Coordinator, resolver *resolution.Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		coordinator: coordinator,
		resolver:    resolver,
		now:         time.Now,
		logger:      logger,
	}
}

func key(u rdf.URI) repository.DocumentKey {
	return repository.DocumentKey{Collection: Collection, ID: u.String()}
}

// Register writes reg to both stores. A URI already typed in any graph is
// rejected with a RESOURCE_EXISTS error and nothing is written.
func (s *Service) Register(ctx context.Context, reg Registration) (*Document, error) {
	return transaction.Execute(ctx, s.coordinator, func(ctx context.Context, scope *transaction.Scope) (*Document, error) {
		existing := s.resolver.QueryWithin(scope.Triples, resolution.AnyGraph(), rdf.CandidateURISetOf(reg.URI))
		unknown, err := existing.Unknown(ctx)
		if err != nil {
			return nil, err
		}
		if len(unknown) == 0 {
			return nil, apperrors.Conflict(apperrors.CodeResourceExists, "resource already exists").
				WithResource(reg.URI.String()).
				WithOperation("Register").
				Build()
		}

		doc := &Document{
			URI:       reg.URI.String(),
			Type:      reg.Type.String(),
			Graph:     reg.Graph.String(),
			Label:     reg.Label,
			Metadata:  reg.Metadata,
			CreatedAt: s.now().UTC(),
		}
		if err := scope.Triples.Insert(ctx, doc.quads()...); err != nil {
			return nil, fmt.Errorf("failed to insert resource triples: %w", err)
		}
		if err := scope.Documents.Put(ctx, key(reg.URI), doc); err != nil {
			return nil, fmt.Errorf("failed to store resource document: %w", err)
		}

		s.logger.Debug("Resource registered",
			zap.String("uri", doc.URI),
			zap.String("type", doc.Type),
			zap.String("graph", doc.Graph),
		)
		return doc, nil
	})
}

// Get returns the document registered for u.
func (s *Service) Get(ctx context.Context, u rdf.URI) (*Document, error) {
	return transaction.Execute(ctx, s.coordinator, func(ctx context.Context, scope *transaction.Scope) (*Document, error) {
		return s.load(ctx, scope, u)
	})
}

func (s *Service) load(ctx context.Context, scope *transaction.Scope, u rdf.URI) (*Document, error) {
	var doc Document
	found, err := scope.Documents.Get(ctx, key(u), &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource document: %w", err)
	}
	if !found {
		return nil, apperrors.NotFound(apperrors.CodeResourceNotFound, "resource not found").
			WithResource(u.String()).
			Build()
	}
	return &doc, nil
}

// Remove deletes the triples and the document of a registered resource.
func (s *Service) Remove(ctx context.Context, u rdf.URI) error {
	return s.coordinator.Run(ctx, func(ctx context.Context, scope *transaction.Scope) error {
		doc, err := s.load(ctx, scope, u)
		if err != nil {
			return err
		}
		if err := scope.Triples.Delete(ctx, doc.quads()...); err != nil {
			return fmt.Errorf("failed to delete resource triples: %w", err)
		}
		if err := scope.Documents.Delete(ctx, key(u)); err != nil {
			return fmt.Errorf("failed to delete resource document: %w", err)
		}
		s.logger.Debug("Resource removed", zap.String("uri", doc.URI))
		return nil
	})
}
