package di

import (
	"github.com/google/wire"

	"opensilex-backend/internal/interfaces/http/handlers"
	"opensilex-backend/internal/interfaces/http/router"
	"opensilex-backend/internal/ontology"
	"opensilex-backend/internal/resources"
	"opensilex-backend/internal/transaction"
)

// SuperSet combines every provider set of the service.
var SuperSet = wire.NewSet(
	ConfigProviders,
	InfrastructureProviders,
	ServiceProviders,
	InterfaceProviders,
	wire.Struct(new(Container), "*"),
)

// ConfigProviders provides the ambient dependencies every layer uses.
var ConfigProviders = wire.NewSet(
	provideLogger,
	provideOrigin,
	provideMetrics,
	provideTracerProvider,
	providePrefixes,
	NewColdStartTracker,
)

// InfrastructureProviders provides the stores and AWS clients.
var InfrastructureProviders = wire.NewSet(
	provideAWSClients,
	provideTripleStore,
	provideTripleReader,
	provideDocumentStore,
	provideInvalidationPublisher,
)

// ServiceProviders provides the transaction, resolution and ontology
// services.
var ServiceProviders = wire.NewSet(
	transaction.NewCoordinator,
	provideResolver,
	provideOntologyCache,
	ontology.NewInvalidator,
	resources.NewService,
)

// InterfaceProviders provides the HTTP handlers and router.
var InterfaceProviders = wire.NewSet(
	provideResolveHandler,
	provideResourceHandler,
	provideEventsHandler,
	handlers.NewOntologyHandler,
	handlers.NewHealthHandler,
	wire.Struct(new(router.Handlers), "*"),
	provideRouter,
)
