//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"opensilex-backend/internal/config"
)

// InitializeContainer is the wire injector for Container. NewContainer builds
// the same graph by hand.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
