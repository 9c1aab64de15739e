// Package storage opens the durable edge store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"simp-tracker/backend/internal/graph"
	"simp-tracker/backend/internal/postgres"
	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/tracker"
	"simp-tracker/backend/pkg/config"
	apperrors "simp-tracker/backend/pkg/errors"
)

// Backend is an edge repository that owns a connection
type Backend interface {
	tracker.EdgeRepository
	ImportEdges(ctx context.Context, edges []simps.Edge) (int, error)
	EnsureSchema(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*postgres.Repository)(nil)
	_ Backend = (*graph.Repository)(nil)
)

// Open connects to the configured backend and makes sure its schema exists
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	return OpenBackend(ctx, cfg, cfg.StoreBackend, logger)
}

// OpenBackend is Open for an explicitly named backend, using the
// connection settings from cfg.
func OpenBackend(ctx context.Context, cfg *config.Config, name string, logger *zap.Logger) (Backend, error) {
	var backend Backend
	switch name {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		backend = postgres.NewRepository(pool, logger)
	case config.BackendNeo4j:
		driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		backend = graph.NewRepository(driver)
	default:
		return nil, apperrors.NewConfigValidationFailed("STORE_BACKEND", fmt.Sprintf("unknown backend %q", name))
	}

	if err := backend.EnsureSchema(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to prepare %s schema: %w", name, err)
	}
	logger.Info("Connected to edge store", zap.String("backend", name))
	return backend, nil
}
