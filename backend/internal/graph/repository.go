package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/tracker"
	apperrors "simp-tracker/backend/pkg/errors"
	"simp-tracker/backend/pkg/logger"
)

// Repository stores simp edges as SIMPS_FOR relationships between
// SimpUser nodes keyed by (guild_id, user_id).
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// Connect opens a driver and verifies the server is reachable
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	return driver, nil
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// EnsureSchema creates the node key constraint, which also indexes lookups
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			CREATE CONSTRAINT simp_user_key IF NOT EXISTS
			FOR (u:SimpUser) REQUIRE (u.guild_id, u.user_id) IS UNIQUE
		`
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	if err != nil {
		return wrapError("ensure schema", err)
	}
	return nil
}

// InsertEdge creates userID -> targetID. MERGE locks both end nodes, so of
// two concurrent inserts exactly one creates the relationship and the other
// sees it and reports a duplicate.
func (r *Repository) InsertEdge(ctx context.Context, guildID, userID, targetID int64) (simps.Edge, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MERGE (a:SimpUser {guild_id: $guildId, user_id: $userId})
			MERGE (b:SimpUser {guild_id: $guildId, user_id: $targetId})
			MERGE (a)-[r:SIMPS_FOR]->(b)
			ON CREATE SET r.created_at = datetime()
			RETURN r.created_at AS created_at
		`, edgeParams(guildID, userID, targetID))
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		if summary.Counters().RelationshipsCreated() == 0 || len(records) == 0 {
			return nil, apperrors.NewDuplicateEdge(guildID, userID, targetID)
		}
		return simps.Edge{
			GuildID:   guildID,
			UserID:    userID,
			TargetID:  targetID,
			CreatedAt: getTimeFromRecord(records[0], "created_at"),
		}, nil
	})
	if err != nil {
		return simps.Edge{}, wrapError("insert edge", err)
	}
	return result.(simps.Edge), nil
}

// DeleteEdge removes userID -> targetID and returns it, or nil when absent
func (r *Repository) DeleteEdge(ctx context.Context, guildID, userID, targetID int64) (*simps.Edge, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (:SimpUser {guild_id: $guildId, user_id: $userId})
			      -[r:SIMPS_FOR]->
			      (:SimpUser {guild_id: $guildId, user_id: $targetId})
			WITH r, r.created_at AS created_at
			DELETE r
			RETURN created_at
		`, edgeParams(guildID, userID, targetID))
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return (*simps.Edge)(nil), nil
		}
		return &simps.Edge{
			GuildID:   guildID,
			UserID:    userID,
			TargetID:  targetID,
			CreatedAt: getTimeFromRecord(records[0], "created_at"),
		}, nil
	})
	if err != nil {
		return nil, wrapError("delete edge", err)
	}
	return result.(*simps.Edge), nil
}

// ImportEdges copies edges with their original timestamps. Existing
// relationships keep theirs; the count of new relationships is returned.
func (r *Repository) ImportEdges(ctx context.Context, edges []simps.Edge) (int, error) {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"guildId":   e.GuildID,
			"userId":    e.UserID,
			"targetId":  e.TargetID,
			"createdAt": e.CreatedAt,
		})
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $edges AS e
			MERGE (a:SimpUser {guild_id: e.guildId, user_id: e.userId})
			MERGE (b:SimpUser {guild_id: e.guildId, user_id: e.targetId})
			MERGE (a)-[r:SIMPS_FOR]->(b)
			ON CREATE SET r.created_at = e.createdAt
		`, map[string]any{"edges": rows})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().RelationshipsCreated(), nil
	})
	if err != nil {
		return 0, wrapError("import edges", err)
	}

	imported := result.(int)
	r.logger.Info("Imported edges", zap.Int("offered", len(edges)), zap.Int("imported", imported))
	return imported, nil
}

// FetchAllEdges returns every stored edge, oldest first
func (r *Repository) FetchAllEdges(ctx context.Context) ([]simps.Edge, error) {
	query := `
		MATCH (a:SimpUser)-[r:SIMPS_FOR]->(b:SimpUser)
		RETURN a.guild_id AS guild_id, a.user_id AS user_id, b.user_id AS target_id, r.created_at AS created_at
		ORDER BY created_at, guild_id, user_id, target_id
	`
	return r.fetch(ctx, "fetch all edges", query, nil)
}

// FetchEdges returns one guild's edges, optionally narrowed to a source or
// target user.
func (r *Repository) FetchEdges(ctx context.Context, filter tracker.EdgeFilter) ([]simps.Edge, error) {
	query := `
		MATCH (a:SimpUser {guild_id: $guildId})-[r:SIMPS_FOR]->(b:SimpUser)
		WHERE ($userId IS NULL OR a.user_id = $userId)
		  AND ($targetId IS NULL OR b.user_id = $targetId)
		RETURN a.guild_id AS guild_id, a.user_id AS user_id, b.user_id AS target_id, r.created_at AS created_at
		ORDER BY created_at, user_id, target_id
	`
	params := map[string]any{
		"guildId":  filter.GuildID,
		"userId":   optionalID(filter.UserID),
		"targetId": optionalID(filter.TargetID),
	}
	return r.fetch(ctx, "fetch edges", query, params)
}

func (r *Repository) fetch(ctx context.Context, operation, query string, params map[string]any) ([]simps.Edge, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		edges := []simps.Edge{}
		for res.Next(ctx) {
			edges = append(edges, recordToEdge(res.Record()))
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, wrapError(operation, err)
	}
	return result.([]simps.Edge), nil
}

func edgeParams(guildID, userID, targetID int64) map[string]any {
	return map[string]any{
		"guildId":  guildID,
		"userId":   userID,
		"targetId": targetID,
	}
}

// wrapError keeps domain errors raised inside a transaction and wraps
// driver failures.
func wrapError(operation string, err error) error {
	var duplicate *apperrors.ErrDuplicateEdge
	if errors.As(err, &duplicate) {
		return duplicate
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewContextCancelled(operation, err)
	}
	return apperrors.NewStoreQueryFailed(operation, fmt.Errorf("failed to %s: %w", operation, err))
}
