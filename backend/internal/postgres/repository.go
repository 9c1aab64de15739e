// Package postgres stores simp edges in the simping_users table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/tracker"
	apperrors "simp-tracker/backend/pkg/errors"
)

const uniqueViolation = "23505"

const schema = `
	CREATE TABLE IF NOT EXISTS simping_users (
		guild_id    BIGINT      NOT NULL,
		user_id     BIGINT      NOT NULL,
		simping_for BIGINT      NOT NULL,
		simp_start  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (guild_id, user_id, simping_for)
	);
	CREATE INDEX IF NOT EXISTS simping_users_target_idx ON simping_users (guild_id, simping_for);
`

const edgeColumns = `guild_id, user_id, simping_for, simp_start`

// sqlEdge mirrors one simping_users row
type sqlEdge struct {
	GuildID    int64     `db:"guild_id"`
	UserID     int64     `db:"user_id"`
	SimpingFor int64     `db:"simping_for"`
	SimpStart  time.Time `db:"simp_start"`
}

func (e sqlEdge) toDomain() simps.Edge {
	return simps.Edge{
		GuildID:   e.GuildID,
		UserID:    e.UserID,
		TargetID:  e.SimpingFor,
		CreatedAt: e.SimpStart,
	}
}

// Repository is the PostgreSQL edge repository
type Repository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool and checks the server is reachable
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewRepository creates a repository on an open pool
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{db: pool, logger: logger}
}

// Close releases the pool
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

// EnsureSchema creates the edge table when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return apperrors.NewStoreQueryFailed("ensure schema", err)
	}
	r.logger.Debug("PostgreSQL schema ready")
	return nil
}

// InsertEdge stores userID -> targetID. The primary key rejects duplicates.
func (r *Repository) InsertEdge(ctx context.Context, guildID, userID, targetID int64) (simps.Edge, error) {
	q := `
		INSERT INTO simping_users (guild_id, user_id, simping_for)
		VALUES (@guild_id, @user_id, @simping_for)
		RETURNING ` + edgeColumns

	rows, err := r.db.Query(ctx, q, edgeArgs(guildID, userID, targetID))
	if err != nil {
		return simps.Edge{}, handleError("insert edge", err, guildID, userID, targetID)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[sqlEdge])
	if err != nil {
		return simps.Edge{}, handleError("insert edge", err, guildID, userID, targetID)
	}
	return row.toDomain(), nil
}

// DeleteEdge removes userID -> targetID and returns the deleted row, or nil
// when there was none.
func (r *Repository) DeleteEdge(ctx context.Context, guildID, userID, targetID int64) (*simps.Edge, error) {
	q := `
		DELETE FROM simping_users
		WHERE guild_id = @guild_id AND user_id = @user_id AND simping_for = @simping_for
		RETURNING ` + edgeColumns

	rows, err := r.db.Query(ctx, q, edgeArgs(guildID, userID, targetID))
	if err != nil {
		return nil, handleError("delete edge", err, guildID, userID, targetID)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[sqlEdge])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, handleError("delete edge", err, guildID, userID, targetID)
	}
	edge := row.toDomain()
	return &edge, nil
}

// ImportEdges copies edges with their original timestamps. Rows that
// already exist are left alone; the count of new rows is returned.
func (r *Repository) ImportEdges(ctx context.Context, edges []simps.Edge) (int, error) {
	q := `
		INSERT INTO simping_users (guild_id, user_id, simping_for, simp_start)
		VALUES (@guild_id, @user_id, @simping_for, @simp_start)
		ON CONFLICT (guild_id, user_id, simping_for) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range edges {
		args := edgeArgs(e.GuildID, e.UserID, e.TargetID)
		args["simp_start"] = e.CreatedAt
		batch.Queue(q, args)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	imported := 0
	for range edges {
		tag, err := results.Exec()
		if err != nil {
			return imported, handleError("import edges", err, 0, 0, 0)
		}
		imported += int(tag.RowsAffected())
	}
	r.logger.Info("Imported edges", zap.Int("offered", len(edges)), zap.Int("imported", imported))
	return imported, nil
}

// FetchAllEdges returns every stored edge, oldest first
func (r *Repository) FetchAllEdges(ctx context.Context) ([]simps.Edge, error) {
	q := `SELECT ` + edgeColumns + ` FROM simping_users ORDER BY simp_start, guild_id, user_id, simping_for`
	return r.fetch(ctx, "fetch all edges", q, nil)
}

// FetchEdges returns the edges of one guild, optionally narrowed to a
// source or target user.
func (r *Repository) FetchEdges(ctx context.Context, filter tracker.EdgeFilter) ([]simps.Edge, error) {
	q := `
		SELECT ` + edgeColumns + `
		FROM simping_users
		WHERE guild_id = @guild_id
		  AND (@user_id::BIGINT IS NULL OR user_id = @user_id)
		  AND (@simping_for::BIGINT IS NULL OR simping_for = @simping_for)
		ORDER BY simp_start, user_id, simping_for`

	args := pgx.NamedArgs{
		"guild_id":    filter.GuildID,
		"user_id":     filter.UserID,
		"simping_for": filter.TargetID,
	}
	return r.fetch(ctx, "fetch edges", q, args)
}

func (r *Repository) fetch(ctx context.Context, operation, q string, args pgx.NamedArgs) ([]simps.Edge, error) {
	var queryArgs []any
	if args != nil {
		queryArgs = append(queryArgs, args)
	}
	rows, err := r.db.Query(ctx, q, queryArgs...)
	if err != nil {
		return nil, handleError(operation, err, 0, 0, 0)
	}
	sqlRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[sqlEdge])
	if err != nil {
		return nil, handleError(operation, err, 0, 0, 0)
	}

	edges := make([]simps.Edge, 0, len(sqlRows))
	for _, row := range sqlRows {
		edges = append(edges, row.toDomain())
	}
	return edges, nil
}

func edgeArgs(guildID, userID, targetID int64) pgx.NamedArgs {
	return pgx.NamedArgs{
		"guild_id":    guildID,
		"user_id":     userID,
		"simping_for": targetID,
	}
}

// handleError maps PostgreSQL failures onto store errors
func handleError(operation string, err error, guildID, userID, targetID int64) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.NewDuplicateEdge(guildID, userID, targetID)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewContextCancelled(operation, err)
	}
	return apperrors.NewStoreQueryFailed(operation, err)
}
