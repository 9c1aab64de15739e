package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/storage"
	"simp-tracker/backend/pkg/config"
	"simp-tracker/backend/pkg/logger"
)

// batchSize bounds one import transaction
const batchSize = 500

func main() {
	from := flag.String("from", config.BackendPostgres, "Backend to read edges from")
	to := flag.String("to", config.BackendNeo4j, "Backend to copy edges into")
	dryRun := flag.Bool("dry-run", false, "Read the source and report without writing")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting edge migration...", zap.String("from", *from), zap.String("to", *to), zap.Bool("dry_run", *dryRun))

	if *from == *to {
		log.Fatal("Source and target backends must differ")
	}

	ctx := context.Background()

	source, err := storage.OpenBackend(ctx, cfg, *from, log)
	if err != nil {
		log.Fatal("Failed to open source backend", zap.Error(err))
	}
	defer source.Close()

	var target edgeImporter
	if !*dryRun {
		backend, err := storage.OpenBackend(ctx, cfg, *to, log)
		if err != nil {
			log.Fatal("Failed to open target backend", zap.Error(err))
		}
		defer backend.Close()
		target = backend
	}

	stats, err := copyEdges(ctx, source, target, log)
	if err != nil {
		log.Error("Migration failed", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Migration completed successfully!",
		zap.Int("read", stats.Read),
		zap.Int("imported", stats.Imported),
		zap.Int("skipped", stats.Read-stats.Imported),
	)
}

type edgeSource interface {
	FetchAllEdges(ctx context.Context) ([]simps.Edge, error)
}

type edgeImporter interface {
	ImportEdges(ctx context.Context, edges []simps.Edge) (int, error)
}

type copyStats struct {
	Read     int
	Imported int
}

// copyEdges reads every source edge and imports it in batches. A nil target
// only counts what would be copied.
func copyEdges(ctx context.Context, source edgeSource, target edgeImporter, log *zap.Logger) (copyStats, error) {
	edges, err := source.FetchAllEdges(ctx)
	if err != nil {
		return copyStats{}, fmt.Errorf("failed to read source edges: %w", err)
	}

	stats := copyStats{Read: len(edges)}
	if target == nil {
		return stats, nil
	}

	for start := 0; start < len(edges); start += batchSize {
		end := min(start+batchSize, len(edges))
		n, err := target.ImportEdges(ctx, edges[start:end])
		if err != nil {
			return stats, fmt.Errorf("failed to import edges %d-%d: %w", start, end, err)
		}
		stats.Imported += n
		log.Debug("Imported batch", zap.Int("start", start), zap.Int("end", end), zap.Int("new", n))
	}
	return stats, nil
}
