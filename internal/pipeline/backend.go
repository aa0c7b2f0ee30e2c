package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/dirindex"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/middle"
	"github.com/wegman-software/osmindex-go/internal/store"
	"github.com/wegman-software/osmindex-go/internal/updater"
)

// Backend holds the opened tables of every kind.
type Backend struct {
	Nodes     *updater.Tables[element.NodeSkeleton]
	Ways      *updater.Tables[element.WaySkeleton]
	Relations *updater.Tables[element.RelationSkeleton]
	Roles     updater.RoleStore

	// Middle is nil unless the tables live in PostgreSQL.
	Middle *middle.MiddleStore

	pool    *pgxpool.Pool
	closers []func() error
}

// OpenBackend opens the stores selected by cfg, creating missing tables
// and directory files.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	log := logger.Get()
	b := &Backend{}

	if cfg.NeedsDatabase() {
		log.Info("Connecting to database",
			zap.String("host", cfg.DBHost),
			zap.String("database", cfg.DBName))
		pool, err := pgxpool.New(ctx, cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		b.pool = pool
		b.Middle = middle.NewMiddleStore(cfg, pool)
		if err := b.Middle.EnsureTables(ctx, false); err != nil {
			pool.Close()
			return nil, err
		}
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		b.Nodes = middle.KindTables[element.NodeSkeleton](b.Middle, element.Node)
		b.Ways = middle.KindTables[element.WaySkeleton](b.Middle, element.Way)
		b.Relations = middle.KindTables[element.RelationSkeleton](b.Middle, element.Relation)
		b.Roles = b.Middle.Roles()
	default:
		b.Nodes = updater.NewMemTables[element.NodeSkeleton]()
		b.Ways = updater.NewMemTables[element.WaySkeleton]()
		b.Relations = updater.NewMemTables[element.RelationSkeleton]()
		b.Roles = &updater.MemRoleStore{}
	}

	var err error
	if b.Nodes.Directory, err = b.directory(cfg, element.Node); err != nil {
		return nil, errors.Join(err, b.Close())
	}
	if b.Ways.Directory, err = b.directory(cfg, element.Way); err != nil {
		return nil, errors.Join(err, b.Close())
	}
	if b.Relations.Directory, err = b.directory(cfg, element.Relation); err != nil {
		return nil, errors.Join(err, b.Close())
	}

	// A memory directory over durable tables starts out empty.
	if cfg.Backend != config.BackendMemory && cfg.DirectoryBackend == config.BackendMemory {
		log.Info("Rebuilding in-memory directories")
		if _, err := b.RebuildDirectories(ctx); err != nil {
			return nil, errors.Join(err, b.Close())
		}
	}
	return b, nil
}

func (b *Backend) directory(cfg *config.Config, kind element.Kind) (store.Directory, error) {
	switch cfg.DirectoryBackend {
	case config.BackendPostgres:
		return b.Middle.Directory(kind), nil
	case config.BackendMmap:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		d, err := dirindex.Create(DirectoryPath(cfg, kind), uint64(cfg.DirectoryCapacity))
		if err != nil {
			return nil, fmt.Errorf("%s directory: %w", kind, err)
		}
		b.closers = append(b.closers, d.Close)
		return d, nil
	default:
		return store.NewMemDirectory(), nil
	}
}

// DirectoryPath is the file backing the mmap directory of kind.
func DirectoryPath(cfg *config.Config, kind element.Kind) string {
	return filepath.Join(cfg.DataDir, kind.String()+".dir")
}

// DropExisting removes every table and directory file selected by cfg so
// the next OpenBackend starts empty.
func DropExisting(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	if cfg.DirectoryBackend == config.BackendMmap {
		for _, kind := range []element.Kind{element.Node, element.Way, element.Relation} {
			path := DirectoryPath(cfg, kind)
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
			log.Info("Removed directory file", zap.String("path", path))
		}
	}
	if !cfg.NeedsDatabase() {
		return nil
	}
	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	return middle.NewMiddleStore(cfg, pool).EnsureTables(ctx, true)
}

// RebuildDirectories re-derives every directory from its skeleton table.
func (b *Backend) RebuildDirectories(ctx context.Context) (map[element.Kind]int, error) {
	log := logger.Get()
	counts := make(map[element.Kind]int, 3)
	var err error
	if counts[element.Node], err = updater.RebuildDirectory(ctx, b.Nodes.Skeletons, b.Nodes.Directory); err != nil {
		return counts, fmt.Errorf("node directory: %w", err)
	}
	if counts[element.Way], err = updater.RebuildDirectory(ctx, b.Ways.Skeletons, b.Ways.Directory); err != nil {
		return counts, fmt.Errorf("way directory: %w", err)
	}
	if counts[element.Relation], err = updater.RebuildDirectory(ctx, b.Relations.Skeletons, b.Relations.Directory); err != nil {
		return counts, fmt.Errorf("relation directory: %w", err)
	}
	log.Info("Directories rebuilt",
		zap.Int("nodes", counts[element.Node]),
		zap.Int("ways", counts[element.Way]),
		zap.Int("relations", counts[element.Relation]))
	return counts, nil
}

// Close releases directory files and the database pool.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	b.closers = nil
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	return errors.Join(errs...)
}
