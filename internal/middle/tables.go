package middle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// MiddleStore manages the PostgreSQL tables backing the indexes of every
// element kind.
type MiddleStore struct {
	cfg  *config.Config
	pool *pgxpool.Pool

	// Statistics
	RowsWritten atomic.Int64
	RowsDeleted atomic.Int64
}

// NewMiddleStore creates a new store on pool
func NewMiddleStore(cfg *config.Config, pool *pgxpool.Pool) *MiddleStore {
	return &MiddleStore{
		cfg:  cfg,
		pool: pool,
	}
}

// tableName returns the qualified name of one table of kind.
func (m *MiddleStore) tableName(kind element.Kind, suffix string) string {
	return pgx.Identifier{m.cfg.DBSchema, fmt.Sprintf("%s_%s_%s", m.cfg.TablePrefix, kind, suffix)}.Sanitize()
}

var indexedSuffixes = []string{
	"skeletons", "meta", "tags_local", "tags_global",
	"skeletons_attic", "meta_attic", "tags_local_attic", "tags_global_attic",
}

// EnsureTables creates every table if it does not exist
func (m *MiddleStore) EnsureTables(ctx context.Context, dropExisting bool) error {
	log := logger.Get()

	tablespaceClause := ""
	if m.cfg.TablespaceMain != "" {
		tablespaceClause = " TABLESPACE " + pgx.Identifier{m.cfg.TablespaceMain}.Sanitize()
	}

	var tables []struct{ name, schema string }
	for _, kind := range []element.Kind{element.Node, element.Way, element.Relation} {
		for _, suffix := range indexedSuffixes {
			tables = append(tables, struct{ name, schema string }{
				name: m.tableName(kind, suffix),
				schema: `
					CREATE TABLE IF NOT EXISTS %s (
						k  BYTEA NOT NULL,
						rk BYTEA NOT NULL,
						r  JSONB NOT NULL,
						PRIMARY KEY (k, rk)
					)%s`,
			})
		}
		tables = append(tables, struct{ name, schema string }{
			name: m.tableName(kind, "directory"),
			schema: `
				CREATE TABLE IF NOT EXISTS %s (
					id  BIGINT PRIMARY KEY,
					idx BIGINT NOT NULL
				)%s`,
		})
	}
	tables = append(tables, struct{ name, schema string }{
		name: m.tableName(element.Relation, "roles"),
		schema: `
			CREATE TABLE IF NOT EXISTS %s (
				id   BIGINT PRIMARY KEY,
				role TEXT NOT NULL UNIQUE
			)%s`,
	})

	for _, t := range tables {
		if dropExisting {
			log.Info("Dropping table", zap.String("table", t.name))
			if _, err := m.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", t.name)); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", t.name, err)
			}
		}

		log.Debug("Creating table", zap.String("table", t.name))
		if _, err := m.pool.Exec(ctx, fmt.Sprintf(t.schema, t.name, tablespaceClause)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}

	log.Info("Tables ready", zap.Int("tables", len(tables)), zap.String("schema", m.cfg.DBSchema))
	return nil
}

// Analyze refreshes planner statistics after bulk loads.
func (m *MiddleStore) Analyze(ctx context.Context) error {
	for _, kind := range []element.Kind{element.Node, element.Way, element.Relation} {
		for _, suffix := range append([]string{"directory"}, indexedSuffixes[:4]...) {
			name := m.tableName(kind, suffix)
			if _, err := m.pool.Exec(ctx, "ANALYZE "+name); err != nil {
				return fmt.Errorf("failed to analyze %s: %w", name, err)
			}
		}
	}
	return nil
}

// Table is a PostgreSQL IndexedStore. Keys are stored in order-preserving
// binary form, records as JSON next to their identity within the key.
type Table[K store.Key[K], R element.Lesser[R]] struct {
	m        *MiddleStore
	name     string
	key      KeyCodec[K]
	identity func(R) []byte
}

// NewTable binds a table of m.
func NewTable[K store.Key[K], R element.Lesser[R]](m *MiddleStore, name string, key KeyCodec[K], identity func(R) []byte) *Table[K, R] {
	return &Table[K, R]{m: m, name: name, key: key, identity: identity}
}

func (t *Table[K, R]) scan(ctx context.Context, query string, fn func(K, R) error, args ...any) error {
	rows, err := t.m.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", t.name, err)
	}
	var kb, rb []byte
	_, err = pgx.ForEachRow(rows, []any{&kb, &rb}, func() error {
		k, err := t.key.Decode(kb)
		if err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
		var r R
		if err := json.Unmarshal(rb, &r); err != nil {
			return fmt.Errorf("%s: decode record: %w", t.name, err)
		}
		return fn(k, r)
	})
	return err
}

// DiscreteIterate visits the records under keys in key order.
func (t *Table[K, R]) DiscreteIterate(ctx context.Context, keys []K, fn func(K, R) error) error {
	if len(keys) == 0 {
		return nil
	}
	enc := make([][]byte, len(keys))
	for i, k := range keys {
		enc[i] = t.key.Encode(k)
	}
	query := fmt.Sprintf("SELECT k, r FROM %s WHERE k = ANY($1::bytea[]) ORDER BY k, rk", t.name)
	return t.scan(ctx, query, fn, enc)
}

// RangeIterate visits the records within any of ranges in key order.
func (t *Table[K, R]) RangeIterate(ctx context.Context, ranges []store.Range[K], fn func(K, R) error) error {
	if len(ranges) == 0 {
		return nil
	}
	lo := make([][]byte, len(ranges))
	hi := make([][]byte, len(ranges))
	for i, r := range ranges {
		lo[i] = t.key.Encode(r.Begin)
		hi[i] = t.key.Encode(r.End)
	}
	query := fmt.Sprintf(`
		SELECT k, r FROM %s
		WHERE EXISTS (SELECT 1 FROM unnest($1::bytea[], $2::bytea[]) AS q(lo, hi) WHERE k >= q.lo AND k < q.hi)
		ORDER BY k, rk`, t.name)
	return t.scan(ctx, query, fn, lo, hi)
}

// AtomicReplace deletes remove and upserts add in one transaction.
func (t *Table[K, R]) AtomicReplace(ctx context.Context, remove, add store.Buckets[K, R]) error {
	batch := &pgx.Batch{}
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE k = $1 AND rk = $2", t.name)
	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s (k, rk, r) VALUES ($1, $2, $3)
		ON CONFLICT (k, rk) DO UPDATE SET r = EXCLUDED.r`, t.name)

	var encodeErr error
	var deleted, written int64
	remove.Each(func(k K, r R) {
		batch.Queue(deleteSQL, t.key.Encode(k), t.identity(r))
		deleted++
	})
	add.Each(func(k K, r R) {
		data, err := json.Marshal(r)
		if err != nil {
			if encodeErr == nil {
				encodeErr = err
			}
			return
		}
		batch.Queue(upsertSQL, t.key.Encode(k), t.identity(r), data)
		written++
	})
	if encodeErr != nil {
		return fmt.Errorf("%s: encode record: %w", t.name, encodeErr)
	}
	if batch.Len() == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, t.m.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("replace in %s: %w", t.name, err)
	}
	t.m.RowsDeleted.Add(deleted)
	t.m.RowsWritten.Add(written)
	return nil
}
