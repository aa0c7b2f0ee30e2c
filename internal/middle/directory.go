package middle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// Directory is the PostgreSQL id → index directory of one kind.
type Directory struct {
	m    *MiddleStore
	name string
}

// Directory returns the directory of kind.
func (m *MiddleStore) Directory(kind element.Kind) *Directory {
	return &Directory{m: m, name: m.tableName(kind, "directory")}
}

// Get returns the index of id.
func (d *Directory) Get(ctx context.Context, id element.ID) (spatial.Index, bool, error) {
	var idx int64
	err := d.m.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT idx FROM %s WHERE id = $1", d.name),
		int64(id),
	).Scan(&idx)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %d in %s: %w", id, d.name, err)
	}
	return spatial.Index(idx), true, nil
}

// Put records idx for id; index 0 removes the entry.
func (d *Directory) Put(ctx context.Context, id element.ID, idx spatial.Index) error {
	var err error
	if idx == spatial.DeletedValue {
		_, err = d.m.pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = $1", d.name),
			int64(id),
		)
	} else {
		_, err = d.m.pool.Exec(ctx,
			fmt.Sprintf(`
				INSERT INTO %s (id, idx) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET idx = EXCLUDED.idx`, d.name),
			int64(id), int64(idx),
		)
	}
	if err != nil {
		return fmt.Errorf("put %d in %s: %w", id, d.name, err)
	}
	return nil
}

// Clear removes every entry.
func (d *Directory) Clear(ctx context.Context) error {
	if _, err := d.m.pool.Exec(ctx, "TRUNCATE "+d.name); err != nil {
		return fmt.Errorf("truncate %s: %w", d.name, err)
	}
	return nil
}
