package middle

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/updater"
)

// RoleStore persists the relation role dictionary.
type RoleStore struct {
	m *MiddleStore
}

// Roles returns the role store.
func (m *MiddleStore) Roles() *RoleStore {
	return &RoleStore{m: m}
}

func (s *RoleStore) LoadRoles(ctx context.Context) ([]updater.Role, error) {
	rows, err := s.m.pool.Query(ctx,
		fmt.Sprintf("SELECT id, role FROM %s ORDER BY id", s.m.tableName(element.Relation, "roles")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []updater.Role
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		roles = append(roles, updater.Role{ID: uint32(id), Name: name})
	}
	return roles, rows.Err()
}

// AppendRoles copies new roles into the table.
func (s *RoleStore) AppendRoles(ctx context.Context, roles []updater.Role) error {
	rows := make([][]any, len(roles))
	for i, r := range roles {
		rows[i] = []any{int64(r.ID), r.Name}
	}
	_, err := s.m.pool.CopyFrom(ctx,
		pgx.Identifier{s.m.cfg.DBSchema, fmt.Sprintf("%s_%s_roles", s.m.cfg.TablePrefix, element.Relation)},
		[]string{"id", "role"},
		pgx.CopyFromRows(rows),
	)
	return err
}
