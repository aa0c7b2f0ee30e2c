package updater

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	// ErrRoleIDExhausted is returned when no role id is left to assign.
	ErrRoleIDExhausted = errors.New("role id space exhausted")
	// ErrRoleNotFlushed is returned when a relation would be written with a
	// role id that has not been persisted.
	ErrRoleNotFlushed = errors.New("role id used before it was persisted")
)

// Role is one entry of the role dictionary.
type Role struct {
	ID   uint32
	Name string
}

// RoleStore persists the role dictionary.
type RoleStore interface {
	LoadRoles(ctx context.Context) ([]Role, error)
	AppendRoles(ctx context.Context, roles []Role) error
}

// MemRoleStore is an in-memory RoleStore.
type MemRoleStore struct {
	mu    sync.Mutex
	roles []Role
}

func (m *MemRoleStore) LoadRoles(context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Role(nil), m.roles...), nil
}

func (m *MemRoleStore) AppendRoles(_ context.Context, roles []Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = append(m.roles, roles...)
	return nil
}

// RoleDictionary interns relation member roles. Ids are dense, assigned
// in order of first sight and never reused.
type RoleDictionary struct {
	mu      sync.Mutex
	store   RoleStore
	ids     map[string]uint32
	names   []string
	written int
	limit   uint64
}

// NewRoleDictionary loads the persisted roles. limit caps the number of
// roles; zero means the full uint32 range.
func NewRoleDictionary(ctx context.Context, st RoleStore, limit int) (*RoleDictionary, error) {
	capacity := uint64(math.MaxUint32) + 1
	if limit > 0 && uint64(limit) < capacity {
		capacity = uint64(limit)
	}
	roles, err := st.LoadRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	d := &RoleDictionary{
		store: st,
		ids:   make(map[string]uint32, len(roles)),
		names: make([]string, len(roles)),
		limit: capacity,
	}
	for _, r := range roles {
		if int(r.ID) >= len(roles) {
			return nil, fmt.Errorf("role %q has id %d beyond the %d stored roles", r.Name, r.ID, len(roles))
		}
		d.ids[r.Name] = r.ID
		d.names[r.ID] = r.Name
	}
	d.written = len(roles)
	return d, nil
}

// ID returns the id of role, assigning the next free one on first sight.
func (d *RoleDictionary) ID(role string) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.ids[role]; ok {
		return id, nil
	}
	if uint64(len(d.names)) >= d.limit {
		return 0, fmt.Errorf("role %q: %w", role, ErrRoleIDExhausted)
	}
	id := uint32(len(d.names))
	d.ids[role] = id
	d.names = append(d.names, role)
	return id, nil
}

// Name returns the role string of id.
func (d *RoleDictionary) Name(id uint32) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.names) {
		return "", false
	}
	return d.names[id], true
}

// Len is the number of assigned role ids.
func (d *RoleDictionary) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names)
}

// Written is the number of persisted role ids; every id below is durable.
func (d *RoleDictionary) Written() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Pending returns the number of roles assigned but not yet persisted.
func (d *RoleDictionary) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names) - d.written
}

// Flush persists every role assigned since the last flush.
func (d *RoleDictionary) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.written == len(d.names) {
		return nil
	}
	pending := make([]Role, 0, len(d.names)-d.written)
	for i := d.written; i < len(d.names); i++ {
		pending = append(pending, Role{ID: uint32(i), Name: d.names[i]})
	}
	if err := d.store.AppendRoles(ctx, pending); err != nil {
		return fmt.Errorf("failed to persist %d roles: %w", len(pending), err)
	}
	d.written = len(d.names)
	return nil
}

// Check fails with ErrRoleNotFlushed unless id is persisted.
func (d *RoleDictionary) Check(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= d.written {
		return fmt.Errorf("role id %d (%d written): %w", id, d.written, ErrRoleNotFlushed)
	}
	return nil
}
