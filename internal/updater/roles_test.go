package updater

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleDictionary(t *testing.T) {
	ctx := context.Background()
	st := &MemRoleStore{}
	d, err := NewRoleDictionary(ctx, st, 0)
	require.NoError(t, err)

	outer, err := d.ID("outer")
	require.NoError(t, err)
	inner, err := d.ID("inner")
	require.NoError(t, err)
	again, err := d.ID("outer")
	require.NoError(t, err)

	assert.Equal(t, uint32(0), outer)
	assert.Equal(t, uint32(1), inner)
	assert.Equal(t, outer, again)
	assert.Equal(t, 2, d.Pending())
	assert.ErrorIs(t, d.Check(inner), ErrRoleNotFlushed)

	require.NoError(t, d.Flush(ctx))
	assert.Zero(t, d.Pending())
	assert.Equal(t, 2, d.Written())
	assert.NoError(t, d.Check(inner))

	reloaded, err := NewRoleDictionary(ctx, st, 0)
	require.NoError(t, err)
	name, ok := reloaded.Name(1)
	assert.True(t, ok)
	assert.Equal(t, "inner", name)
	id, err := reloaded.ID("outer")
	require.NoError(t, err)
	assert.Equal(t, outer, id)
	id, err = reloaded.ID("label")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id, "ids are never reused")
}

func TestRoleDictionaryLimit(t *testing.T) {
	d, err := NewRoleDictionary(context.Background(), &MemRoleStore{}, 1)
	require.NoError(t, err)
	_, err = d.ID("outer")
	require.NoError(t, err)
	_, err = d.ID("inner")
	assert.ErrorIs(t, err, ErrRoleIDExhausted)
	_, err = d.ID("outer")
	assert.NoError(t, err, "known roles still resolve")
}

func TestRoleDictionaryRejectsSparseIDs(t *testing.T) {
	st := &MemRoleStore{roles: []Role{{ID: 0, Name: "outer"}, {ID: 5, Name: "inner"}}}
	_, err := NewRoleDictionary(context.Background(), st, 0)
	assert.Error(t, err)
}
