package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/pkg/registry"
)

type item struct {
	id    uint64
	label string
}

func idOf(i item) uint64 { return i.id }

func TestInsertKeepsAscendingOrder(t *testing.T) {
	r := registry.New(0, idOf)
	require.NoError(t, r.Insert(item{id: 5, label: "e"}))
	require.NoError(t, r.Insert(item{id: 1, label: "a"}))
	require.NoError(t, r.Insert(item{id: 3, label: "c"}))

	var ids []uint64
	r.Each(func(i item) { ids = append(ids, i.id) })
	require.Equal(t, []uint64{1, 3, 5}, ids)
}

func TestInsertRejectsDuplicate(t *testing.T) {
	r := registry.New(0, idOf)
	require.NoError(t, r.Insert(item{id: 1}))
	require.ErrorIs(t, r.Insert(item{id: 1}), registry.ErrDuplicateID)
}

func TestInsertRejectsOverCapacity(t *testing.T) {
	r := registry.New(1, idOf)
	require.NoError(t, r.Insert(item{id: 1}))
	require.ErrorIs(t, r.Insert(item{id: 2}), registry.ErrCapacity)
}

func TestFindAndRemove(t *testing.T) {
	r := registry.New(0, idOf)
	require.NoError(t, r.Insert(item{id: 7, label: "g"}))
	got, ok := r.Find(7)
	require.True(t, ok)
	require.Equal(t, "g", got.label)

	require.NoError(t, r.Remove(7))
	_, ok = r.Find(7)
	require.False(t, ok)
	require.ErrorIs(t, r.Remove(7), registry.ErrNotFound)
}
