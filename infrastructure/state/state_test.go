package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackendSaveLoad(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "autosave-1.dmsg", []byte("container-1")))

	data, err := backend.Load(ctx, "autosave-1.dmsg")
	require.NoError(t, err)
	require.Equal(t, []byte("container-1"), data)

	_, err = backend.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackendDelete(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "autosave-1.dmsg", []byte("container-1")))
	require.NoError(t, backend.Delete(ctx, "autosave-1.dmsg"))

	_, err := backend.Load(ctx, "autosave-1.dmsg")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, backend.Delete(ctx, "never-stored"))
}

func TestMemoryBackendListFiltersByPrefixOldestFirst(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "autosave-1.dmsg", []byte("a")))
	require.NoError(t, backend.Save(ctx, "autosave-2.dmsg", []byte("b")))
	require.NoError(t, backend.Save(ctx, "other-key", []byte("c")))

	keys, err := backend.List(ctx, "autosave-")
	require.NoError(t, err)
	require.Equal(t, []string{"autosave-1.dmsg", "autosave-2.dmsg"}, keys)
}

func TestMemoryBackendEvictsOldestBeyondRetention(t *testing.T) {
	backend := NewMemoryBackend(2)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "autosave-1.dmsg", []byte("a")))
	require.NoError(t, backend.Save(ctx, "autosave-2.dmsg", []byte("b")))
	require.NoError(t, backend.Save(ctx, "autosave-3.dmsg", []byte("c")))

	_, err := backend.Load(ctx, "autosave-1.dmsg")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := backend.List(ctx, "autosave-")
	require.NoError(t, err)
	require.Equal(t, []string{"autosave-2.dmsg", "autosave-3.dmsg"}, keys)
}

func TestMemoryBackendOverwriteRefreshesEvictionOrder(t *testing.T) {
	backend := NewMemoryBackend(2)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "autosave-1.dmsg", []byte("a")))
	require.NoError(t, backend.Save(ctx, "autosave-2.dmsg", []byte("b")))
	require.NoError(t, backend.Save(ctx, "autosave-1.dmsg", []byte("a2")))
	require.NoError(t, backend.Save(ctx, "autosave-3.dmsg", []byte("c")))

	_, err := backend.Load(ctx, "autosave-2.dmsg")
	require.ErrorIs(t, err, ErrNotFound)

	data, err := backend.Load(ctx, "autosave-1.dmsg")
	require.NoError(t, err)
	require.Equal(t, []byte("a2"), data)
}

func TestMemoryBackendCloseDiscardsEverything(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "autosave-1.dmsg", []byte("a")))
	require.NoError(t, backend.Close(ctx))

	_, err := backend.Load(ctx, "autosave-1.dmsg")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := backend.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)
}
