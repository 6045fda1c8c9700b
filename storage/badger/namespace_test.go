package badger

import (
	"context"
	"testing"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceStore(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	_, err := stores.Namespaces.Get(ctx, "life")
	require.ErrorIs(t, err, storage.ErrNotFound)

	life := core.Namespace{
		Namespace:   "life",
		Permissions: []core.RepositoryPermission{{Name: "arthur", Role: core.RoleOwner}},
	}
	require.NoError(t, stores.Namespaces.Put(ctx, life))
	require.NoError(t, stores.Namespaces.Put(ctx, core.Namespace{Namespace: "universe"}))

	got, err := stores.Namespaces.Get(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, life, got)

	all, err := stores.Namespaces.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, stores.Namespaces.Delete(ctx, "life"))
	require.NoError(t, stores.Namespaces.Delete(ctx, "never-stored"))

	_, err = stores.Namespaces.Get(ctx, "life")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexLogStore(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	_, err := stores.IndexLog.Get(ctx, "repository")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, stores.IndexLog.Put(ctx, core.IndexLogEntry{Type: "repository", Version: 3}))

	entry, err := stores.IndexLog.Get(ctx, "repository")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Version)
	assert.False(t, entry.LastIndexed.IsZero())

	require.NoError(t, stores.IndexLog.Delete(ctx, "repository"))
	_, err = stores.IndexLog.Get(ctx, "repository")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
