package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "repositories"), nil)
	require.NoError(t, err)
	return b
}

func heartOfGold() core.Repository {
	return core.Repository{ID: "42", Namespace: "hitchhiker", Name: "heart-of-gold", Type: Type}
}

func TestHandleRepositoryEvent_InitialisesAndRemoves(t *testing.T) {
	b := newBackend(t)
	repo := heartOfGold()
	ctx := context.Background()

	require.NoError(t, b.HandleRepositoryEvent(ctx, event.RepositoryEvent{Kind: event.BeforeCreate, Item: repo}))
	_, err := gogit.PlainOpen(b.Directory(repo))
	require.NoError(t, err)

	require.NoError(t, b.HandleRepositoryEvent(ctx, event.RepositoryEvent{Kind: event.Delete, Item: repo}))
	_, err = os.Stat(b.Directory(repo))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHandleRepositoryEvent_IgnoresOtherTypes(t *testing.T) {
	b := newBackend(t)
	repo := heartOfGold()
	repo.Type = "svn"

	require.NoError(t, b.HandleRepositoryEvent(context.Background(), event.RepositoryEvent{Kind: event.BeforeCreate, Item: repo}))
	_, err := os.Stat(b.Directory(repo))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRegister_InitFailureVetoesCreate(t *testing.T) {
	b := newBackend(t)
	bus, err := event.NewBus()
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	require.NoError(t, b.Register(bus))

	repo := heartOfGold()
	// A regular file where the repository directory should go.
	require.NoError(t, os.WriteFile(b.Directory(repo), []byte("not a directory"), 0o600))

	err = event.Post(context.Background(), bus, event.Repositories, event.RepositoryEvent{Kind: event.BeforeCreate, Item: repo})
	assert.ErrorIs(t, err, core.ErrVeto)
}

func failureIDs(t *testing.T, b *Backend, repo core.Repository) []string {
	t.Helper()
	result, err := b.FullCheck(context.Background(), repo)
	require.NoError(t, err)
	return core.FailureIDs(result.Failures)
}

func TestFullCheck(t *testing.T) {
	t.Run("empty repository is healthy", func(t *testing.T) {
		b := newBackend(t)
		repo := heartOfGold()
		require.NoError(t, b.initialise(repo))
		assert.Empty(t, failureIDs(t, b, repo))
	})

	t.Run("missing directory", func(t *testing.T) {
		b := newBackend(t)
		assert.Equal(t, []string{FailureNotFound}, failureIDs(t, b, heartOfGold()))
	})

	t.Run("not a repository", func(t *testing.T) {
		b := newBackend(t)
		repo := heartOfGold()
		require.NoError(t, os.MkdirAll(b.Directory(repo), 0o755))
		assert.Equal(t, []string{FailureUnreadable}, failureIDs(t, b, repo))
	})

	t.Run("head points to missing commit", func(t *testing.T) {
		b := newBackend(t)
		repo := heartOfGold()
		require.NoError(t, b.initialise(repo))
		r, err := gogit.PlainOpen(b.Directory(repo))
		require.NoError(t, err)
		head, err := r.Storer.Reference(plumbing.HEAD)
		require.NoError(t, err)
		missing := plumbing.NewHash("4242424242424242424242424242424242424242")
		require.NoError(t, r.Storer.SetReference(plumbing.NewHashReference(head.Target(), missing)))

		assert.Equal(t, []string{FailureHeadCommitMissing}, failureIDs(t, b, repo))
	})

	t.Run("cancelled context", func(t *testing.T) {
		b := newBackend(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := b.FullCheck(ctx, heartOfGold())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPrune_RemovesVetoedCreations(t *testing.T) {
	b := newBackend(t)
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Backend.Close() })
	bus, err := event.NewBus()
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	require.NoError(t, b.Register(bus))
	require.NoError(t, event.Subscribe(bus, event.Repositories, "quota", func(ctx context.Context, e event.RepositoryEvent) error {
		if e.Kind == event.BeforeCreate && e.Item.Name == "vetoed" {
			return errors.New("over quota")
		}
		return nil
	}))
	ctx := context.Background()

	kept := heartOfGold()
	require.NoError(t, event.Post(ctx, bus, event.Repositories, event.RepositoryEvent{Kind: event.BeforeCreate, Item: kept}))
	require.NoError(t, stores.Repositories.Add(ctx, kept))

	vetoed := core.Repository{ID: "43", Namespace: "hitchhiker", Name: "vetoed", Type: Type}
	err = event.Post(ctx, bus, event.Repositories, event.RepositoryEvent{Kind: event.BeforeCreate, Item: vetoed})
	require.ErrorIs(t, err, core.ErrVeto)
	// The backend initialised before the later subscriber vetoed.
	assert.DirExists(t, b.Directory(vetoed))

	unrelated := filepath.Join(b.baseDir, "towels")
	require.NoError(t, os.MkdirAll(unrelated, 0o755))

	removed, err := b.Prune(ctx, stores.Repositories)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{"43"}, removed)
	assert.NoDirExists(t, b.Directory(vetoed))
	assert.DirExists(t, b.Directory(kept))
	assert.DirExists(t, unrelated)
}

func TestNew_RequiresBaseDir(t *testing.T) {
	_, err := New("", nil)
	assert.ErrorIs(t, err, ErrBaseDirRequired)
}
