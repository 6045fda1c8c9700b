package repokeeper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/poiesic/repokeeper/backend/git"
	"github.com/poiesic/repokeeper/config"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openKeeper(t *testing.T, opts ...config.Option) *Keeper {
	t.Helper()
	base := []config.Option{
		config.WithInMemory(true),
		config.WithRepositoryDir(filepath.Join(t.TempDir(), "repositories")),
		config.WithLogLevel("error"),
	}
	k, err := Open(context.Background(), config.NewConfig(append(base, opts...)...))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, k.Close()) })
	return k
}

func admin() context.Context {
	return permission.WithSubject(context.Background(), permission.Subject{Name: "zaphod", Admin: true})
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	_, err = Open(context.Background(), config.NewConfig(config.WithWorkerPoolSize(0)))
	assert.ErrorIs(t, err, config.ErrInvalidPoolSize)

	_, err = Open(context.Background(), config.NewConfig(
		config.WithInMemory(true),
		config.WithRepositoryDir(t.TempDir()),
		config.WithPolicyFile(filepath.Join(t.TempDir(), "missing.cedar")),
	))
	assert.Error(t, err)
}

func TestKeeperWiring(t *testing.T) {
	k := openKeeper(t)
	ctx := admin()

	created, err := k.Repositories().Create(ctx, core.Repository{
		Namespace:   "hitchhiker",
		Name:        "heart-of-gold",
		Type:        git.Type,
		Description: "improbability drive",
	})
	require.NoError(t, err)

	t.Run("git repository initialised", func(t *testing.T) {
		assert.DirExists(t, k.Git().Directory(created))
	})

	t.Run("namespace claimed by creator", func(t *testing.T) {
		ns, err := k.Namespaces().Get(ctx, "hitchhiker")
		require.NoError(t, err)
		assert.Equal(t, []core.RepositoryPermission{{Name: "zaphod", Role: core.RoleOwner}}, ns.Permissions)
	})

	t.Run("indexed for search", func(t *testing.T) {
		hits, err := k.Searcher().Search(ctx, "repository", "improbability", 0)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, created.ID.String(), hits[0].Document.ID)
	})

	t.Run("full check healthy and metrics recorded", func(t *testing.T) {
		checked, err := k.Checker().FullCheck(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, checked.Healthy())
		families, err := k.Registry().Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})

	t.Run("unsupported type reported by light check", func(t *testing.T) {
		svn, err := k.Repositories().Create(ctx, core.Repository{Namespace: "hitchhiker", Name: "guide", Type: "svn"})
		require.NoError(t, err)
		checked, err := k.Checker().LightCheck(ctx, svn.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{core.FailureID("type", "svn")}, core.FailureIDs(checked.HealthCheckFailures))

		// The post processor remembers the failures for later reads.
		got, err := k.Repositories().Get(ctx, svn.ID)
		require.NoError(t, err)
		assert.False(t, got.Healthy())
	})

	t.Run("receive fires hook events", func(t *testing.T) {
		var received []event.HookEvent
		require.NoError(t, event.Subscribe(k.Bus(), event.Hooks, "test", func(ctx context.Context, e event.HookEvent) error {
			received = append(received, e)
			return nil
		}))
		updates := git.RefUpdates{{
			Name: plumbing.NewBranchReferenceName("main"),
			New:  plumbing.NewHash("4242424242424242424242424242424242424242"),
		}}
		require.NoError(t, k.Receive(ctx, event.PostReceive, created.ID, updates))
		require.Len(t, received, 1)
		assert.Equal(t, created.ID, received[0].Repository.ID)
		assert.Equal(t, []string{"main"}, received[0].Branches.CreatedOrModified())
	})

	t.Run("pre receive rejection", func(t *testing.T) {
		rejected := errors.New("force push to main")
		require.NoError(t, event.Subscribe(k.Bus(), event.Hooks, "guard", func(ctx context.Context, e event.HookEvent) error {
			if e.Kind.IsPre() {
				return rejected
			}
			return nil
		}))
		err := k.Receive(ctx, event.PreReceive, created.ID, nil)
		assert.ErrorIs(t, err, core.ErrVeto)
		assert.ErrorIs(t, err, rejected)
	})

	t.Run("delete removes git repository and namespace", func(t *testing.T) {
		repos, err := k.Repositories().GetAll(ctx)
		require.NoError(t, err)
		for _, r := range repos {
			require.NoError(t, k.Repositories().Delete(ctx, r.ID))
		}
		assert.NoDirExists(t, k.Git().Directory(created))
		_, err = k.Namespaces().Get(ctx, "hitchhiker")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

// executorPath returns how often the named bounded executor took path.
func executorPath(t *testing.T, k *Keeper, name, path string) float64 {
	t.Helper()
	families, err := k.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "repokeeper_executor_executions_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["executor"] == name && labels["path"] == path {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestSlowCreateQueuesIndexUpdate(t *testing.T) {
	k := openKeeper(t, config.WithIndexUpdateBudget(10*time.Millisecond))
	ctx := admin()

	require.NoError(t, event.Subscribe(k.Bus(), event.Repositories, "slow", func(ctx context.Context, e event.RepositoryEvent) error {
		if e.Kind == event.BeforeCreate {
			time.Sleep(50 * time.Millisecond)
		}
		return nil
	}))

	_, err := k.Repositories().Create(ctx, core.Repository{Namespace: "hitchhiker", Name: "heart-of-gold", Type: git.Type, Description: "improbability drive"})
	require.NoError(t, err)

	assert.Equal(t, float64(1), executorPath(t, k, "index", "asynchronous"))
	assert.Zero(t, executorPath(t, k, "index", "synchronous"))
	require.Eventually(t, func() bool {
		hits, err := k.Searcher().Search(ctx, "repository", "improbability", 0)
		return err == nil && len(hits) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFastCreateIndexesInline(t *testing.T) {
	k := openKeeper(t, config.WithIndexUpdateBudget(time.Minute))
	ctx := admin()

	_, err := k.Repositories().Create(ctx, core.Repository{Namespace: "hitchhiker", Name: "heart-of-gold", Type: git.Type, Description: "improbability drive"})
	require.NoError(t, err)

	assert.Equal(t, float64(1), executorPath(t, k, "index", "synchronous"))
	hits, err := k.Searcher().Search(ctx, "repository", "improbability", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSchedulerConfigured(t *testing.T) {
	assert.Nil(t, openKeeper(t).Scheduler())
	assert.NotNil(t, openKeeper(t, config.WithHealthSchedule("@every 1h")).Scheduler())
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig(
		config.WithDataDir(filepath.Join(dir, "data")),
		config.WithRepositoryDir(filepath.Join(dir, "repositories")),
	)

	k, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	_, err = k.Repositories().Create(admin(), core.Repository{Namespace: "earth", Name: "planet", Type: git.Type})
	require.NoError(t, err)
	require.NoError(t, k.Close())

	k, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	defer k.Close()
	hits, err := k.Searcher().Search(admin(), "repository", "planet", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestOpenPrunesOrphanedRepositories(t *testing.T) {
	dir := t.TempDir()
	repositories := filepath.Join(dir, "repositories")
	cfg := config.NewConfig(
		config.WithDataDir(filepath.Join(dir, "data")),
		config.WithRepositoryDir(repositories),
		config.WithLogLevel("error"),
	)

	k, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	created, err := k.Repositories().Create(admin(), core.Repository{Namespace: "earth", Name: "planet", Type: git.Type})
	require.NoError(t, err)
	require.NoError(t, k.Close())

	orphan := filepath.Join(repositories, "vogon-poetry")
	_, err = gogit.PlainInit(orphan, true)
	require.NoError(t, err)

	k, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	defer k.Close()
	assert.NoDirExists(t, orphan)
	assert.DirExists(t, k.Git().Directory(created))
}
