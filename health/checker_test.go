package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullCheckFunc func(ctx context.Context, repo core.Repository) (core.HealthCheckResult, error)

func (f fullCheckFunc) FullCheck(ctx context.Context, repo core.Repository) (core.HealthCheckResult, error) {
	return f(ctx, repo)
}

type fixture struct {
	checker *Checker
	post    *PostProcessor
	stores  *badger.Stores
	bus     *event.Bus
	events  *healthEvents
}

type healthEvents struct {
	mu     sync.Mutex
	events []event.HealthCheckEvent
}

func (h *healthEvents) all() []event.HealthCheckEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.HealthCheckEvent(nil), h.events...)
}

func setup(t *testing.T, opts ...Option) fixture {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Backend.Close() })

	bus, err := event.NewBus()
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	recorded := &healthEvents{}
	require.NoError(t, event.Subscribe(bus, event.HealthChecks, "recorder", func(ctx context.Context, e event.HealthCheckEvent) error {
		recorded.mu.Lock()
		defer recorded.mu.Unlock()
		recorded.events = append(recorded.events, e)
		return nil
	}))

	oracle, err := permission.NewCedarOracle()
	require.NoError(t, err)
	post, err := NewPostProcessor(bus, nil, nil)
	require.NoError(t, err)
	require.NoError(t, post.Register())

	checker, err := NewChecker(stores.Repositories, oracle, post, opts...)
	require.NoError(t, err)
	return fixture{checker: checker, post: post, stores: stores, bus: bus, events: recorded}
}

func (f fixture) add(t *testing.T, repo core.Repository) core.Repository {
	t.Helper()
	require.NoError(t, f.stores.Repositories.Add(context.Background(), repo))
	return repo
}

func admin() context.Context {
	return permission.WithSubject(context.Background(), permission.Subject{Name: "zaphod", Admin: true})
}

func heartOfGold() core.Repository {
	return core.Repository{ID: "42", Namespace: "hitchhiker", Name: "heart-of-gold", Type: "git"}
}

func TestLightCheck_UnknownRepository(t *testing.T) {
	f := setup(t, WithLightCheck(NamingCheck))

	_, err := f.checker.LightCheck(admin(), "unknown")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLightCheck_PermissionBeforeLookup(t *testing.T) {
	f := setup(t, WithLightCheck(NamingCheck))
	f.add(t, heartOfGold())
	denied := permission.WithSubject(context.Background(), permission.Subject{Name: "arthur"})

	_, err := f.checker.LightCheck(denied, "unknown")
	assert.ErrorIs(t, err, core.ErrAuthorization)

	_, err = f.checker.LightCheck(denied, "42")
	assert.ErrorIs(t, err, core.ErrAuthorization)

	_, err = f.checker.FullCheck(denied, "unknown")
	assert.ErrorIs(t, err, core.ErrAuthorization)

	_, err = f.checker.LightCheckRepository(denied, heartOfGold())
	assert.ErrorIs(t, err, core.ErrAuthorization)

	allowed := permission.WithSubject(context.Background(), permission.Subject{Name: "ford", Granted: []string{permission.RepositoryHealthCheck("42")}})
	_, err = f.checker.LightCheck(allowed, "42")
	assert.NoError(t, err)
}

func TestLightCheck_RunsEveryCheckInOrder(t *testing.T) {
	failing := func(id string) LightCheck {
		return LightCheckFunc(func(core.Repository) core.HealthCheckResult {
			return core.Unhealthy(core.HealthCheckFailure{ID: id})
		})
	}
	f := setup(t,
		WithLightCheck(failing("first")),
		WithLightCheck(NamingCheck),
		WithLightCheck(failing("second")),
	)
	f.add(t, heartOfGold())

	repo, err := f.checker.LightCheck(admin(), "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, core.FailureIDs(repo.HealthCheckFailures))
	assert.False(t, repo.Healthy())
}

func TestFullCheck(t *testing.T) {
	registry := NewFullCheckRegistry()
	var fullRuns int
	registry.Register("git", fullCheckFunc(func(ctx context.Context, repo core.Repository) (core.HealthCheckResult, error) {
		fullRuns++
		return core.Unhealthy(core.HealthCheckFailure{ID: "git-broken"}), nil
	}))
	f := setup(t, WithLightCheck(TypeCheck("git")), WithFullChecks(registry))
	f.add(t, heartOfGold())
	svn := f.add(t, core.Repository{ID: "43", Namespace: "hitchhiker", Name: "bistromath", Type: "svn"})

	repo, err := f.checker.FullCheck(admin(), "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"git-broken"}, core.FailureIDs(repo.HealthCheckFailures))
	assert.Equal(t, 1, fullRuns)

	// No full check registered for svn: only the light checks run.
	repo, err = f.checker.FullCheckRepository(admin(), svn)
	require.NoError(t, err)
	assert.Len(t, repo.HealthCheckFailures, 1)
	assert.Equal(t, 1, fullRuns)

	// Light checks alone never touch the backend.
	_, err = f.checker.LightCheck(admin(), "42")
	require.NoError(t, err)
	assert.Equal(t, 1, fullRuns)
}

func TestFullCheck_BackendError(t *testing.T) {
	registry := NewFullCheckRegistry()
	registry.Register("git", fullCheckFunc(func(ctx context.Context, repo core.Repository) (core.HealthCheckResult, error) {
		return core.HealthCheckResult{}, errors.New("disk on fire")
	}))
	f := setup(t, WithFullChecks(registry))
	f.add(t, heartOfGold())

	_, err := f.checker.FullCheck(admin(), "42")
	assert.ErrorContains(t, err, "disk on fire")
	assert.Empty(t, f.events.all())
}

func newPool(t *testing.T) *ants.Pool {
	t.Helper()
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return pool
}

func TestCheckAll_WithinBudget(t *testing.T) {
	f := setup(t, WithLightCheck(TypeCheck("git")), WithPool(newPool(t)))
	f.add(t, heartOfGold())
	f.add(t, core.Repository{ID: "43", Namespace: "hitchhiker", Name: "bistromath", Type: "svn"})

	complete, err := f.checker.CheckAll(admin(), time.Hour)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Len(t, f.events.all(), 2)

	enriched := f.post.PostProcess(core.Repository{ID: "43"})
	assert.Len(t, enriched.HealthCheckFailures, 1)
}

func TestCheckAll_OverBudgetWithoutCapacitySkips(t *testing.T) {
	f := setup(t, WithPool(newPool(t)), WithCapacity(0))
	f.add(t, heartOfGold())

	complete, err := f.checker.CheckAll(admin(), -time.Second)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Empty(t, f.events.all())
}

func TestCheckAll_OverBudgetQueues(t *testing.T) {
	f := setup(t, WithPool(newPool(t)))
	f.add(t, heartOfGold())

	complete, err := f.checker.CheckAll(admin(), -time.Second)
	require.NoError(t, err)
	assert.False(t, complete)
	require.Eventually(t, func() bool {
		return len(f.events.all()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCheckAll_OnlyPermittedRepositories(t *testing.T) {
	f := setup(t, WithPool(newPool(t)))
	f.add(t, heartOfGold())
	f.add(t, core.Repository{ID: "43", Namespace: "hitchhiker", Name: "bistromath", Type: "git"})
	ctx := permission.WithSubject(context.Background(), permission.Subject{Name: "ford", Granted: []string{permission.RepositoryHealthCheck("43")}})

	_, err := f.checker.CheckAll(ctx, time.Hour)
	require.NoError(t, err)
	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, core.ID("43"), events[0].Repository.ID)
}

func TestCheckAll_RequiresPool(t *testing.T) {
	f := setup(t)
	_, err := f.checker.CheckAll(admin(), time.Hour)
	assert.ErrorIs(t, err, ErrPoolRequired)
}
