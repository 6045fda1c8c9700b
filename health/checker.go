package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/executor"
	"github.com/poiesic/repokeeper/metrics"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage"
)

// Checker runs health checks and hands their results to the PostProcessor.
type Checker struct {
	store    storage.RepositoryStore
	oracle   permission.Oracle
	post     *PostProcessor
	light    []LightCheck
	full     *FullCheckRegistry
	pool     executor.Pool
	capacity int64 // <0 means unbounded
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker) error

// WithLightCheck appends a light check. Checks run in the order added.
func WithLightCheck(check LightCheck) Option {
	return func(c *Checker) error {
		c.light = append(c.light, check)
		return nil
	}
}

// WithFullChecks sets the registry of backend full checks.
func WithFullChecks(registry *FullCheckRegistry) Option {
	return func(c *Checker) error {
		if registry != nil {
			c.full = registry
		}
		return nil
	}
}

// WithPool sets the pool CheckAll queues checks on once its budget is spent.
func WithPool(pool executor.Pool) Option {
	return func(c *Checker) error {
		c.pool = pool
		return nil
	}
}

// WithCapacity bounds the number of checks CheckAll queues. Negative means
// unbounded.
func WithCapacity(n int64) Option {
	return func(c *Checker) error {
		c.capacity = n
		return nil
	}
}

// WithMetrics records check runs.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) error {
		c.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewChecker creates a Checker.
func NewChecker(store storage.RepositoryStore, oracle permission.Oracle, post *PostProcessor, opts ...Option) (*Checker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if oracle == nil {
		return nil, ErrOracleRequired
	}
	if post == nil {
		return nil, ErrPostProcessorRequired
	}
	c := &Checker{
		store:    store,
		oracle:   oracle,
		post:     post,
		full:     NewFullCheckRegistry(),
		capacity: -1,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LightCheck runs the light checks on the repository with id.
//
// The permission is checked on the bare id before the repository is loaded, so
// an unauthorized caller cannot tell whether the id exists.
func (c *Checker) LightCheck(ctx context.Context, id core.ID) (core.EnrichedRepository, error) {
	repo, err := c.load(ctx, id)
	if err != nil {
		return core.EnrichedRepository{}, err
	}
	return c.lightCheck(ctx, repo), nil
}

// FullCheck runs the light checks and, if the repository type has one, the
// backend full check on the repository with id.
func (c *Checker) FullCheck(ctx context.Context, id core.ID) (core.EnrichedRepository, error) {
	repo, err := c.load(ctx, id)
	if err != nil {
		return core.EnrichedRepository{}, err
	}
	return c.fullCheck(ctx, repo)
}

// LightCheckRepository is LightCheck for an already loaded repository.
func (c *Checker) LightCheckRepository(ctx context.Context, repo core.Repository) (core.EnrichedRepository, error) {
	if err := c.oracle.Check(ctx, permission.RepositoryHealthCheck(repo.ID.String())); err != nil {
		return core.EnrichedRepository{}, err
	}
	return c.lightCheck(ctx, repo), nil
}

// FullCheckRepository is FullCheck for an already loaded repository.
func (c *Checker) FullCheckRepository(ctx context.Context, repo core.Repository) (core.EnrichedRepository, error) {
	if err := c.oracle.Check(ctx, permission.RepositoryHealthCheck(repo.ID.String())); err != nil {
		return core.EnrichedRepository{}, err
	}
	return c.fullCheck(ctx, repo)
}

func (c *Checker) load(ctx context.Context, id core.ID) (core.Repository, error) {
	if err := c.oracle.Check(ctx, permission.RepositoryHealthCheck(id.String())); err != nil {
		return core.Repository{}, err
	}
	repo, err := c.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Repository{}, core.NotFound("repository", id.String())
	}
	if err != nil {
		return core.Repository{}, fmt.Errorf("failed to load repository: %w", err)
	}
	return repo, nil
}

func (c *Checker) runLight(repo core.Repository) core.HealthCheckResult {
	result := core.Healthy()
	for _, check := range c.light {
		result = result.Merge(check.Check(repo))
	}
	return result
}

func (c *Checker) lightCheck(ctx context.Context, repo core.Repository) core.EnrichedRepository {
	result := c.runLight(repo)
	c.metrics.HealthChecked(repo.ID.String(), "light", len(result.Failures))
	return c.post.SetCheckResults(ctx, repo, result.Failures)
}

func (c *Checker) fullCheck(ctx context.Context, repo core.Repository) (core.EnrichedRepository, error) {
	result := c.runLight(repo)
	if check, ok := c.full.Lookup(repo.Type); ok {
		full, err := check.FullCheck(ctx, repo)
		if err != nil {
			return core.EnrichedRepository{}, fmt.Errorf("full check of %s failed: %w", repo.NamespaceAndName(), err)
		}
		result = result.Merge(full)
	}
	c.metrics.HealthChecked(repo.ID.String(), "full", len(result.Failures))
	return c.post.SetCheckResults(ctx, repo, result.Failures), nil
}

// CheckAll runs the full check on every repository the caller may check.
// Checks run inline until budget is spent and are queued afterwards; checks
// that cannot be queued are skipped. The result reports whether every check
// ran inline, i.e. whether the recorded results are complete on return.
func (c *Checker) CheckAll(ctx context.Context, budget time.Duration) (bool, error) {
	if c.pool == nil {
		return false, ErrPoolRequired
	}
	repos, err := c.store.GetAll(ctx, func(r core.Repository) bool {
		return c.oracle.IsPermitted(ctx, permission.RepositoryHealthCheck(r.ID.String()))
	})
	if err != nil {
		return false, fmt.Errorf("failed to list repositories: %w", err)
	}

	opts := []executor.Option{
		executor.WithName("health"),
		executor.WithMetrics(c.metrics),
		executor.WithLogger(c.logger),
	}
	if c.capacity >= 0 {
		opts = append(opts, executor.WithCapacity(c.capacity))
	}
	bounded, err := executor.NewWithBudget(c.pool, budget, opts...)
	if err != nil {
		return false, err
	}

	asyncCtx := context.WithoutCancel(ctx)
	for _, repo := range repos {
		bounded.Execute(func(et executor.ExecutionType) {
			runCtx := ctx
			if et == executor.Asynchronous {
				runCtx = asyncCtx
			}
			if _, err := c.fullCheck(runCtx, repo); err != nil {
				c.logger.Warn("health check failed",
					"repository", repo.NamespaceAndName(),
					"err", err)
			}
		}, func() {
			c.logger.Info("health check skipped, checker overloaded",
				"repository", repo.NamespaceAndName())
		})
	}
	return bounded.HasExecutedAllSynchronously(), nil
}
