// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package repokeeper assembles the repository managers, event bus, search
// index and health checks into a single Keeper.
package repokeeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/repokeeper/backend/git"
	"github.com/poiesic/repokeeper/config"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/health"
	"github.com/poiesic/repokeeper/index"
	"github.com/poiesic/repokeeper/metrics"
	"github.com/poiesic/repokeeper/namespace"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/repository"
	"github.com/poiesic/repokeeper/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrConfigRequired is returned by Open when no configuration is given.
var ErrConfigRequired = errors.New("config is required")

const poolDrainTimeout = 5 * time.Second

type Keeper struct {
	stores       *badger.Stores
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	pool         *ants.Pool
	bus          *event.Bus
	oracle       *permission.CedarOracle
	repositories *repository.Manager
	namespaces   *namespace.Manager
	post         *health.PostProcessor
	checker      *health.Checker
	scheduler    *health.Scheduler
	synchronizer *index.Synchronizer
	searcher     *index.Searcher
	git          *git.Backend
	logger       *slog.Logger
}

// Option configures a Keeper.
type Option func(*keeperOptions)

type keeperOptions struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	progress io.Writer
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *keeperOptions) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// WithRegistry sets the prometheus registry metrics are registered with.
// Default is a fresh registry owned by the Keeper.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *keeperOptions) {
		if registry != nil {
			o.registry = registry
		}
	}
}

// WithProgress reports full reindex progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *keeperOptions) {
		o.progress = w
	}
}

// Open validates cfg, opens storage and wires every component. Indexes whose
// stored version is out of date are rebuilt before Open returns.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Keeper, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	options := &keeperOptions{
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(options)
	}

	k := &Keeper{
		registry: options.registry,
		logger:   options.logger,
	}
	if err := k.open(ctx, cfg, options); err != nil {
		if cerr := k.Close(); cerr != nil {
			k.logger.Error("error closing partially opened keeper", "err", cerr)
		}
		return nil, err
	}
	return k, nil
}

func (k *Keeper) open(ctx context.Context, cfg *config.Config, options *keeperOptions) error {
	backend, err := badger.OpenBackend(cfg.DataDir, cfg.InMemory)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	k.stores = badger.NewStores(backend)

	if k.metrics, err = metrics.New(k.registry); err != nil {
		return err
	}

	if k.pool, err = ants.NewPool(cfg.WorkerPoolSize); err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	k.bus, err = event.NewBus(
		event.WithPoolSize(cfg.EventPoolSize),
		event.WithMetrics(k.metrics),
		event.WithLogger(k.logger),
	)
	if err != nil {
		return err
	}

	oracleOpts := []permission.Option{permission.WithLogger(k.logger)}
	if cfg.PolicyFile != "" {
		oracleOpts = append(oracleOpts, permission.WithPolicyFile(cfg.PolicyFile))
	}
	if k.oracle, err = permission.NewCedarOracle(oracleOpts...); err != nil {
		return err
	}

	// The git backend subscribes first so a failed init vetoes the create
	// before anything else hears about it.
	if k.git, err = git.New(cfg.RepositoryDir, k.logger); err != nil {
		return err
	}
	if err := k.git.Register(k.bus); err != nil {
		return err
	}
	// An in-memory store knows no repositories, so nothing on disk is orphaned.
	if !cfg.InMemory {
		if _, err := k.git.Prune(ctx, k.stores.Repositories); err != nil {
			return err
		}
	}

	if k.post, err = health.NewPostProcessor(k.bus, k.metrics, k.logger); err != nil {
		return err
	}
	if err := k.post.Register(); err != nil {
		return err
	}

	k.repositories, err = repository.NewManager(k.stores.Repositories, k.bus, k.oracle,
		repository.WithPostProcessor(k.post),
		repository.WithLogger(k.logger),
	)
	if err != nil {
		return err
	}

	k.namespaces, err = namespace.NewManager(k.repositories, k.stores.Namespaces, k.bus, k.oracle,
		namespace.WithLogger(k.logger),
	)
	if err != nil {
		return err
	}
	if err := k.namespaces.Register(); err != nil {
		return err
	}

	k.synchronizer, err = index.NewSynchronizer(k.stores.Index, k.stores.IndexLog, k.stores.Repositories, k.pool,
		index.WithUpdateBudget(cfg.IndexUpdateBudget),
		index.WithUpdateCapacity(int64(cfg.ExecutorCapacity)),
		index.WithMetrics(k.metrics),
		index.WithProgress(options.progress),
		index.WithLogger(k.logger),
	)
	if err != nil {
		return err
	}
	if err := k.synchronizer.Register(k.bus); err != nil {
		return err
	}
	if err := k.synchronizer.Start(ctx); err != nil {
		return fmt.Errorf("failed to synchronize indexes: %w", err)
	}

	if k.searcher, err = index.NewSearcher(k.stores.Index, k.oracle, k.logger); err != nil {
		return err
	}

	fullChecks := health.NewFullCheckRegistry()
	fullChecks.Register(git.Type, k.git)
	k.checker, err = health.NewChecker(k.stores.Repositories, k.oracle, k.post,
		health.WithLightCheck(health.NamingCheck),
		health.WithLightCheck(health.TypeCheck(cfg.SupportedTypes...)),
		health.WithFullChecks(fullChecks),
		health.WithPool(k.pool),
		health.WithCapacity(int64(cfg.ExecutorCapacity)),
		health.WithMetrics(k.metrics),
		health.WithLogger(k.logger),
	)
	if err != nil {
		return err
	}

	if cfg.HealthSchedule != "" {
		k.scheduler, err = health.NewScheduler(k.checker, cfg.HealthSchedule, cfg.CheckAllBudget, k.logger)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close stops the scheduler, drains background work and pending events and
// closes storage. It is safe to call on a partially opened Keeper.
func (k *Keeper) Close() error {
	if k.scheduler != nil {
		k.scheduler.Stop()
	}
	// Queued checks still post health events, so the pool drains before the bus closes.
	if k.pool != nil {
		if err := k.pool.ReleaseTimeout(poolDrainTimeout); err != nil {
			k.logger.Warn("worker pool did not drain", "err", err)
		}
	}
	if k.bus != nil {
		k.bus.Close()
	}
	if k.stores != nil {
		if err := k.stores.Backend.Close(); err != nil {
			k.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}

// Bus returns the event bus for additional subscribers.
func (k *Keeper) Bus() *event.Bus {
	return k.bus
}

func (k *Keeper) Repositories() *repository.Manager {
	return k.repositories
}

func (k *Keeper) Namespaces() *namespace.Manager {
	return k.namespaces
}

func (k *Keeper) Checker() *health.Checker {
	return k.checker
}

// Scheduler returns nil when no health schedule is configured.
func (k *Keeper) Scheduler() *health.Scheduler {
	return k.scheduler
}

func (k *Keeper) Synchronizer() *index.Synchronizer {
	return k.synchronizer
}

func (k *Keeper) Searcher() *index.Searcher {
	return k.searcher
}

func (k *Keeper) Oracle() permission.Oracle {
	return k.oracle
}

func (k *Keeper) Git() *git.Backend {
	return k.git
}

// Registry returns the registry holding the Keeper's metrics.
func (k *Keeper) Registry() *prometheus.Registry {
	return k.registry
}

// Receive posts hook events for a push to the git repository repo.
func (k *Keeper) Receive(ctx context.Context, kind event.Kind, id core.ID, updates git.RefUpdates) error {
	found, err := k.repositories.Get(ctx, id)
	if err != nil {
		return err
	}
	return git.Receive(ctx, k.repositories, kind, found.Repository, updates)
}
