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

package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/executor"
	"github.com/poiesic/repokeeper/metrics"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultUpdateBudget is how long an incremental update may run inline.
	DefaultUpdateBudget = 100 * time.Millisecond

	// DefaultUpdateCapacity bounds queued incremental updates.
	DefaultUpdateCapacity = 256

	// DefaultParallelism bounds concurrent full reindex runs.
	DefaultParallelism = 4
)

// Synchronizer keeps the index consistent with the entity store.
type Synchronizer struct {
	index        storage.IndexStore
	log          storage.IndexLogStore
	pool         executor.Pool
	types        map[string]Indexed
	order        []string
	repositories *Indexer[core.Repository]

	updateBudget   time.Duration
	updateCapacity int64 // <0 means unbounded
	parallelism    int
	maxAttempts    int
	retryDelay     time.Duration
	now            func() time.Time
	progress       io.Writer
	metrics        *metrics.Metrics
	logger         *slog.Logger

	mu sync.Mutex
	// rebuilding holds, per type under full reindex, the ids touched by
	// incremental updates since the reindex started.
	rebuilding map[string]map[string]struct{}
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer) error

// WithIndexer registers an additional indexed type.
func WithIndexer(ix Indexed) SyncOption {
	return func(s *Synchronizer) error {
		s.register(ix)
		return nil
	}
}

// WithUpdateBudget sets how long after an event its index update may still run
// inline. Later updates are queued on the pool.
func WithUpdateBudget(budget time.Duration) SyncOption {
	return func(s *Synchronizer) error {
		s.updateBudget = budget
		return nil
	}
}

// WithUpdateCapacity bounds the number of queued updates. Negative means
// unbounded. When the bound is reached the type is invalidated instead.
func WithUpdateCapacity(n int64) SyncOption {
	return func(s *Synchronizer) error {
		s.updateCapacity = n
		return nil
	}
}

// WithParallelism bounds how many types are reindexed at once.
func WithParallelism(n int) SyncOption {
	return func(s *Synchronizer) error {
		if n < 1 {
			n = 1
		}
		s.parallelism = n
		return nil
	}
}

// WithRetries sets how often a failed document write is attempted during a
// full reindex.
func WithRetries(maxAttempts int, baseDelay time.Duration) SyncOption {
	return func(s *Synchronizer) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.maxAttempts = maxAttempts
		s.retryDelay = baseDelay
		return nil
	}
}

// WithClock replaces time.Now for update deadlines.
func WithClock(now func() time.Time) SyncOption {
	return func(s *Synchronizer) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// WithProgress reports full reindex progress to w.
func WithProgress(w io.Writer) SyncOption {
	return func(s *Synchronizer) error {
		s.progress = w
		return nil
	}
}

// WithMetrics records index updates and reindex durations.
func WithMetrics(m *metrics.Metrics) SyncOption {
	return func(s *Synchronizer) error {
		s.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) SyncOption {
	return func(s *Synchronizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSynchronizer creates a Synchronizer for repositories and any types added
// with WithIndexer.
func NewSynchronizer(index storage.IndexStore, log storage.IndexLogStore, repositories storage.RepositoryStore, pool executor.Pool, opts ...SyncOption) (*Synchronizer, error) {
	if index == nil {
		return nil, ErrIndexStoreRequired
	}
	if log == nil {
		return nil, ErrIndexLogRequired
	}
	if pool == nil {
		return nil, ErrPoolRequired
	}
	s := &Synchronizer{
		index:          index,
		log:            log,
		pool:           pool,
		types:          make(map[string]Indexed),
		updateBudget:   DefaultUpdateBudget,
		updateCapacity: DefaultUpdateCapacity,
		parallelism:    DefaultParallelism,
		maxAttempts:    3,
		retryDelay:     10 * time.Millisecond,
		now:            time.Now,
		logger:         slog.Default(),
		rebuilding:     make(map[string]map[string]struct{}),
	}
	if repositories != nil {
		s.repositories = NewRepositoryIndexer(repositories)
		s.register(s.repositories)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Synchronizer) register(ix Indexed) {
	if _, ok := s.types[ix.IndexedType()]; !ok {
		s.order = append(s.order, ix.IndexedType())
	}
	s.types[ix.IndexedType()] = ix
}

// Register subscribes the Synchronizer to repository events.
func (s *Synchronizer) Register(bus *event.Bus) error {
	if s.repositories == nil {
		return nil
	}
	return event.Subscribe(bus, event.Repositories, "index-synchronizer", s.HandleRepositoryEvent)
}

// Start reindexes every type whose stored version is absent or lower than the
// current one. Types already up to date are not touched.
func (s *Synchronizer) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, name := range s.order {
		ix := s.types[name]
		g.Go(func() error {
			upToDate, err := s.upToDate(ctx, ix)
			if err != nil {
				return err
			}
			if upToDate {
				s.logger.Debug("index up to date", "type", name, "version", ix.IndexVersion())
				return nil
			}
			return s.reindex(ctx, ix)
		})
	}
	return g.Wait()
}

// Reindex rebuilds the projection of docType regardless of its stored version.
func (s *Synchronizer) Reindex(ctx context.Context, docType string) error {
	ix, ok := s.types[docType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, docType)
	}
	return s.reindex(ctx, ix)
}

// Types returns the registered document types in registration order.
func (s *Synchronizer) Types() []string {
	return append([]string(nil), s.order...)
}

func (s *Synchronizer) upToDate(ctx context.Context, ix Indexed) (bool, error) {
	entry, err := s.log.Get(ctx, ix.IndexedType())
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read index log for %s: %w", ix.IndexedType(), err)
	}
	return entry.Version >= ix.IndexVersion(), nil
}

// reindex runs with administrative rights: the projection must contain every
// entity, not only those the caller can see.
//
// Documents are cleared before entities are loaded, so updates arriving
// before the load are part of the snapshot. Ids updated while the snapshot is
// written are reloaded afterwards, before the version is recorded.
func (s *Synchronizer) reindex(ctx context.Context, ix Indexed) error {
	name := ix.IndexedType()
	start := time.Now()
	s.logger.Info("full reindex started", "type", name, "version", ix.IndexVersion())

	s.beginRebuild(name)
	defer s.endRebuild(name)

	err := permission.RunAsAdmin(ctx, func(ctx context.Context) error {
		handle, err := s.index.Open(ctx)
		if err != nil {
			return fmt.Errorf("failed to open index: %w", err)
		}
		defer handle.Close()

		if err := handle.DeleteByType(ctx, name); err != nil {
			return fmt.Errorf("failed to clear %s documents: %w", name, err)
		}
		docs, err := ix.AllDocuments(ctx)
		if err != nil {
			return fmt.Errorf("failed to load %s entities: %w", name, err)
		}

		p := newProgress(s.progress, name, len(docs), 100)
		for _, doc := range docs {
			err := retryWithBackoff(ctx, s.logger, func() error {
				return handle.Store(ctx, doc)
			}, s.maxAttempts, s.retryDelay)
			if err != nil {
				return fmt.Errorf("failed to store %s document %s: %w", name, doc.ID, err)
			}
			p.increment()
		}
		p.finish()

		for _, id := range s.endRebuild(name) {
			if _, err := s.write(ctx, ix, id, event.Modify); err != nil {
				return fmt.Errorf("failed to refresh %s document %s: %w", name, id, err)
			}
		}

		// Written last so an interrupted run is repeated on the next start.
		return s.log.Put(ctx, core.IndexLogEntry{Type: name, Version: ix.IndexVersion()})
	})
	if err != nil {
		s.logger.Error("full reindex failed", "type", name, "err", err)
		return err
	}
	s.metrics.Reindexed(name, time.Since(start))
	s.logger.Info("full reindex finished", "type", name, "duration", time.Since(start))
	return nil
}

func (s *Synchronizer) beginRebuild(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rebuilding[name]; !ok {
		s.rebuilding[name] = make(map[string]struct{})
	}
}

// endRebuild stops tracking name and returns the ids touched meanwhile.
func (s *Synchronizer) endRebuild(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := s.rebuilding[name]
	delete(s.rebuilding, name)
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Synchronizer) touch(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if touched, ok := s.rebuilding[name]; ok {
		touched[id] = struct{}{}
	}
}

// HandleRepositoryEvent applies a repository change to the index. Pre events
// are ignored. Errors are logged, never returned.
func (s *Synchronizer) HandleRepositoryEvent(ctx context.Context, e event.RepositoryEvent) error {
	switch e.Kind {
	case event.Create, event.Modify, event.Delete:
	default:
		return nil
	}
	s.update(ctx, s.repositories, e.Item.ID.String(), e.Kind, e.At)
	return nil
}

// update applies one change within the update budget measured from at, the
// time the change was requested. A zero at means now.
func (s *Synchronizer) update(ctx context.Context, ix Indexed, id string, kind event.Kind, at time.Time) {
	if at.IsZero() {
		at = s.now()
	}
	opts := []executor.Option{
		executor.WithName("index"),
		executor.WithClock(s.now),
		executor.WithMetrics(s.metrics),
		executor.WithLogger(s.logger),
	}
	if s.updateCapacity >= 0 {
		opts = append(opts, executor.WithCapacity(s.updateCapacity))
	}
	bounded, err := executor.New(s.pool, at.Add(s.updateBudget), opts...)
	if err != nil {
		s.logger.Error("failed to create index executor", "err", err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	bounded.Execute(func(executor.ExecutionType) {
		s.apply(ctx, ix, id, kind)
	}, func() {
		// A reindex in progress would overwrite the invalidation; it reloads
		// the id instead.
		s.touch(ix.IndexedType(), id)
		s.invalidate(ctx, ix)
	})
}

// apply writes one document. Creations and modifications reload the entity so
// an update that runs late never resurrects a deleted entity.
func (s *Synchronizer) apply(ctx context.Context, ix Indexed, id string, kind event.Kind) {
	name := ix.IndexedType()
	// Marked before the write so a concurrent reindex either reloads the id
	// or finishes its own writes first.
	s.touch(name, id)
	var operation string
	err := permission.RunAsAdmin(ctx, func(ctx context.Context) error {
		var err error
		operation, err = s.write(ctx, ix, id, kind)
		return err
	})
	s.metrics.IndexUpdate(name, operation, err)
	if err != nil {
		s.logger.Warn("index update failed",
			"type", name,
			"id", id,
			"kind", kind,
			"err", err)
	}
}

// write stores the current document for id, or deletes it when the entity is
// gone or kind is Delete. It returns the operation performed.
func (s *Synchronizer) write(ctx context.Context, ix Indexed, id string, kind event.Kind) (string, error) {
	name := ix.IndexedType()
	var doc storage.Document
	found := false
	if kind != event.Delete {
		var err error
		doc, found, err = ix.CurrentDocument(ctx, id)
		if err != nil {
			return "store", err
		}
	}

	handle, err := s.index.Open(ctx)
	if err != nil {
		return "store", err
	}
	defer handle.Close()

	if !found {
		return "delete", handle.Delete(ctx, name, id)
	}
	return "store", handle.Store(ctx, doc)
}

// invalidate drops the stored version so the next start rebuilds the type.
func (s *Synchronizer) invalidate(ctx context.Context, ix Indexed) {
	name := ix.IndexedType()
	if err := s.log.Delete(ctx, name); err != nil {
		s.logger.Error("failed to invalidate index", "type", name, "err", err)
		return
	}
	s.logger.Warn("index update dropped, full reindex scheduled for next start", "type", name)
}
