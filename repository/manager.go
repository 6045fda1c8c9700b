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

// Package repository manages the lifecycle of repositories: permission checks,
// validation, persistence and the lifecycle events other subsystems derive
// their state from.
package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage"
)

const entityType = "repository"

// PostProcessor enriches repositories on the read path.
type PostProcessor interface {
	PostProcess(repo core.Repository) core.EnrichedRepository
}

type noopPostProcessor struct{}

func (noopPostProcessor) PostProcess(repo core.Repository) core.EnrichedRepository {
	return core.EnrichedRepository{Repository: repo, HealthCheckFailures: []core.HealthCheckFailure{}}
}

// Manager orchestrates repository CRUD and emits lifecycle events.
type Manager struct {
	store  storage.RepositoryStore
	bus    *event.Bus
	oracle permission.Oracle
	post   PostProcessor
	now    func() time.Time
	newID  func() core.ID
	logger *slog.Logger
}

// NewManager creates a repository Manager.
func NewManager(store storage.RepositoryStore, bus *event.Bus, oracle permission.Oracle, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if bus == nil {
		return nil, ErrBusRequired
	}
	if oracle == nil {
		return nil, ErrOracleRequired
	}
	m := &Manager{
		store:  store,
		bus:    bus,
		oracle: oracle,
		post:   noopPostProcessor{},
		now:    time.Now,
		newID:  func() core.ID { return core.ID(uuid.NewString()) },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Create validates and persists a new repository.
//
// The id and creation date are assigned here; caller-supplied values are
// ignored. A BeforeCreate subscriber error aborts creation and is returned.
func (m *Manager) Create(ctx context.Context, repo core.Repository) (core.Repository, error) {
	requested := m.now()
	if err := m.oracle.Check(ctx, permission.RepositoryCreate()); err != nil {
		return core.Repository{}, err
	}
	if err := core.ValidateRepository(&repo); err != nil {
		return core.Repository{}, err
	}
	exists, err := m.store.ContainsName(ctx, repo.Namespace, repo.Name)
	if err != nil {
		return core.Repository{}, fmt.Errorf("failed to check repository name: %w", err)
	}
	if exists {
		return core.Repository{}, core.AlreadyExists(entityType, repo.NamespaceAndName())
	}

	repo = repo.Clone()
	repo.ID = m.newID()
	repo.CreationDate = requested.UTC()
	repo.LastModified = time.Time{}

	if err := event.Post(ctx, m.bus, event.Repositories, event.RepositoryEvent{Kind: event.BeforeCreate, Item: repo.Clone(), At: requested}); err != nil {
		return core.Repository{}, err
	}
	if err := m.store.Add(ctx, repo); err != nil {
		return core.Repository{}, m.translate(err, repo.NamespaceAndName())
	}
	m.logger.Info("repository created",
		"repository", repo.NamespaceAndName(),
		"id", repo.ID,
		"type", repo.Type)
	m.postEvent(ctx, event.RepositoryEvent{Kind: event.Create, Item: repo.Clone(), At: requested})
	return repo, nil
}

// Modify replaces the mutable fields of an existing repository.
// ID, type and creation date are kept from the stored record.
func (m *Manager) Modify(ctx context.Context, repo core.Repository) (core.Repository, error) {
	requested := m.now()
	if err := m.oracle.Check(ctx, permission.RepositoryModify(repo.ID.String())); err != nil {
		return core.Repository{}, err
	}
	if err := core.ValidateRepository(&repo); err != nil {
		return core.Repository{}, err
	}
	old, err := m.store.Get(ctx, repo.ID)
	if err != nil {
		return core.Repository{}, m.translate(err, repo.ID.String())
	}
	if old.Namespace != repo.Namespace || old.Name != repo.Name {
		taken, err := m.store.ContainsName(ctx, repo.Namespace, repo.Name)
		if err != nil {
			return core.Repository{}, fmt.Errorf("failed to check repository name: %w", err)
		}
		if taken {
			return core.Repository{}, core.AlreadyExists(entityType, repo.NamespaceAndName())
		}
	}

	repo = repo.Clone()
	repo.Type = old.Type
	repo.CreationDate = old.CreationDate
	repo.LastModified = requested.UTC()

	previous := old.Clone()
	if err := event.Post(ctx, m.bus, event.Repositories, event.RepositoryEvent{Kind: event.BeforeModify, Item: repo.Clone(), OldItem: &previous, At: requested}); err != nil {
		return core.Repository{}, err
	}
	if err := m.store.Modify(ctx, repo); err != nil {
		return core.Repository{}, m.translate(err, repo.NamespaceAndName())
	}
	m.logger.Info("repository modified",
		"repository", repo.NamespaceAndName(),
		"id", repo.ID)
	previous = old.Clone()
	m.postEvent(ctx, event.RepositoryEvent{Kind: event.Modify, Item: repo.Clone(), OldItem: &previous, At: requested})
	return repo, nil
}

// Delete removes an existing repository.
func (m *Manager) Delete(ctx context.Context, id core.ID) error {
	requested := m.now()
	if err := m.oracle.Check(ctx, permission.RepositoryDelete(id.String())); err != nil {
		return err
	}
	repo, err := m.store.Get(ctx, id)
	if err != nil {
		return m.translate(err, id.String())
	}
	if err := event.Post(ctx, m.bus, event.Repositories, event.RepositoryEvent{Kind: event.BeforeDelete, Item: repo.Clone(), At: requested}); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return m.translate(err, id.String())
	}
	m.logger.Info("repository deleted",
		"repository", repo.NamespaceAndName(),
		"id", repo.ID)
	m.postEvent(ctx, event.RepositoryEvent{Kind: event.Delete, Item: repo, At: requested})
	return nil
}

// Get returns the repository with id.
// The read permission is checked before the lookup.
func (m *Manager) Get(ctx context.Context, id core.ID) (core.EnrichedRepository, error) {
	if err := m.oracle.Check(ctx, permission.RepositoryRead(id.String())); err != nil {
		return core.EnrichedRepository{}, err
	}
	repo, err := m.store.Get(ctx, id)
	if err != nil {
		return core.EnrichedRepository{}, m.translate(err, id.String())
	}
	return m.post.PostProcess(repo), nil
}

// GetByName returns the repository with namespace and name.
func (m *Manager) GetByName(ctx context.Context, namespace, name string) (core.EnrichedRepository, error) {
	repo, err := m.store.GetByName(ctx, namespace, name)
	if err != nil {
		return core.EnrichedRepository{}, m.translate(err, namespace+"/"+name)
	}
	if err := m.oracle.Check(ctx, permission.RepositoryRead(repo.ID.String())); err != nil {
		return core.EnrichedRepository{}, err
	}
	return m.post.PostProcess(repo), nil
}

// GetAll returns the readable repositories, ordered by namespace and name
// unless another comparator is given.
func (m *Manager) GetAll(ctx context.Context, opts ...ListOption) ([]core.EnrichedRepository, error) {
	o := listOptions{
		compare: func(a, b core.Repository) int {
			return cmp.Or(cmp.Compare(a.Namespace, b.Namespace), cmp.Compare(a.Name, b.Name))
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	repos, err := m.store.GetAll(ctx, func(r core.Repository) bool {
		if o.filter != nil && !o.filter(r) {
			return false
		}
		return m.oracle.IsPermitted(ctx, permission.RepositoryRead(r.ID.String()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	slices.SortStableFunc(repos, o.compare)

	if o.offset >= len(repos) {
		return []core.EnrichedRepository{}, nil
	}
	repos = repos[o.offset:]
	if o.limit > 0 && o.limit < len(repos) {
		repos = repos[:o.limit]
	}

	result := make([]core.EnrichedRepository, len(repos))
	for i, r := range repos {
		result[i] = m.post.PostProcess(r)
	}
	return result, nil
}

// Namespaces returns the distinct namespaces of all live repositories, sorted.
// It is not filtered by read permission; namespace existence is public.
func (m *Manager) Namespaces(ctx context.Context) ([]string, error) {
	repos, err := m.store.GetAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	namespaces := make([]string, 0, len(repos))
	for _, r := range repos {
		namespaces = append(namespaces, r.Namespace)
	}
	slices.Sort(namespaces)
	return slices.Compact(namespaces), nil
}

// Count returns the number of live repositories in namespace, regardless of
// read permission.
func (m *Manager) Count(ctx context.Context, namespace string) (int, error) {
	repos, err := m.store.GetAll(ctx, func(r core.Repository) bool {
		return r.Namespace == namespace
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count repositories: %w", err)
	}
	return len(repos), nil
}

// FireHookEvent publishes a backend receive hook for an existing repository.
// A PreReceive subscriber error is returned to the caller.
func (m *Manager) FireHookEvent(ctx context.Context, e event.HookEvent) error {
	repo, err := m.store.Get(ctx, e.Repository.ID)
	if err != nil {
		return m.translate(err, e.Repository.ID.String())
	}
	e.Repository = repo
	if err := event.Post(ctx, m.bus, event.Hooks, e); err != nil {
		return err
	}
	return nil
}

func (m *Manager) postEvent(ctx context.Context, e event.RepositoryEvent) {
	if err := event.Post(ctx, m.bus, event.Repositories, e); err != nil {
		m.logger.Error("failed to post repository event",
			"repository", e.Item.NamespaceAndName(),
			"kind", e.Kind,
			"err", err)
	}
}

// translate maps storage errors onto domain error kinds.
func (m *Manager) translate(err error, id string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return core.NotFound(entityType, id)
	case errors.Is(err, storage.ErrDuplicateKey):
		return core.AlreadyExists(entityType, id)
	default:
		return fmt.Errorf("repository store: %w", err)
	}
}
