// Package namespace derives namespaces from the live repositories and keeps
// their stored permission records in step with repository lifecycle events.
//
// A namespace exists as long as a repository uses it. A stored record only
// exists while there is permission data to retain; without one, reads return
// a placeholder with an empty permission list.
package namespace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage"
)

const entityType = "namespace"

var (
	ErrRepositoriesRequired = errors.New("repository source is required")
	ErrStoreRequired        = errors.New("namespace store is required")
	ErrBusRequired          = errors.New("event bus is required")
	ErrOracleRequired       = errors.New("permission oracle is required")
)

// RepositorySource reports which namespaces live repositories use.
// *repository.Manager satisfies it.
type RepositorySource interface {
	Namespaces(ctx context.Context) ([]string, error)
	Count(ctx context.Context, namespace string) (int, error)
}

// Manager serves namespaces and maintains their permission records.
type Manager struct {
	repos  RepositorySource
	store  storage.NamespaceStore
	bus    *event.Bus
	oracle permission.Oracle
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewManager creates a namespace Manager. Call Register to start following
// repository events.
func NewManager(repos RepositorySource, store storage.NamespaceStore, bus *event.Bus, oracle permission.Oracle, opts ...Option) (*Manager, error) {
	if repos == nil {
		return nil, ErrRepositoriesRequired
	}
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
		repos:  repos,
		store:  store,
		bus:    bus,
		oracle: oracle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register subscribes the manager to repository events. Delivery is
// synchronous so the owner record exists when Create returns.
func (m *Manager) Register() error {
	return event.Subscribe(m.bus, event.Repositories, "namespace-manager", m.HandleRepositoryEvent)
}

// Get returns the namespace if any repository uses it.
func (m *Manager) Get(ctx context.Context, namespace string) (core.Namespace, error) {
	namespaces, err := m.repos.Namespaces(ctx)
	if err != nil {
		return core.Namespace{}, err
	}
	if !slices.Contains(namespaces, namespace) {
		return core.Namespace{}, core.NotFound(entityType, namespace)
	}
	return m.enrich(ctx, namespace)
}

// GetAll returns one namespace per distinct namespace among live repositories.
func (m *Manager) GetAll(ctx context.Context) ([]core.Namespace, error) {
	namespaces, err := m.repos.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]core.Namespace, 0, len(namespaces))
	for _, ns := range namespaces {
		enriched, err := m.enrich(ctx, ns)
		if err != nil {
			return nil, err
		}
		result = append(result, enriched)
	}
	return result, nil
}

// enrich attaches stored permissions if the caller may read them.
func (m *Manager) enrich(ctx context.Context, namespace string) (core.Namespace, error) {
	placeholder := core.Namespace{Namespace: namespace}
	if !m.oracle.IsPermitted(ctx, permission.NamespacePermissionRead(namespace)) {
		return placeholder, nil
	}
	stored, err := m.store.Get(ctx, namespace)
	if errors.Is(err, storage.ErrNotFound) {
		return placeholder, nil
	}
	if err != nil {
		return core.Namespace{}, fmt.Errorf("failed to load namespace %s: %w", namespace, err)
	}
	return stored, nil
}

// Modify replaces the permission list of an existing namespace.
func (m *Manager) Modify(ctx context.Context, ns core.Namespace) error {
	if err := m.oracle.Check(ctx, permission.NamespacePermissionWrite(ns.Namespace)); err != nil {
		return err
	}
	namespaces, err := m.repos.Namespaces(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(namespaces, ns.Namespace) {
		return core.NotFound(entityType, ns.Namespace)
	}

	old, err := m.store.Get(ctx, ns.Namespace)
	if errors.Is(err, storage.ErrNotFound) {
		old = core.Namespace{Namespace: ns.Namespace}
	} else if err != nil {
		return fmt.Errorf("failed to load namespace %s: %w", ns.Namespace, err)
	}

	ns = ns.Clone()
	previous := old.Clone()
	if err := event.Post(ctx, m.bus, event.Namespaces, event.NamespaceEvent{Kind: event.BeforeModify, Item: ns.Clone(), OldItem: &previous}); err != nil {
		return err
	}
	if err := m.store.Put(ctx, ns); err != nil {
		return fmt.Errorf("failed to store namespace %s: %w", ns.Namespace, err)
	}
	m.postEvent(ctx, event.NamespaceEvent{Kind: event.Modify, Item: ns, OldItem: &old})
	return nil
}

// HandleRepositoryEvent keeps permission records in step with repositories.
//
// The first repository in a namespace makes the acting subject its owner.
// When the last repository leaves a namespace its record is removed.
func (m *Manager) HandleRepositoryEvent(ctx context.Context, e event.RepositoryEvent) error {
	switch e.Kind {
	case event.Create:
		return m.claimNamespace(ctx, e.Item.Namespace)
	case event.Modify:
		if e.OldItem != nil && e.OldItem.Namespace != e.Item.Namespace {
			return m.releaseNamespace(ctx, e.OldItem.Namespace)
		}
	case event.Delete:
		return m.releaseNamespace(ctx, e.Item.Namespace)
	}
	return nil
}

func (m *Manager) claimNamespace(ctx context.Context, namespace string) error {
	count, err := m.repos.Count(ctx, namespace)
	if err != nil {
		return err
	}
	if count != 1 {
		return nil
	}
	_, err = m.store.Get(ctx, namespace)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load namespace %s: %w", namespace, err)
	}

	owner := permission.ActingSubject(ctx)
	if owner.Name == permission.Anonymous.Name {
		m.logger.Warn("no acting subject, namespace left without owner", "namespace", namespace)
		return nil
	}
	// The creator may not hold write permission on a namespace that did not exist yet.
	return permission.RunAsAdmin(ctx, func(ctx context.Context) error {
		ns := core.Namespace{
			Namespace: namespace,
			Permissions: []core.RepositoryPermission{
				{Name: owner.Name, Role: core.RoleOwner},
			},
		}
		if err := m.Modify(ctx, ns); err != nil {
			return err
		}
		m.logger.Info("namespace claimed", "namespace", namespace, "owner", owner.Name)
		return nil
	})
}

func (m *Manager) releaseNamespace(ctx context.Context, namespace string) error {
	count, err := m.repos.Count(ctx, namespace)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	old, err := m.store.Get(ctx, namespace)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load namespace %s: %w", namespace, err)
	}
	if err := m.store.Delete(ctx, namespace); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	m.logger.Info("namespace released", "namespace", namespace)
	m.postEvent(ctx, event.NamespaceEvent{Kind: event.Delete, Item: old})
	return nil
}

func (m *Manager) postEvent(ctx context.Context, e event.NamespaceEvent) {
	if err := event.Post(ctx, m.bus, event.Namespaces, e); err != nil {
		m.logger.Error("failed to post namespace event",
			"namespace", e.Item.Namespace,
			"kind", e.Kind,
			"err", err)
	}
}
