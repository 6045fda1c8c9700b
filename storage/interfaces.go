package storage

import (
	"context"

	"github.com/poiesic/repokeeper/core"
)

// RepositoryStore is the durable store of repository records.
// Implementations must be thread-safe and support concurrent access.
type RepositoryStore interface {
	// Add stores a new repository.
	// Returns ErrDuplicateKey if the id or the (namespace, name) pair is taken.
	Add(ctx context.Context, repo core.Repository) error

	// Get retrieves a repository by id.
	// Returns ErrNotFound if the repository doesn't exist.
	Get(ctx context.Context, id core.ID) (core.Repository, error)

	// GetByName retrieves a repository by namespace and name.
	// Returns ErrNotFound if no such repository exists.
	GetByName(ctx context.Context, namespace, name string) (core.Repository, error)

	// GetAll returns every repository accepted by filter, ordered by id.
	// A nil filter accepts all repositories.
	GetAll(ctx context.Context, filter func(core.Repository) bool) ([]core.Repository, error)

	// Modify replaces an existing repository.
	// Returns ErrNotFound if the repository doesn't exist and ErrDuplicateKey if
	// the new (namespace, name) pair belongs to another repository.
	Modify(ctx context.Context, repo core.Repository) error

	// Delete removes a repository by id.
	// Returns ErrNotFound if the repository doesn't exist.
	Delete(ctx context.Context, id core.ID) error

	// Contains reports whether a repository with the id exists.
	Contains(ctx context.Context, id core.ID) (bool, error)

	// ContainsName reports whether a repository with the namespace and name exists.
	ContainsName(ctx context.Context, namespace, name string) (bool, error)
}

// NamespaceStore persists namespace permission records.
// A record only exists while permission data must be retained.
type NamespaceStore interface {
	// Get retrieves the stored record for a namespace.
	// Returns ErrNotFound if no record is stored.
	Get(ctx context.Context, namespace string) (core.Namespace, error)

	// GetAll returns every stored namespace record.
	GetAll(ctx context.Context) ([]core.Namespace, error)

	// Put creates or replaces a namespace record.
	Put(ctx context.Context, namespace core.Namespace) error

	// Delete removes a namespace record. Deleting a missing record is not an error.
	Delete(ctx context.Context, namespace string) error
}

// IndexLogStore records the stored projection version per indexed type.
type IndexLogStore interface {
	// Get retrieves the log entry for an indexed type.
	// Returns ErrNotFound if the type was never indexed.
	Get(ctx context.Context, indexedType string) (core.IndexLogEntry, error)

	// Put creates or replaces the log entry for entry.Type.
	Put(ctx context.Context, entry core.IndexLogEntry) error

	// Delete removes the log entry, forcing a full reindex on next start.
	Delete(ctx context.Context, indexedType string) error
}

// Document is one entry of the search index.
// Permission is the permission string a subject needs to see the document.
type Document struct {
	Type       string
	ID         string
	Permission string
	Fields     map[string]string
}

// IndexHandle is a short-lived handle on the search index.
// Every write is committed immediately; Close releases the handle.
type IndexHandle interface {
	// Store creates or replaces a document.
	Store(ctx context.Context, doc Document) error

	// Delete removes the document with the given type and id, if present.
	Delete(ctx context.Context, docType, id string) error

	// DeleteByType removes every document of a type.
	DeleteByType(ctx context.Context, docType string) error

	// Close releases the handle.
	Close() error
}

// IndexStore provides handles on the search index and read access to its documents.
type IndexStore interface {
	// Open acquires a handle for writing.
	Open(ctx context.Context) (IndexHandle, error)

	// ForEach calls fn for every document of docType until fn returns false.
	ForEach(ctx context.Context, docType string, fn func(Document) bool) error
}
