package index

import (
	"context"
	"errors"

	"github.com/poiesic/repokeeper/storage"
)

// Indexed is the type-erased view of an Indexer used by the Synchronizer.
type Indexed interface {
	// IndexedType names the document type.
	IndexedType() string
	// IndexVersion is the current projection version. Raising it forces a
	// full reindex on the next start.
	IndexVersion() int
	// AllDocuments loads every entity as a document.
	AllDocuments(ctx context.Context) ([]storage.Document, error)
	// CurrentDocument loads one entity as a document. The boolean is false if
	// the entity no longer exists.
	CurrentDocument(ctx context.Context, id string) (storage.Document, bool, error)
}

// Indexer describes how entities of type T are projected into the index.
type Indexer[T any] struct {
	Name       string
	Version    int
	ID         func(T) string
	Permission func(T) string // Permission required to see the document
	Fields     func(T) map[string]string
	LoadAll    func(ctx context.Context) ([]T, error)
	// Load returns storage.ErrNotFound for missing entities.
	Load func(ctx context.Context, id string) (T, error)
}

var _ Indexed = (*Indexer[struct{}])(nil)

// Document projects v.
func (ix *Indexer[T]) Document(v T) storage.Document {
	return storage.Document{
		Type:       ix.Name,
		ID:         ix.ID(v),
		Permission: ix.Permission(v),
		Fields:     ix.Fields(v),
	}
}

func (ix *Indexer[T]) IndexedType() string {
	return ix.Name
}

func (ix *Indexer[T]) IndexVersion() int {
	return ix.Version
}

func (ix *Indexer[T]) AllDocuments(ctx context.Context) ([]storage.Document, error) {
	all, err := ix.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]storage.Document, len(all))
	for i, v := range all {
		docs[i] = ix.Document(v)
	}
	return docs, nil
}

func (ix *Indexer[T]) CurrentDocument(ctx context.Context, id string) (storage.Document, bool, error) {
	v, err := ix.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Document{}, false, nil
	}
	if err != nil {
		return storage.Document{}, false, err
	}
	return ix.Document(v), true, nil
}
