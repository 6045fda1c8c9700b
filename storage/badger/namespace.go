package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/storage"
)

// NamespaceStore implements storage.NamespaceStore for BadgerDB.
type NamespaceStore struct {
	backend *Backend
}

var _ storage.NamespaceStore = (*NamespaceStore)(nil)

// NewNamespaceStore creates a new NamespaceStore.
func NewNamespaceStore(backend *Backend) *NamespaceStore {
	return &NamespaceStore{
		backend: backend,
	}
}

// Get retrieves the stored record for a namespace.
func (s *NamespaceStore) Get(ctx context.Context, namespace string) (core.Namespace, error) {
	var result *core.Namespace
	err := s.backend.View(func(tx *badger.Txn) error {
		val, err := readValue(tx, makeNamespaceKey(namespace))
		if err != nil {
			return err
		}
		if val == nil {
			return storage.ErrNotFound
		}
		result, err = storage.UnmarshalNamespace(val)
		return err
	})
	if err != nil {
		return core.Namespace{}, err
	}
	return *result, nil
}

// GetAll returns every stored namespace record in key order.
func (s *NamespaceStore) GetAll(ctx context.Context) ([]core.Namespace, error) {
	var results []core.Namespace
	err := s.backend.View(func(tx *badger.Txn) error {
		return forEachWithPrefix(tx, []byte(namespacePrefix), func(_, val []byte) (bool, error) {
			ns, err := storage.UnmarshalNamespace(val)
			if err != nil {
				return false, err
			}
			results = append(results, *ns)
			return true, nil
		})
	})
	return results, err
}

// Put creates or replaces a namespace record.
func (s *NamespaceStore) Put(ctx context.Context, namespace core.Namespace) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeNamespaceKey(namespace.Namespace), storage.MarshalNamespace(&namespace))
	})
}

// Delete removes a namespace record.
func (s *NamespaceStore) Delete(ctx context.Context, namespace string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeNamespaceKey(namespace))
	})
}
