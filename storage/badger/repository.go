package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/storage"
)

// RepositoryStore implements storage.RepositoryStore for BadgerDB.
// A secondary key per (namespace, name) pair enforces uniqueness inside the
// same transaction that writes the record.
type RepositoryStore struct {
	backend *Backend
}

var _ storage.RepositoryStore = (*RepositoryStore)(nil)

// NewRepositoryStore creates a new RepositoryStore.
func NewRepositoryStore(backend *Backend) *RepositoryStore {
	return &RepositoryStore{
		backend: backend,
	}
}

// Add stores a new repository.
func (s *RepositoryStore) Add(ctx context.Context, repo core.Repository) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		key := makeRepositoryKey(repo.ID)
		existing, err := readValue(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		nameKey := makeRepositoryNameKey(repo.Namespace, repo.Name)
		taken, err := readValue(tx, nameKey)
		if err != nil {
			return err
		}
		if taken != nil {
			return storage.ErrDuplicateKey
		}

		if err := tx.Set(key, storage.MarshalRepository(&repo)); err != nil {
			return err
		}
		return tx.Set(nameKey, []byte(repo.ID))
	})
}

// Get retrieves a repository by id.
func (s *RepositoryStore) Get(ctx context.Context, id core.ID) (core.Repository, error) {
	var result *core.Repository
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readRepository(tx, id)
		return err
	})
	if err != nil {
		return core.Repository{}, err
	}
	return *result, nil
}

// GetByName retrieves a repository by namespace and name.
func (s *RepositoryStore) GetByName(ctx context.Context, namespace, name string) (core.Repository, error) {
	var result *core.Repository
	err := s.backend.View(func(tx *badger.Txn) error {
		id, err := readValue(tx, makeRepositoryNameKey(namespace, name))
		if err != nil {
			return err
		}
		if id == nil {
			return storage.ErrNotFound
		}
		result, err = readRepository(tx, core.ID(id))
		return err
	})
	if err != nil {
		return core.Repository{}, err
	}
	return *result, nil
}

// GetAll returns every repository accepted by filter, ordered by id.
func (s *RepositoryStore) GetAll(ctx context.Context, filter func(core.Repository) bool) ([]core.Repository, error) {
	var results []core.Repository
	err := s.backend.View(func(tx *badger.Txn) error {
		return forEachWithPrefix(tx, []byte(repositoryPrefix), func(_, val []byte) (bool, error) {
			repo, err := storage.UnmarshalRepository(val)
			if err != nil {
				return false, err
			}
			if filter == nil || filter(*repo) {
				results = append(results, *repo)
			}
			return ctx.Err() == nil, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return results, ctx.Err()
}

// Modify replaces an existing repository and moves its name index entry if
// the namespace or name changed.
func (s *RepositoryStore) Modify(ctx context.Context, repo core.Repository) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		old, err := readRepository(tx, repo.ID)
		if err != nil {
			return err
		}

		if old.Namespace != repo.Namespace || old.Name != repo.Name {
			newNameKey := makeRepositoryNameKey(repo.Namespace, repo.Name)
			taken, err := readValue(tx, newNameKey)
			if err != nil {
				return err
			}
			if taken != nil && core.ID(taken) != repo.ID {
				return storage.ErrDuplicateKey
			}
			if err := tx.Delete(makeRepositoryNameKey(old.Namespace, old.Name)); err != nil {
				return err
			}
			if err := tx.Set(newNameKey, []byte(repo.ID)); err != nil {
				return err
			}
		}

		return tx.Set(makeRepositoryKey(repo.ID), storage.MarshalRepository(&repo))
	})
}

// Delete removes a repository and its name index entry.
func (s *RepositoryStore) Delete(ctx context.Context, id core.ID) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		repo, err := readRepository(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(makeRepositoryNameKey(repo.Namespace, repo.Name)); err != nil {
			return err
		}
		return tx.Delete(makeRepositoryKey(id))
	})
}

// Contains reports whether a repository with the id exists.
func (s *RepositoryStore) Contains(ctx context.Context, id core.ID) (bool, error) {
	return s.exists(makeRepositoryKey(id))
}

// ContainsName reports whether a repository with the namespace and name exists.
func (s *RepositoryStore) ContainsName(ctx context.Context, namespace, name string) (bool, error) {
	return s.exists(makeRepositoryNameKey(namespace, name))
}

func (s *RepositoryStore) exists(key []byte) (bool, error) {
	var found bool
	err := s.backend.View(func(tx *badger.Txn) error {
		val, err := readValue(tx, key)
		found = val != nil
		return err
	})
	return found, err
}

// readRepository reads a repository from the transaction.
// Returns storage.ErrNotFound if the repository doesn't exist.
func readRepository(tx *badger.Txn, id core.ID) (*core.Repository, error) {
	val, err := readValue(tx, makeRepositoryKey(id))
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, storage.ErrNotFound
	}
	return storage.UnmarshalRepository(val)
}
