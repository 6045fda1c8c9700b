package badger

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/repokeeper/storage"
)

// IndexStore implements storage.IndexStore for BadgerDB.
// Documents live under their own key prefix, separate from the canonical records.
type IndexStore struct {
	backend *Backend
}

var _ storage.IndexStore = (*IndexStore)(nil)

// NewIndexStore creates a new IndexStore.
func NewIndexStore(backend *Backend) *IndexStore {
	return &IndexStore{
		backend: backend,
	}
}

// Open acquires a handle for writing.
func (s *IndexStore) Open(ctx context.Context) (storage.IndexHandle, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return &indexHandle{backend: s.backend}, nil
}

// ForEach calls fn for every document of docType until fn returns false.
func (s *IndexStore) ForEach(ctx context.Context, docType string, fn func(storage.Document) bool) error {
	return s.backend.View(func(tx *badger.Txn) error {
		return forEachWithPrefix(tx, makeDocumentTypePrefix(docType), func(_, val []byte) (bool, error) {
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return false, err
			}
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return fn(*doc), nil
		})
	})
}

// indexHandle commits every write in its own transaction.
type indexHandle struct {
	backend *Backend
	closed  atomic.Bool
}

func (h *indexHandle) Store(ctx context.Context, doc storage.Document) error {
	if h.closed.Load() {
		return storage.ErrHandleClosed
	}
	key := makeDocumentKey(doc.Type, doc.ID)
	value := storage.MarshalDocument(&doc)
	return h.backend.Update(func(tx *badger.Txn) error {
		existing, err := readValue(tx, key)
		if err != nil {
			return err
		}
		// Unchanged documents are not rewritten.
		if bytes.Equal(existing, value) {
			return nil
		}
		return tx.Set(key, value)
	})
}

func (h *indexHandle) Delete(ctx context.Context, docType, id string) error {
	if h.closed.Load() {
		return storage.ErrHandleClosed
	}
	return h.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeDocumentKey(docType, id))
	})
}

func (h *indexHandle) DeleteByType(ctx context.Context, docType string) error {
	if h.closed.Load() {
		return storage.ErrHandleClosed
	}
	var keys [][]byte
	err := h.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentTypePrefix(docType)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	// A write batch splits large deletions across transactions.
	wb := h.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (h *indexHandle) Close() error {
	h.closed.Store(true)
	return nil
}
