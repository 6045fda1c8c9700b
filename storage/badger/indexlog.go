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


package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/storage"
)

// IndexLogStore implements storage.IndexLogStore for BadgerDB.
type IndexLogStore struct {
	backend *Backend
}

var _ storage.IndexLogStore = (*IndexLogStore)(nil)

// NewIndexLogStore creates a new IndexLogStore.
func NewIndexLogStore(backend *Backend) *IndexLogStore {
	return &IndexLogStore{
		backend: backend,
	}
}

// Put persists the log entry for an indexed type.
// LastIndexed is set to the current time if not already set.
func (s *IndexLogStore) Put(ctx context.Context, entry core.IndexLogEntry) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		if entry.LastIndexed.IsZero() {
			entry.LastIndexed = time.Now().UTC()
		}
		return tx.Set(makeIndexLogKey(entry.Type), storage.MarshalIndexLogEntry(&entry))
	})
}

// Get retrieves the log entry for an indexed type.
// Returns storage.ErrNotFound if no entry exists.
func (s *IndexLogStore) Get(ctx context.Context, indexedType string) (core.IndexLogEntry, error) {
	var entry *core.IndexLogEntry
	err := s.backend.View(func(tx *badger.Txn) error {
		val, err := readValue(tx, makeIndexLogKey(indexedType))
		if err != nil {
			return err
		}
		if val == nil {
			return storage.ErrNotFound
		}
		entry, err = storage.UnmarshalIndexLogEntry(val)
		return err
	})
	if err != nil {
		return core.IndexLogEntry{}, err
	}
	return *entry, nil
}

// Delete removes the log entry for an indexed type.
func (s *IndexLogStore) Delete(ctx context.Context, indexedType string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeIndexLogKey(indexedType))
	})
}
