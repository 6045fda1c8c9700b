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


// Package storage provides the storage abstraction layer for repokeeper.
//
// This package defines store interfaces that decouple the canonical repository
// metadata, the namespace permission registry, the index log and the search index
// from the components that keep them consistent.
//
// # Architecture
//
//   - RepositoryStore: canonical repository records
//   - NamespaceStore: namespace permission records
//   - IndexLogStore: stored projection version per indexed type
//   - IndexStore: search index documents, written through short-lived handles
//
// The badger subpackage implements every interface on a single BadgerDB instance:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	repos := badger.NewRepositoryStore(backend)
//
// Use in tests with in-memory storage:
//
//	backend, err := badger.OpenBackend("", true)
//
// # Errors
//
// Stores report ErrNotFound and ErrDuplicateKey. Managers translate them into
// core errors carrying the entity type and id.
//
// # Thread Safety
//
// All store implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
