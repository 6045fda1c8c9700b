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


package storage

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/repokeeper/core"
)

// MarshalRepository serializes a Repository to bytes.
func MarshalRepository(repo *core.Repository) []byte {
	w := newWriter(sizeRepository(repo))
	w.string(string(repo.ID))
	w.string(repo.Namespace)
	w.string(repo.Name)
	w.string(repo.Type)
	w.string(repo.Contact)
	w.string(repo.Description)
	w.time(repo.CreationDate)
	w.time(repo.LastModified)
	w.permissions(repo.Permissions)
	return w.bs
}

// UnmarshalRepository deserializes a Repository from bytes.
func UnmarshalRepository(data []byte) (*core.Repository, error) {
	r := &reader{bs: data}
	repo := &core.Repository{
		ID:           core.ID(r.string()),
		Namespace:    r.string(),
		Name:         r.string(),
		Type:         r.string(),
		Contact:      r.string(),
		Description:  r.string(),
		CreationDate: r.time(),
		LastModified: r.time(),
		Permissions:  r.permissions(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: repository: %w", ErrSerializationFailed, r.err)
	}
	return repo, nil
}

// MarshalNamespace serializes a Namespace to bytes.
func MarshalNamespace(ns *core.Namespace) []byte {
	w := newWriter(ord.String.Size(ns.Namespace) + sizePermissions(ns.Permissions))
	w.string(ns.Namespace)
	w.permissions(ns.Permissions)
	return w.bs
}

// UnmarshalNamespace deserializes a Namespace from bytes.
func UnmarshalNamespace(data []byte) (*core.Namespace, error) {
	r := &reader{bs: data}
	ns := &core.Namespace{
		Namespace:   r.string(),
		Permissions: r.permissions(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: namespace: %w", ErrSerializationFailed, r.err)
	}
	return ns, nil
}

// MarshalIndexLogEntry serializes an IndexLogEntry to bytes.
func MarshalIndexLogEntry(entry *core.IndexLogEntry) []byte {
	w := newWriter(ord.String.Size(entry.Type) + varint.Int.Size(entry.Version) + sizeTime(entry.LastIndexed))
	w.string(entry.Type)
	w.int(entry.Version)
	w.time(entry.LastIndexed)
	return w.bs
}

// UnmarshalIndexLogEntry deserializes an IndexLogEntry from bytes.
func UnmarshalIndexLogEntry(data []byte) (*core.IndexLogEntry, error) {
	r := &reader{bs: data}
	entry := &core.IndexLogEntry{
		Type:        r.string(),
		Version:     r.int(),
		LastIndexed: r.time(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: index log entry: %w", ErrSerializationFailed, r.err)
	}
	return entry, nil
}

// MarshalDocument serializes a Document to bytes.
// Fields are written in key order so equal documents produce equal bytes.
func MarshalDocument(doc *Document) []byte {
	keys := slices.Sorted(maps.Keys(doc.Fields))
	size := ord.String.Size(doc.Type) + ord.String.Size(doc.ID) + ord.String.Size(doc.Permission) +
		varint.Int.Size(len(keys))
	for _, k := range keys {
		size += ord.String.Size(k) + ord.String.Size(doc.Fields[k])
	}
	w := newWriter(size)
	w.string(doc.Type)
	w.string(doc.ID)
	w.string(doc.Permission)
	w.int(len(keys))
	for _, k := range keys {
		w.string(k)
		w.string(doc.Fields[k])
	}
	return w.bs
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*Document, error) {
	r := &reader{bs: data}
	doc := &Document{
		Type:       r.string(),
		ID:         r.string(),
		Permission: r.string(),
	}
	count := r.length()
	doc.Fields = make(map[string]string, count)
	for i := 0; i < count && r.err == nil; i++ {
		k := r.string()
		doc.Fields[k] = r.string()
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: document: %w", ErrSerializationFailed, r.err)
	}
	return doc, nil
}

func sizeRepository(repo *core.Repository) int {
	return ord.String.Size(string(repo.ID)) +
		ord.String.Size(repo.Namespace) +
		ord.String.Size(repo.Name) +
		ord.String.Size(repo.Type) +
		ord.String.Size(repo.Contact) +
		ord.String.Size(repo.Description) +
		sizeTime(repo.CreationDate) +
		sizeTime(repo.LastModified) +
		sizePermissions(repo.Permissions)
}

func sizePermissions(perms []core.RepositoryPermission) int {
	size := varint.Int.Size(len(perms))
	for _, p := range perms {
		size += ord.String.Size(p.Name) + ord.String.Size(p.Role) + ord.Bool.Size(p.GroupPermission)
		size += varint.Int.Size(len(p.Verbs))
		for _, v := range p.Verbs {
			size += ord.String.Size(v)
		}
	}
	return size
}

// Times are stored as Unix microseconds; 0 encodes the zero time.
func sizeTime(t time.Time) int {
	return varint.Int64.Size(unixMicro(t))
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

type writer struct {
	bs []byte
	n  int
}

func newWriter(size int) *writer {
	return &writer{bs: make([]byte, size)}
}

func (w *writer) string(v string) {
	w.n += ord.String.Marshal(v, w.bs[w.n:])
}

func (w *writer) int(v int) {
	w.n += varint.Int.Marshal(v, w.bs[w.n:])
}

func (w *writer) bool(v bool) {
	w.n += ord.Bool.Marshal(v, w.bs[w.n:])
}

func (w *writer) time(v time.Time) {
	w.n += varint.Int64.Marshal(unixMicro(v), w.bs[w.n:])
}

func (w *writer) permissions(perms []core.RepositoryPermission) {
	w.int(len(perms))
	for _, p := range perms {
		w.string(p.Name)
		w.string(p.Role)
		w.bool(p.GroupPermission)
		w.int(len(p.Verbs))
		for _, v := range p.Verbs {
			w.string(v)
		}
	}
}

// reader remembers the first error; later reads become no-ops.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

// length reads a collection length and rejects values the buffer cannot hold.
func (r *reader) length() int {
	l := r.int()
	if r.err == nil && (l < 0 || l > len(r.bs)-r.n) {
		r.err = ErrTruncatedData
		return 0
	}
	return l
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	if err != nil || v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func (r *reader) permissions() []core.RepositoryPermission {
	count := r.length()
	if count == 0 {
		return nil
	}
	perms := make([]core.RepositoryPermission, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		p := core.RepositoryPermission{
			Name:            r.string(),
			Role:            r.string(),
			GroupPermission: r.bool(),
		}
		verbs := r.length()
		for j := 0; j < verbs && r.err == nil; j++ {
			p.Verbs = append(p.Verbs, r.string())
		}
		perms = append(perms, p)
	}
	return perms
}
