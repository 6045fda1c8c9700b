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

// Package git is the git backend: it creates and removes bare repositories on
// disk as repositories are created and deleted, checks their health, and turns
// pushed reference updates into receive hook events.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
	"github.com/poiesic/repokeeper/storage"
)

// Type is the repository type handled by this backend.
const Type = "git"

var ErrBaseDirRequired = errors.New("repository base directory is required")

// Backend manages bare git repositories below a base directory.
// Each repository lives in a directory named after its id, so renames do not
// move data.
type Backend struct {
	baseDir string
	logger  *slog.Logger
}

// New creates a Backend storing repositories below baseDir.
func New(baseDir string, logger *slog.Logger) (*Backend, error) {
	if baseDir == "" {
		return nil, ErrBaseDirRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repository base directory: %w", err)
	}
	return &Backend{baseDir: baseDir, logger: logger}, nil
}

// Directory returns the on-disk location of repo.
func (b *Backend) Directory(repo core.Repository) string {
	return filepath.Join(b.baseDir, repo.ID.String())
}

// Register subscribes the backend to repository events.
func (b *Backend) Register(bus *event.Bus) error {
	return event.Subscribe(bus, event.Repositories, "git-backend", b.HandleRepositoryEvent)
}

// HandleRepositoryEvent initialises a bare repository before a git repository
// is created and removes it after deletion. A failed initialisation vetoes
// the creation.
func (b *Backend) HandleRepositoryEvent(ctx context.Context, e event.RepositoryEvent) error {
	if e.Item.Type != Type {
		return nil
	}
	switch e.Kind {
	case event.BeforeCreate:
		return b.initialise(e.Item)
	case event.Delete:
		return b.remove(e.Item)
	}
	return nil
}

func (b *Backend) initialise(repo core.Repository) error {
	dir := b.Directory(repo)
	if _, err := gogit.PlainInit(dir, true); err != nil {
		return fmt.Errorf("failed to initialise git repository %s: %w", repo.NamespaceAndName(), err)
	}
	b.logger.Info("git repository initialised", "repository", repo.NamespaceAndName(), "dir", dir)
	return nil
}

func (b *Backend) remove(repo core.Repository) error {
	dir := b.Directory(repo)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove git repository %s: %w", repo.NamespaceAndName(), err)
	}
	b.logger.Info("git repository removed", "repository", repo.NamespaceAndName(), "dir", dir)
	return nil
}

// Prune removes bare repositories whose id has no stored repository. They are
// left behind when a creation is vetoed or fails after initialisation.
// Prune must not run concurrently with repository creation.
func (b *Backend) Prune(ctx context.Context, store storage.RepositoryStore) ([]core.ID, error) {
	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository base directory: %w", err)
	}
	var removed []core.ID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := core.ID(entry.Name())
		_, err := store.Get(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return removed, fmt.Errorf("failed to look up repository %s: %w", id, err)
		}
		dir := filepath.Join(b.baseDir, entry.Name())
		// Only directories this backend could have created.
		if _, err := gogit.PlainOpen(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("failed to remove orphaned git repository %s: %w", id, err)
		}
		b.logger.Warn("orphaned git repository removed", "id", id, "dir", dir)
		removed = append(removed, id)
	}
	return removed, nil
}
