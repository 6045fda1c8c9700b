package index

import (
	"context"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage"
)

const (
	// RepositoryType is the document type of repositories.
	RepositoryType = "repository"

	// RepositoryVersion is the current version of the repository projection.
	RepositoryVersion = 2
)

// NewRepositoryIndexer returns the indexer for repositories.
func NewRepositoryIndexer(store storage.RepositoryStore) *Indexer[core.Repository] {
	return &Indexer[core.Repository]{
		Name:    RepositoryType,
		Version: RepositoryVersion,
		ID: func(r core.Repository) string {
			return r.ID.String()
		},
		Permission: func(r core.Repository) string {
			return permission.RepositoryRead(r.ID.String())
		},
		Fields: func(r core.Repository) map[string]string {
			return map[string]string{
				"namespace":   r.Namespace,
				"name":        r.Name,
				"type":        r.Type,
				"contact":     r.Contact,
				"description": r.Description,
			}
		},
		LoadAll: func(ctx context.Context) ([]core.Repository, error) {
			return store.GetAll(ctx, nil)
		},
		Load: func(ctx context.Context, id string) (core.Repository, error) {
			return store.Get(ctx, core.ID(id))
		},
	}
}
