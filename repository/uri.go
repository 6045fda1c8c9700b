package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage"
)

// GetFromURI resolves a path of the form "{type}/{namespace}/{name}[/...]"
// to the repository with the longest matching name. Names may themselves
// contain "/", so trailing segments are dropped one at a time until a
// repository of the given type matches.
//
// The boolean is false if nothing matched.
func (m *Manager) GetFromURI(ctx context.Context, uri string) (core.EnrichedRepository, bool, error) {
	parts := strings.Split(strings.Trim(uri, "/"), "/")
	if len(parts) < 3 {
		return core.EnrichedRepository{}, false, nil
	}
	repoType, namespace := parts[0], parts[1]

	for end := len(parts); end > 2; end-- {
		name := strings.Join(parts[2:end], "/")
		repo, err := m.store.GetByName(ctx, namespace, name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return core.EnrichedRepository{}, false, m.translate(err, namespace+"/"+name)
		}
		if repo.Type != repoType {
			continue
		}
		if err := m.oracle.Check(ctx, permission.RepositoryRead(repo.ID.String())); err != nil {
			return core.EnrichedRepository{}, false, err
		}
		return m.post.PostProcess(repo), true, nil
	}
	return core.EnrichedRepository{}, false, nil
}
