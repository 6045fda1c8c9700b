package index

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_FiltersByPermission(t *testing.T) {
	f := setup(t, WithUpdateBudget(time.Hour))
	ctx := context.Background()
	for _, repo := range []core.Repository{
		{ID: "1", Namespace: "hitchhiker", Name: "heart-of-gold", Type: "git", Description: "Improbability drive"},
		{ID: "2", Namespace: "hitchhiker", Name: "bistromath", Type: "git", Description: "Bistromathic drive"},
		{ID: "3", Namespace: "magrathea", Name: "earth", Type: "git", Description: "Planet computer"},
	} {
		require.NoError(t, f.stores.Repositories.Add(ctx, repo))
	}
	require.NoError(t, f.sync.Start(ctx))

	oracle, err := permission.NewCedarOracle()
	require.NoError(t, err)
	searcher, err := NewSearcher(f.stores.Index, oracle, nil)
	require.NoError(t, err)

	admin := permission.WithSubject(ctx, permission.Subject{Name: "zaphod", Admin: true})
	hits, err := searcher.Search(admin, RepositoryType, "the drive", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "1", hits[0].Document.ID)
	assert.Equal(t, "2", hits[1].Document.ID)

	hits, err = searcher.Search(admin, RepositoryType, "hitchhiker", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	reader := permission.WithSubject(ctx, permission.Subject{Name: "arthur", Granted: []string{permission.RepositoryRead("2")}})
	hits, err = searcher.Search(reader, RepositoryType, "drive", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "bistromath", hits[0].Document.Fields["name"])

	hits, err = searcher.Search(reader, RepositoryType, "the", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
