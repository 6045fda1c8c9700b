package git

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/poiesic/repokeeper/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFirer struct {
	events []event.HookEvent
}

func (f *recordingFirer) FireHookEvent(ctx context.Context, e event.HookEvent) error {
	f.events = append(f.events, e)
	return nil
}

func TestRefUpdates(t *testing.T) {
	a := plumbing.NewHash("1111111111111111111111111111111111111111")
	b := plumbing.NewHash("2222222222222222222222222222222222222222")
	updates := RefUpdates{
		{Name: plumbing.NewBranchReferenceName("main"), Old: a, New: b},
		{Name: plumbing.NewBranchReferenceName("feature"), Old: plumbing.ZeroHash, New: a},
		{Name: plumbing.NewBranchReferenceName("stale"), Old: a, New: plumbing.ZeroHash},
		{Name: plumbing.NewTagReferenceName("v1.0"), Old: plumbing.ZeroHash, New: b},
		{Name: plumbing.NewTagReferenceName("v0.9"), Old: a, New: plumbing.ZeroHash},
	}

	assert.Equal(t, []string{"main", "feature"}, updates.CreatedOrModified())
	assert.Equal(t, []string{"stale"}, updates.DeletedOrClosed())
	assert.Equal(t, []string{"v1.0"}, updates.CreatedTags())
	assert.Equal(t, []string{"v0.9"}, updates.DeletedTags())
	assert.Equal(t, []string{b.String(), a.String(), b.String()}, updates.Changesets())
}

func TestReceive(t *testing.T) {
	firer := &recordingFirer{}
	updates := RefUpdates{{Name: plumbing.NewBranchReferenceName("main"), New: plumbing.NewHash("1111111111111111111111111111111111111111")}}

	require.NoError(t, Receive(context.Background(), firer, event.PreReceive, heartOfGold(), updates))
	require.Len(t, firer.events, 1)
	e := firer.events[0]
	assert.Equal(t, event.PreReceive, e.Kind)
	assert.Equal(t, []string{"main"}, e.Branches.CreatedOrModified())
	assert.Empty(t, e.Tags.CreatedTags())
}
