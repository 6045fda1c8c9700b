package git

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/event"
)

// RefUpdate is one reference change carried by a push.
// A zero Old hash creates the reference, a zero New hash deletes it.
type RefUpdate struct {
	Name plumbing.ReferenceName
	Old  plumbing.Hash
	New  plumbing.Hash
}

// RefUpdates exposes a push's reference changes to hook subscribers.
type RefUpdates []RefUpdate

var (
	_ event.BranchProvider    = RefUpdates(nil)
	_ event.TagProvider       = RefUpdates(nil)
	_ event.ChangesetProvider = RefUpdates(nil)
)

func (u RefUpdates) CreatedOrModified() []string {
	return u.names(func(r RefUpdate) bool { return r.Name.IsBranch() && !r.New.IsZero() })
}

func (u RefUpdates) DeletedOrClosed() []string {
	return u.names(func(r RefUpdate) bool { return r.Name.IsBranch() && r.New.IsZero() })
}

func (u RefUpdates) CreatedTags() []string {
	return u.names(func(r RefUpdate) bool { return r.Name.IsTag() && !r.New.IsZero() })
}

func (u RefUpdates) DeletedTags() []string {
	return u.names(func(r RefUpdate) bool { return r.Name.IsTag() && r.New.IsZero() })
}

// Changesets returns the new head of every updated reference.
func (u RefUpdates) Changesets() []string {
	var out []string
	for _, r := range u {
		if !r.New.IsZero() {
			out = append(out, r.New.String())
		}
	}
	return out
}

func (u RefUpdates) names(match func(RefUpdate) bool) []string {
	var out []string
	for _, r := range u {
		if match(r) {
			out = append(out, r.Name.Short())
		}
	}
	return out
}

// HookFirer publishes receive hooks. *repository.Manager satisfies it.
type HookFirer interface {
	FireHookEvent(ctx context.Context, e event.HookEvent) error
}

// Receive fires the hook of the given kind for a push to repo. For
// event.PreReceive a subscriber error rejects the push.
func Receive(ctx context.Context, firer HookFirer, kind event.Kind, repo core.Repository, updates RefUpdates) error {
	return firer.FireHookEvent(ctx, event.HookEvent{
		Kind:       kind,
		Repository: repo,
		Branches:   updates,
		Tags:       updates,
		Changesets: updates,
	})
}
