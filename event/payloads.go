package event

import (
	"time"

	"github.com/poiesic/repokeeper/core"
)

// RepositoryEvent reports a repository lifecycle change.
// OldItem is set for BeforeModify and Modify. At is when the change was
// requested; it is the same for the pre and post event of one change.
type RepositoryEvent struct {
	Kind    Kind
	Item    core.Repository
	OldItem *core.Repository
	At      time.Time
}

func (e RepositoryEvent) EventKind() Kind { return e.Kind }

// NamespaceEvent reports a change to a namespace's permission record.
type NamespaceEvent struct {
	Kind    Kind
	Item    core.Namespace
	OldItem *core.Namespace
}

func (e NamespaceEvent) EventKind() Kind { return e.Kind }

// HealthCheckEvent reports a change in a repository's recorded failures.
type HealthCheckEvent struct {
	Repository       core.Repository
	PreviousFailures []core.HealthCheckFailure
	CurrentFailures  []core.HealthCheckFailure
}

func (e HealthCheckEvent) EventKind() Kind { return Modify }

// BranchProvider exposes branch changes carried by a push.
type BranchProvider interface {
	CreatedOrModified() []string
	DeletedOrClosed() []string
}

// TagProvider exposes tag changes carried by a push.
type TagProvider interface {
	CreatedTags() []string
	DeletedTags() []string
}

// ChangesetProvider exposes the changeset ids carried by a push.
type ChangesetProvider interface {
	Changesets() []string
}

// HookEvent is a backend-sourced receive hook. Providers are optional and nil
// when the backend cannot supply the information.
type HookEvent struct {
	Kind       Kind // PreReceive or PostReceive
	Repository core.Repository
	Branches   BranchProvider
	Tags       TagProvider
	Changesets ChangesetProvider
}

func (e HookEvent) EventKind() Kind { return e.Kind }
