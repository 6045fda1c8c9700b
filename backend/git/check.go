package git

import (
	"context"
	"errors"
	"fmt"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/poiesic/repokeeper/core"
)

// Failure ids reported by FullCheck.
const (
	FailureNotFound          = "git-not-found"
	FailureUnreadable        = "git-unreadable"
	FailureHeadUnresolvable  = "git-head-unresolvable"
	FailureHeadCommitMissing = "git-head-commit-missing"
)

// FullCheck opens the repository on disk and verifies that HEAD resolves to a
// commit. A repository without commits is healthy.
func (b *Backend) FullCheck(ctx context.Context, repo core.Repository) (core.HealthCheckResult, error) {
	if err := ctx.Err(); err != nil {
		return core.HealthCheckResult{}, err
	}
	dir := b.Directory(repo)

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return core.Unhealthy(core.HealthCheckFailure{
			ID:          FailureNotFound,
			Summary:     "repository directory missing",
			Description: fmt.Sprintf("The directory %s of %s does not exist.", dir, repo.NamespaceAndName()),
		}), nil
	}

	r, err := gogit.PlainOpen(dir)
	if err != nil {
		return core.Unhealthy(core.HealthCheckFailure{
			ID:          FailureUnreadable,
			Summary:     "repository cannot be opened",
			Description: fmt.Sprintf("Opening %s failed: %v", dir, err),
		}), nil
	}

	head, err := r.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Nothing pushed yet.
		return core.Healthy(), nil
	}
	if err != nil {
		return core.Unhealthy(core.HealthCheckFailure{
			ID:          FailureHeadUnresolvable,
			Summary:     "HEAD cannot be resolved",
			Description: fmt.Sprintf("Resolving HEAD of %s failed: %v", repo.NamespaceAndName(), err),
		}), nil
	}

	if _, err := r.CommitObject(head.Hash()); err != nil {
		return core.Unhealthy(core.HealthCheckFailure{
			ID:          FailureHeadCommitMissing,
			Summary:     "HEAD commit missing",
			Description: fmt.Sprintf("HEAD of %s points to %s which cannot be read: %v", repo.NamespaceAndName(), head.Hash(), err),
		}), nil
	}
	return core.Healthy(), nil
}
