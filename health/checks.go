package health

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/repokeeper/core"
)

// LightCheck inspects repository metadata only.
type LightCheck interface {
	Check(repo core.Repository) core.HealthCheckResult
}

// LightCheckFunc adapts a function to LightCheck.
type LightCheckFunc func(repo core.Repository) core.HealthCheckResult

func (f LightCheckFunc) Check(repo core.Repository) core.HealthCheckResult {
	return f(repo)
}

// FullCheck inspects the repository data held by a backend.
type FullCheck interface {
	FullCheck(ctx context.Context, repo core.Repository) (core.HealthCheckResult, error)
}

// FullCheckRegistry maps repository types to their FullCheck.
type FullCheckRegistry struct {
	mu     sync.RWMutex
	checks map[string]FullCheck
}

// NewFullCheckRegistry creates an empty registry.
func NewFullCheckRegistry() *FullCheckRegistry {
	return &FullCheckRegistry{checks: make(map[string]FullCheck)}
}

// Register sets the full check for repoType, replacing any previous one.
func (r *FullCheckRegistry) Register(repoType string, check FullCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[repoType] = check
}

// Lookup returns the full check for repoType.
func (r *FullCheckRegistry) Lookup(repoType string) (FullCheck, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	check, ok := r.checks[repoType]
	return check, ok
}

// NamingCheck reports repositories whose namespace or name no longer satisfy
// the naming rules, e.g. records written before the rules were tightened.
var NamingCheck = LightCheckFunc(func(repo core.Repository) core.HealthCheckResult {
	var failures []core.HealthCheckFailure
	if err := core.ValidateNamespace(repo.Namespace); err != nil {
		failures = append(failures, core.HealthCheckFailure{
			ID:          core.FailureID("naming-namespace", repo.Namespace),
			Summary:     "invalid namespace",
			Description: fmt.Sprintf("The namespace of %s does not satisfy the naming rules: %v", repo.NamespaceAndName(), err),
		})
	}
	if err := core.ValidateName(repo.Name); err != nil {
		failures = append(failures, core.HealthCheckFailure{
			ID:          core.FailureID("naming-name", repo.Name),
			Summary:     "invalid name",
			Description: fmt.Sprintf("The name of %s does not satisfy the naming rules: %v", repo.NamespaceAndName(), err),
		})
	}
	return core.Unhealthy(failures...)
})

// TypeCheck reports repositories whose type is not one of types.
func TypeCheck(types ...string) LightCheck {
	return LightCheckFunc(func(repo core.Repository) core.HealthCheckResult {
		if slices.Contains(types, repo.Type) {
			return core.Healthy()
		}
		return core.Unhealthy(core.HealthCheckFailure{
			ID:          core.FailureID("type", repo.Type),
			Summary:     "unsupported repository type",
			Description: fmt.Sprintf("No backend handles repositories of type %q.", repo.Type),
		})
	})
}
