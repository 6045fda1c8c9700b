// Package health runs health checks on repositories and records their results.
//
// Light checks are pure functions of the repository metadata and always run
// in registration order. Full checks add an optional, backend specific check
// against the repository data, looked up by repository type.
//
// Results are kept by the PostProcessor, which attaches the last recorded
// failures to repositories on the read path and emits a HealthCheckEvent when
// a repository's failures change.
package health
