package core

import (
	"encoding/binary"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is the immutable identifier of a repository.
// IDs are assigned by the repository manager and never reused.
type ID string

// String returns the ID as a plain string.
func (id ID) String() string {
	return string(id)
}

// Fingerprint produces a deterministic 64-bit digest of content using BLAKE2b.
// Identical content always produces an identical fingerprint.
func Fingerprint(content []byte) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(content)
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// RoleOwner is the role granted to the creator of the first repository in a namespace.
const RoleOwner = "OWNER"

// RepositoryPermission grants a role or explicit verbs to a user or group.
type RepositoryPermission struct {
	Name            string   // User or group name
	Role            string   // Named role, e.g. OWNER, WRITE, READ
	Verbs           []string // Explicit verbs, used when Role is empty
	GroupPermission bool     // True if Name refers to a group
}

// Repository is a snapshot of the canonical repository metadata.
// Timestamps are maintained by the repository manager; values set by callers are ignored.
type Repository struct {
	ID           ID
	Namespace    string
	Name         string
	Type         string // Backend kind, e.g. "git"
	Contact      string
	Description  string
	CreationDate time.Time
	LastModified time.Time // Zero until the first modification
	Permissions  []RepositoryPermission
}

// NamespaceAndName returns the "namespace/name" form used in URLs and log output.
func (r *Repository) NamespaceAndName() string {
	return r.Namespace + "/" + r.Name
}

// Clone returns a deep copy of the repository.
func (r Repository) Clone() Repository {
	r.Permissions = clonePermissions(r.Permissions)
	return r
}

// EnrichedRepository is the read-path view of a repository. It carries derived
// state that is never written to the store.
type EnrichedRepository struct {
	Repository
	HealthCheckFailures []HealthCheckFailure
}

// Healthy reports whether the last recorded health check found no failures.
func (r *EnrichedRepository) Healthy() bool {
	return len(r.HealthCheckFailures) == 0
}

// Namespace groups repositories and carries its own permission list.
type Namespace struct {
	Namespace   string
	Permissions []RepositoryPermission
}

// Clone returns a deep copy of the namespace.
func (n Namespace) Clone() Namespace {
	n.Permissions = clonePermissions(n.Permissions)
	return n
}

// HealthCheckFailure describes one problem found by a health check.
// Failures are identified by ID; two failures with the same ID are the same failure.
type HealthCheckFailure struct {
	ID          string
	Summary     string
	Description string
	URL         string // Optional link to documentation
}

// HealthCheckResult is the outcome of one or more health checks.
type HealthCheckResult struct {
	Failures []HealthCheckFailure
}

// Healthy returns a result without failures.
func Healthy() HealthCheckResult {
	return HealthCheckResult{}
}

// Unhealthy returns a result carrying the given failures in order.
func Unhealthy(failures ...HealthCheckFailure) HealthCheckResult {
	return HealthCheckResult{Failures: slices.Clone(failures)}
}

// IsHealthy reports whether the result contains no failures.
func (r HealthCheckResult) IsHealthy() bool {
	return len(r.Failures) == 0
}

// Merge appends the failures of other, keeping order.
func (r HealthCheckResult) Merge(other HealthCheckResult) HealthCheckResult {
	if len(other.Failures) == 0 {
		return r
	}
	merged := make([]HealthCheckFailure, 0, len(r.Failures)+len(other.Failures))
	merged = append(merged, r.Failures...)
	merged = append(merged, other.Failures...)
	return HealthCheckResult{Failures: merged}
}

// FailureIDs returns the ids of the failures in order.
func FailureIDs(failures []HealthCheckFailure) []string {
	ids := make([]string, len(failures))
	for i, f := range failures {
		ids[i] = f.ID
	}
	return ids
}

// FailureID derives a stable failure id from the check name and the details
// that make the failure distinct.
func FailureID(check string, details ...string) string {
	key := strings.Join(append([]string{check}, details...), "\x00")
	return check + "-" + strconv.FormatUint(Fingerprint([]byte(key)), 36)
}

// SameFailures reports whether a and b contain the same failure ids in the same order.
func SameFailures(a, b []HealthCheckFailure) bool {
	return slices.Equal(FailureIDs(a), FailureIDs(b))
}

// IndexLogEntry records which version of an indexed type's projection is stored.
type IndexLogEntry struct {
	Type        string
	Version     int
	LastIndexed time.Time
}

func clonePermissions(perms []RepositoryPermission) []RepositoryPermission {
	if perms == nil {
		return nil
	}
	out := make([]RepositoryPermission, len(perms))
	for i, p := range perms {
		p.Verbs = slices.Clone(p.Verbs)
		out[i] = p
	}
	return out
}
