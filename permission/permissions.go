package permission

import "strings"

// Permission string builders. Every permission check in repokeeper goes through
// one of these so the strings stay consistent with the index predicates.

// RepositoryCreate is required to create repositories.
func RepositoryCreate() string {
	return "repository:create"
}

// RepositoryRead is required to read a repository.
func RepositoryRead(id string) string {
	return "repository:read:" + id
}

// RepositoryModify is required to modify a repository.
func RepositoryModify(id string) string {
	return "repository:modify:" + id
}

// RepositoryDelete is required to delete a repository.
func RepositoryDelete(id string) string {
	return "repository:delete:" + id
}

// RepositoryHealthCheck is required to run health checks on a repository.
func RepositoryHealthCheck(id string) string {
	return "repository:healthCheck:" + id
}

// NamespacePermissionRead is required to see a namespace's permission list.
func NamespacePermissionRead(namespace string) string {
	return "namespace:permissionRead:" + namespace
}

// NamespacePermissionWrite is required to change a namespace's permission list.
func NamespacePermissionWrite(namespace string) string {
	return "namespace:permissionWrite:" + namespace
}

// Implying returns every granted permission string that implies perm:
// each part may be replaced by "*" and trailing parts may be dropped.
// "*" alone implies everything.
func Implying(perm string) []string {
	parts := strings.Split(perm, ":")
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	for length := len(parts); length >= 1; length-- {
		prefix := parts[:length]
		// Every combination of concrete and wildcard parts.
		for mask := 0; mask < 1<<length; mask++ {
			candidate := make([]string, length)
			for i, part := range prefix {
				if mask&(1<<i) != 0 {
					candidate[i] = "*"
				} else {
					candidate[i] = part
				}
			}
			add(strings.Join(candidate, ":"))
		}
	}
	add("*")
	return out
}
