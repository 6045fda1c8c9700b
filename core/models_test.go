package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint([]byte("repo")), Fingerprint([]byte("repo")))
	assert.NotEqual(t, Fingerprint([]byte("repo-a")), Fingerprint([]byte("repo-b")))
}

func TestRepository_Clone(t *testing.T) {
	original := Repository{
		ID:        "42",
		Namespace: "hitchhiker",
		Name:      "heart-of-gold",
		Type:      "git",
		Permissions: []RepositoryPermission{
			{Name: "trillian", Verbs: []string{"read", "push"}},
		},
	}

	clone := original.Clone()
	clone.Permissions[0].Verbs[0] = "delete"
	clone.Permissions = append(clone.Permissions, RepositoryPermission{Name: "zaphod"})

	assert.Equal(t, "read", original.Permissions[0].Verbs[0])
	assert.Len(t, original.Permissions, 1)
	assert.Equal(t, "hitchhiker/heart-of-gold", clone.NamespaceAndName())
}

func TestHealthCheckResult_Merge(t *testing.T) {
	a := Unhealthy(HealthCheckFailure{ID: "a"})
	b := Unhealthy(HealthCheckFailure{ID: "b"}, HealthCheckFailure{ID: "c"})

	merged := a.Merge(Healthy()).Merge(b)

	assert.False(t, merged.IsHealthy())
	assert.Equal(t, []string{"a", "b", "c"}, FailureIDs(merged.Failures))
	assert.True(t, Healthy().IsHealthy())
}

func TestSameFailures(t *testing.T) {
	tests := []struct {
		name string
		a, b []HealthCheckFailure
		want bool
	}{
		{
			name: "both empty",
			want: true,
		},
		{
			name: "same ids different descriptions",
			a:    []HealthCheckFailure{{ID: "x", Summary: "one"}},
			b:    []HealthCheckFailure{{ID: "x", Summary: "two"}},
			want: true,
		},
		{
			name: "same ids different order",
			a:    []HealthCheckFailure{{ID: "x"}, {ID: "y"}},
			b:    []HealthCheckFailure{{ID: "y"}, {ID: "x"}},
			want: false,
		},
		{
			name: "different ids",
			a:    []HealthCheckFailure{{ID: "x"}},
			b:    []HealthCheckFailure{{ID: "z"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameFailures(tt.a, tt.b))
		})
	}
}

func TestFailureID(t *testing.T) {
	id := FailureID("naming", "hitchhiker/../etc")
	assert.Equal(t, id, FailureID("naming", "hitchhiker/../etc"))
	assert.True(t, strings.HasPrefix(id, "naming-"))
	assert.NotEqual(t, id, FailureID("naming", "hitchhiker/.."))
	assert.NotEqual(t, FailureID("type", "a", "b"), FailureID("type", "ab"))
}
