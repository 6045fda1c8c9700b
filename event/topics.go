package event

// Topic names a typed channel on a Bus.
type Topic[E Kinded] struct {
	name string
}

// NewTopic creates a topic. Topics are compared by name.
func NewTopic[E Kinded](name string) Topic[E] {
	return Topic[E]{name: name}
}

func (t Topic[E]) String() string {
	return t.name
}

// Built-in topics.
var (
	Repositories = NewTopic[RepositoryEvent]("repository")
	Namespaces   = NewTopic[NamespaceEvent]("namespace")
	HealthChecks = NewTopic[HealthCheckEvent]("health-check")
	Hooks        = NewTopic[HookEvent]("hook")
)
