package permission

import "context"

// Subject is the principal a permission check is evaluated for.
type Subject struct {
	Name    string
	Groups  []string
	Admin   bool     // Administrators hold every permission
	Granted []string // Granted permission strings, may contain wildcards
}

// Anonymous is used when the context carries no subject. It holds no permissions.
var Anonymous = Subject{Name: "_anonymous"}

// AdminName is the name of the subject used by RunAsAdmin.
const AdminName = "_admin"

type subjectKey struct{}

type actingKey struct{}

// WithSubject returns a context carrying subject.
func WithSubject(ctx context.Context, subject Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the subject carried by ctx, or Anonymous.
func SubjectFrom(ctx context.Context) Subject {
	if s, ok := ctx.Value(subjectKey{}).(Subject); ok {
		return s
	}
	return Anonymous
}

// ActingSubject returns the subject that started the current unit of work.
// Inside RunAsAdmin this is the subject that was active before elevation.
func ActingSubject(ctx context.Context) Subject {
	if s, ok := ctx.Value(actingKey{}).(Subject); ok {
		return s
	}
	return SubjectFrom(ctx)
}

// RunAsAdmin runs fn with an administrative subject.
// The caller's subject stays available through ActingSubject.
func RunAsAdmin(ctx context.Context, fn func(ctx context.Context) error) error {
	acting := ActingSubject(ctx)
	ctx = context.WithValue(ctx, actingKey{}, acting)
	ctx = WithSubject(ctx, Subject{Name: AdminName, Admin: true})
	return fn(ctx)
}
