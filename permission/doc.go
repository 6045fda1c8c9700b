// Package permission answers authorization questions for repokeeper.
//
// Permissions are colon-separated strings such as "repository:read:42" or
// "namespace:permissionWrite:hitchhiker". A Subject carries the permission
// strings it was granted; granted strings may use "*" for any part and may be
// shorter than the checked permission, in which case the missing parts are
// implied ("repository" implies "repository:read:42").
//
// The Subject travels in the context.Context. RunAsAdmin runs a unit of work
// with an administrative subject while keeping the acting subject available
// through ActingSubject.
package permission
