// Package index keeps a searchable projection of repokeeper entities.
//
// Each indexed type carries a version. On start the Synchronizer compares the
// stored IndexLogEntry version of every type with the current one and rebuilds
// the projection of outdated types: all documents of the type are deleted, every
// entity is stored again, and the new version is written last. Between starts
// the projection follows lifecycle events incrementally and on a best-effort
// basis; write failures are logged and never reach the mutating caller.
//
// Every document carries the permission a subject needs to see it, so the
// Searcher can filter results without loading the entities.
package index
