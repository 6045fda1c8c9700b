package index

import "errors"

var (
	// ErrIndexStoreRequired is returned when the index store is nil.
	ErrIndexStoreRequired = errors.New("index store is required")

	// ErrIndexLogRequired is returned when the index log store is nil.
	ErrIndexLogRequired = errors.New("index log store is required")

	// ErrOracleRequired is returned when the permission oracle is nil.
	ErrOracleRequired = errors.New("permission oracle is required")

	// ErrPoolRequired is returned when the background pool is nil.
	ErrPoolRequired = errors.New("background pool is required")

	// ErrUnknownType is returned for a document type no indexer is registered for.
	ErrUnknownType = errors.New("unknown index type")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
