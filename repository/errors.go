package repository

import "errors"

var (
	// ErrStoreRequired is returned when the repository store is nil.
	ErrStoreRequired = errors.New("repository store is required")

	// ErrBusRequired is returned when the event bus is nil.
	ErrBusRequired = errors.New("event bus is required")

	// ErrOracleRequired is returned when the permission oracle is nil.
	ErrOracleRequired = errors.New("permission oracle is required")
)
