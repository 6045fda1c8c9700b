// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors. Callers match on the kind rather than on
// concrete error types.
type ErrorKind int

const (
	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown ErrorKind = iota
	// KindValidation marks malformed input or a violated uniqueness rule.
	KindValidation
	// KindAuthorization marks a denied permission check.
	KindAuthorization
	// KindNotFound marks a missing entity.
	KindNotFound
	// KindVeto marks a mutation cancelled by a pre-event subscriber.
	KindVeto
	// KindConflict marks an entity that already exists.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not found"
	case KindVeto:
		return "veto"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching. Any *Error with the same kind matches.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrVeto          = &Error{Kind: KindVeto}
	ErrConflict      = &Error{Kind: KindConflict}
)

// Error is a domain error carrying its kind and the entity it concerns.
type Error struct {
	Kind       ErrorKind
	EntityType string // e.g. "repository", "namespace"
	ID         string // Entity id or permission string
	Err        error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.EntityType != "" {
		msg += ": " + e.EntityType
		if e.ID != "" {
			msg += " " + e.ID
		}
	} else if e.ID != "" {
		msg += ": " + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NotFound returns a NotFound error for the given entity.
func NotFound(entityType, id string) error {
	return &Error{Kind: KindNotFound, EntityType: entityType, ID: id}
}

// AlreadyExists returns a Conflict error for the given entity.
func AlreadyExists(entityType, id string) error {
	return &Error{Kind: KindConflict, EntityType: entityType, ID: id}
}

// Unauthorized returns an Authorization error for the given permission.
func Unauthorized(permission string) error {
	return &Error{Kind: KindAuthorization, ID: permission}
}

// Invalid returns a Validation error for the given entity wrapping cause.
func Invalid(entityType string, cause error) error {
	return &Error{Kind: KindValidation, EntityType: entityType, Err: cause}
}

// Vetoed returns a Veto error wrapping the subscriber's error.
func Vetoed(subscriber string, cause error) error {
	return &Error{Kind: KindVeto, ID: subscriber, Err: fmt.Errorf("vetoed: %w", cause)}
}

// Domain validation errors
var (
	// ErrEmptyNamespace indicates the Namespace field is empty.
	ErrEmptyNamespace = errors.New("namespace cannot be empty")

	// ErrEmptyName indicates the Name field is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrEmptyType indicates the Type field is empty.
	ErrEmptyType = errors.New("type cannot be empty")

	// ErrInvalidNamespace indicates the namespace does not match the naming rules.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidName indicates the name does not match the naming rules.
	ErrInvalidName = errors.New("invalid name")
)
