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
	"fmt"
	"regexp"
	"strings"
)

var (
	namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-_]*$`)
	segmentPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-_]*$`)
)

// ValidateRepository validates a Repository according to domain rules.
//
// Validation rules:
//   - Namespace must be a single path segment
//   - Name may consist of several "/"-separated segments; none may be empty,
//     "." or ".."
//   - Type must not be empty
//
// NOT validated (maintained by the manager):
//   - ID
//   - CreationDate and LastModified
func ValidateRepository(repo *Repository) error {
	if repo == nil {
		return Invalid("repository", fmt.Errorf("repository is nil"))
	}
	if err := ValidateNamespace(repo.Namespace); err != nil {
		return Invalid("repository", err)
	}
	if err := ValidateName(repo.Name); err != nil {
		return Invalid("repository", err)
	}
	if repo.Type == "" {
		return Invalid("repository", ErrEmptyType)
	}
	return nil
}

// ValidateNamespace checks a namespace against the naming rules.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return ErrEmptyNamespace
	}
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	return nil
}

// ValidateName checks a repository name against the naming rules.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "." || segment == ".." || !segmentPattern.MatchString(segment) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}
