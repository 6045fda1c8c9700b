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

package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	cedar "github.com/cedar-policy/cedar-go"
	"github.com/poiesic/repokeeper/core"
)

const cedarNamespace = "Repokeeper"

// DefaultPolicies permits a check when the subject holds any permission string
// that implies the requested one.
const DefaultPolicies = `
permit(
  principal,
  action == Repokeeper::Action::"check",
  resource
) when {
  principal.granted.containsAny(context.candidates)
};
`

var ErrPolicyFileRequired = errors.New("policy file path is required")

// Oracle answers permission questions for the subject carried in a context.
type Oracle interface {
	// Check returns a core.KindAuthorization error if perm is not held.
	Check(ctx context.Context, perm string) error
	// IsPermitted reports whether perm is held.
	IsPermitted(ctx context.Context, perm string) bool
}

// CedarOracle evaluates permission checks against a Cedar policy set.
type CedarOracle struct {
	policySet *cedar.PolicySet
	policies  []byte
	logger    *slog.Logger
}

var _ Oracle = (*CedarOracle)(nil)

// Option configures a CedarOracle.
type Option func(*CedarOracle) error

// WithPolicies replaces the default policy set.
func WithPolicies(policies []byte) Option {
	return func(o *CedarOracle) error {
		o.policies = policies
		return nil
	}
}

// WithPolicyFile reads the policy set from path.
func WithPolicyFile(path string) Option {
	return func(o *CedarOracle) error {
		if path == "" {
			return ErrPolicyFileRequired
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy file: %w", err)
		}
		o.policies = data
		return nil
	}
}

// WithLogger sets the logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *CedarOracle) error {
		o.logger = logger
		return nil
	}
}

// NewCedarOracle creates an oracle using DefaultPolicies unless overridden.
func NewCedarOracle(opts ...Option) (*CedarOracle, error) {
	o := &CedarOracle{policies: []byte(DefaultPolicies)}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", o.policies)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Cedar policies: %w", err)
	}
	o.policySet = ps
	return o, nil
}

// Check implements Oracle.
func (o *CedarOracle) Check(ctx context.Context, perm string) error {
	if !o.IsPermitted(ctx, perm) {
		return core.Unauthorized(perm)
	}
	return nil
}

// IsPermitted implements Oracle.
func (o *CedarOracle) IsPermitted(ctx context.Context, perm string) bool {
	subject := SubjectFrom(ctx)

	granted := subject.Granted
	if subject.Admin {
		granted = append([]string{"*"}, granted...)
	}
	grantedValues := make([]cedar.Value, len(granted))
	for i, g := range granted {
		grantedValues[i] = cedar.String(g)
	}
	groupValues := make([]cedar.Value, len(subject.Groups))
	for i, g := range subject.Groups {
		groupValues[i] = cedar.String(g)
	}

	principalUID := cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Subject"), cedar.String(subject.Name))
	entities := cedar.EntityMap{
		principalUID: cedar.Entity{
			UID: principalUID,
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"granted": cedar.NewSet(grantedValues...),
				"groups":  cedar.NewSet(groupValues...),
			}),
		},
	}

	implying := Implying(perm)
	candidates := make([]cedar.Value, len(implying))
	for i, c := range implying {
		candidates[i] = cedar.String(c)
	}

	req := cedar.Request{
		Principal: principalUID,
		Action:    cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Action"), cedar.String("check")),
		Resource:  cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Permission"), cedar.String(perm)),
		Context: cedar.NewRecord(cedar.RecordMap{
			"candidates": cedar.NewSet(candidates...),
		}),
	}

	decision, _ := cedar.Authorize(o.policySet, entities, req)
	allowed := decision == cedar.Allow
	o.logger.Debug("permission check",
		"subject", subject.Name,
		"permission", perm,
		"allowed", allowed)
	return allowed
}
