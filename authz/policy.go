// Package authz evaluates role and group requirements against an
// authenticated user.InternalUser.
package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AmmannChristian/go-extauth/user"
)

// MatchMode defines how a list of required values is matched.
type MatchMode string

const (
	// MatchModeAny allows access if any required value is present.
	MatchModeAny MatchMode = "any"
	// MatchModeAll allows access only if all required values are present.
	MatchModeAll MatchMode = "all"
)

// AuthorizationPolicy configures authorization checks against a user's roles
// and groups.
//
// Authorization is disabled when both RequiredRoles and RequiredGroups are
// empty.
//
// Defaults:
//   - RoleMatchMode: any (like a roles-allowed annotation)
//   - GroupMatchMode: any
//
// Unknown match modes are normalized to "all" (fail-closed).
type AuthorizationPolicy struct {
	RequiredRoles  []string  `yaml:"requiredRoles"`
	RequiredGroups []string  `yaml:"requiredGroups"`
	RoleMatchMode  MatchMode `yaml:"roleMatchMode"`
	GroupMatchMode MatchMode `yaml:"groupMatchMode"`
}

// ErrPermissionDenied indicates that authorization requirements are not satisfied.
var ErrPermissionDenied = errors.New("authorization: permission denied")

// PermissionDeniedError carries structured authorization failure details.
type PermissionDeniedError struct {
	Username      string
	MissingRoles  []string
	MissingGroups []string
}

// Error returns a concise authorization error message.
func (e *PermissionDeniedError) Error() string {
	hasRoles := len(e.MissingRoles) > 0
	hasGroups := len(e.MissingGroups) > 0

	switch {
	case hasRoles && hasGroups:
		return fmt.Sprintf("authorization: missing required roles %v and groups %v", e.MissingRoles, e.MissingGroups)
	case hasRoles:
		return fmt.Sprintf("authorization: missing required roles %v", e.MissingRoles)
	case hasGroups:
		return fmt.Sprintf("authorization: missing required groups %v", e.MissingGroups)
	default:
		return ErrPermissionDenied.Error()
	}
}

// Is enables errors.Is(err, ErrPermissionDenied).
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Evaluator evaluates authorization policies against users.
type Evaluator struct {
	policy normalizedPolicy
}

type normalizedPolicy struct {
	requiredRoles  []string
	requiredGroups []string
	roleMatchMode  MatchMode
	groupMatchMode MatchMode
}

// NewEvaluator creates a policy evaluator with normalized defaults.
func NewEvaluator(policy AuthorizationPolicy) *Evaluator {
	return &Evaluator{policy: normalizedPolicy{
		requiredRoles:  normalizeValues(policy.RequiredRoles),
		requiredGroups: normalizeValues(policy.RequiredGroups),
		roleMatchMode:  normalizeMatchMode(policy.RoleMatchMode),
		groupMatchMode: normalizeMatchMode(policy.GroupMatchMode),
	}}
}

// Enabled reports whether this policy performs authorization checks.
func (e *Evaluator) Enabled() bool {
	return len(e.policy.requiredRoles) > 0 || len(e.policy.requiredGroups) > 0
}

// Authorize evaluates the policy against u. A nil user fails every enabled
// policy.
func (e *Evaluator) Authorize(u *user.InternalUser) error {
	if !e.Enabled() {
		return nil
	}

	username := ""
	hasRole := func(string) bool { return false }
	hasGroup := func(string) bool { return false }
	if u != nil {
		username = u.Username()
		hasRole = u.HasRole
		hasGroup = u.HasGroup
	}

	missingRoles := matchRequired(e.policy.requiredRoles, hasRole, e.policy.roleMatchMode)
	missingGroups := matchRequired(e.policy.requiredGroups, hasGroup, e.policy.groupMatchMode)
	if len(missingRoles) == 0 && len(missingGroups) == 0 {
		return nil
	}

	return &PermissionDeniedError{
		Username:      username,
		MissingRoles:  missingRoles,
		MissingGroups: missingGroups,
	}
}

// Evaluate is a convenience function for one-off authorization checks.
func Evaluate(policy AuthorizationPolicy, u *user.InternalUser) error {
	return NewEvaluator(policy).Authorize(u)
}

// RolesAllowed returns a policy granting access to users holding any of roles.
func RolesAllowed(roles ...string) AuthorizationPolicy {
	return AuthorizationPolicy{RequiredRoles: roles, RoleMatchMode: MatchModeAny}
}

func normalizeMatchMode(mode MatchMode) MatchMode {
	normalized := strings.ToLower(strings.TrimSpace(string(mode)))
	switch normalized {
	case "", string(MatchModeAny):
		return MatchModeAny
	case string(MatchModeAll):
		return MatchModeAll
	default:
		return MatchModeAll
	}
}

func normalizeValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

func matchRequired(required []string, has func(string) bool, mode MatchMode) []string {
	if len(required) == 0 {
		return nil
	}

	if mode == MatchModeAny {
		for _, value := range required {
			if has(value) {
				return nil
			}
		}
		missing := make([]string, len(required))
		copy(missing, required)
		return missing
	}

	missing := make([]string, 0, len(required))
	for _, value := range required {
		if !has(value) {
			missing = append(missing, value)
		}
	}

	return missing
}
