// Package user defines InternalUser, the normalized identity record produced by
// every authentication strategy in go-extauth.
//
// An InternalUser is immutable once constructed. Strategies build it with New
// and the functional options in this package; embedding applications convert
// it into their own principal type through an authn.PrincipalConverter.
package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingField indicates that a required identity field was empty.
var ErrMissingField = errors.New("user: missing required field")

// InternalUser is an authenticated user as used internally by go-extauth.
type InternalUser struct {
	username  string
	firstname string
	lastname  string
	email     string
	groups    []string
	roles     []string
	logoutURL string
}

// Option configures optional InternalUser attributes.
type Option func(*InternalUser)

// WithEmail sets the user's email address. Empty means absent.
func WithEmail(email string) Option {
	return func(u *InternalUser) {
		u.email = strings.TrimSpace(email)
	}
}

// WithGroups adds group memberships. Empty values and duplicates are dropped.
func WithGroups(groups ...string) Option {
	return func(u *InternalUser) {
		u.groups = append(u.groups, groups...)
	}
}

// WithRoles adds roles. Empty values and duplicates are dropped.
func WithRoles(roles ...string) Option {
	return func(u *InternalUser) {
		u.roles = append(u.roles, roles...)
	}
}

// WithLogoutURL sets the end-session URL for token based strategies.
func WithLogoutURL(logoutURL string) Option {
	return func(u *InternalUser) {
		u.logoutURL = strings.TrimSpace(logoutURL)
	}
}

// New creates an InternalUser. username, firstname and lastname are required;
// an empty value (after trimming) yields an error wrapping ErrMissingField.
func New(username, firstname, lastname string, opts ...Option) (*InternalUser, error) {
	u := &InternalUser{
		username:  strings.TrimSpace(username),
		firstname: strings.TrimSpace(firstname),
		lastname:  strings.TrimSpace(lastname),
	}

	switch {
	case u.username == "":
		return nil, fmt.Errorf("%w: username", ErrMissingField)
	case u.firstname == "":
		return nil, fmt.Errorf("%w: firstname", ErrMissingField)
	case u.lastname == "":
		return nil, fmt.Errorf("%w: lastname", ErrMissingField)
	}

	for _, opt := range opts {
		opt(u)
	}

	u.groups = normalizeSet(u.groups)
	u.roles = normalizeSet(u.roles)

	return u, nil
}

// Username returns the stable login identifier.
func (u *InternalUser) Username() string { return u.username }

// Firstname returns the user's given name.
func (u *InternalUser) Firstname() string { return u.firstname }

// Lastname returns the user's family name.
func (u *InternalUser) Lastname() string { return u.lastname }

// DisplayName returns firstname and lastname separated by a space.
func (u *InternalUser) DisplayName() string { return u.firstname + " " + u.lastname }

// Name returns the display name. It lets InternalUser act as a principal.
func (u *InternalUser) Name() string { return u.DisplayName() }

// Email returns the email address, or "" when none was supplied.
func (u *InternalUser) Email() string { return u.email }

// LogoutURL returns the end-session URL and whether one is present.
func (u *InternalUser) LogoutURL() (string, bool) {
	return u.logoutURL, u.logoutURL != ""
}

// Groups returns a sorted copy of the user's group memberships.
func (u *InternalUser) Groups() []string { return cloneSlice(u.groups) }

// Roles returns a sorted copy of the user's roles.
func (u *InternalUser) Roles() []string { return cloneSlice(u.roles) }

// HasRole reports whether the user holds role.
func (u *InternalUser) HasRole(role string) bool { return containsSorted(u.roles, role) }

// HasGroup reports whether the user is a member of group.
func (u *InternalUser) HasGroup(group string) bool { return containsSorted(u.groups, group) }

// Equal reports whether two users carry identical attributes.
func (u *InternalUser) Equal(other *InternalUser) bool {
	if u == nil || other == nil {
		return u == other
	}

	return u.username == other.username &&
		u.firstname == other.firstname &&
		u.lastname == other.lastname &&
		u.email == other.email &&
		u.logoutURL == other.logoutURL &&
		equalSlices(u.groups, other.groups) &&
		equalSlices(u.roles, other.roles)
}

// String returns a short description suitable for logs.
func (u *InternalUser) String() string {
	return fmt.Sprintf("%s (%s)", u.username, u.DisplayName())
}

type jsonUser struct {
	Username    string   `json:"username"`
	Firstname   string   `json:"firstname"`
	Lastname    string   `json:"lastname"`
	DisplayName string   `json:"displayName,omitempty"`
	Email       string   `json:"email,omitempty"`
	Groups      []string `json:"groups"`
	Roles       []string `json:"roles"`
	LogoutURL   string   `json:"logoutUrl,omitempty"`
}

// MarshalJSON encodes the user including the derived display name.
func (u *InternalUser) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonUser{
		Username:    u.username,
		Firstname:   u.firstname,
		Lastname:    u.lastname,
		DisplayName: u.DisplayName(),
		Email:       u.email,
		Groups:      u.Groups(),
		Roles:       u.Roles(),
		LogoutURL:   u.logoutURL,
	})
}

// UnmarshalJSON decodes a user and enforces the same invariants as New.
// The displayName field is ignored since it is derived.
func (u *InternalUser) UnmarshalJSON(data []byte) error {
	var raw jsonUser
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("user: invalid JSON: %w", err)
	}

	decoded, err := New(raw.Username, raw.Firstname, raw.Lastname,
		WithEmail(raw.Email),
		WithGroups(raw.Groups...),
		WithRoles(raw.Roles...),
		WithLogoutURL(raw.LogoutURL),
	)
	if err != nil {
		return err
	}

	*u = *decoded
	return nil
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
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

	sort.Strings(result)
	return result
}

func cloneSlice(values []string) []string {
	result := make([]string, len(values))
	copy(result, values)
	return result
}

func containsSorted(values []string, value string) bool {
	i := sort.SearchStrings(values, value)
	return i < len(values) && values[i] == value
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
