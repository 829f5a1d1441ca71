package authn

import "github.com/AmmannChristian/go-extauth/user"

// Principal is the minimal contract of an embedding application's identity
// type.
type Principal interface {
	Name() string
}

// PrincipalConverter maps between InternalUser and the principal type P used
// by the embedding application.
type PrincipalConverter[P Principal] interface {
	// ToInternalUser converts a principal back into an InternalUser. It returns
	// false when the principal was not produced by this library.
	ToInternalUser(principal P) (*user.InternalUser, bool)

	// ToPrincipal converts a verified InternalUser. It must not fail for any
	// valid user.
	ToPrincipal(u *user.InternalUser) P
}

// IdentityConverter is used when the embedding application adopts
// *user.InternalUser as its principal type.
type IdentityConverter struct{}

var _ PrincipalConverter[*user.InternalUser] = IdentityConverter{}

// ToInternalUser returns the principal unchanged.
func (IdentityConverter) ToInternalUser(principal *user.InternalUser) (*user.InternalUser, bool) {
	return principal, principal != nil
}

// ToPrincipal returns the user unchanged.
func (IdentityConverter) ToPrincipal(u *user.InternalUser) *user.InternalUser {
	return u
}

// ConverterFuncs builds a PrincipalConverter from two functions. A nil
// FromPrincipal makes every reverse conversion fail softly.
type ConverterFuncs[P Principal] struct {
	FromUser      func(u *user.InternalUser) P
	FromPrincipal func(principal P) (*user.InternalUser, bool)
}

// ToInternalUser calls FromPrincipal.
func (c ConverterFuncs[P]) ToInternalUser(principal P) (*user.InternalUser, bool) {
	if c.FromPrincipal == nil {
		return nil, false
	}
	return c.FromPrincipal(principal)
}

// ToPrincipal calls FromUser.
func (c ConverterFuncs[P]) ToPrincipal(u *user.InternalUser) P {
	return c.FromUser(u)
}
