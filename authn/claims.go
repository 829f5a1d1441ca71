package authn

import (
	"fmt"
	"strings"

	"github.com/AmmannChristian/go-extauth/internal/claims"
	"github.com/AmmannChristian/go-extauth/user"
)

// claimMapper turns a verified claim set into an InternalUser. It is shared
// by the strategies that receive claims from an identity provider.
type claimMapper struct {
	strategy  string
	evidence  string
	names     ClaimNames
	rolePaths []string
	logger    Logger
}

func newClaimMapper(strategy, evidence string, names ClaimNames, rolePaths []string, logger Logger) claimMapper {
	paths := make([]string, 0, len(rolePaths))
	for _, path := range rolePaths {
		if path = strings.TrimSpace(path); path != "" {
			paths = append(paths, path)
		}
	}

	return claimMapper{
		strategy:  strategy,
		evidence:  evidence,
		names:     names.withDefaults(),
		rolePaths: paths,
		logger:    logger,
	}
}

// user maps values to an InternalUser. A missing identity claim is a denial.
// A non-empty issuer yields the logout URL.
func (m claimMapper) user(values map[string]any, issuer string) (*user.InternalUser, error) {
	required := make(map[string]string, 3)
	for _, name := range []string{m.names.Username, m.names.Firstname, m.names.Lastname} {
		value := claims.String(values, name)
		if value == "" {
			logf(m.logger, "authn: authentication denied - %s did not contain valid claim field [%s]", m.evidence, name)
			return nil, NewDeniedError(m.strategy, fmt.Sprintf("%s did not contain valid claim field [%s]", m.evidence, name), nil)
		}
		required[name] = value
	}

	opts := []user.Option{
		user.WithEmail(claims.String(values, m.names.Email)),
		user.WithGroups(claims.Strings(values, m.names.Groups)...),
		user.WithRoles(m.roles(values)...),
	}
	if issuer != "" {
		opts = append(opts, user.WithLogoutURL(issuer+LogoutPath))
	}

	u, err := user.New(required[m.names.Username], required[m.names.Firstname], required[m.names.Lastname], opts...)
	if err != nil {
		return nil, NewDeniedError(m.strategy, m.evidence+" claims do not describe a valid user", err)
	}
	return u, nil
}

func (m claimMapper) roles(values map[string]any) []string {
	roles := claims.Strings(values, m.names.Roles)
	roles = append(roles, claims.ContainerRoles(values, m.names.RealmAccess)...)
	roles = append(roles, claims.NestedContainerRoles(values, m.names.ResourceAccess)...)
	for _, path := range m.rolePaths {
		roles = append(roles, claims.PathStrings(values, path)...)
	}
	return roles
}
