package authn

import (
	"context"
	"errors"
	"log"

	"github.com/AmmannChristian/go-extauth/user"
)

const (
	fixedStrategyName = "dev"

	// DevModeWarning is logged on every FixedStrategy invocation.
	DevModeWarning = "********** USING DEV MODE AUTHENTICATOR. DO NOT USE IN PRODUCTION **********"
)

// FixedStrategy always authenticates as a single configured user, whatever
// the credentials. It exists for local development only and logs
// DevModeWarning on every call.
type FixedStrategy[C any] struct {
	user   *user.InternalUser
	logger Logger
}

// NewFixedStrategy creates a FixedStrategy. A nil logger falls back to
// log.Default() so the warning is never silenced.
func NewFixedStrategy[C any](u *user.InternalUser, logger Logger) (*FixedStrategy[C], error) {
	if u == nil {
		return nil, errors.New("authn: dev user is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FixedStrategy[C]{user: u, logger: logger}, nil
}

// StrategyName returns "dev".
func (s *FixedStrategy[C]) StrategyName() string { return fixedStrategyName }

// User returns the configured user.
func (s *FixedStrategy[C]) User() *user.InternalUser { return s.user }

// Verify ignores credentials and returns the configured user.
func (s *FixedStrategy[C]) Verify(_ context.Context, _ C) (*user.InternalUser, error) {
	warnf(s.logger, "%s", DevModeWarning)
	return s.user, nil
}
