package authn

import (
	"context"
	"errors"
	"strings"

	"github.com/AmmannChristian/go-extauth/user"
)

const chainStrategyName = "chain"

// ChainStrategy tries delegates in order and returns the first success.
//
// When every delegate fails:
//   - if any delegate returned an InfrastructureError, the first one is
//     reported, wrapped in a chain InfrastructureError whose Err joins every
//     delegate failure
//   - otherwise the last DeniedError is reported
type ChainStrategy[C any] struct {
	delegates []Strategy[C]
	logger    Logger
}

// NewChainStrategy creates a ChainStrategy. At least one delegate is required
// and nil delegates are rejected.
func NewChainStrategy[C any](delegates []Strategy[C], logger Logger) (*ChainStrategy[C], error) {
	if len(delegates) == 0 {
		return nil, errors.New("authn: chain requires at least one delegate")
	}
	for _, delegate := range delegates {
		if delegate == nil {
			return nil, errors.New("authn: chain delegate must not be nil")
		}
	}

	copied := make([]Strategy[C], len(delegates))
	copy(copied, delegates)
	return &ChainStrategy[C]{delegates: copied, logger: logger}, nil
}

// StrategyName returns "chain".
func (s *ChainStrategy[C]) StrategyName() string { return chainStrategyName }

// Delegates returns a copy of the delegate list.
func (s *ChainStrategy[C]) Delegates() []Strategy[C] {
	copied := make([]Strategy[C], len(s.delegates))
	copy(copied, s.delegates)
	return copied
}

// Verify tries each delegate in order.
func (s *ChainStrategy[C]) Verify(ctx context.Context, credentials C) (*user.InternalUser, error) {
	var (
		firstInfra *InfrastructureError
		lastDenied *DeniedError
		failures   []error
	)

	for _, delegate := range s.delegates {
		name := StrategyName(delegate)
		u, err := delegate.Verify(ctx, credentials)
		if err == nil && u != nil {
			logf(s.logger, "authn: chain delegate %s authenticated %s", name, u.Username())
			return u, nil
		}
		if err == nil {
			err = NewInfrastructureError(name, "strategy returned neither user nor error", nil)
		}

		infra, denied := classify(name, err)
		if infra != nil {
			if firstInfra == nil {
				firstInfra = infra
			}
			failures = append(failures, infra)
		} else {
			lastDenied = denied
			failures = append(failures, denied)
		}
		logf(s.logger, "authn: chain delegate %s failed: %v", name, err)
	}

	if firstInfra != nil {
		return nil, NewInfrastructureError(chainStrategyName, delegateSummary(firstInfra), errors.Join(failures...))
	}
	return nil, lastDenied
}

func delegateSummary(first *InfrastructureError) string {
	var b strings.Builder
	b.WriteString("all delegates failed; first error")
	if first.Strategy != "" {
		b.WriteString(" from ")
		b.WriteString(first.Strategy)
	}
	if first.Reason != "" {
		b.WriteString(": ")
		b.WriteString(first.Reason)
	}
	return b.String()
}
