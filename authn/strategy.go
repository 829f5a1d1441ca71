package authn

import (
	"context"
	"fmt"

	"github.com/AmmannChristian/go-extauth/user"
)

// Strategy verifies raw credentials of type C and produces an InternalUser.
//
// Verify returns exactly one of:
//   - a non-nil *user.InternalUser (success)
//   - a *DeniedError (credentials understood but insufficient)
//   - an *InfrastructureError (credentials could not be evaluated)
//
// Implementations must be safe for concurrent use.
type Strategy[C any] interface {
	Verify(ctx context.Context, credentials C) (*user.InternalUser, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc[C any] func(ctx context.Context, credentials C) (*user.InternalUser, error)

// Verify calls f.
func (f StrategyFunc[C]) Verify(ctx context.Context, credentials C) (*user.InternalUser, error) {
	return f(ctx, credentials)
}

// Named is implemented by strategies that report a name for errors and logs.
type Named interface {
	StrategyName() string
}

// StrategyName returns the name reported by s, or its dynamic type.
func StrategyName(s any) string {
	if named, ok := s.(Named); ok {
		return named.StrategyName()
	}
	return fmt.Sprintf("%T", s)
}

// Extractor derives the credentials a strategy understands from a transport
// specific credential value. Returning a *DeniedError signals that the
// expected credentials are absent.
type Extractor[C, D any] func(ctx context.Context, credentials C) (D, error)

// Adapt wraps a Strategy[D] so it accepts credentials of type C. It allows a
// single chain to mix strategies that consume different credential shapes,
// e.g. bearer tokens and header maps taken from the same HTTP request.
func Adapt[C, D any](strategy Strategy[D], extract Extractor[C, D]) Strategy[C] {
	return &adaptedStrategy[C, D]{strategy: strategy, extract: extract}
}

type adaptedStrategy[C, D any] struct {
	strategy Strategy[D]
	extract  Extractor[C, D]
}

func (a *adaptedStrategy[C, D]) Verify(ctx context.Context, credentials C) (*user.InternalUser, error) {
	extracted, err := a.extract(ctx, credentials)
	if err != nil {
		name := a.StrategyName()
		infra, denied := classify(name, err)
		if denied != nil {
			if denied.Strategy == "" {
				named := *denied
				named.Strategy = name
				return nil, &named
			}
			return nil, denied
		}
		if infra.Strategy == "" {
			named := *infra
			named.Strategy = name
			return nil, &named
		}
		return nil, infra
	}

	return a.strategy.Verify(ctx, extracted)
}

func (a *adaptedStrategy[C, D]) StrategyName() string {
	return StrategyName(a.strategy)
}
