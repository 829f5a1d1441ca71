package authn

import (
	"context"
	"errors"

	"github.com/AmmannChristian/go-extauth/user"
)

// PipelineConfig holds optional pipeline settings.
type PipelineConfig struct {
	listeners []EventListener
	logger    Logger
}

// PipelineOption is a functional option for configuring a Pipeline.
type PipelineOption func(*PipelineConfig)

// WithListeners registers listeners at construction time, in order.
func WithListeners(listeners ...EventListener) PipelineOption {
	return func(c *PipelineConfig) {
		c.listeners = append(c.listeners, listeners...)
	}
}

// WithPipelineLogger sets a logger for outcome and listener failure messages.
func WithPipelineLogger(logger Logger) PipelineOption {
	return func(c *PipelineConfig) {
		c.logger = logger
	}
}

// Pipeline composes a Strategy, a PrincipalConverter and a set of
// EventListeners into a single Authenticate operation.
//
// A Pipeline is safe for concurrent use. Listeners may be added or removed
// while authentications are in flight; each attempt notifies the listeners
// registered when its outcome was determined.
type Pipeline[C any, P Principal] struct {
	strategy  Strategy[C]
	converter PrincipalConverter[P]
	registry  listenerRegistry
	logger    Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline[C any, P Principal](strategy Strategy[C], converter PrincipalConverter[P], opts ...PipelineOption) (*Pipeline[C, P], error) {
	if strategy == nil {
		return nil, errors.New("authn: strategy is required")
	}
	if converter == nil {
		return nil, errors.New("authn: principal converter is required")
	}

	config := &PipelineConfig{}
	for _, opt := range opts {
		opt(config)
	}

	p := &Pipeline[C, P]{
		strategy:  strategy,
		converter: converter,
		logger:    config.logger,
	}
	for _, listener := range config.listeners {
		if listener != nil {
			p.registry.add(listener)
		}
	}

	return p, nil
}

// Authenticate verifies credentials and reports one of three outcomes:
//   - (principal, true, nil): the credentials were verified
//   - (zero, false, nil): the strategy denied the credentials
//   - (zero, false, err): the strategy could not evaluate the credentials;
//     err is always an *InfrastructureError
//
// Listeners are notified exactly once after the outcome is determined.
// A panicking listener is recovered and logged and never changes the outcome.
func (p *Pipeline[C, P]) Authenticate(ctx context.Context, credentials C) (P, bool, error) {
	var zero P
	if ctx == nil {
		ctx = context.Background()
	}

	name := StrategyName(p.strategy)
	verified, err := p.strategy.Verify(ctx, credentials)
	if err == nil && verified == nil {
		err = NewInfrastructureError(name, "strategy returned neither user nor error", nil)
	}

	if err != nil {
		infra, denied := classify(name, err)
		if denied != nil {
			logf(p.logger, "authn: authentication denied by %s: %s", name, denied.Reason)
			p.notify(ctx, func(l EventListener) { l.OnDenied(ctx, denied) })
			return zero, false, nil
		}

		logf(p.logger, "authn: authentication error in %s: %v", name, infra)
		p.notify(ctx, func(l EventListener) { l.OnError(ctx, infra) })
		return zero, false, infra
	}

	principal := p.converter.ToPrincipal(verified)
	logf(p.logger, "authn: authenticated %s via %s", verified.Username(), name)
	p.notify(ctx, func(l EventListener) { l.OnSuccess(ctx, verified) })

	return principal, true, nil
}

// AuthenticateUser is like Authenticate but returns the InternalUser instead
// of the converted principal.
func (p *Pipeline[C, P]) AuthenticateUser(ctx context.Context, credentials C) (*user.InternalUser, bool, error) {
	principal, ok, err := p.Authenticate(ctx, credentials)
	if !ok || err != nil {
		return nil, ok, err
	}

	u, converted := p.converter.ToInternalUser(principal)
	if !converted {
		return nil, false, NewInfrastructureError(StrategyName(p.strategy), "principal could not be converted back to an internal user", nil)
	}
	return u, true, nil
}

// Converter returns the pipeline's principal converter.
func (p *Pipeline[C, P]) Converter() PrincipalConverter[P] {
	return p.converter
}

// AddListener registers a listener and returns a function that removes it.
// The returned function is idempotent.
func (p *Pipeline[C, P]) AddListener(listener EventListener) (remove func()) {
	if listener == nil {
		return func() {}
	}
	return p.registry.add(listener)
}

// Listeners returns a snapshot of the registered listeners in order.
func (p *Pipeline[C, P]) Listeners() []EventListener {
	return p.registry.listeners()
}

func (p *Pipeline[C, P]) notify(ctx context.Context, call func(EventListener)) {
	for _, listener := range p.registry.listeners() {
		p.invoke(listener, call)
	}
}

func (p *Pipeline[C, P]) invoke(listener EventListener, call func(EventListener)) {
	defer func() {
		if r := recover(); r != nil {
			logf(p.logger, "authn: event listener %T panicked: %v", listener, r)
		}
	}()
	call(listener)
}
