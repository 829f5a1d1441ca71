package logging

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/user"
)

var _ authn.EventListener = (*EventLogger)(nil)

// EventLogger is an authn.EventListener writing one structured line per
// authentication outcome. Successes are logged at info, denials at warn and
// infrastructure errors at error level. Credentials are never logged.
type EventLogger struct {
	zl zerolog.Logger
}

// NewEventLogger creates an EventLogger writing to zl.
func NewEventLogger(zl zerolog.Logger) *EventLogger {
	return &EventLogger{zl: zl.With().Str("component", "authn").Logger()}
}

// OnSuccess logs the authenticated user.
func (l *EventLogger) OnSuccess(ctx context.Context, u *user.InternalUser) {
	l.event(ctx, l.zl.Info(), "success").
		Str("username", u.Username()).
		Strs("roles", u.Roles()).
		Strs("groups", u.Groups()).
		Msg("authentication.succeeded")
}

// OnDenied logs the denial reason.
func (l *EventLogger) OnDenied(ctx context.Context, err *authn.DeniedError) {
	l.event(ctx, l.zl.Warn(), "denied").
		Str("strategy", err.Strategy).
		Str("reason", err.Reason).
		Msg("authentication.denied")
}

// OnError logs the infrastructure failure.
func (l *EventLogger) OnError(ctx context.Context, err *authn.InfrastructureError) {
	l.event(ctx, l.zl.Error(), "error").
		Str("strategy", err.Strategy).
		Str("reason", err.Reason).
		AnErr("cause", err.Err).
		Msg("authentication.failed")
}

func (l *EventLogger) event(ctx context.Context, e *zerolog.Event, outcome string) *zerolog.Event {
	e = e.Str("outcome", outcome)
	if id := CorrelationIDFromContext(ctx); id != "" {
		e = e.Str("correlation_id", id)
	}
	return e
}
