package authn

import (
	"errors"
	"fmt"
)

var (
	// ErrDenied matches every *DeniedError via errors.Is.
	ErrDenied = errors.New("authn: authentication denied")

	// ErrInfrastructure matches every *InfrastructureError via errors.Is.
	ErrInfrastructure = errors.New("authn: authentication error")
)

// DeniedError reports that a strategy understood the credentials but judged
// them invalid or insufficient. The pipeline treats it as a normal
// "not authenticated" outcome.
type DeniedError struct {
	Strategy string // Name of the strategy that denied the credentials
	Reason   string // Human readable reason
	Err      error  // Optional underlying cause
}

// NewDeniedError creates a DeniedError.
func NewDeniedError(strategy, reason string, err error) *DeniedError {
	return &DeniedError{Strategy: strategy, Reason: reason, Err: err}
}

// Error returns the denial message.
func (e *DeniedError) Error() string {
	msg := "authn: authentication denied"
	if e.Strategy != "" {
		msg += " by " + e.Strategy
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DeniedError) Unwrap() error { return e.Err }

// Is enables errors.Is(err, ErrDenied).
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// InfrastructureError reports that a strategy could not evaluate the
// credentials at all (malformed input, unusable key material, provider
// malfunction). The pipeline propagates it to the caller.
type InfrastructureError struct {
	Strategy string // Name of the strategy that failed
	Reason   string // Human readable reason
	Err      error  // Optional underlying cause
}

// NewInfrastructureError creates an InfrastructureError.
func NewInfrastructureError(strategy, reason string, err error) *InfrastructureError {
	return &InfrastructureError{Strategy: strategy, Reason: reason, Err: err}
}

// Error returns the failure message.
func (e *InfrastructureError) Error() string {
	msg := "authn: authentication error"
	if e.Strategy != "" {
		msg += " in " + e.Strategy
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *InfrastructureError) Unwrap() error { return e.Err }

// Is enables errors.Is(err, ErrInfrastructure).
func (e *InfrastructureError) Is(target error) bool {
	return target == ErrInfrastructure
}

// IsDenied reports whether err is classified as a denial.
func IsDenied(err error) bool {
	_, denied := classify("", err)
	return denied != nil
}

// classify maps an arbitrary strategy error onto exactly one of the two
// failure variants. Infrastructure errors take precedence when an error chain
// carries both; untyped errors are infrastructure errors.
func classify(strategy string, err error) (*InfrastructureError, *DeniedError) {
	if err == nil {
		return nil, nil
	}

	switch typed := err.(type) {
	case *DeniedError:
		if typed == nil {
			return nilErrorValue(strategy), nil
		}
		return nil, typed
	case *InfrastructureError:
		if typed == nil {
			return nilErrorValue(strategy), nil
		}
		return typed, nil
	}

	var infra *InfrastructureError
	if errors.As(err, &infra) {
		if infra == nil {
			return nilErrorValue(strategy), nil
		}
		return infra, nil
	}

	var denied *DeniedError
	if errors.As(err, &denied) {
		if denied == nil {
			return nilErrorValue(strategy), nil
		}
		return nil, denied
	}

	return NewInfrastructureError(strategy, "unexpected strategy failure", err), nil
}

// nilErrorValue reports a typed nil *DeniedError or *InfrastructureError
// returned as a non-nil error.
func nilErrorValue(strategy string) *InfrastructureError {
	return NewInfrastructureError(strategy, "strategy returned a nil error value", nil)
}
