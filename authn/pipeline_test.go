package authn_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/testutil"
	"github.com/AmmannChristian/go-extauth/user"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
	warns []string
}

func (l *captureLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *captureLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range append(append([]string(nil), l.lines...), l.warns...) {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func mustUser(t *testing.T, username string, opts ...user.Option) *user.InternalUser {
	t.Helper()

	u, err := user.New(username, "Test", "User", opts...)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

func fixedOutcome(u *user.InternalUser, err error) authn.Strategy[string] {
	return authn.StrategyFunc[string](func(context.Context, string) (*user.InternalUser, error) {
		return u, err
	})
}

func newPipeline(t *testing.T, strategy authn.Strategy[string], opts ...authn.PipelineOption) *authn.Pipeline[string, *user.InternalUser] {
	t.Helper()

	p, err := authn.NewPipeline[string, *user.InternalUser](strategy, authn.IdentityConverter{}, opts...)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return p
}

func TestNewPipelineValidation(t *testing.T) {
	if _, err := authn.NewPipeline[string, *user.InternalUser](nil, authn.IdentityConverter{}); err == nil {
		t.Error("expected error for nil strategy")
	}

	strategy := fixedOutcome(nil, nil)
	if _, err := authn.NewPipeline[string, *user.InternalUser](strategy, nil); err == nil {
		t.Error("expected error for nil converter")
	}
}

func TestPipelineSuccess(t *testing.T) {
	u := mustUser(t, "alice")
	listener := testutil.NewRecordingListener("audit")
	p := newPipeline(t, fixedOutcome(u, nil), authn.WithListeners(listener))

	principal, ok, err := p.Authenticate(context.Background(), "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected authenticated")
	}
	if principal.Username() != "alice" {
		t.Errorf("expected alice, got %s", principal.Username())
	}

	events := listener.Events()
	if len(events) != 1 || events[0].Kind != "success" {
		t.Fatalf("expected one success event, got %v", listener.Kinds())
	}
	if !events[0].User.Equal(u) {
		t.Error("listener received a different user")
	}
}

func TestPipelineDenied(t *testing.T) {
	listener := testutil.NewRecordingListener("audit")
	denial := authn.NewDeniedError("test", "insufficient", nil)
	p := newPipeline(t, fixedOutcome(nil, denial), authn.WithListeners(listener))

	principal, ok, err := p.Authenticate(context.Background(), "token")
	if err != nil {
		t.Fatalf("denial must not surface as error, got %v", err)
	}
	if ok || principal != nil {
		t.Fatal("expected not authenticated")
	}

	events := listener.Events()
	if len(events) != 1 || events[0].Kind != "denied" {
		t.Fatalf("expected one denied event, got %v", listener.Kinds())
	}
	if events[0].Denied != denial {
		t.Error("listener received a different denial")
	}
}

func TestPipelineInfrastructureError(t *testing.T) {
	listener := testutil.NewRecordingListener("audit")
	failure := authn.NewInfrastructureError("test", "provider down", nil)
	p := newPipeline(t, fixedOutcome(nil, failure), authn.WithListeners(listener))

	_, ok, err := p.Authenticate(context.Background(), "token")
	if ok {
		t.Fatal("expected not authenticated")
	}
	if !errors.Is(err, authn.ErrInfrastructure) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}

	events := listener.Events()
	if len(events) != 1 || events[0].Kind != "error" {
		t.Fatalf("expected one error event, got %v", listener.Kinds())
	}
	if events[0].Error != failure {
		t.Error("listener received a different error")
	}
}

func TestPipelineUntypedErrorBecomesInfrastructure(t *testing.T) {
	listener := testutil.NewRecordingListener("audit")
	p := newPipeline(t, fixedOutcome(nil, errors.New("boom")), authn.WithListeners(listener))

	_, _, err := p.Authenticate(context.Background(), "token")

	var infra *authn.InfrastructureError
	if !errors.As(err, &infra) {
		t.Fatalf("expected *InfrastructureError, got %T", err)
	}
	if got := listener.Kinds(); len(got) != 1 || got[0] != "error" {
		t.Errorf("expected one error event, got %v", got)
	}
}

func TestPipelineNilUserIsInfrastructureError(t *testing.T) {
	p := newPipeline(t, fixedOutcome(nil, nil))

	_, ok, err := p.Authenticate(context.Background(), "token")
	if ok || !errors.Is(err, authn.ErrInfrastructure) {
		t.Fatalf("expected infrastructure error, got ok=%v err=%v", ok, err)
	}
}

func TestPipelineTypedNilErrorIsInfrastructureError(t *testing.T) {
	var denied *authn.DeniedError
	var infra *authn.InfrastructureError

	tests := []struct {
		name string
		err  error
	}{
		{name: "nil denial", err: denied},
		{name: "nil infrastructure error", err: infra},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listener := testutil.NewRecordingListener("audit")
			p := newPipeline(t, fixedOutcome(nil, tt.err), authn.WithListeners(listener))

			_, ok, err := p.Authenticate(context.Background(), "token")
			if ok {
				t.Fatal("expected not authenticated")
			}

			var got *authn.InfrastructureError
			if !errors.As(err, &got) || got == nil {
				t.Fatalf("expected non-nil *InfrastructureError, got %#v", err)
			}
			if !strings.Contains(err.Error(), "nil error value") {
				t.Errorf("unexpected message %q", err.Error())
			}

			events := listener.Events()
			if len(events) != 1 || events[0].Kind != "error" || events[0].Error == nil {
				t.Errorf("expected one error event with an error, got %v", listener.Kinds())
			}
		})
	}
}

func TestPipelineListenerOrder(t *testing.T) {
	tests := []struct {
		name     string
		strategy authn.Strategy[string]
		kind     string
	}{
		{name: "success", strategy: fixedOutcome(mustUser(t, "alice"), nil), kind: "success"},
		{name: "denied", strategy: fixedOutcome(nil, authn.NewDeniedError("t", "no", nil)), kind: "denied"},
		{name: "error", strategy: fixedOutcome(nil, authn.NewInfrastructureError("t", "down", nil)), kind: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listeners, shared := testutil.NewRecordingListeners("first", "second", "third")
			p := newPipeline(t, tt.strategy)
			for _, l := range listeners {
				p.AddListener(l)
			}

			_, _, _ = p.Authenticate(context.Background(), "token")

			events := shared()
			if len(events) != 3 {
				t.Fatalf("expected 3 notifications, got %d", len(events))
			}
			for i, want := range []string{"first", "second", "third"} {
				if events[i].Listener != want {
					t.Errorf("notification %d went to %s, want %s", i, events[i].Listener, want)
				}
				if events[i].Kind != tt.kind {
					t.Errorf("notification %d kind %s, want %s", i, events[i].Kind, tt.kind)
				}
			}
		})
	}
}

func TestPipelineListenerPanicIsolated(t *testing.T) {
	logger := &captureLogger{}
	after := testutil.NewRecordingListener("after")
	panicking := authn.ListenerFuncs{
		Success: func(context.Context, *user.InternalUser) { panic("listener bug") },
		Denied:  func(context.Context, *authn.DeniedError) { panic("listener bug") },
	}

	p := newPipeline(t, fixedOutcome(mustUser(t, "alice"), nil),
		authn.WithListeners(panicking, after),
		authn.WithPipelineLogger(logger),
	)

	principal, ok, err := p.Authenticate(context.Background(), "token")
	if err != nil || !ok || principal == nil {
		t.Fatalf("panicking listener changed outcome: ok=%v err=%v", ok, err)
	}
	if got := after.Kinds(); len(got) != 1 || got[0] != "success" {
		t.Errorf("later listener not notified: %v", got)
	}
	if !logger.contains("panicked") {
		t.Error("expected panic to be logged")
	}

	denying := newPipeline(t, fixedOutcome(nil, authn.NewDeniedError("t", "no", nil)), authn.WithListeners(panicking))
	_, ok, err = denying.Authenticate(context.Background(), "token")
	if ok || err != nil {
		t.Fatalf("panicking listener changed denial: ok=%v err=%v", ok, err)
	}
}

func TestPipelineRemoveListener(t *testing.T) {
	listener := testutil.NewRecordingListener("audit")
	p := newPipeline(t, fixedOutcome(mustUser(t, "alice"), nil))

	remove := p.AddListener(listener)
	if len(p.Listeners()) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(p.Listeners()))
	}

	_, _, _ = p.Authenticate(context.Background(), "token")
	remove()
	remove() // idempotent
	_, _, _ = p.Authenticate(context.Background(), "token")

	if got := len(listener.Events()); got != 1 {
		t.Errorf("expected 1 event before removal, got %d", got)
	}
	if len(p.Listeners()) != 0 {
		t.Errorf("expected no listeners, got %d", len(p.Listeners()))
	}
}

func TestPipelineRemoveOnlyTargetsOwnRegistration(t *testing.T) {
	listener := testutil.NewRecordingListener("audit")
	p := newPipeline(t, fixedOutcome(mustUser(t, "alice"), nil))

	removeFirst := p.AddListener(listener)
	p.AddListener(listener)
	removeFirst()

	_, _, _ = p.Authenticate(context.Background(), "token")
	if got := len(listener.Events()); got != 1 {
		t.Errorf("expected second registration to remain, got %d events", got)
	}
}

func TestPipelineConcurrentAuthenticateAndMutation(t *testing.T) {
	p := newPipeline(t, fixedOutcome(mustUser(t, "alice"), nil))
	stable := testutil.NewRecordingListener("stable")
	p.AddListener(stable)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, ok, err := p.Authenticate(context.Background(), "token"); !ok || err != nil {
					t.Errorf("unexpected outcome ok=%v err=%v", ok, err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				remove := p.AddListener(authn.ListenerFuncs{})
				remove()
			}
		}()
	}
	wg.Wait()

	if got := len(stable.Events()); got != 400 {
		t.Errorf("expected 400 events, got %d", got)
	}
}

type namedPrincipal struct {
	name string
	u    *user.InternalUser
}

func (p namedPrincipal) Name() string { return p.name }

func TestPipelineCustomConverter(t *testing.T) {
	converter := authn.ConverterFuncs[namedPrincipal]{
		FromUser: func(u *user.InternalUser) namedPrincipal {
			return namedPrincipal{name: u.Username(), u: u}
		},
		FromPrincipal: func(p namedPrincipal) (*user.InternalUser, bool) {
			return p.u, p.u != nil
		},
	}

	p, err := authn.NewPipeline[string, namedPrincipal](fixedOutcome(mustUser(t, "alice"), nil), converter)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	principal, ok, err := p.Authenticate(context.Background(), "token")
	if err != nil || !ok {
		t.Fatalf("unexpected outcome ok=%v err=%v", ok, err)
	}
	if principal.Name() != "alice" {
		t.Errorf("expected alice, got %s", principal.Name())
	}

	u, ok, err := p.AuthenticateUser(context.Background(), "token")
	if err != nil || !ok || u.Username() != "alice" {
		t.Fatalf("AuthenticateUser failed: ok=%v err=%v", ok, err)
	}

	if _, ok := converter.ToInternalUser(namedPrincipal{name: "foreign"}); ok {
		t.Error("foreign principal must not convert")
	}
}
