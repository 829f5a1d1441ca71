package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/user"
)

const testMethod = "/orders.v1.Orders/Get"

type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockLogger) Printf(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf(format, args...))
}

func (m *mockLogger) contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func testUser(t *testing.T, username string, opts ...user.Option) *user.InternalUser {
	t.Helper()

	u, err := user.New(username, "Test", "User", opts...)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

// tokenStrategy accepts the bearer token "valid-token", fails on
// "broken-token" and denies everything else.
func tokenStrategy(u *user.InternalUser) authn.Strategy[metadata.MD] {
	return JWT(authn.StrategyFunc[string](func(_ context.Context, token string) (*user.InternalUser, error) {
		switch token {
		case "valid-token":
			return u, nil
		case "broken-token":
			return nil, authn.NewInfrastructureError("jwt", "JWT is invalid", errors.New("bad signature"))
		default:
			return nil, authn.NewDeniedError("jwt", "unknown token", nil)
		}
	}))
}

func newTestPipeline(t *testing.T, strategy authn.Strategy[metadata.MD]) *Pipeline[*user.InternalUser] {
	t.Helper()

	pipeline, err := NewUserPipeline(strategy)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return pipeline
}

func incoming(authorization string) context.Context {
	if authorization == "" {
		return metadata.NewIncomingContext(context.Background(), metadata.MD{})
	}
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", authorization))
}

func unaryInfo() *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: testMethod}
}

func expectCode(t *testing.T, err error, want codes.Code) {
	t.Helper()

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != want {
		t.Fatalf("expected %v, got %v (%s)", want, st.Code(), st.Message())
	}
}

func TestUnaryServerInterceptor_Success(t *testing.T) {
	interceptor := UnaryServerInterceptor(newTestPipeline(t, tokenStrategy(testUser(t, "jdoe", user.WithRoles("admin")))))

	handlerCalled := false
	handler := func(ctx context.Context, req any) (any, error) {
		handlerCalled = true

		u, ok := UserFromContext(ctx)
		if !ok || u.Username() != "jdoe" {
			t.Errorf("expected jdoe in context, got %v", u)
		}
		principal, ok := PrincipalFromContext[*user.InternalUser](ctx)
		if !ok || principal != u {
			t.Errorf("expected principal in context, got %v", principal)
		}
		if got := UsernameFromContext(ctx); got != "jdoe" {
			t.Errorf("expected username jdoe, got %q", got)
		}
		return "response", nil
	}

	resp, err := interceptor(incoming("Bearer valid-token"), "request", unaryInfo(), handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("expected handler to be called")
	}
	if resp != "response" {
		t.Errorf("expected response, got %v", resp)
	}
}

func TestUnaryServerInterceptor_Denied(t *testing.T) {
	interceptor := UnaryServerInterceptor(newTestPipeline(t, tokenStrategy(testUser(t, "jdoe"))))
	handler := func(context.Context, any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	}

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{name: "missing metadata", ctx: context.Background()},
		{name: "missing authorization", ctx: incoming("")},
		{name: "basic auth", ctx: incoming("Basic dXNlcjpwYXNz")},
		{name: "unknown token", ctx: incoming("Bearer other-token")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(tt.ctx, "request", unaryInfo(), handler)
			expectCode(t, err, codes.Unauthenticated)
		})
	}
}

func TestUnaryServerInterceptor_InfrastructureError(t *testing.T) {
	logger := &mockLogger{}
	interceptor := UnaryServerInterceptor(
		newTestPipeline(t, tokenStrategy(testUser(t, "jdoe"))),
		WithInterceptorLogger(logger),
	)

	_, err := interceptor(incoming("Bearer broken-token"), "request", unaryInfo(), func(context.Context, any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})

	expectCode(t, err, codes.Internal)
	if strings.Contains(status.Convert(err).Message(), "bad signature") {
		t.Error("error details must not be sent to the client")
	}
	if !logger.contains("bad signature") {
		t.Error("expected error details in the log")
	}
}

func TestUnaryServerInterceptor_MissingMetadata(t *testing.T) {
	interceptor := UnaryServerInterceptor(newTestPipeline(t, Headers(authn.NewHeaderStrategy(authn.HeaderNames{}, nil))))
	handler := func(context.Context, any) (any, error) {
		t.Fatal("handler must not be called")
		return nil, nil
	}

	_, err := interceptor(context.Background(), nil, unaryInfo(), handler)
	expectCode(t, err, codes.Internal)

	_, err = interceptor(incoming(""), nil, unaryInfo(), handler)
	expectCode(t, err, codes.Unauthenticated)
}

func TestUnaryServerInterceptor_CustomCodes(t *testing.T) {
	interceptor := UnaryServerInterceptor(
		newTestPipeline(t, tokenStrategy(testUser(t, "jdoe"))),
		WithUnauthorizedCode(codes.PermissionDenied),
		WithErrorCode(codes.Unavailable),
	)
	handler := func(context.Context, any) (any, error) { return nil, nil }

	_, err := interceptor(incoming("Bearer other-token"), "request", unaryInfo(), handler)
	expectCode(t, err, codes.PermissionDenied)

	_, err = interceptor(incoming("Bearer broken-token"), "request", unaryInfo(), handler)
	expectCode(t, err, codes.Unavailable)
}

func TestUnaryServerInterceptor_ExemptMethod(t *testing.T) {
	strategy := authn.StrategyFunc[metadata.MD](func(context.Context, metadata.MD) (*user.InternalUser, error) {
		t.Error("strategy should not be called for exempt method")
		return nil, authn.NewDeniedError("", "", nil)
	})
	logger := &mockLogger{}
	interceptor := UnaryServerInterceptor(newTestPipeline(t, strategy),
		WithExemptMethods("/grpc.health.v1.Health/Check"),
		WithInterceptorLogger(logger),
	)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := interceptor(context.Background(), "request", info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("expected exempt call to pass, got %v %v", resp, err)
	}
	if !logger.contains("exempt") {
		t.Error("expected logger to log exempt method message")
	}
}

func TestUnaryServerInterceptor_Logging(t *testing.T) {
	logger := &mockLogger{}
	interceptor := UnaryServerInterceptor(
		newTestPipeline(t, tokenStrategy(testUser(t, "jdoe"))),
		WithInterceptorLogger(logger),
	)
	handler := func(context.Context, any) (any, error) { return nil, nil }

	_, _ = interceptor(incoming("Bearer valid-token"), "request", unaryInfo(), handler)
	_, _ = interceptor(incoming("Bearer other-token"), "request", unaryInfo(), handler)

	if !logger.contains("authenticated request for " + testMethod + " (user: jdoe)") {
		t.Errorf("expected success log, got %v", logger.messages)
	}
	if !logger.contains("authentication denied for " + testMethod) {
		t.Errorf("expected denial log, got %v", logger.messages)
	}
	if logger.contains("valid-token") {
		t.Error("tokens must not be logged")
	}
}

func TestWithExemptMethods(t *testing.T) {
	config := newInterceptorConfig([]InterceptorOption{
		WithExemptMethods("/a.A/One"),
		WithExemptMethods("/a.A/Two", "/a.A/Three"),
	})

	for _, method := range []string{"/a.A/One", "/a.A/Two", "/a.A/Three"} {
		if !config.exemptMethods[method] {
			t.Errorf("expected %s to be exempt", method)
		}
	}
	if config.exemptMethods["/a.A/Four"] {
		t.Error("unexpected exempt method")
	}
}

// mockServerStream is a mock implementation of grpc.ServerStream for testing
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func TestStreamServerInterceptor_Success(t *testing.T) {
	interceptor := StreamServerInterceptor(newTestPipeline(t, tokenStrategy(testUser(t, "jdoe"))))
	stream := &mockServerStream{ctx: incoming("Bearer valid-token")}

	handlerCalled := false
	err := interceptor(nil, stream, &grpc.StreamServerInfo{FullMethod: testMethod}, func(srv any, ss grpc.ServerStream) error {
		handlerCalled = true
		if got := UsernameFromContext(ss.Context()); got != "jdoe" {
			t.Errorf("expected jdoe in stream context, got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("expected handler to be called")
	}
	if UsernameFromContext(stream.Context()) != "" {
		t.Error("original stream context must be unchanged")
	}
}

func TestStreamServerInterceptor_Failures(t *testing.T) {
	interceptor := StreamServerInterceptor(newTestPipeline(t, tokenStrategy(testUser(t, "jdoe"))))
	handler := func(any, grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	}
	info := &grpc.StreamServerInfo{FullMethod: testMethod}

	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, handler)
	expectCode(t, err, codes.Unauthenticated)

	err = interceptor(nil, &mockServerStream{ctx: incoming("Bearer broken-token")}, info, handler)
	expectCode(t, err, codes.Internal)
}

func TestStreamServerInterceptor_ExemptMethod(t *testing.T) {
	interceptor := StreamServerInterceptor(newTestPipeline(t, tokenStrategy(testUser(t, "jdoe"))),
		WithExemptMethods("/grpc.health.v1.Health/Watch"),
	)

	called := false
	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"},
		func(any, grpc.ServerStream) error {
			called = true
			return nil
		})
	if err != nil || !called {
		t.Fatalf("expected exempt stream to pass, got err=%v called=%v", err, called)
	}
}

type account struct{ id string }

func (a account) Name() string { return a.id }

func TestUnaryServerInterceptor_CustomPrincipal(t *testing.T) {
	pipeline, err := authn.NewPipeline[metadata.MD, account](tokenStrategy(testUser(t, "jdoe")), authn.ConverterFuncs[account]{
		FromUser: func(u *user.InternalUser) account { return account{id: "acct-" + u.Username()} },
	})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	interceptor := UnaryServerInterceptor(pipeline)
	_, err = interceptor(incoming("Bearer valid-token"), "request", unaryInfo(), func(ctx context.Context, _ any) (any, error) {
		if got := MustPrincipalFromContext[account](ctx); got.id != "acct-jdoe" {
			t.Errorf("unexpected principal %v", got)
		}
		if got := UsernameFromContext(ctx); got != "acct-jdoe" {
			t.Errorf("expected principal name as username, got %q", got)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMustPrincipalFromContext_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic when principal is not present")
		}
	}()
	MustPrincipalFromContext[account](context.Background())
}
