// Package grpcserver integrates go-extauth authentication pipelines with
// gRPC servers.
//
// The interceptors run an authn.Pipeline over the incoming metadata of each
// call and translate the outcome into gRPC status codes:
//
//   - denied credentials: codes.Unauthenticated
//   - credentials that could not be evaluated: codes.Internal
//   - authorization policy failures: codes.PermissionDenied
//
// # Quick Start
//
//	jwt, err := authn.NewJWTStrategy(publicKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pipeline, err := grpcserver.NewUserPipeline(grpcserver.JWT(jwt))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	server := grpc.NewServer(
//	    grpc.UnaryInterceptor(grpcserver.UnaryServerInterceptor(pipeline,
//	        grpcserver.WithExemptMethods("/grpc.health.v1.Health/Check"),
//	    )),
//	    grpc.StreamInterceptor(grpcserver.StreamServerInterceptor(pipeline)),
//	)
//
// # Accessing the User in Handlers
//
//	func (s *server) GetOrder(ctx context.Context, req *pb.GetOrderRequest) (*pb.Order, error) {
//	    u, ok := grpcserver.UserFromContext(ctx)
//	    if !ok {
//	        return nil, status.Error(codes.Unauthenticated, "not authenticated")
//	    }
//	    // ... use u.Username() ...
//	}
//
// Header strategies work over gRPC too: MetadataHeaders exposes the
// metadata as an http.Header. Serve such services with
// NewTrustedProxyCredentials so only the proxy can set identity metadata.
package grpcserver
