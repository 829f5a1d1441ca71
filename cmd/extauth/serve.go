package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/config"
	"github.com/AmmannChristian/go-extauth/grpcserver"
	"github.com/AmmannChristian/go-extauth/httpserver"
	"github.com/AmmannChristian/go-extauth/logging"
)

const defaultListen = ":8080"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a demo server protected by the configured strategy",
	Long: `Serves GET /whoami, which answers with the authenticated user as JSON, and
GET /healthz, which is exempt from authentication.

With --grpc-addr a gRPC health service protected by the same configuration is
started as well. Server TLS and trusted proxy client certificates are read
from the server.tls section of the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetString(ConfigKey))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Listen
		}
		if addr == "" {
			addr = defaultListen
		}
		grpcAddr, _ := cmd.Flags().GetString("grpc-addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, cfg, addr, grpcAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "HTTP address to listen on (default server.listen or :8080)")
	serveCmd.Flags().String("grpc-addr", "", "gRPC address to listen on (disabled if empty)")
}

func runServe(ctx context.Context, cfg *config.Config, addr, grpcAddr string) error {
	handler, closeHTTP, err := newHTTPHandler(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHTTP()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := configureTLS(server, cfg.Server.TLS); err != nil {
		return err
	}

	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
	)
	if grpcAddr != "" {
		var closeGRPC func()
		grpcServer, closeGRPC, err = newGRPCServer(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeGRPC()

		grpcLis, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", grpcAddr, err)
		}
	}

	errs := make(chan error, 2)
	go func() {
		log.Info().Msgf("Starting HTTP server on %s...", addr)
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcServer != nil {
		go func() {
			log.Info().Msgf("Starting gRPC server on %s...", grpcAddr)
			if err := grpcServer.Serve(grpcLis); err != nil {
				errs <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		defer grpcServer.GracefulStop()
	}

	select {
	case <-ctx.Done():
	case err := <-errs:
		return err
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}

// newHTTPHandler builds the protected mux. The returned func releases the
// strategy's background resources.
func newHTTPHandler(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	built, err := config.Build(ctx, cfg.StrategyConfig, config.HTTP(), config.WithLogger(logging.Default()))
	if err != nil {
		return nil, nil, fmt.Errorf("building strategy: %w", err)
	}

	pipeline, err := httpserver.NewUserPipeline(built.Strategy,
		authn.WithListeners(logging.NewEventLogger(log.Logger)),
		authn.WithPipelineLogger(logging.Default()),
	)
	if err != nil {
		built.Close()
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /whoami", whoami)

	opts := []httpserver.MiddlewareOption{
		httpserver.WithExemptPaths(append([]string{"/healthz"}, cfg.Server.ExemptPaths...)...),
		httpserver.WithExemptPathPrefixes(cfg.Server.ExemptPathPrefixes...),
		httpserver.WithMiddlewareLogger(logging.Default()),
		httpserver.WithAuthorizationPolicy(cfg.Authorization),
	}
	if cfg.Server.Realm != "" {
		opts = append(opts, httpserver.WithRealm(cfg.Server.Realm))
	}

	handler := httpserver.Middleware(pipeline, opts...)(mux)
	return httpserver.CorrelationID(handler), built.Close, nil
}

func whoami(w http.ResponseWriter, r *http.Request) {
	u, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(u); err != nil {
		log.Error().Err(err).Msg("failed to encode user")
	}
}

func configureTLS(server *http.Server, cfg config.TLSConfig) error {
	if !cfg.Enabled() {
		return nil
	}

	if cfg.CAFile != "" {
		tlsConfig, err := httpserver.NewTrustedProxyTLSConfig(&httpserver.TrustedProxyConfig{
			CertFile:     cfg.CertFile,
			KeyFile:      cfg.KeyFile,
			CAFile:       cfg.CAFile,
			AllowedNames: cfg.AllowedProxyNames,
		})
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
		return nil
	}

	return httpserver.ConfigureServer(server, &httpserver.TLSConfig{
		CertFile: cfg.CertFile,
		KeyFile:  cfg.KeyFile,
	})
}

// newGRPCServer serves the health service behind the configured strategy.
func newGRPCServer(ctx context.Context, cfg *config.Config) (*grpc.Server, func(), error) {
	built, err := config.Build(ctx, cfg.StrategyConfig, config.GRPC(), config.WithLogger(logging.Default()))
	if err != nil {
		return nil, nil, fmt.Errorf("building strategy: %w", err)
	}

	pipeline, err := grpcserver.NewUserPipeline(built.Strategy,
		authn.WithListeners(logging.NewEventLogger(log.Logger)),
	)
	if err != nil {
		built.Close()
		return nil, nil, err
	}

	interceptorOpts := []grpcserver.InterceptorOption{
		grpcserver.WithInterceptorLogger(logging.Default()),
		grpcserver.WithAuthorizationPolicy(cfg.Authorization),
	}
	serverOpts := []grpc.ServerOption{
		grpc.UnaryInterceptor(grpcserver.UnaryServerInterceptor(pipeline, interceptorOpts...)),
		grpc.StreamInterceptor(grpcserver.StreamServerInterceptor(pipeline, interceptorOpts...)),
	}

	if tlsCfg := cfg.Server.TLS; tlsCfg.Enabled() {
		var option grpc.ServerOption
		if tlsCfg.CAFile != "" {
			creds, err := grpcserver.NewTrustedProxyCredentials(&grpcserver.TrustedProxyConfig{
				CertFile:     tlsCfg.CertFile,
				KeyFile:      tlsCfg.KeyFile,
				CAFile:       tlsCfg.CAFile,
				AllowedNames: tlsCfg.AllowedProxyNames,
			})
			if err != nil {
				built.Close()
				return nil, nil, err
			}
			option = grpc.Creds(creds)
		} else {
			option, err = grpcserver.ServerOption(&grpcserver.TLSConfig{CertFile: tlsCfg.CertFile, KeyFile: tlsCfg.KeyFile})
			if err != nil {
				built.Close()
				return nil, nil, err
			}
		}
		serverOpts = append(serverOpts, option)
	}

	server := grpc.NewServer(serverOpts...)
	healthpb.RegisterHealthServer(server, health.NewServer())
	return server, built.Close, nil
}
