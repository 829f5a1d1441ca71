package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/metadata"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/authz"
	"github.com/AmmannChristian/go-extauth/config"
	"github.com/AmmannChristian/go-extauth/logging"
	"github.com/AmmannChristian/go-extauth/user"
)

const (
	transportHTTP = "http"
	transportGRPC = "grpc"
)

var errCredentialsDenied = errors.New("credentials denied")

type verifyOptions struct {
	token     string
	headers   []string
	transport string
	asJSON    bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify credentials against the configured strategy",
	Long: `Builds the configured strategy, presents the given bearer token and headers
to it and prints the resulting user. The authorization policy of the
configuration is evaluated as well.

The command exits with an error if the credentials are denied, if the
strategy fails, or if the user does not satisfy the authorization policy.`,
	Example: `  extauth verify -c extauth.yaml --token "$TOKEN"
  extauth verify --header "X-Auth-Username: jdoe" --header "X-Auth-Given-Name: John" --header "X-Auth-Family-Name: Doe"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := verifyOptions{}
		opts.token, _ = cmd.Flags().GetString("token")
		opts.headers, _ = cmd.Flags().GetStringArray("header")
		opts.transport, _ = cmd.Flags().GetString("transport")
		opts.asJSON, _ = cmd.Flags().GetBool("json")

		cfg, err := config.Load(viper.GetString(ConfigKey))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		return runVerify(cmd.Context(), cfg, opts, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringP("token", "t", "", "Bearer token to verify")
	verifyCmd.Flags().StringArrayP("header", "H", nil, `Header to send, as "Name: value" (repeatable)`)
	verifyCmd.Flags().String("transport", transportHTTP, "Transport to simulate (http, grpc)")
	verifyCmd.Flags().Bool("json", false, "Print the user as JSON")
}

func runVerify(ctx context.Context, cfg *config.Config, opts verifyOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	header, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	if opts.token != "" {
		header.Set("Authorization", "Bearer "+opts.token)
	}

	var u *user.InternalUser
	switch opts.transport {
	case "", transportHTTP:
		r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		r.Header = header
		u, err = verifyWith(ctx, cfg.StrategyConfig, config.HTTP(), r)
	case transportGRPC:
		md := metadata.MD{}
		for name, values := range header {
			md.Append(name, values...)
		}
		u, err = verifyWith(ctx, cfg.StrategyConfig, config.GRPC(), md)
	default:
		return fmt.Errorf("unknown transport %q (want http or grpc)", opts.transport)
	}
	if err != nil {
		return err
	}

	authzErr := authz.Evaluate(cfg.Authorization, u)
	if err := renderUser(out, u, cfg.Authorization, authzErr, opts.asJSON); err != nil {
		return err
	}
	return authzErr
}

func verifyWith[C any](ctx context.Context, cfg config.StrategyConfig, t config.Transport[C], credentials C) (*user.InternalUser, error) {
	built, err := config.Build(ctx, cfg, t, config.WithLogger(logging.Default()))
	if err != nil {
		return nil, fmt.Errorf("building strategy: %w", err)
	}
	defer built.Close()

	var denial *authn.DeniedError
	pipeline, err := authn.NewPipeline[C, *user.InternalUser](built.Strategy, authn.IdentityConverter{},
		authn.WithListeners(
			logging.NewEventLogger(log.Logger),
			authn.ListenerFuncs{Denied: func(_ context.Context, err *authn.DeniedError) { denial = err }},
		),
	)
	if err != nil {
		return nil, err
	}

	u, ok, err := pipeline.Authenticate(ctx, credentials)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}
	if !ok {
		if denial != nil {
			return nil, fmt.Errorf("%w: %s", errCredentialsDenied, denial.Reason)
		}
		return nil, errCredentialsDenied
	}
	return u, nil
}

func parseHeaders(raw []string) (http.Header, error) {
	header := http.Header{}
	for _, h := range raw {
		i := strings.IndexAny(h, ":=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		header.Add(strings.TrimSpace(h[:i]), strings.TrimSpace(h[i+1:]))
	}
	return header, nil
}

func renderUser(out io.Writer, u *user.InternalUser, policy authz.AuthorizationPolicy, authzErr error, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	}

	authorization := "not configured"
	switch {
	case authzErr != nil:
		authorization = "denied: " + authzErr.Error()
	case authz.NewEvaluator(policy).Enabled():
		authorization = "granted"
	}

	logoutURL, _ := u.LogoutURL()

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Username", u.Username()},
		{"Name", u.DisplayName()},
		{"Email", orNone(u.Email())},
		{"Roles", orNone(strings.Join(u.Roles(), ", "))},
		{"Groups", orNone(strings.Join(u.Groups(), ", "))},
		{"Logout URL", orNone(logoutURL)},
		{"Authorization", authorization},
	})

	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
	t.Render()
	return nil
}

func orNone(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}
