package cmd

import (
	"context"

	"authflow/internal/authorizer"
	"authflow/internal/cli"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Login-specific flags
var (
	loginNoBrowser bool
	loginScopes    []string
	loginForce     bool
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize with the configured provider",
	Long: `Run the OAuth2 authorization code flow against the configured issuer.

The provider's endpoints are discovered, a browser is opened on the
authorization page and the redirect is received on the configured
loopback redirect URI. The resulting credential is stored for later
commands.

Examples:
  authflow auth login                          # Authorize with the configured issuer
  authflow auth login --no-browser             # Only print the authorization URL
  authflow auth login --scope email            # Request an extra scope
  authflow auth login --force                  # Authorize even if a credential exists`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	authLoginCmd.Flags().StringSliceVar(&loginScopes, "scope", nil, "Additional scope to request (repeatable)")
	authLoginCmd.Flags().BoolVar(&loginForce, "force", false, "Authorize even if a usable credential is already stored")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	env, err := loadAuthEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	coordinator := env.coordinator
	issuer := coordinator.Issuer()

	if coordinator.IsAuthorized() && !loginForce {
		authPrint(cmd, "Already authorized with %s (use --force to authorize again)\n", issuer)
		return nil
	}

	for _, scope := range loginScopes {
		coordinator.AddScope(scope)
	}

	done := make(chan bool, 1)
	coordinator.SetCompletion(func(succeeded bool) {
		select {
		case done <- succeeded:
		default:
		}
	})
	defer coordinator.SetCompletion(nil)

	server, err := authorizer.NewRedirectServer(coordinator.RedirectURI(), coordinator)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Wait(gctx)
	})
	g.Go(func() error {
		// Stops the redirect host once the outcome is known.
		defer cancel()

		presentation := authorizer.Presentation{
			Output:    cmd.OutOrStdout(),
			NoBrowser: loginNoBrowser,
		}
		if err := coordinator.Authorize(gctx, presentation); err != nil {
			return cli.ClassifyAuthError(issuer, err)
		}

		succeeded, err := cli.WaitForCompletion(gctx, done, cmd.ErrOrStderr(), "Waiting for authorization...", authQuiet)
		if err != nil {
			return &cli.AuthFailedError{Issuer: issuer, Reason: err}
		}
		if !succeeded {
			return &cli.AuthFailedError{Issuer: issuer}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if !coordinator.IsAuthorized() {
		return &cli.AuthFailedError{Issuer: issuer}
	}

	authPrint(cmd, "%s Authorized with %s\n", text.FgGreen.Sprint("✓"), issuer)
	if path := env.credentialPath(); path != "" {
		authPrint(cmd, "  Credential stored in %s\n", path)
	}
	return nil
}
