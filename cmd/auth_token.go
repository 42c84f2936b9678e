package cmd

import (
	"fmt"

	"authflow/internal/cli"

	"github.com/spf13/cobra"
)

// Token-specific flags
var (
	tokenHeader bool
)

// authTokenCmd represents the auth token command
var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token",
	Long: `Print an access token for the configured issuer to stdout.

An expired access token is refreshed first when the stored credential
carries a refresh token. If the provider rejects the refresh token the
credential is removed and the command exits with code 2.

Examples:
  authflow auth token
  curl -H "$(authflow auth token --header)" https://api.example.com/`,
	RunE: runAuthToken,
}

func init() {
	authTokenCmd.Flags().BoolVar(&tokenHeader, "header", false, "Print a complete Authorization header")
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	env, err := loadAuthEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	issuer := env.coordinator.Issuer()

	ts, err := env.coordinator.TokenSource(cmd.Context())
	if err != nil {
		return cli.ClassifyAuthError(issuer, err)
	}

	token, err := ts.Token()
	if err != nil {
		if !env.coordinator.IsAuthorized() {
			return &cli.AuthRequiredError{Issuer: issuer}
		}
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	if tokenHeader {
		fmt.Fprintf(cmd.OutOrStdout(), "Authorization: %s %s\n", token.Type(), token.AccessToken)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), token.AccessToken)
	return nil
}
