package cmd

import (
	"fmt"

	"authflow/internal/config"

	"github.com/spf13/cobra"
)

var (
	authConfigPath string
	authIssuer     string
	authClientID   string
	authQuiet      bool
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authorization with the configured provider",
	Long: `Manage the credential authflow keeps for the configured provider.

The auth command group provides subcommands to run the authorization flow,
inspect the stored credential, print an access token for scripts, and
forget the credential again.

Examples:
  authflow auth login                  # Authorize with the configured issuer
  authflow auth login --no-browser     # Print the URL instead of opening a browser
  authflow auth status                 # Show authorization status
  authflow auth status --watch         # Keep showing status as the credential changes
  authflow auth token                  # Print a valid access token
  authflow auth logout                 # Remove the stored credential`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credential",
	Long: `Remove the stored credential for the configured issuer.

The next command that needs a token will fail until you run
'authflow auth login' again. Running logout without a stored
credential is not an error.

Examples:
  authflow auth logout
  authflow auth logout --issuer https://accounts.example.com`,
	RunE: runAuthLogout,
}

// authPrint prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(cmd *cobra.Command, format string, args ...interface{}) {
	if !authQuiet {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(cmd *cobra.Command, a ...interface{}) {
	if !authQuiet {
		fmt.Fprintln(cmd.OutOrStdout(), a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authTokenCmd)

	// Common flags for auth commands (shared across subcommands)
	authCmd.PersistentFlags().StringVar(&authConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	authCmd.PersistentFlags().StringVar(&authIssuer, "issuer", "", "Issuer URL (overrides the configuration file)")
	authCmd.PersistentFlags().StringVar(&authClientID, "client-id", "", "OAuth client ID (overrides the configuration file)")
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	env, err := loadAuthEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	wasAuthorized := env.coordinator.IsAuthorized()
	if err := env.coordinator.ResetState(); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}

	if wasAuthorized {
		authPrint(cmd, "Logged out from %s\n", env.coordinator.Issuer())
	} else {
		authPrint(cmd, "No stored credential for %s\n", env.coordinator.Issuer())
	}
	return nil
}
