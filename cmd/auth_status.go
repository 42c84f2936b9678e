package cmd

import (
	"fmt"

	"authflow/internal/authorizer"
	"authflow/internal/cli"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Status-specific flags
var (
	statusWatch bool
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authorization status",
	Long: `Show the authorization status for the configured issuer.

This command displays whether a usable credential is stored, when its
access token expires, whether it can be refreshed and which scopes it
was granted.

Examples:
  authflow auth status                 # Show status once
  authflow auth status --watch         # Re-render whenever the credential file changes`,
	RunE: runAuthStatus,
}

func init() {
	authStatusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Keep running and show status whenever the stored credential changes")
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	env, err := loadAuthEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	cli.RenderStatus(cmd.OutOrStdout(), cli.StatusFromCoordinator(env.coordinator, env.credentialPath()))

	if !statusWatch {
		return nil
	}

	path := env.credentialPath()
	if path == "" {
		return fmt.Errorf("--watch requires file based credential storage")
	}

	watcher, err := authorizer.NewCredentialWatcher(authorizer.CredentialWatcherConfig{
		Path:   path,
		Loader: env.coordinator,
		OnChange: func(authorized bool) {
			authPrintln(cmd)
			authPrint(cmd, "Credential changed: authorized=%s\n", formatBool(authorized))
			cli.RenderStatus(cmd.OutOrStdout(), cli.StatusFromCoordinator(env.coordinator, path))
		},
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer func() {
		_ = watcher.Stop()
	}()

	authPrint(cmd, "Watching %s (Ctrl+C to stop)\n", path)
	<-cmd.Context().Done()
	return nil
}

func formatBool(b bool) string {
	if b {
		return text.FgGreen.Sprint("true")
	}
	return text.FgRed.Sprint("false")
}
