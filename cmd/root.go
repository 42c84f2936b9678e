package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"authflow/internal/cli"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authorization is required but no usable credential is stored.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization flow failed.
	ExitCodeAuthFailed = 3
)

// rootCmd represents the base command for the authflow application.
var rootCmd = &cobra.Command{
	Use:   "authflow",
	Short: "Authorize against OAuth2 and OpenID Connect providers",
	Long: `authflow runs the OAuth2 authorization code flow against an OpenID
Connect provider from the command line. It discovers the provider's
endpoints, sends you to the browser to sign in, receives the redirect on
a loopback address and keeps the resulting credential on disk for later use.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *cli.AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *cli.AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// versionTemplate renders `authflow --version` the same way as `authflow version`.
const versionTemplate = `{{printf "authflow version %s\n" .Version}}`

func init() {
	rootCmd.SetVersionTemplate(versionTemplate)
	rootCmd.AddCommand(newVersionCmd())
}
