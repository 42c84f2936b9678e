// Package cli holds the presentation helpers shared by the authflow commands.
//
// It renders coordinator status as a table (go-pretty), shows a spinner while
// the user completes authorization in the browser, and translates errors from
// the authorizer package into AuthRequiredError and AuthFailedError so the
// root command can pick an exit code.
package cli
