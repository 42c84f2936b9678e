package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"authflow/internal/authorizer"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// AuthStatus is the view of a coordinator rendered by `authflow auth status`.
type AuthStatus struct {
	Issuer         string
	ClientID       string
	CredentialName string
	CredentialPath string
	State          string
	Authorized     bool
	Expiry         time.Time
	HasRefresh     bool
	Scopes         []string
}

// StatusFromCoordinator captures the current coordinator state.
// credentialPath may be empty when the store is not file backed.
func StatusFromCoordinator(c *authorizer.Coordinator, credentialPath string) AuthStatus {
	status := AuthStatus{
		Issuer:         c.Issuer(),
		ClientID:       c.ClientID(),
		CredentialName: c.CredentialName(),
		CredentialPath: credentialPath,
		State:          c.State().String(),
		Authorized:     c.IsAuthorized(),
		Scopes:         c.Scopes(),
	}
	if cred := c.Credential(); cred != nil {
		status.Expiry = cred.Expiry
		status.HasRefresh = cred.RefreshToken != ""
		if len(cred.Scopes) > 0 {
			status.Scopes = cred.Scopes
		}
	}
	return status
}

// RenderStatus writes the status as a rounded key/value table.
func RenderStatus(out io.Writer, status AuthStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("PROPERTY"),
		text.FgHiCyan.Sprint("VALUE"),
	})

	t.AppendRow(table.Row{"Issuer", status.Issuer})
	t.AppendRow(table.Row{"Client", status.ClientID})
	t.AppendRow(table.Row{"State", status.State})
	t.AppendRow(table.Row{"Authorized", formatAuthorized(status.Authorized)})
	if status.Authorized {
		t.AppendRow(table.Row{"Expires", FormatExpiry(status.Expiry)})
		t.AppendRow(table.Row{"Refresh", formatRefresh(status.HasRefresh)})
	}
	t.AppendRow(table.Row{"Scopes", strings.Join(status.Scopes, " ")})
	if status.CredentialPath != "" {
		t.AppendRow(table.Row{"Credential", status.CredentialPath})
	} else {
		t.AppendRow(table.Row{"Credential", status.CredentialName + " (in memory)"})
	}

	t.Render()
}

func formatAuthorized(authorized bool) string {
	if authorized {
		return text.FgGreen.Sprint("Yes")
	}
	return text.FgRed.Sprint("No")
}

func formatRefresh(available bool) string {
	if available {
		return text.FgGreen.Sprint("Available")
	}
	return text.FgYellow.Sprint("Not available (re-authorize on expiry)")
}

// FormatExpiry formats a time as "in X" or "expired X ago".
func FormatExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + FormatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", FormatDuration(-remaining))
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		return plural(int(d.Minutes()), "minute")
	}
	if d < 24*time.Hour {
		return plural(int(d.Hours()), "hour")
	}
	return plural(int(d.Hours()/24), "day")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
