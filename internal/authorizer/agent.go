package authorizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// DefaultCallbackTimeout is how long the browser agent waits for the user to
// come back through the redirect.
const DefaultCallbackTimeout = 10 * time.Minute

// ErrCallbackTimeout is reported when the user never returned from the
// consent page.
var ErrCallbackTimeout = errors.New("timed out waiting for the authorization callback")

// Presentation is the surface an agent may use to talk to the user.
type Presentation struct {
	// Output receives user facing instructions. Nil discards them.
	Output io.Writer

	// NoBrowser prints the URL without trying to open a browser.
	NoBrowser bool
}

func (p Presentation) writer() io.Writer {
	if p.Output == nil {
		return io.Discard
	}
	return p.Output
}

// ExternalAgent runs the user consent step outside of the application.
//
// Present must return once the consent step is launched. The outcome arrives
// later, either as a redirect handed to Coordinator.ContinueWith or through
// session.Report when the agent itself learns the result.
type ExternalAgent interface {
	Present(ctx context.Context, session *FlowSession, presentation Presentation) error
}

// AgentFunc adapts a function to the ExternalAgent interface.
type AgentFunc func(ctx context.Context, session *FlowSession, presentation Presentation) error

// Present implements ExternalAgent.
func (f AgentFunc) Present(ctx context.Context, session *FlowSession, presentation Presentation) error {
	return f(ctx, session, presentation)
}

// BrowserAgent sends the user to the authorization URL in the system browser.
// The redirect itself is delivered by a RedirectServer; the agent only
// reports when the user gives up (timeout or cancelled context).
type BrowserAgent struct {
	// Timeout bounds the consent step. Zero means DefaultCallbackTimeout.
	Timeout time.Duration

	// Open launches the browser. Nil means OpenBrowser.
	Open func(url string) error

	mu         sync.Mutex
	cancelPrev context.CancelFunc
}

// NewBrowserAgent creates a browser agent with the given callback timeout.
func NewBrowserAgent(timeout time.Duration) *BrowserAgent {
	return &BrowserAgent{Timeout: timeout}
}

// Present implements ExternalAgent.
func (a *BrowserAgent) Present(ctx context.Context, session *FlowSession, presentation Presentation) error {
	authURL := session.AuthorizationURL()
	out := presentation.writer()

	// Only one consent step is watched at a time; a superseded session is
	// dropped without being told.
	watchCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	if a.cancelPrev != nil {
		a.cancelPrev()
	}
	a.cancelPrev = cancel
	a.mu.Unlock()

	fmt.Fprintf(out, "Opening browser for authentication...\n")
	fmt.Fprintf(out, "If the browser doesn't open, visit this URL:\n\n  %s\n\n", authURL)

	if !presentation.NoBrowser {
		open := a.Open
		if open == nil {
			open = OpenBrowser
		}
		if err := open(authURL); err != nil {
			// The printed URL is the fallback.
			slog.Debug("Failed to open browser", "flow_id", session.ID(), "error", err)
			fmt.Fprintf(out, "Could not open browser automatically.\n")
		}
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	go a.watch(watchCtx, ctx, session, timeout)
	return nil
}

// watch reports a give-up outcome unless the session finishes first or is
// superseded by a newer one.
func (a *BrowserAgent) watch(watchCtx, parent context.Context, session *FlowSession, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-session.Done():
	case <-timer.C:
		slog.Debug("Authorization callback timed out", "flow_id", session.ID(), "timeout", timeout)
		session.Report(nil, ErrCallbackTimeout)
	case <-watchCtx.Done():
		// Superseded sessions stay silent; a cancelled caller is a failure.
		if parent.Err() != nil {
			session.Report(nil, parent.Err())
		}
	}
}

// OpenBrowser opens the specified URL in the default web browser.
// It supports Linux, macOS, and Windows.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// Don't wait; the browser keeps running in the background.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}
