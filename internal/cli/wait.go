package cli

import (
	"context"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// WaitForCompletion blocks until a value arrives on done or ctx ends,
// showing a spinner on out unless quiet is set.
func WaitForCompletion(ctx context.Context, done <-chan bool, out io.Writer, message string, quiet bool) (bool, error) {
	if !quiet {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
		s.Suffix = " " + message
		s.Start()
		defer s.Stop()
	}

	select {
	case ok := <-done:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
