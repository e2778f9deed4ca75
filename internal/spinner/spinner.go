// Package spinner displays progress for a bounded-but-unknown-length
// operation: a silent wait for initialDelay, then either an animated
// progress bar (TTY) or a single static line (non-interactive), so slow
// first-run work like opening the Action Cache doesn't look hung.
package spinner

import (
	"context"
	"fmt"
	"io"
	"time"

	progressbar "github.com/schollz/progressbar/v3"

	"github.com/cuenv/cuenv/internal/ui"
)

// WaitFor runs fn in the background and prints msg to w if it takes longer
// than initialDelay to complete. On a TTY this renders an indeterminate
// progress bar updated every 250ms; otherwise it prints msg once.
func WaitFor(ctx context.Context, fn func(), w io.Writer, msg string, initialDelay time.Duration) error {
	doneCh := make(chan struct{})
	go func() {
		fn()
		close(doneCh)
	}()

	if !ui.IsTTY {
		select {
		case <-ctx.Done():
			return nil
		case <-doneCh:
			return nil
		case <-time.After(initialDelay):
			fmt.Fprintln(w, msg)
		}
		select {
		case <-ctx.Done():
		case <-doneCh:
		}
		return nil
	}

	select {
	case <-ctx.Done():
		return nil
	case <-doneCh:
		return nil
	case <-time.After(initialDelay):
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(msg),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWriter(w),
		)
		for {
			select {
			case <-doneCh:
				err := bar.Finish()
				fmt.Fprintln(w)
				return err
			case <-time.After(250 * time.Millisecond):
				if err := bar.Add(1); err != nil {
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	}
}
