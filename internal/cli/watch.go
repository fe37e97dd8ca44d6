package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"match-connect/internal/session"

	"github.com/spf13/cobra"
)

func describe(state session.State) string {
	switch {
	case state.IsLoading:
		return "loading"
	case state.IsAuthenticated && state.User != nil:
		return fmt.Sprintf("signed in as %s (%s)", state.User.Email, state.Role)
	default:
		return "signed out"
	}
}

// stateWriter prints session states, skipping repeats
type stateWriter struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func (w *stateWriter) write(state session.State) {
	if state.IsLoading {
		return
	}
	line := describe(state)

	w.mu.Lock()
	defer w.mu.Unlock()
	if line == w.last {
		return
	}
	w.last = line
	fmt.Fprintln(w.out, line)
}

func (c *CLI) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the session as other processes sign in and out",
		Long: `Print the session state and follow it until interrupted. Sign-ins,
sign-outs and token refreshes made by other matchctl processes sharing the
session store or hub room are picked up as they happen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := c.app
			if a.sql == nil && !a.cfg.Sync.Enabled {
				a.log.Warning("Watching an in-memory session, other processes cannot be seen")
			}

			w := &stateWriter{out: cmd.OutOrStdout()}
			unobserve := a.session.Observe(w.write)
			defer unobserve()

			events, unsubscribe := a.store.Subscribe()
			defer unsubscribe()

			if a.sql != nil {
				if err := a.sql.Start(ctx); err != nil {
					return err
				}
			}
			a.router.SetCallback(func(path string) {
				fmt.Fprintf(cmd.OutOrStdout(), "navigate %s\n", path)
			})

			if err := a.session.Init(ctx); err != nil {
				return err
			}

			err := a.session.Watch(ctx, events)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
