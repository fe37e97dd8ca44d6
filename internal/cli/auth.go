package cli

import (
	"errors"
	"fmt"
	"os"

	"match-connect/internal/apiclient"
	"match-connect/internal/session"

	"github.com/spf13/cobra"
)

var errNotSignedIn = errors.New("not signed in, run matchctl login first")

func (c *CLI) loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with email and password. The token pair is written to the session
store, and the landing route of the account's role is printed.

The password may also be given in the MATCH_PASSWORD environment variable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("MATCH_PASSWORD")
			}

			controller := session.MustFromContext(cmd.Context())
			if err := controller.SignIn(cmd.Context(), email, password); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			state := controller.State()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s (%s)\n", state.User.Email, state.Role)
			if c.app.sql == nil && !c.app.cfg.Sync.Enabled {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: the session is kept in memory and ends with this command")
			}
			fmt.Fprintf(out, "Landing route: %s\n", c.app.router.Location())
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	return cmd
}

func (c *CLI) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			session.MustFromContext(cmd.Context()).Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *CLI) registerCmd() *cobra.Command {
	var in apiclient.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a candidate or recruiter account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("MATCH_PASSWORD")
			}
			user, err := c.app.client.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s (id %d)\n", user.Email, user.Role, user.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&in.Email, "email", "", "account email")
	flags.StringVar(&in.Password, "password", "", "account password, at least 8 characters")
	flags.StringVar(&in.FirstName, "first-name", "", "first name")
	flags.StringVar(&in.LastName, "last-name", "", "last name")
	flags.StringVar(&in.Role, "role", "candidate", "candidate or recruiter")
	flags.StringVar(&in.CompanyName, "company", "", "company name, required for recruiters")
	return cmd
}

func (c *CLI) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify the stored session and print the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller := session.MustFromContext(cmd.Context())
			if err := controller.Init(cmd.Context()); err != nil {
				return err
			}

			state := controller.State()
			if !state.IsAuthenticated {
				return errNotSignedIn
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s <%s>\n", state.User.FirstName, state.User.LastName, state.User.Email)
			fmt.Fprintf(out, "Role: %s\n", state.Role)
			if id := controller.Identity(cmd.Context()); id != nil {
				fmt.Fprintf(out, "Access token expires: %s\n", id.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}

func (c *CLI) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open ROUTE",
		Short: "Show where a route leads for the current session",
		Long: `Check a route against the session guard. Protected routes send signed-out
users to the auth page, and auth pages send signed-in users to their landing
route.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.session.Init(cmd.Context()); err != nil {
				return err
			}

			c.app.router.Navigate(args[0])
			allowed := c.app.guard.Enforce(c.app.router)

			out := cmd.OutOrStdout()
			if allowed {
				fmt.Fprintf(out, "%s\n", c.app.router.Location())
				return nil
			}
			fmt.Fprintf(out, "%s -> %s\n", args[0], c.app.router.Location())
			return nil
		},
	}
}
