package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"duo/internal/auth"
)

var errNoRemote = errors.New("remote storage is not configured (set remote_dsn or TODO_REMOTE_DSN)")

type credentials struct {
	email    string
	password string
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "Account email")
	cmd.Flags().StringVar(&c.password, "password", "", "Account password (default $TODO_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
}

func (c credentials) secret() (string, error) {
	p := c.password
	if p == "" {
		p = envOr("TODO_PASSWORD", "")
	}
	if p == "" {
		return "", errors.New("password required (--password or TODO_PASSWORD)")
	}
	return p, nil
}

func newRegisterCmd(a *App) *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a remote account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := creds.secret()
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context(), false); err != nil {
				return err
			}
			defer a.close()
			if a.manager == nil {
				return errNoRemote
			}
			id, err := a.manager.Register(cmd.Context(), creds.email, password)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", id.Email)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLoginCmd(a *App) *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and sync lists to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := creds.secret()
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context(), false); err != nil {
				return err
			}
			defer a.close()
			if a.manager == nil {
				return errNoRemote
			}
			// A still-valid previous session is replaced.
			a.ctrl.SignOut()
			if err := a.ctrl.Load(cmd.Context()); err != nil {
				return err
			}
			id, err := a.authn.SignIn(cmd.Context(), creds.email, password)
			if err != nil {
				return fmt.Errorf("sign-in failed: %w", err)
			}
			if err := a.ctrl.SignIn(cmd.Context(), id); err != nil {
				_ = a.authn.SignOut(cmd.Context())
				return fmt.Errorf("sign-in failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", id.Email)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLogoutCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and revert to local storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context(), false); err != nil {
				return err
			}
			defer a.close()
			a.ctrl.SignOut()
			err := a.authn.SignOut(cmd.Context())
			if errors.Is(err, auth.ErrNotSignedIn) {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account and active storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context(), false); err != nil {
				return err
			}
			defer a.close()
			if id, ok := a.ctrl.Identity(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (storage: remote)\n", id.Email)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "not signed in (storage: local)")
			return nil
		},
	}
}
