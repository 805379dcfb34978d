package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginEmail string
	logoutAll  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password and store the session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, c, err := currentClient()
		if err != nil {
			return err
		}

		email := loginEmail
		if email == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}

		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		resp, err := c.Login(cmd.Context(), email, string(password))
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if err := store.SetTokens(resp.AccessToken, resp.RefreshToken); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		appLogger.Debug(cmd.Context(), "Session stored", map[string]interface{}{"expires_in": resp.ExpiresIn})
		fmt.Fprintln(cmd.OutOrStdout(), "Login successful.")

		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rotate the stored refresh token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, c, err := currentClient()
		if err != nil {
			return err
		}
		if ctx.RefreshToken == "" {
			return errors.New("not logged in; run 'ssoctl login'")
		}

		resp, err := c.Refresh(cmd.Context(), ctx.RefreshToken)
		if err != nil {
			// The old token is spent either way.
			_ = store.SetTokens("", "")
			_ = store.Save()

			return fmt.Errorf("refresh failed, log in again: %w", err)
		}

		if err := store.SetTokens(resp.AccessToken, resp.RefreshToken); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session refreshed.")

		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, c, err := currentClient()
		if err != nil {
			return err
		}

		if ctx.RefreshToken != "" {
			if err := c.Logout(cmd.Context(), ctx.RefreshToken, logoutAll); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
		}

		if err := store.SetTokens("", ""); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")

		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account of the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, c, err := currentClient()
		if err != nil {
			return err
		}
		if ctx.AccessToken == "" {
			return errors.New("not logged in; run 'ssoctl login'")
		}

		resp, err := c.Session(cmd.Context(), ctx.AccessToken)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Subject:  %s\n", resp.Subject)
		fmt.Fprintf(out, "Email:    %s\n", resp.Email)
		fmt.Fprintf(out, "Roles:    %s\n", strings.Join(resp.Roles, ", "))
		fmt.Fprintf(out, "Expires:  %s\n", resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))

		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", os.Getenv("SSOCTL_EMAIL"), "account email")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "end every session of the account")

	rootCmd.AddCommand(loginCmd, refreshCmd, logoutCmd, whoamiCmd)
}
