package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pilab-dev/exam-sso/config"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/auth"
	"github.com/pilab-dev/exam-sso/internal/server"
)

var (
	userEmail string
	userName  string
	userRoles []string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a password account",
	Long: `add creates an active account with a bcrypt password hash. The password
is read from the terminal, or from stdin when it is not a terminal.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, logger, logCloser, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logCloser.Close()

		if cfg.StorageDriver != config.StorageMongo {
			return errors.New("user add needs STORAGE_DRIVER=mongo; in-memory accounts vanish when this command exits")
		}

		password, err := readPassword(cmd)
		if err != nil {
			return err
		}

		hash, err := auth.NewBcryptPasswordHasher(cfg.BcryptCost).Hash(password)
		if err != nil {
			return err
		}

		a := &app{cfg: cfg, logger: logger, checks: make(map[string]server.ReadinessCheck)}
		defer a.Close(context.WithoutCancel(ctx))
		if err := a.initStorage(ctx); err != nil {
			return err
		}

		user := &domain.User{
			Email:         strings.TrimSpace(userEmail),
			DisplayName:   userName,
			PasswordHash:  hash,
			Roles:         userRoles,
			EmailVerified: true,
			Status:        domain.UserStatusActive,
		}
		if err := a.users.CreateUser(ctx, user); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return fmt.Errorf("an account with email %s already exists", user.Email)
			}

			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Email)

		return nil
	},
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}

		return line, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("password must not be empty")
	}

	return string(raw), nil
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userAddCmd.Flags().StringVar(&userName, "name", "", "display name")
	userAddCmd.Flags().StringSliceVar(&userRoles, "role", []string{"student"}, "role, repeatable")
	_ = userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}
