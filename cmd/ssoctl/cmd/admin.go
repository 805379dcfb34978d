package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/exam-sso/cmd/ssoctl/client"
	"github.com/pilab-dev/exam-sso/cmd/ssoctl/config"
)

var (
	auditActor string
	auditLimit int
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator commands, for proctors and admins",
}

// adminClient is currentClient for commands that need a stored access token.
func adminClient() (config.Context, *client.Client, error) {
	ctx, c, err := currentClient()
	if err != nil {
		return config.Context{}, nil, err
	}
	if ctx.AccessToken == "" {
		return config.Context{}, nil, errors.New("not logged in; run 'ssoctl login'")
	}

	return ctx, c, nil
}

var revokeCmd = &cobra.Command{
	Use:   "revoke USER_ID",
	Short: "End every session of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		ctx, c, err := adminClient()
		if err != nil {
			return err
		}

		n, err := c.RevokeUserSessions(cmd.Context(), ctx.AccessToken, userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d token(s) of user %d.\n", n, userID)

		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent audit events of an actor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if auditActor == "" {
			return errors.New("--actor is required")
		}

		ctx, c, err := adminClient()
		if err != nil {
			return err
		}

		events, err := c.AuditEvents(cmd.Context(), ctx.AccessToken, auditActor, auditLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tSEVERITY\tSUCCESS\tERROR")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Severity, e.Success, e.Error)
		}

		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditActor, "actor", "", "user id whose events to list")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "maximum number of events (server default when 0)")

	adminCmd.AddCommand(revokeCmd, auditCmd)
	rootCmd.AddCommand(adminCmd)
}
