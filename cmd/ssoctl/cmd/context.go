package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pilab-dev/exam-sso/cmd/ssoctl/config"
)

var contextServer string

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage ssoctl contexts",
	Aliases: []string{"cfg"},
}

var getContextsCmd = &cobra.Command{
	Use:     "get-contexts",
	Short:   "Display the configured contexts",
	Aliases: []string{"get"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := store.Config()
		if len(cfg.Contexts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts defined.")
			return nil
		}

		// Never print tokens.
		redacted := make(map[string]config.Context, len(cfg.Contexts))
		for name, c := range cfg.Contexts {
			r := config.Context{ServerEndpoint: c.ServerEndpoint}
			if c.RefreshToken != "" {
				r.RefreshToken = "<set>"
			}
			redacted[name] = r
		}

		out, err := yaml.Marshal(redacted)
		if err != nil {
			return fmt.Errorf("failed to marshal contexts to YAML: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		fmt.Fprintf(cmd.OutOrStdout(), "Current context: %s\n", cfg.CurrentContext)

		return nil
	},
}

var setContextCmd = &cobra.Command{
	Use:   "set-context NAME",
	Short: "Create or update a context and switch to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if contextServer == "" {
			if _, ok := store.Config().Contexts[args[0]]; !ok {
				return fmt.Errorf("--server is required for new context %q", args[0])
			}
		}

		store.SetContext(args[0], contextServer)
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q set and selected.\n", args[0])

		return nil
	},
}

var useContextCmd = &cobra.Command{
	Use:     "use-context NAME",
	Short:   "Switch to an existing context",
	Aliases: []string{"use"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.UseContext(args[0]); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])

		return nil
	},
}

func init() {
	setContextCmd.Flags().StringVar(&contextServer, "server", "", "server base URL, e.g. https://sso.example.com")

	configCmd.AddCommand(getContextsCmd, setContextCmd, useContextCmd)
	rootCmd.AddCommand(configCmd)
}
