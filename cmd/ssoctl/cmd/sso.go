package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ssoRedirectURI string

var ssoCmd = &cobra.Command{
	Use:   "sso",
	Short: "Single sign-on through an external identity provider",
}

var ssoProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the identity providers of the server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, c, err := currentClient()
		if err != nil {
			return err
		}

		names, err := c.Providers(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}

		return nil
	},
}

var ssoURLCmd = &cobra.Command{
	Use:   "url PROVIDER",
	Short: "Print the authorization URL to open in a browser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := currentClient()
		if err != nil {
			return err
		}

		authURL, err := c.SSOLoginURL(cmd.Context(), args[0], ssoRedirectURI)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), authURL)

		return nil
	},
}

func init() {
	ssoURLCmd.Flags().StringVar(&ssoRedirectURI, "redirect-uri", "", "where the browser lands after login")

	ssoCmd.AddCommand(ssoProvidersCmd, ssoURLCmd)
	rootCmd.AddCommand(ssoCmd)
}
