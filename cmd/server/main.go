package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "exam-sso",
	Short: "exam-sso issues and rotates sessions for the exam platform",
	Long: `exam-sso authenticates users with a password or an external identity
provider and keeps their sessions alive with rotating refresh tokens.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default searches /etc/exam-sso, $HOME/.exam-sso and .)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(janitorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
