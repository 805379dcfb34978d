package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pilab-dev/exam-sso/cmd/ssoctl/client"
	"github.com/pilab-dev/exam-sso/cmd/ssoctl/config"
	"github.com/pilab-dev/exam-sso/log"
)

var (
	cfgFile string
	verbose bool

	appLogger log.Logger
	store     *config.Store
)

var rootCmd = &cobra.Command{
	Use:           config.AppName,
	Short:         "ssoctl talks to an exam-sso server",
	Long:          `A command-line client for logging in to exam-sso and managing the resulting session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		appLogger = log.NewZerologAdapter(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger())

		var err error
		if store, err = config.Load(cfgFile); err != nil {
			return err
		}
		appLogger.Debug(cmd.Context(), "Using config file", map[string]interface{}{"path": store.Path()})

		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// currentClient returns the selected context and a client for its server.
func currentClient() (config.Context, *client.Client, error) {
	ctx, err := store.Current()
	if err != nil {
		return config.Context{}, nil, err
	}

	c, err := client.New(ctx.ServerEndpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return config.Context{}, nil, err
	}

	return ctx, c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}
