package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/exam-sso/internal/janitor"
)

var janitorOnce bool

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Purge refresh token records of long-ended sessions",
	Long: `janitor deletes refresh token records whose chain ended more than
TOKEN_RETENTION ago. By default it keeps running on JANITOR_SCHEDULE; with
--once it purges a single time and exits.`,
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

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		j, err := janitor.New(a.refresh, cfg.JanitorSchedule, cfg.TokenRetention)
		if err != nil {
			return err
		}

		if janitorOnce {
			n, err := j.RunOnce(ctx)
			if err != nil {
				return err
			}
			logger.Info(ctx, "Purge finished", map[string]interface{}{"deleted": n})

			return nil
		}

		j.Start()
		logger.Info(ctx, "Janitor running", map[string]interface{}{"schedule": cfg.JanitorSchedule})

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		j.Stop(context.WithoutCancel(ctx))

		return nil
	},
}

func init() {
	janitorCmd.Flags().BoolVar(&janitorOnce, "once", false, "purge once and exit")
}
