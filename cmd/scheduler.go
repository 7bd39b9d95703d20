package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pulsesync/internal/bootstrap"
	"pulsesync/internal/bootstrap/logging"
	"pulsesync/internal/errs"
	syncusecase "pulsesync/internal/usecase/sync"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the periodic sync scheduler until interrupted",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *syncusecase.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scheduler := syncusecase.NewScheduler(svc, app.Config.Sync)
		if err := scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return errs.Wrap(err, "run scheduler")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}
