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
	webhooktransport "pulsesync/internal/transport/webhook"
	syncusecase "pulsesync/internal/usecase/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver until interrupted",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *syncusecase.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		server := webhooktransport.NewServer(app.Config.Webhook.ListenAddr, svc)
		if err := server.ListenAndServe(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return errs.Wrap(err, "serve webhook receiver")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
