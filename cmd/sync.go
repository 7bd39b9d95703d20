package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"pulsesync/internal/bootstrap"
	"pulsesync/internal/bootstrap/logging"
	"pulsesync/internal/errs"
	syncusecase "pulsesync/internal/usecase/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync for a connection",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *syncusecase.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		connectionID, _ := cmd.Flags().GetString("connection")
		forceFull, _ := cmd.Flags().GetBool("full")
		units, _ := cmd.Flags().GetStringSlice("unit")

		result, err := svc.RunSync(ctx, syncusecase.RunSyncInput{
			ConnectionID: connectionID,
			ForceFull:    forceFull,
			Units:        units,
		})
		if err != nil {
			return errs.Wrap(err, "run sync")
		}

		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"sync run %d (%s) finished: fetched=%d created=%d updated=%d failed=%d processed=%d api_calls=%d duration=%s\n",
			result.RunID, result.Kind,
			result.ItemsFetched, result.ItemsCreated, result.ItemsUpdated, result.ItemsFailed,
			result.TotalProcessed, result.APICalls, result.Duration,
		); err != nil {
			return errs.Wrap(err, "write sync output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("connection", "", "Connection id to sync")
	syncCmd.Flags().Bool("full", false, "Force a full sync instead of incremental")
	syncCmd.Flags().StringSlice("unit", nil, "Restrict the sync to specific parent units (repeatable)")
	_ = syncCmd.MarkFlagRequired("connection")
}
