package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pulsesync/internal/bootstrap"
	"pulsesync/internal/bootstrap/logging"
	"pulsesync/internal/errs"
	syncusecase "pulsesync/internal/usecase/sync"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List sync runs for a connection, newest first",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *syncusecase.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		connectionID, _ := cmd.Flags().GetString("connection")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := svc.ListRuns(ctx, connectionID, limit)
		if err != nil {
			return errs.Wrap(err, "list runs")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSTATUS\tSTARTED\tDURATION\tFETCHED\tCREATED\tUPDATED\tFAILED\tERROR")
		for _, run := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%dms\t%d\t%d\t%d\t%d\t%s\n",
				run.ID, run.Kind, run.Status,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.DurationMs,
				run.ItemsFetched, run.ItemsCreated, run.ItemsUpdated, run.ItemsFailed,
				run.ErrorMessage)
		}
		if err := w.Flush(); err != nil {
			return errs.Wrap(err, "write runs output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().String("connection", "", "Connection id")
	runsCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	_ = runsCmd.MarkFlagRequired("connection")
}
