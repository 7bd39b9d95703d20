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

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List active connections",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *syncusecase.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		conns, err := svc.ListConnections(ctx)
		if err != nil {
			return errs.Wrap(err, "list connections")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTENANT\tPROVIDER\tWORKSPACE\tLAST SUCCESS\tFAILURES\tITEMS")
		for _, conn := range conns {
			lastSuccess := "never"
			if conn.LastSuccessfulSyncAt != nil {
				lastSuccess = conn.LastSuccessfulSyncAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
				conn.ID, conn.TenantID, conn.Provider, conn.WorkspaceID,
				lastSuccess, conn.FailedSyncAttempts, conn.TotalItemsSynced)
		}
		if err := w.Flush(); err != nil {
			return errs.Wrap(err, "write connections output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
}
