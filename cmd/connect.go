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

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Complete an OAuth flow and create a connection",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *syncusecase.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		tenantID, _ := cmd.Flags().GetString("tenant")
		provider, _ := cmd.Flags().GetString("provider")
		baseURL, _ := cmd.Flags().GetString("base-url")
		code, _ := cmd.Flags().GetString("code")
		interval, _ := cmd.Flags().GetInt("interval")
		autoSync, _ := cmd.Flags().GetBool("auto-sync")
		itemTypes, _ := cmd.Flags().GetStringSlice("item-type")
		itemStatuses, _ := cmd.Flags().GetStringSlice("item-status")

		conn, err := svc.CompleteAuthorization(ctx, syncusecase.CompleteAuthorizationInput{
			TenantID:            tenantID,
			Provider:            provider,
			BaseURL:             baseURL,
			Code:                code,
			SyncIntervalMinutes: interval,
			AutoSyncEnabled:     autoSync,
			ItemTypes:           itemTypes,
			ItemStatuses:        itemStatuses,
		})
		if err != nil {
			return errs.Wrap(err, "complete authorization")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "connection created: %s (workspace %s)\n", conn.ID, conn.WorkspaceID); err != nil {
			return errs.Wrap(err, "write connect output")
		}
		return nil
	}),
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a connection (soft delete, credentials dropped)",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *syncusecase.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		connectionID, _ := cmd.Flags().GetString("connection")
		if err := svc.RevokeConnection(ctx, connectionID); err != nil {
			return errs.Wrap(err, "revoke connection")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "connection revoked: %s\n", connectionID); err != nil {
			return errs.Wrap(err, "write revoke output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().String("tenant", "", "Tenant id")
	connectCmd.Flags().String("provider", "", "Provider slug (must exist in providers config)")
	connectCmd.Flags().String("base-url", "", "Vendor API base URL")
	connectCmd.Flags().String("code", "", "OAuth authorization code")
	connectCmd.Flags().Int("interval", 0, "Sync interval in minutes (0 = global default)")
	connectCmd.Flags().Bool("auto-sync", true, "Enable scheduled syncs")
	connectCmd.Flags().StringSlice("item-type", nil, "Only sync items of these types (repeatable)")
	connectCmd.Flags().StringSlice("item-status", nil, "Only sync items in these statuses (repeatable)")
	_ = connectCmd.MarkFlagRequired("tenant")
	_ = connectCmd.MarkFlagRequired("provider")
	_ = connectCmd.MarkFlagRequired("base-url")
	_ = connectCmd.MarkFlagRequired("code")

	rootCmd.AddCommand(revokeCmd)
	revokeCmd.Flags().String("connection", "", "Connection id to revoke")
	_ = revokeCmd.MarkFlagRequired("connection")
}
