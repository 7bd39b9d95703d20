package sync

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"pulsesync/internal/bootstrap/logging"
	"pulsesync/internal/errs"
	"pulsesync/internal/ports"
)

type CompleteAuthorizationInput struct {
	TenantID string
	Provider string
	BaseURL  string
	Code     string

	SyncIntervalMinutes int
	AutoSyncEnabled     bool
	ItemTypes           []string
	ItemStatuses        []string
}

// CompleteAuthorization finishes an OAuth flow: exchange the authorization
// code, look up the workspace identity, and create the connection row.
func (s *Service) CompleteAuthorization(ctx context.Context, input CompleteAuthorizationInput) (ports.Connection, error) {
	if ctx == nil {
		return ports.Connection{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ports.Connection{}, errs.Wrap(err, "check context")
	}

	tenantID := strings.TrimSpace(input.TenantID)
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	baseURL := strings.TrimRight(strings.TrimSpace(input.BaseURL), "/")
	code := strings.TrimSpace(input.Code)

	if tenantID == "" {
		return ports.Connection{}, errors.New("tenant id is required")
	}
	if provider == "" {
		return ports.Connection{}, errors.New("provider is required")
	}
	if baseURL == "" {
		return ports.Connection{}, errors.New("base url is required")
	}
	if code == "" {
		return ports.Connection{}, errors.New("authorization code is required")
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.sync.authorize"),
		slog.String("tenant_id", tenantID),
		slog.String("provider", provider),
	)

	bundle, err := s.vendor.ExchangeCode(ctx, provider, code)
	if err != nil {
		return ports.Connection{}, errs.Wrap(err, "exchange authorization code")
	}

	identity, err := s.vendor.GetIdentity(ctx, provider, baseURL, bundle.AccessToken)
	if err != nil {
		return ports.Connection{}, errs.Wrap(err, "fetch workspace identity")
	}

	now := s.now()
	conn := ports.Connection{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		Provider:            provider,
		WorkspaceID:         identity.WorkspaceID,
		BaseURL:             baseURL,
		AccessToken:         bundle.AccessToken,
		TokenExpiresAt:      bundle.ExpiresAt,
		Scopes:              bundle.Scopes,
		SyncIntervalMinutes: input.SyncIntervalMinutes,
		AutoSyncEnabled:     input.AutoSyncEnabled,
		ItemTypes:           input.ItemTypes,
		ItemStatuses:        input.ItemStatuses,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if bundle.RefreshToken != "" {
		refresh := bundle.RefreshToken
		conn.RefreshToken = &refresh
	}

	if err := s.repo.CreateConnection(ctx, conn); err != nil {
		return ports.Connection{}, errs.Wrap(err, "create connection")
	}

	logging.Info(logCtx, "connection authorized",
		slog.String("connection_id", conn.ID),
		slog.String("workspace_id", conn.WorkspaceID),
	)
	return conn, nil
}

// RevokeConnection soft-deletes the connection and drops its credential
// material. Synced entities stay for downstream consumers.
func (s *Service) RevokeConnection(ctx context.Context, connectionID string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if strings.TrimSpace(connectionID) == "" {
		return errors.New("connection id is required")
	}

	if err := s.repo.DeactivateConnection(ctx, connectionID); err != nil {
		return errs.Wrap(err, "deactivate connection")
	}

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "usecase.sync.authorize")),
		"connection revoked",
		slog.String("connection_id", connectionID),
	)
	return nil
}
