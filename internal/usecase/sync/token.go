package sync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pulsesync/internal/bootstrap/logging"
	domainsync "pulsesync/internal/domain/sync"
	"pulsesync/internal/errs"
	"pulsesync/internal/ports"
)

// ensureValidToken returns a bearer token guaranteed valid for at least the
// configured skew. Inside the validity window it is a no-op with no network
// call; otherwise it refreshes and persists the new credential, keeping the
// stored refresh token when the vendor does not rotate it. The connection is
// updated in place so the rest of the run sees the fresh credential.
func (s *Service) ensureValidToken(ctx context.Context, conn *ports.Connection) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}
	if conn == nil {
		return "", errors.New("connection is required")
	}

	skew := s.cfg.TokenRefreshSkew()
	if conn.TokenExpiresAt != nil && conn.TokenExpiresAt.Sub(s.now()) > skew {
		return conn.AccessToken, nil
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.sync.token"),
		slog.String("connection_id", conn.ID),
	)

	if conn.RefreshToken == nil || strings.TrimSpace(*conn.RefreshToken) == "" {
		return "", errs.Wrapf(domainsync.ErrAuth, "connection %s: %v", conn.ID, domainsync.ErrRefreshTokenMissing)
	}

	bundle, err := s.vendor.RefreshToken(ctx, *conn)
	if err != nil {
		return "", errs.Wrapf(err, "refresh token for connection %s", conn.ID)
	}

	update := ports.CredentialUpdate{
		AccessToken:    bundle.AccessToken,
		TokenExpiresAt: bundle.ExpiresAt,
		Scopes:         bundle.Scopes,
	}
	// Vendors that rotate refresh tokens send a new one; the rest omit it and
	// the stored token stays.
	if bundle.RefreshToken != "" {
		update.RefreshToken = &bundle.RefreshToken
	}

	if err := s.repo.UpdateCredentials(ctx, conn.ID, update); err != nil {
		return "", errs.Wrap(err, "persist refreshed credentials")
	}

	conn.AccessToken = bundle.AccessToken
	conn.TokenExpiresAt = bundle.ExpiresAt
	if bundle.RefreshToken != "" {
		conn.RefreshToken = &bundle.RefreshToken
	}
	if bundle.Scopes != "" {
		conn.Scopes = bundle.Scopes
	}

	var expiresIn time.Duration
	if bundle.ExpiresAt != nil {
		expiresIn = bundle.ExpiresAt.Sub(s.now())
	}
	logging.Info(logCtx, "access token refreshed",
		slog.Bool("refresh_token_rotated", bundle.RefreshToken != ""),
		slog.Duration("expires_in", expiresIn),
	)

	return bundle.AccessToken, nil
}
