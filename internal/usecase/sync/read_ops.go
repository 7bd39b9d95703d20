package sync

import (
	"context"
	"errors"
	"strings"

	"pulsesync/internal/errs"
	"pulsesync/internal/ports"
)

func (s *Service) GetConnection(ctx context.Context, connectionID string) (ports.Connection, error) {
	if ctx == nil {
		return ports.Connection{}, errors.New("context is required")
	}
	if strings.TrimSpace(connectionID) == "" {
		return ports.Connection{}, errors.New("connection id is required")
	}
	return s.repo.GetConnection(ctx, connectionID)
}

func (s *Service) ListConnections(ctx context.Context) ([]ports.Connection, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListActiveConnections(ctx)
}

func (s *Service) ListRuns(ctx context.Context, connectionID string, limit int) ([]ports.SyncRun, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(connectionID) == "" {
		return nil, errors.New("connection id is required")
	}

	// Fail on unknown connections instead of returning an empty audit trail.
	if _, err := s.repo.GetConnection(ctx, connectionID); err != nil {
		return nil, err
	}

	runs, err := s.repo.ListRuns(ctx, connectionID, limit)
	if err != nil {
		return nil, errs.Wrap(err, "list sync runs")
	}
	return runs, nil
}
