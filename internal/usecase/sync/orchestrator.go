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

type RunSyncInput struct {
	ConnectionID string
	ForceFull    bool
	// Units restricts the sync to a subset of parent units; empty means all.
	Units []string
}

type RunSyncResult struct {
	RunID          uint64
	Kind           domainsync.RunKind
	ItemsFetched   int
	ItemsCreated   int
	ItemsUpdated   int
	ItemsFailed    int
	TotalProcessed int
	APICalls       int
	Duration       time.Duration
}

// runStats accumulates counters across units and pages of one run.
type runStats struct {
	fetched   int
	created   int
	updated   int
	failed    int
	processed int
	apiCalls  int
}

// RunSync drives one full or incremental sync for a connection: acquire the
// single-flight guard, open a run, fetch and upsert every unit sequentially,
// finalize the run and the connection state. The guard is released whatever
// happens.
func (s *Service) RunSync(ctx context.Context, input RunSyncInput) (RunSyncResult, error) {
	if ctx == nil {
		return RunSyncResult{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return RunSyncResult{}, errs.Wrap(err, "check context")
	}
	if strings.TrimSpace(input.ConnectionID) == "" {
		return RunSyncResult{}, errors.New("connection id is required")
	}

	conn, err := s.repo.GetConnection(ctx, input.ConnectionID)
	if err != nil {
		return RunSyncResult{}, err
	}
	if !conn.IsActive {
		return RunSyncResult{}, errs.Wrapf(domainsync.ErrConnectionInactive, "connection %s", conn.ID)
	}

	if !s.flights.TryAcquire(conn.ID) {
		return RunSyncResult{}, errs.Wrapf(domainsync.ErrSyncInProgress, "sync already in progress for connection %s", conn.ID)
	}
	defer s.flights.Release(conn.ID)

	startedAt := s.now()
	kind := domainsync.SelectMode(conn.LastSuccessfulSyncAt, input.ForceFull)

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.sync.orchestrator"),
		slog.String("connection_id", conn.ID),
		slog.String("tenant_id", conn.TenantID),
		slog.String("kind", string(kind)),
	)
	logging.Info(logCtx, "sync run starting")

	var run ports.SyncRun
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		created, createErr := s.repo.CreateRun(txCtx, ports.SyncRunCreate{
			ConnectionID: conn.ID,
			TenantID:     conn.TenantID,
			Kind:         string(kind),
			Status:       string(domainsync.RunStatusInProgress),
			StartedAt:    startedAt,
		})
		if createErr != nil {
			return createErr
		}
		run = created
		return s.repo.MarkSyncStarted(txCtx, conn.ID, startedAt)
	}); err != nil {
		return RunSyncResult{}, errs.Wrap(err, "open sync run")
	}

	var updatedSince *time.Time
	if kind == domainsync.RunKindIncremental {
		updatedSince = conn.LastSuccessfulSyncAt
	}

	var stats runStats
	runErr := s.syncConnection(logCtx, &conn, updatedSince, input.Units, &stats)

	completedAt := s.now()
	duration := completedAt.Sub(startedAt)

	if runErr != nil {
		message := runErr.Error()
		detail := errs.StackOf(errs.WithStack(runErr))

		if finalizeErr := s.uow.WithTx(ctx, func(txCtx context.Context) error {
			if err := s.repo.FinalizeRun(txCtx, run.ID, ports.SyncRunFinalize{
				Status:         string(domainsync.RunStatusFailed),
				CompletedAt:    completedAt,
				ItemsFetched:   stats.fetched,
				ItemsCreated:   stats.created,
				ItemsUpdated:   stats.updated,
				ItemsFailed:    stats.failed,
				TotalProcessed: stats.processed,
				APICalls:       stats.apiCalls,
				DurationMs:     duration.Milliseconds(),
				ErrorMessage:   message,
				ErrorDetail:    detail,
			}); err != nil {
				return err
			}
			return s.repo.MarkSyncFailed(txCtx, conn.ID, message)
		}); finalizeErr != nil {
			logging.Error(logCtx, "finalize failed run", slog.Any("err", errs.Loggable(finalizeErr)))
		}

		logging.Error(logCtx, "sync run failed",
			slog.Uint64("run_id", run.ID),
			slog.Any("err", errs.Loggable(runErr)),
		)
		return RunSyncResult{}, errs.Wrapf(runErr, "sync connection %s", conn.ID)
	}

	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.FinalizeRun(txCtx, run.ID, ports.SyncRunFinalize{
			Status:         string(domainsync.RunStatusCompleted),
			CompletedAt:    completedAt,
			ItemsFetched:   stats.fetched,
			ItemsCreated:   stats.created,
			ItemsUpdated:   stats.updated,
			ItemsFailed:    stats.failed,
			TotalProcessed: stats.processed,
			APICalls:       stats.apiCalls,
			DurationMs:     duration.Milliseconds(),
		}); err != nil {
			return err
		}
		return s.repo.MarkSyncSucceeded(txCtx, conn.ID, completedAt, int64(stats.processed))
	}); err != nil {
		return RunSyncResult{}, errs.Wrap(err, "finalize sync run")
	}

	logging.Info(logCtx, "sync run completed",
		slog.Uint64("run_id", run.ID),
		slog.Int("items_fetched", stats.fetched),
		slog.Int("items_created", stats.created),
		slog.Int("items_updated", stats.updated),
		slog.Int("items_failed", stats.failed),
		slog.Int("total_processed", stats.processed),
		slog.Int("api_calls", stats.apiCalls),
		slog.Duration("duration", duration),
	)

	return RunSyncResult{
		RunID:          run.ID,
		Kind:           kind,
		ItemsFetched:   stats.fetched,
		ItemsCreated:   stats.created,
		ItemsUpdated:   stats.updated,
		ItemsFailed:    stats.failed,
		TotalProcessed: stats.processed,
		APICalls:       stats.apiCalls,
		Duration:       duration,
	}, nil
}

// syncConnection is the run body: token, unit enumeration, sequential fetch
// loops. Any error aborts the run and surfaces on the SyncRun row.
func (s *Service) syncConnection(ctx context.Context, conn *ports.Connection, updatedSince *time.Time, unitFilter []string, stats *runStats) error {
	token, err := s.ensureValidToken(ctx, conn)
	if err != nil {
		return err
	}

	units, err := s.vendor.ListUnits(ctx, *conn, token)
	stats.apiCalls++
	if err != nil {
		return errs.Wrap(err, "list parent units")
	}

	selected := filterUnits(units, unitFilter)
	if len(selected) == 0 {
		logging.Warn(ctx, "no parent units selected", slog.Int("available", len(units)))
		return nil
	}

	for _, unit := range selected {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(err, "check context")
		}
		if err := s.syncUnit(ctx, conn, token, unit.Key, updatedSince, stats); err != nil {
			return errs.Wrapf(err, "sync unit %s", unit.Key)
		}
	}
	return nil
}

func filterUnits(units []ports.Unit, filter []string) []ports.Unit {
	if len(filter) == 0 {
		return units
	}

	allowed := make(map[string]struct{}, len(filter))
	for _, key := range filter {
		allowed[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}

	out := make([]ports.Unit, 0, len(units))
	for _, unit := range units {
		if _, ok := allowed[strings.ToLower(unit.Key)]; ok {
			out = append(out, unit)
		}
	}
	return out
}
