package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"pulsesync/internal/bootstrap/config"
	"pulsesync/internal/bootstrap/logging"
	domainsync "pulsesync/internal/domain/sync"
	"pulsesync/internal/errs"
)

// Scheduler periodically scans active connections and fires syncs for the
// ones that are due. Dispatch is supervised: a weighted semaphore caps the
// number of concurrent syncs, and every outcome is logged per connection so
// one connection's failure never touches the rest of the tick.
type Scheduler struct {
	svc             *Service
	tick            time.Duration
	defaultInterval time.Duration
	sem             *semaphore.Weighted

	now func() time.Time
}

func NewScheduler(svc *Service, cfg config.SyncConfig) *Scheduler {
	return &Scheduler{
		svc:             svc,
		tick:            cfg.SchedulerTick(),
		defaultInterval: cfg.DefaultInterval(),
		sem:             semaphore.NewWeighted(cfg.MaxConcurrentSyncs),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled, evaluating connections every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.sync.scheduler"))
	logging.Info(logCtx, "scheduler started",
		slog.Duration("tick", s.tick),
		slog.Duration("default_interval", s.defaultInterval),
	)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info(logCtx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(logCtx); err != nil {
				logging.Error(logCtx, "scheduler tick failed", slog.Any("err", errs.Loggable(err)))
			}
		}
	}
}

// Tick evaluates every active connection once and dispatches syncs for the
// due ones. Exported so a tick can be driven directly.
func (s *Scheduler) Tick(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	connections, err := s.svc.repo.ListActiveConnections(ctx)
	if err != nil {
		return errs.Wrap(err, "list active connections")
	}

	now := s.now()
	dispatched := 0

	for _, conn := range connections {
		interval := domainsync.EffectiveInterval(conn.SyncIntervalMinutes, s.defaultInterval)
		if !domainsync.IsDueForSync(now, conn.LastSuccessfulSyncAt, conn.LastSyncAt, interval, conn.AutoSyncEnabled) {
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return errs.Wrap(err, "acquire sync slot")
		}
		dispatched++

		connID := conn.ID
		go func() {
			defer s.sem.Release(1)
			s.runOne(ctx, connID)
		}()
	}

	if dispatched > 0 {
		logging.Info(ctx, "scheduler tick dispatched syncs",
			slog.Int("dispatched", dispatched),
			slog.Int("evaluated", len(connections)),
		)
	}
	return nil
}

func (s *Scheduler) runOne(ctx context.Context, connectionID string) {
	logCtx := logging.WithAttrs(ctx, slog.String("connection_id", connectionID))

	_, err := s.svc.RunSync(ctx, RunSyncInput{ConnectionID: connectionID})
	switch {
	case err == nil:
	case errors.Is(err, domainsync.ErrSyncInProgress):
		logging.Info(logCtx, "scheduled sync skipped, already in progress")
	default:
		// Logged and persisted on the connection; the next tick retries.
		logging.Error(logCtx, "scheduled sync failed", slog.Any("err", errs.Loggable(err)))
	}
}
