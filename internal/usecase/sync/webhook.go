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

const (
	WebhookEventUpserted = "upserted"
	WebhookEventDeleted  = "deleted"

	webhookRouteCacheTTL = 24 * time.Hour
)

type WebhookEventInput struct {
	Provider  string
	ItemKey   string
	EventType string
}

// IngestWebhookEvent handles one vendor push: resolve the owning connection
// from the item key's unit prefix, fetch the single item, upsert it, and
// append a webhook-kind run to the audit trail. Unresolvable events are
// logged and dropped without error so the receiver can always answer 200.
// Delete events mark the stored entity deleted without a vendor fetch.
func (s *Service) IngestWebhookEvent(ctx context.Context, input WebhookEventInput) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	itemKey := strings.TrimSpace(input.ItemKey)

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.sync.webhook"),
		slog.String("provider", provider),
		slog.String("item_key", itemKey),
	)

	if provider == "" || itemKey == "" {
		logging.Warn(logCtx, "webhook event missing provider or item key, dropped")
		return nil
	}

	unitKey := domainsync.ParentPrefix(itemKey)
	if unitKey == "" {
		logging.Warn(logCtx, "webhook item key has no unit prefix, dropped")
		return nil
	}

	conn, ok, err := s.resolveConnection(logCtx, provider, unitKey)
	if err != nil {
		return errs.Wrap(err, "resolve webhook connection")
	}
	if !ok {
		logging.Warn(logCtx, "no connection owns webhook unit, dropped", slog.String("unit", unitKey))
		return nil
	}
	logCtx = logging.WithAttrs(logCtx, slog.String("connection_id", conn.ID))

	if !s.flights.TryAcquire(conn.ID) {
		return errs.Wrapf(domainsync.ErrSyncInProgress, "sync already in progress for connection %s", conn.ID)
	}
	defer s.flights.Release(conn.ID)

	if strings.EqualFold(input.EventType, WebhookEventDeleted) {
		return s.ingestDelete(logCtx, conn, itemKey)
	}
	return s.ingestUpsert(logCtx, conn, unitKey, itemKey)
}

func (s *Service) ingestUpsert(ctx context.Context, conn ports.Connection, unitKey, itemKey string) error {
	startedAt := s.now()

	token, err := s.ensureValidToken(ctx, &conn)
	if err != nil {
		return err
	}

	item, err := s.vendor.GetItem(ctx, conn, token, itemKey)
	if err != nil {
		return errs.Wrapf(err, "fetch webhook item %s", itemKey)
	}

	outcome, err := s.upsertItem(ctx, &conn, unitKey, item)
	if err != nil {
		return err
	}

	stats := runStats{fetched: 1, apiCalls: 1}
	switch outcome {
	case domainsync.UpsertCreated:
		stats.created, stats.processed = 1, 1
	case domainsync.UpsertUpdated:
		stats.updated, stats.processed = 1, 1
	case domainsync.UpsertSkipped:
		logging.Info(ctx, "webhook item excluded by filters")
	}

	if err := s.appendWebhookRun(ctx, conn, startedAt, stats); err != nil {
		return err
	}

	logging.Info(ctx, "webhook item ingested", slog.String("outcome", string(outcome)))
	return nil
}

func (s *Service) ingestDelete(ctx context.Context, conn ports.Connection, itemKey string) error {
	startedAt := s.now()

	err := s.repo.MarkEntityDeleted(ctx, conn.TenantID, conn.Provider, itemKey, s.now())
	if err != nil {
		if errors.Is(err, domainsync.ErrEntityNotFound) {
			logging.Warn(ctx, "webhook delete for unknown entity, dropped")
			return nil
		}
		return errs.Wrap(err, "mark entity deleted")
	}

	if err := s.appendWebhookRun(ctx, conn, startedAt, runStats{processed: 1}); err != nil {
		return err
	}

	logging.Info(ctx, "webhook delete applied")
	return nil
}

// appendWebhookRun records the single-item ingestion on the audit trail as an
// already-completed run.
func (s *Service) appendWebhookRun(ctx context.Context, conn ports.Connection, startedAt time.Time, stats runStats) error {
	completedAt := s.now()

	return s.uow.WithTx(ctx, func(txCtx context.Context) error {
		run, err := s.repo.CreateRun(txCtx, ports.SyncRunCreate{
			ConnectionID: conn.ID,
			TenantID:     conn.TenantID,
			Kind:         string(domainsync.RunKindWebhook),
			Status:       string(domainsync.RunStatusInProgress),
			StartedAt:    startedAt,
		})
		if err != nil {
			return err
		}
		return s.repo.FinalizeRun(txCtx, run.ID, ports.SyncRunFinalize{
			Status:         string(domainsync.RunStatusCompleted),
			CompletedAt:    completedAt,
			ItemsFetched:   stats.fetched,
			ItemsCreated:   stats.created,
			ItemsUpdated:   stats.updated,
			ItemsFailed:    stats.failed,
			TotalProcessed: stats.processed,
			APICalls:       stats.apiCalls,
			DurationMs:     completedAt.Sub(startedAt).Milliseconds(),
		})
	})
}

// resolveConnection maps (provider, unit prefix) to the owning connection,
// consulting the routing cache before scanning previously synced entities.
func (s *Service) resolveConnection(ctx context.Context, provider, unitKey string) (ports.Connection, bool, error) {
	cacheKey := "webhook:route:" + provider + ":" + unitKey

	if s.cache != nil {
		if cached, found, err := s.cache.Get(ctx, cacheKey); err != nil {
			logging.Warn(ctx, "webhook route cache read failed", slog.Any("err", errs.Loggable(err)))
		} else if found {
			conn, err := s.repo.GetConnection(ctx, cached)
			if err == nil && conn.IsActive {
				return conn, true, nil
			}
			// Stale route entry; fall through to a fresh lookup.
			_ = s.cache.Delete(ctx, cacheKey)
		}
	}

	connID, found, err := s.repo.FindConnectionIDForUnit(ctx, provider, unitKey)
	if err != nil {
		return ports.Connection{}, false, err
	}
	if !found {
		return ports.Connection{}, false, nil
	}

	conn, err := s.repo.GetConnection(ctx, connID)
	if err != nil {
		if errors.Is(err, domainsync.ErrConnectionNotFound) {
			return ports.Connection{}, false, nil
		}
		return ports.Connection{}, false, err
	}
	if !conn.IsActive {
		return ports.Connection{}, false, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, conn.ID, webhookRouteCacheTTL); err != nil {
			logging.Warn(ctx, "webhook route cache write failed", slog.Any("err", errs.Loggable(err)))
		}
	}
	return conn, true, nil
}
