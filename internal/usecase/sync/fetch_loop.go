package sync

import (
	"context"
	"log/slog"
	"time"

	"pulsesync/internal/bootstrap/logging"
	domainsync "pulsesync/internal/domain/sync"
	"pulsesync/internal/errs"
	"pulsesync/internal/ports"
)

// syncUnit pages through one parent unit. Page and persistence errors abort
// the run; a single item failing to upsert is logged, counted, and skipped.
// Hitting the per-unit cap ends the unit as a partial sync with a warning,
// not an error.
func (s *Service) syncUnit(ctx context.Context, conn *ports.Connection, token, unitKey string, updatedSince *time.Time, stats *runStats) error {
	logCtx := logging.WithAttrs(ctx, slog.String("unit", unitKey))

	page := ports.PageRequest{
		PageSize:     s.cfg.PageSize,
		UpdatedSince: updatedSince,
	}
	unitItems := 0

	for {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(err, "check context")
		}

		result, err := s.vendor.ListItems(ctx, *conn, token, unitKey, page)
		stats.apiCalls++
		if err != nil {
			return errs.Wrap(err, "fetch page")
		}

		for _, item := range result.Items {
			stats.fetched++
			unitItems++

			outcome, upsertErr := s.upsertItem(ctx, conn, unitKey, item)
			if upsertErr != nil {
				stats.failed++
				logging.Warn(logCtx, "item upsert failed",
					slog.String("external_id", item.ExternalID),
					slog.Any("err", errs.Loggable(upsertErr)),
				)
				continue
			}

			switch outcome {
			case domainsync.UpsertCreated:
				stats.created++
				stats.processed++
			case domainsync.UpsertUpdated:
				stats.updated++
				stats.processed++
			case domainsync.UpsertSkipped:
				// Excluded by the connection's filters; fetched but not processed.
			}
		}

		if unitItems >= s.cfg.MaxItemsPerUnit {
			logging.Warn(logCtx, "per-unit item cap reached, partial sync",
				slog.Int("items", unitItems),
				slog.Int("cap", s.cfg.MaxItemsPerUnit),
			)
			return nil
		}

		more := domainsync.HasMorePages(domainsync.PageState{
			Returned:   len(result.Items),
			PageSize:   page.PageSize,
			NextCursor: result.NextCursor,
			StartAt:    result.StartAt,
			Total:      result.Total,
			HasTotal:   result.HasTotal,
		})
		if !more {
			return nil
		}

		page.Cursor = result.NextCursor
		page.StartAt = result.StartAt + len(result.Items)
	}
}
