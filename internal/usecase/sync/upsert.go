package sync

import (
	"context"
	"errors"

	domainsync "pulsesync/internal/domain/sync"
	"pulsesync/internal/errs"
	"pulsesync/internal/ports"
)

// upsertItem maps one remote item into the local store: inclusion filters
// first, then insert-or-update keyed by (tenant, provider, externalId). The
// vendor payload is replaced wholesale and lastSyncedAt stamped on every hit.
func (s *Service) upsertItem(ctx context.Context, conn *ports.Connection, parentRef string, item ports.RemoteItem) (domainsync.UpsertOutcome, error) {
	if ctx == nil {
		return domainsync.UpsertSkipped, errors.New("context is required")
	}
	if item.ExternalID == "" {
		return domainsync.UpsertSkipped, errors.New("item has no external id")
	}

	if !domainsync.PassesFilters(conn.ItemTypes, conn.ItemStatuses, item.ItemType, item.Status) {
		return domainsync.UpsertSkipped, nil
	}

	if item.ParentRef != "" {
		parentRef = item.ParentRef
	}

	created, err := s.repo.UpsertEntity(ctx, ports.RemoteEntityUpsert{
		TenantID:        conn.TenantID,
		ConnectionID:    conn.ID,
		Provider:        conn.Provider,
		ExternalID:      item.ExternalID,
		ParentRef:       parentRef,
		Title:           item.Title,
		ItemType:        item.ItemType,
		Status:          item.Status,
		RemoteCreatedAt: item.CreatedAt,
		RemoteUpdatedAt: item.UpdatedAt,
		PayloadJSON:     string(item.Raw),
		LastSyncedAt:    s.now(),
	})
	if err != nil {
		return domainsync.UpsertSkipped, errs.Wrapf(err, "upsert entity %s", item.ExternalID)
	}

	if created {
		return domainsync.UpsertCreated, nil
	}
	return domainsync.UpsertUpdated, nil
}
