package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainsync "pulsesync/internal/domain/sync"
	"pulsesync/internal/errs"
	"pulsesync/internal/infrastructure/persistence/sqlite/model"
	"pulsesync/internal/ports"
)

type SyncRepository struct {
	db *gorm.DB
}

var _ ports.SyncRepository = (*SyncRepository)(nil)

func NewSyncRepository(db *gorm.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

func (r *SyncRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *SyncRepository) CreateConnection(ctx context.Context, conn ports.Connection) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := connectionToRow(conn)
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert connection")
	}
	return nil
}

func (r *SyncRepository) GetConnection(ctx context.Context, id string) (ports.Connection, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Connection{}, err
	}

	var row model.Connection
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Connection{}, errs.Wrapf(domainsync.ErrConnectionNotFound, "connection %s", id)
		}
		return ports.Connection{}, errs.Wrap(err, "query connection")
	}

	return connectionFromRow(row), nil
}

func (r *SyncRepository) ListActiveConnections(ctx context.Context) ([]ports.Connection, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Connection
	if err := db.
		Where("is_active = ?", true).
		Order("created_at asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query active connections")
	}

	items := make([]ports.Connection, 0, len(rows))
	for _, row := range rows {
		items = append(items, connectionFromRow(row))
	}
	return items, nil
}

func (r *SyncRepository) UpdateCredentials(ctx context.Context, id string, update ports.CredentialUpdate) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	values := map[string]any{
		"access_token":     update.AccessToken,
		"token_expires_at": update.TokenExpiresAt,
		"updated_at":       time.Now().UTC(),
	}
	if update.RefreshToken != nil {
		values["refresh_token"] = *update.RefreshToken
	}
	if update.Scopes != "" {
		values["scopes"] = update.Scopes
	}

	res := db.Model(&model.Connection{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return errs.Wrap(res.Error, "update connection credentials")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(domainsync.ErrConnectionNotFound, "connection %s", id)
	}
	return nil
}

func (r *SyncRepository) MarkSyncStarted(ctx context.Context, id string, at time.Time) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&model.Connection{}).Where("id = ?", id).Updates(map[string]any{
		"last_sync_at": at,
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark sync started")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(domainsync.ErrConnectionNotFound, "connection %s", id)
	}
	return nil
}

func (r *SyncRepository) MarkSyncSucceeded(ctx context.Context, id string, at time.Time, itemsSynced int64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&model.Connection{}).Where("id = ?", id).Updates(map[string]any{
		"last_successful_sync_at": at,
		"failed_sync_attempts":    0,
		"last_sync_error":         "",
		"total_items_synced":      gorm.Expr("total_items_synced + ?", itemsSynced),
		"updated_at":              time.Now().UTC(),
	})
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark sync succeeded")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(domainsync.ErrConnectionNotFound, "connection %s", id)
	}
	return nil
}

func (r *SyncRepository) MarkSyncFailed(ctx context.Context, id string, message string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&model.Connection{}).Where("id = ?", id).Updates(map[string]any{
		"failed_sync_attempts": gorm.Expr("failed_sync_attempts + 1"),
		"last_sync_error":      message,
		"updated_at":           time.Now().UTC(),
	})
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark sync failed")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(domainsync.ErrConnectionNotFound, "connection %s", id)
	}
	return nil
}

func (r *SyncRepository) DeactivateConnection(ctx context.Context, id string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&model.Connection{}).Where("id = ?", id).Updates(map[string]any{
		"is_active":        false,
		"access_token":     "",
		"refresh_token":    nil,
		"token_expires_at": nil,
		"updated_at":       time.Now().UTC(),
	})
	if res.Error != nil {
		return errs.Wrap(res.Error, "deactivate connection")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(domainsync.ErrConnectionNotFound, "connection %s", id)
	}
	return nil
}

func (r *SyncRepository) CreateRun(ctx context.Context, input ports.SyncRunCreate) (ports.SyncRun, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.SyncRun{}, err
	}

	row := model.SyncRun{
		ConnectionID: input.ConnectionID,
		TenantID:     input.TenantID,
		Kind:         input.Kind,
		Status:       input.Status,
		StartedAt:    input.StartedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.SyncRun{}, errs.Wrap(err, "insert sync run")
	}

	return runFromRow(row), nil
}

func (r *SyncRepository) FinalizeRun(ctx context.Context, runID uint64, input ports.SyncRunFinalize) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&model.SyncRun{}).Where("id = ?", runID).Updates(map[string]any{
		"status":          input.Status,
		"completed_at":    input.CompletedAt,
		"items_fetched":   input.ItemsFetched,
		"items_created":   input.ItemsCreated,
		"items_updated":   input.ItemsUpdated,
		"items_failed":    input.ItemsFailed,
		"total_processed": input.TotalProcessed,
		"api_calls":       input.APICalls,
		"duration_ms":     input.DurationMs,
		"error_message":   input.ErrorMessage,
		"error_detail":    input.ErrorDetail,
	})
	if res.Error != nil {
		return errs.Wrap(res.Error, "finalize sync run")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(domainsync.ErrRunNotFound, "sync run %d", runID)
	}
	return nil
}

func (r *SyncRepository) ListRuns(ctx context.Context, connectionID string, limit int) ([]ports.SyncRun, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.SyncRun{}).
		Where("connection_id = ?", connectionID).
		Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.SyncRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query sync runs")
	}

	items := make([]ports.SyncRun, 0, len(rows))
	for _, row := range rows {
		items = append(items, runFromRow(row))
	}
	return items, nil
}

// UpsertEntity classifies created-vs-updated off the insert attempt itself:
// ON CONFLICT DO NOTHING either inserts the row (created) or touches nothing,
// in which case a targeted update runs. No separate existence read.
func (r *SyncRepository) UpsertEntity(ctx context.Context, input ports.RemoteEntityUpsert) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	row := model.RemoteEntity{
		TenantID:        input.TenantID,
		Provider:        input.Provider,
		ExternalID:      input.ExternalID,
		ConnectionID:    input.ConnectionID,
		ParentRef:       input.ParentRef,
		Title:           input.Title,
		ItemType:        input.ItemType,
		Status:          input.Status,
		RemoteCreatedAt: input.RemoteCreatedAt,
		RemoteUpdatedAt: input.RemoteUpdatedAt,
		PayloadJSON:     input.PayloadJSON,
		LastSyncedAt:    input.LastSyncedAt,
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, errs.Wrap(res.Error, "insert remote entity")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	update := db.Model(&model.RemoteEntity{}).
		Where("tenant_id = ? AND provider = ? AND external_id = ?", input.TenantID, input.Provider, input.ExternalID).
		Updates(map[string]any{
			"connection_id":     input.ConnectionID,
			"parent_ref":        input.ParentRef,
			"title":             input.Title,
			"item_type":         input.ItemType,
			"status":            input.Status,
			"remote_created_at": input.RemoteCreatedAt,
			"remote_updated_at": input.RemoteUpdatedAt,
			"payload_json":      input.PayloadJSON,
			"last_synced_at":    input.LastSyncedAt,
			"is_deleted":        false,
		})
	if update.Error != nil {
		return false, errs.Wrap(update.Error, "update remote entity")
	}
	return false, nil
}

func (r *SyncRepository) GetEntity(ctx context.Context, tenantID, provider, externalID string) (ports.RemoteEntity, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.RemoteEntity{}, err
	}

	var row model.RemoteEntity
	if err := db.
		Where("tenant_id = ? AND provider = ? AND external_id = ?", tenantID, provider, externalID).
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.RemoteEntity{}, errs.Wrapf(domainsync.ErrEntityNotFound, "entity %s/%s", provider, externalID)
		}
		return ports.RemoteEntity{}, errs.Wrap(err, "query remote entity")
	}

	return entityFromRow(row), nil
}

func (r *SyncRepository) MarkEntityDeleted(ctx context.Context, tenantID, provider, externalID string, at time.Time) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&model.RemoteEntity{}).
		Where("tenant_id = ? AND provider = ? AND external_id = ?", tenantID, provider, externalID).
		Updates(map[string]any{
			"is_deleted":     true,
			"last_synced_at": at,
		})
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark remote entity deleted")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(domainsync.ErrEntityNotFound, "entity %s/%s", provider, externalID)
	}
	return nil
}

// FindConnectionIDForUnit locates the connection that owns a parent unit by
// looking at previously synced entities for that unit.
func (r *SyncRepository) FindConnectionIDForUnit(ctx context.Context, provider, unitKey string) (string, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return "", false, err
	}

	var row model.RemoteEntity
	if err := db.
		Where("provider = ? AND parent_ref = ?", provider, unitKey).
		Order("id desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query connection for unit")
	}

	return row.ConnectionID, true, nil
}

func connectionToRow(conn ports.Connection) model.Connection {
	return model.Connection{
		ID:                   conn.ID,
		TenantID:             conn.TenantID,
		Provider:             conn.Provider,
		WorkspaceID:          conn.WorkspaceID,
		BaseURL:              conn.BaseURL,
		AccessToken:          conn.AccessToken,
		RefreshToken:         conn.RefreshToken,
		TokenExpiresAt:       conn.TokenExpiresAt,
		Scopes:               conn.Scopes,
		SyncIntervalMinutes:  conn.SyncIntervalMinutes,
		AutoSyncEnabled:      conn.AutoSyncEnabled,
		ItemTypes:            strings.Join(conn.ItemTypes, ","),
		ItemStatuses:         strings.Join(conn.ItemStatuses, ","),
		LastSyncAt:           conn.LastSyncAt,
		LastSuccessfulSyncAt: conn.LastSuccessfulSyncAt,
		LastSyncError:        conn.LastSyncError,
		FailedSyncAttempts:   conn.FailedSyncAttempts,
		TotalItemsSynced:     conn.TotalItemsSynced,
		IsActive:             conn.IsActive,
		CreatedAt:            conn.CreatedAt,
		UpdatedAt:            conn.UpdatedAt,
	}
}

func connectionFromRow(row model.Connection) ports.Connection {
	return ports.Connection{
		ID:                   row.ID,
		TenantID:             row.TenantID,
		Provider:             row.Provider,
		WorkspaceID:          row.WorkspaceID,
		BaseURL:              row.BaseURL,
		AccessToken:          row.AccessToken,
		RefreshToken:         row.RefreshToken,
		TokenExpiresAt:       row.TokenExpiresAt,
		Scopes:               row.Scopes,
		SyncIntervalMinutes:  row.SyncIntervalMinutes,
		AutoSyncEnabled:      row.AutoSyncEnabled,
		ItemTypes:            domainsync.SplitFilterList(row.ItemTypes),
		ItemStatuses:         domainsync.SplitFilterList(row.ItemStatuses),
		LastSyncAt:           row.LastSyncAt,
		LastSuccessfulSyncAt: row.LastSuccessfulSyncAt,
		LastSyncError:        row.LastSyncError,
		FailedSyncAttempts:   row.FailedSyncAttempts,
		TotalItemsSynced:     row.TotalItemsSynced,
		IsActive:             row.IsActive,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
}

func runFromRow(row model.SyncRun) ports.SyncRun {
	return ports.SyncRun{
		ID:             row.ID,
		ConnectionID:   row.ConnectionID,
		TenantID:       row.TenantID,
		Kind:           row.Kind,
		Status:         row.Status,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		ItemsFetched:   row.ItemsFetched,
		ItemsCreated:   row.ItemsCreated,
		ItemsUpdated:   row.ItemsUpdated,
		ItemsFailed:    row.ItemsFailed,
		TotalProcessed: row.TotalProcessed,
		APICalls:       row.APICalls,
		DurationMs:     row.DurationMs,
		ErrorMessage:   row.ErrorMessage,
		ErrorDetail:    row.ErrorDetail,
	}
}

func entityFromRow(row model.RemoteEntity) ports.RemoteEntity {
	return ports.RemoteEntity{
		ID:              row.ID,
		TenantID:        row.TenantID,
		ConnectionID:    row.ConnectionID,
		Provider:        row.Provider,
		ExternalID:      row.ExternalID,
		ParentRef:       row.ParentRef,
		Title:           row.Title,
		ItemType:        row.ItemType,
		Status:          row.Status,
		RemoteCreatedAt: row.RemoteCreatedAt,
		RemoteUpdatedAt: row.RemoteUpdatedAt,
		PayloadJSON:     row.PayloadJSON,
		LastSyncedAt:    row.LastSyncedAt,
		IsDeleted:       row.IsDeleted,
	}
}
