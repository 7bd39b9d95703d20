package model

import "time"

type Connection struct {
	ID          string `gorm:"column:id;primaryKey"`
	TenantID    string `gorm:"column:tenant_id;type:text;not null;index"`
	Provider    string `gorm:"column:provider;type:text;not null;index"`
	WorkspaceID string `gorm:"column:workspace_id;type:text"`
	BaseURL     string `gorm:"column:base_url;type:text;not null"`

	AccessToken    string     `gorm:"column:access_token;type:text;not null"`
	RefreshToken   *string    `gorm:"column:refresh_token;type:text"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at"`
	Scopes         string     `gorm:"column:scopes;type:text"`

	SyncIntervalMinutes int    `gorm:"column:sync_interval_minutes;not null;default:0"`
	AutoSyncEnabled     bool   `gorm:"column:auto_sync_enabled;not null;default:1"`
	ItemTypes           string `gorm:"column:item_types;type:text"`
	ItemStatuses        string `gorm:"column:item_statuses;type:text"`

	LastSyncAt           *time.Time `gorm:"column:last_sync_at"`
	LastSuccessfulSyncAt *time.Time `gorm:"column:last_successful_sync_at"`
	LastSyncError        string     `gorm:"column:last_sync_error;type:text"`
	FailedSyncAttempts   int        `gorm:"column:failed_sync_attempts;not null;default:0"`
	TotalItemsSynced     int64      `gorm:"column:total_items_synced;not null;default:0"`

	IsActive  bool      `gorm:"column:is_active;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Connection) TableName() string {
	return "connections"
}
