package model

import "time"

type SyncRun struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	ConnectionID string     `gorm:"column:connection_id;type:text;not null;index"`
	TenantID     string     `gorm:"column:tenant_id;type:text;not null;index"`
	Kind         string     `gorm:"column:kind;type:text;not null"`
	Status       string     `gorm:"column:status;type:text;not null;index"`
	StartedAt    time.Time  `gorm:"column:started_at;not null"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`

	ItemsFetched   int   `gorm:"column:items_fetched;not null;default:0"`
	ItemsCreated   int   `gorm:"column:items_created;not null;default:0"`
	ItemsUpdated   int   `gorm:"column:items_updated;not null;default:0"`
	ItemsFailed    int   `gorm:"column:items_failed;not null;default:0"`
	TotalProcessed int   `gorm:"column:total_processed;not null;default:0"`
	APICalls       int   `gorm:"column:api_calls;not null;default:0"`
	DurationMs     int64 `gorm:"column:duration_ms;not null;default:0"`

	ErrorMessage string `gorm:"column:error_message;type:text"`
	ErrorDetail  string `gorm:"column:error_detail;type:text"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
