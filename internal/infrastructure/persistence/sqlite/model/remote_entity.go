package model

import "time"

type RemoteEntity struct {
	ID           uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID     string `gorm:"column:tenant_id;type:text;not null;uniqueIndex:idx_remote_entity_key,priority:1"`
	Provider     string `gorm:"column:provider;type:text;not null;uniqueIndex:idx_remote_entity_key,priority:2"`
	ExternalID   string `gorm:"column:external_id;type:text;not null;uniqueIndex:idx_remote_entity_key,priority:3"`
	ConnectionID string `gorm:"column:connection_id;type:text;not null;index"`
	ParentRef    string `gorm:"column:parent_ref;type:text;not null;index"`

	Title           string     `gorm:"column:title;type:text;not null"`
	ItemType        string     `gorm:"column:item_type;type:text"`
	Status          string     `gorm:"column:status;type:text"`
	RemoteCreatedAt *time.Time `gorm:"column:remote_created_at"`
	RemoteUpdatedAt *time.Time `gorm:"column:remote_updated_at"`
	PayloadJSON     string     `gorm:"column:payload_json;type:text;not null"`

	LastSyncedAt time.Time `gorm:"column:last_synced_at;not null"`
	IsDeleted    bool      `gorm:"column:is_deleted;not null;default:0"`
}

func (RemoteEntity) TableName() string {
	return "remote_entities"
}
