package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Sync status values for cached records
const (
	SyncStatusSynced   = "synced"   // matches last known server state
	SyncStatusPending  = "pending"  // has local changes awaiting push
	SyncStatusConflict = "conflict" // blocked on an unresolved conflict
)

// CachedRecord is the generic local copy of a remote entity. All entity
// types share this table, keyed by (entity_type, entity_id), with the
// domain fields serialized into the payload column.
type CachedRecord struct {
	ID              uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType      string         `gorm:"size:50;not null;uniqueIndex:idx_cache_key" json:"entityType"`
	EntityID        string         `gorm:"size:100;not null;uniqueIndex:idx_cache_key" json:"entityId"`
	Payload         datatypes.JSON `gorm:"not null" json:"payload"`
	SyncStatus      string         `gorm:"size:20;not null;default:'synced';index" json:"syncStatus"`
	LocalUpdatedAt  *time.Time     `json:"localUpdatedAt,omitempty"`
	ServerVersion   *int64         `json:"serverVersion,omitempty"`
	ServerUpdatedAt *time.Time     `json:"serverUpdatedAt,omitempty"`
	Deleted         bool           `gorm:"not null;default:false" json:"deleted"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// TableName specifies the table name
func (CachedRecord) TableName() string {
	return "cached_records"
}

// DecodePayload unmarshals the payload column into dest
func (r *CachedRecord) DecodePayload(dest interface{}) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("record %s/%s has empty payload", r.EntityType, r.EntityID)
	}
	return json.Unmarshal(r.Payload, dest)
}

// SetPayload marshals src into the payload column
func (r *CachedRecord) SetPayload(src interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	r.Payload = datatypes.JSON(data)
	return nil
}

// IsPending reports whether the record has unpushed local changes
func (r *CachedRecord) IsPending() bool {
	return r.SyncStatus == SyncStatusPending
}
