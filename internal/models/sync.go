package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncWatermark tracks, per entity type, the newest server timestamp up
// to which this agent has fully applied remote changes. Advanced only
// after an entire pull batch commits.
type SyncWatermark struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType   string     `gorm:"size:50;not null;uniqueIndex" json:"entityType"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`

	// Opaque continuation token, for servers that page deltas
	Cursor *string `gorm:"size:255" json:"cursor,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (SyncWatermark) TableName() string {
	return "sync_watermarks"
}

// Conflict reasons
const (
	ConflictReasonPushRejected   = "push_rejected"   // server refused the mutation with a version mismatch
	ConflictReasonPullDivergence = "pull_divergence" // pull found the server changed under a pending record
)

// ConflictItem records a divergence between local and remote state that
// requires an explicit resolution. Never auto-resolved.
type ConflictItem struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	EntityType string `gorm:"size:50;not null;index" json:"entityType"`
	EntityID   string `gorm:"size:100;not null;index" json:"entityId"`
	Reason     string `gorm:"size:30;not null" json:"reason"`

	LocalData  datatypes.JSON `json:"localData"`
	RemoteData datatypes.JSON `json:"remoteData"`
	BaseData   datatypes.JSON `json:"baseData,omitempty"`

	// Field names where local and remote both diverged from base
	FieldConflicts datatypes.JSON `json:"fieldConflicts,omitempty"`

	LocalUpdatedAt *time.Time `json:"localUpdatedAt,omitempty"`
	RemoteVersion  *int64     `json:"remoteVersion,omitempty"`

	// Outbox entry that carried the rejected mutation, if any
	OutboxEntryID *uint `json:"outboxEntryId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name
func (ConflictItem) TableName() string {
	return "conflict_items"
}
