package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox operations
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// MaxRetryAttempts is the ceiling after which an entry is stalled and
// excluded from automatic drains until an operator intervenes.
const MaxRetryAttempts = 3

// OutboxEntry is a durable record of one local mutation awaiting push.
// Entries drain strictly in creation order so causally related
// mutations (create then update then delete) replay correctly.
type OutboxEntry struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType string         `gorm:"size:50;not null;index" json:"entityType"`
	EntityID   string         `gorm:"size:100;not null;index" json:"entityId"`
	Operation  string         `gorm:"size:20;not null" json:"operation"`
	Payload    datatypes.JSON `json:"payload,omitempty"`

	// Server state known when the mutation was enqueued. Base for the
	// three-way diff when the push later collides with a newer version.
	BaseSnapshot datatypes.JSON `json:"baseSnapshot,omitempty"`
	BaseVersion  *int64         `json:"baseVersion,omitempty"`

	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	LastError     *string    `gorm:"type:text" json:"lastError,omitempty"`
	Stalled       bool       `gorm:"not null;default:false;index" json:"stalled"`
	CreatedAt     time.Time  `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name
func (OutboxEntry) TableName() string {
	return "outbox_entries"
}
