package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tracevia/cmmsgo/internal/database"
	"github.com/tracevia/cmmsgo/internal/models"
)

// Outbox is the durable queue of local mutations awaiting push. Every
// write the UI makes goes through Enqueue, which records the mutation
// and updates the cached record in one transaction.
type Outbox struct {
	db         *database.DB
	maxRetries int
}

// New creates an outbox over the given database. maxRetries is the
// attempt ceiling before an entry stalls; values below 1 fall back to
// the default.
func New(db *database.DB, maxRetries int) *Outbox {
	if maxRetries < 1 {
		maxRetries = models.MaxRetryAttempts
	}
	return &Outbox{db: db, maxRetries: maxRetries}
}

// Enqueue records a local mutation and applies it to the cache. The
// entry captures the last known server state of the entity as its base
// snapshot, which later anchors the three-way diff if the push
// collides with a newer server version.
func (o *Outbox) Enqueue(entityType, entityID, operation string, payload interface{}) (*models.OutboxEntry, error) {
	switch operation {
	case models.OperationCreate, models.OperationUpdate, models.OperationDelete:
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}

	var encoded datatypes.JSON
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		encoded = datatypes.JSON(data)
	}
	if encoded == nil && operation != models.OperationDelete {
		return nil, fmt.Errorf("%s requires a payload", operation)
	}

	now := time.Now().UTC()
	entry := &models.OutboxEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Payload:    encoded,
		CreatedAt:  now,
	}

	err := o.db.DB.Transaction(func(tx *gorm.DB) error {
		var rec models.CachedRecord
		found := true
		if err := tx.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
			First(&rec).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			found = false
		}

		if operation == models.OperationCreate && found && !rec.Deleted {
			return fmt.Errorf("%s/%s already exists", entityType, entityID)
		}
		if operation != models.OperationCreate && !found {
			return fmt.Errorf("%s/%s not cached", entityType, entityID)
		}

		if found {
			entry.BaseVersion = rec.ServerVersion
			if rec.SyncStatus == models.SyncStatusSynced {
				entry.BaseSnapshot = rec.Payload
			} else {
				// An earlier entry for this entity already pinned the
				// server state; reuse its base so chained edits diff
				// against the same snapshot.
				var prev models.OutboxEntry
				err := tx.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
					Order("created_at asc, id asc").First(&prev).Error
				if err == nil {
					entry.BaseSnapshot = prev.BaseSnapshot
					entry.BaseVersion = prev.BaseVersion
				} else if err != gorm.ErrRecordNotFound {
					return err
				}
			}
		}

		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to create outbox entry: %w", err)
		}

		rec.EntityType = entityType
		rec.EntityID = entityID
		rec.SyncStatus = models.SyncStatusPending
		rec.LocalUpdatedAt = &now
		switch operation {
		case models.OperationDelete:
			rec.Deleted = true
		default:
			rec.Payload = encoded
			rec.Deleted = false
		}
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Drain returns the entries eligible for push, oldest first. Stalled
// entries stay out until an operator resolves or retries them.
func (o *Outbox) Drain() ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := o.db.Where("stalled = ?", false).
		Order("created_at asc, id asc").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}
	return entries, nil
}

// Remove deletes an entry after a successful push
func (o *Outbox) Remove(id uint) error {
	return o.db.Delete(&models.OutboxEntry{}, id).Error
}

// RemoveForEntity deletes all entries for one entity, used when a
// conflict resolution discards the local mutation.
func (o *Outbox) RemoveForEntity(entityType, entityID string) error {
	return o.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&models.OutboxEntry{}).Error
}

// RecordFailure notes a transient push failure. At the retry ceiling
// the entry stalls and drops out of automatic drains.
func (o *Outbox) RecordFailure(entry *models.OutboxEntry, cause error) error {
	now := time.Now().UTC()
	msg := cause.Error()
	entry.Attempts++
	entry.LastAttemptAt = &now
	entry.LastError = &msg
	if entry.Attempts >= o.maxRetries {
		entry.Stalled = true
	}
	return o.db.Model(&models.OutboxEntry{}).Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"attempts":        entry.Attempts,
			"last_attempt_at": entry.LastAttemptAt,
			"last_error":      entry.LastError,
			"stalled":         entry.Stalled,
		}).Error
}

// MarkStalled pulls an entry out of automatic drains, recording why
func (o *Outbox) MarkStalled(id uint, reason string) error {
	now := time.Now().UTC()
	return o.db.Model(&models.OutboxEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"stalled":         true,
			"last_error":      reason,
			"last_attempt_at": now,
		}).Error
}

// RetryStalled puts stalled entries for one entity back into rotation
// with a fresh attempt budget.
func (o *Outbox) RetryStalled(entityType, entityID string) error {
	return o.db.Model(&models.OutboxEntry{}).
		Where("entity_type = ? AND entity_id = ? AND stalled = ?", entityType, entityID, true).
		Updates(map[string]interface{}{
			"stalled":  false,
			"attempts": 0,
		}).Error
}

// Stalled returns entries excluded from automatic drains
func (o *Outbox) Stalled() ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := o.db.Where("stalled = ?", true).
		Order("created_at asc, id asc").Find(&entries).Error
	return entries, err
}

// PendingCount returns the number of entries eligible for push
func (o *Outbox) PendingCount() (int64, error) {
	var n int64
	err := o.db.Model(&models.OutboxEntry{}).Where("stalled = ?", false).Count(&n).Error
	return n, err
}

// StalledCount returns the number of stalled entries
func (o *Outbox) StalledCount() (int64, error) {
	var n int64
	err := o.db.Model(&models.OutboxEntry{}).Where("stalled = ?", true).Count(&n).Error
	return n, err
}
