package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tracevia/cmmsgo/internal/database"
	"github.com/tracevia/cmmsgo/internal/models"
)

// Store is the durable local cache of remote entities. All reads the
// UI performs come from here; the remote API is never on a read path.
type Store struct {
	db *database.DB
}

// New creates a store over the given database
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying database for packages that need raw access
func (s *Store) DB() *database.DB {
	return s.db
}

// Get returns the cached record for (entityType, entityID), or nil if
// no such record exists.
func (s *Store) Get(entityType, entityID string) (*models.CachedRecord, error) {
	var rec models.CachedRecord
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s: %w", entityType, entityID, err)
	}
	return &rec, nil
}

// Put inserts or updates a cached record keyed by (entityType,
// entityID). The caller owns all sync metadata fields.
func (s *Store) Put(rec *models.CachedRecord) error {
	existing, err := s.Get(rec.EntityType, rec.EntityID)
	if err != nil {
		return err
	}
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", rec.EntityType, rec.EntityID, err)
	}
	return nil
}

// Delete removes a cached record outright. Soft deletion (tombstones
// for pending local deletes) is expressed via the Deleted flag instead.
func (s *Store) Delete(entityType, entityID string) error {
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&models.CachedRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

// List returns all live records of one entity type
func (s *Store) List(entityType string) ([]models.CachedRecord, error) {
	var recs []models.CachedRecord
	err := s.db.Where("entity_type = ? AND deleted = ?", entityType, false).
		Order("entity_id asc").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}
	return recs, nil
}

// Query returns the live records of one entity type matching pred
func (s *Store) Query(entityType string, pred func(*models.CachedRecord) bool) ([]models.CachedRecord, error) {
	recs, err := s.List(entityType)
	if err != nil {
		return nil, err
	}
	var out []models.CachedRecord
	for i := range recs {
		if pred(&recs[i]) {
			out = append(out, recs[i])
		}
	}
	return out, nil
}

// SetStatus updates only the sync status of a record
func (s *Store) SetStatus(entityType, entityID, status string) error {
	return s.db.Model(&models.CachedRecord{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Update("sync_status", status).Error
}

// MarkSynced records a successful push: the record now matches the
// server at the given version.
func (s *Store) MarkSynced(entityType, entityID string, version int64, serverTime time.Time) error {
	return s.db.Model(&models.CachedRecord{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Updates(map[string]interface{}{
			"sync_status":       models.SyncStatusSynced,
			"server_version":    version,
			"server_updated_at": serverTime,
		}).Error
}

// CountByStatus returns how many records carry the given sync status
func (s *Store) CountByStatus(status string) (int64, error) {
	var n int64
	err := s.db.Model(&models.CachedRecord{}).Where("sync_status = ?", status).Count(&n).Error
	return n, err
}

// Transaction runs fn against a store bound to a single transaction.
// Any error rolls back everything fn did.
func (s *Store) Transaction(fn func(*Store) error) error {
	return s.db.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: &database.DB{DB: tx}})
	})
}
