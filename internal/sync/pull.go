package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tracevia/cmmsgo/internal/database"
	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/remote"
)

// Puller applies incremental remote changes to the local cache. Each
// entity type pulls independently: one type failing leaves its
// watermark untouched and never blocks the others.
type Puller struct {
	db       *database.DB
	client   *remote.Client
	registry *Registry
}

// NewPuller creates a pull engine
func NewPuller(db *database.DB, client *remote.Client, registry *Registry) *Puller {
	return &Puller{db: db, client: client, registry: registry}
}

// Run pulls the given entity types in order. Returns the number of
// applied records and per-type errors.
func (p *Puller) Run(ctx context.Context, entityTypes []string) (int, []SyncError) {
	var applied int
	var errs []SyncError
	for _, et := range entityTypes {
		if ctx.Err() != nil {
			errs = append(errs, SyncError{EntityType: et, Operation: "pull", Message: ctx.Err().Error()})
			continue
		}
		n, err := p.PullType(ctx, et)
		applied += n
		if err != nil {
			log.Printf("Pull %s failed: %v", et, err)
			errs = append(errs, SyncError{EntityType: et, Operation: "pull", Message: err.Error()})
		}
	}
	return applied, errs
}

// PullType fetches and applies changes for one entity type. The whole
// batch applies in a single transaction; the watermark advances to the
// server-reported time only when everything committed.
func (p *Puller) PullType(ctx context.Context, entityType string) (int, error) {
	since, err := p.watermark(entityType)
	if err != nil {
		return 0, err
	}

	delta, err := p.client.Pull(ctx, entityType, since)
	if err != nil {
		return 0, err
	}

	applied := 0
	err = p.db.DB.Transaction(func(tx *gorm.DB) error {
		for i := range delta.Data {
			ok, err := p.applyOne(tx, entityType, delta.Data[i])
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return p.advanceWatermark(tx, entityType, delta.ServerTime)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to apply %s delta: %w", entityType, err)
	}

	if applied > 0 {
		log.Printf("📥 Applied %d %s changes", applied, entityType)
	}
	return applied, nil
}

// applyOne reconciles one incoming record against the cache. Records
// with unpushed local changes are never overwritten; when the server
// has visibly moved past the state those changes were based on, a
// divergence conflict is raised instead.
func (p *Puller) applyOne(tx *gorm.DB, entityType string, incoming remote.Record) (bool, error) {
	var cached models.CachedRecord
	found := true
	if err := tx.Where("entity_type = ? AND entity_id = ?", entityType, incoming.ID).
		First(&cached).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return false, err
		}
		found = false
	}

	if !found {
		if incoming.Deleted {
			return false, nil
		}
		v := incoming.Version
		t := incoming.UpdatedAt
		rec := models.CachedRecord{
			EntityType:      entityType,
			EntityID:        incoming.ID,
			Payload:         datatypes.JSON(incoming.Data),
			SyncStatus:      models.SyncStatusSynced,
			ServerVersion:   &v,
			ServerUpdatedAt: &t,
		}
		return true, tx.Create(&rec).Error
	}

	switch cached.SyncStatus {
	case models.SyncStatusSynced:
		if incoming.Deleted {
			return true, tx.Delete(&models.CachedRecord{}, cached.ID).Error
		}
		if cached.ServerVersion != nil && *cached.ServerVersion == incoming.Version {
			// Echo of a state this agent already holds, typically its
			// own just-pushed mutation coming back
			return false, nil
		}
		v := incoming.Version
		return true, tx.Model(&models.CachedRecord{}).Where("id = ?", cached.ID).
			Updates(map[string]interface{}{
				"payload":           datatypes.JSON(incoming.Data),
				"server_version":    v,
				"server_updated_at": incoming.UpdatedAt,
				"deleted":           false,
			}).Error

	case models.SyncStatusPending:
		if cached.ServerVersion != nil && *cached.ServerVersion == incoming.Version {
			// Server state unchanged since the local edit; the pending
			// push will reconcile it.
			return false, nil
		}
		base, err := p.baseSnapshot(tx, entityType, incoming.ID)
		if err != nil {
			return false, err
		}
		if _, err := p.registry.RaisePullDivergence(tx, &cached, incoming, base); err != nil {
			return false, err
		}
		return false, nil

	default:
		// Already in conflict; the open conflict item governs
		return false, nil
	}
}

// baseSnapshot finds the server state the entity's oldest pending
// mutation was based on.
func (p *Puller) baseSnapshot(tx *gorm.DB, entityType, entityID string) (datatypes.JSON, error) {
	var entry models.OutboxEntry
	err := tx.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at asc, id asc").First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.BaseSnapshot, nil
}

func (p *Puller) watermark(entityType string) (time.Time, error) {
	var wm models.SyncWatermark
	err := p.db.Where("entity_type = ?", entityType).First(&wm).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if wm.LastSyncedAt == nil {
		return time.Time{}, nil
	}
	return *wm.LastSyncedAt, nil
}

func (p *Puller) advanceWatermark(tx *gorm.DB, entityType string, serverTime time.Time) error {
	if serverTime.IsZero() {
		return nil
	}
	var wm models.SyncWatermark
	err := tx.Where("entity_type = ?", entityType).First(&wm).Error
	if err == gorm.ErrRecordNotFound {
		wm = models.SyncWatermark{EntityType: entityType, LastSyncedAt: &serverTime}
		return tx.Create(&wm).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&models.SyncWatermark{}).Where("id = ?", wm.ID).
		Update("last_synced_at", serverTime).Error
}
