package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/datatypes"

	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/outbox"
	"github.com/tracevia/cmmsgo/internal/remote"
	"github.com/tracevia/cmmsgo/internal/store"
)

// Pusher drains the outbox against the remote API. Entries replay
// strictly in creation order across all entity types, so causally
// related mutations arrive in the order they happened.
type Pusher struct {
	store    *store.Store
	outbox   *outbox.Outbox
	client   *remote.Client
	registry *Registry
}

// NewPusher creates a push engine
func NewPusher(st *store.Store, ob *outbox.Outbox, client *remote.Client, registry *Registry) *Pusher {
	return &Pusher{store: st, outbox: ob, client: client, registry: registry}
}

// Run drains the outbox once. It stops early on the first transient
// failure: later entries may depend on the failed one, and the network
// is likely down anyway. Returns how many entries pushed and the
// errors encountered.
func (p *Pusher) Run(ctx context.Context) (int, []SyncError) {
	entries, err := p.outbox.Drain()
	if err != nil {
		return 0, []SyncError{{Operation: "push", Message: err.Error()}}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	log.Printf("📤 Pushing %d outbox entries", len(entries))

	var pushed int
	var errs []SyncError
	for i := range entries {
		entry := &entries[i]
		if ctx.Err() != nil {
			errs = append(errs, SyncError{Operation: "push", Message: ctx.Err().Error()})
			break
		}

		err := p.pushOne(ctx, entry)
		if err == nil {
			pushed++
			continue
		}

		errs = append(errs, SyncError{
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Operation:  entry.Operation,
			Message:    err.Error(),
		})

		if remote.IsRejection(err) {
			// Authoritative refusal: version mismatch, validation
			// failure or not-found. Retrying the same payload cannot
			// succeed, so park the entry and surface a conflict for
			// explicit resolution. Version conflict responses carry
			// the server's current copy; other rejections do not.
			var re *remote.Error
			var current *remote.Record
			if errors.As(err, &re) {
				current = re.Current
			}
			if _, cErr := p.registry.RaisePushRejection(entry, current); cErr != nil {
				log.Printf("Failed to record push conflict: %v", cErr)
			}
			if sErr := p.outbox.MarkStalled(entry.ID, err.Error()); sErr != nil {
				log.Printf("Failed to stall outbox entry %d: %v", entry.ID, sErr)
			}
			continue
		}

		// Transient: count the attempt and stop the drain
		if fErr := p.outbox.RecordFailure(entry, err); fErr != nil {
			log.Printf("Failed to record outbox failure: %v", fErr)
		}
		break
	}

	return pushed, errs
}

func (p *Pusher) pushOne(ctx context.Context, entry *models.OutboxEntry) error {
	switch entry.Operation {
	case models.OperationCreate:
		rec, err := p.client.Create(ctx, entry.EntityType, json.RawMessage(entry.Payload))
		if err != nil {
			return err
		}
		return p.confirm(entry, rec)

	case models.OperationUpdate:
		rec, err := p.client.Update(ctx, entry.EntityType, entry.EntityID, json.RawMessage(entry.Payload), entry.BaseVersion)
		if err != nil {
			return err
		}
		return p.confirm(entry, rec)

	case models.OperationDelete:
		if err := p.client.Delete(ctx, entry.EntityType, entry.EntityID, entry.BaseVersion); err != nil {
			return err
		}
		if err := p.outbox.Remove(entry.ID); err != nil {
			return err
		}
		// A later entry for the same id means the entity was
		// re-created offline; its cached payload must survive.
		remaining, err := p.remainingEntries(entry.EntityType, entry.EntityID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return p.store.Delete(entry.EntityType, entry.EntityID)
		}
		return nil

	default:
		return fmt.Errorf("unknown operation: %s", entry.Operation)
	}
}

// confirm applies the server's acknowledgment: the entry is done and
// the cached record carries the acknowledged version. The record only
// flips back to synced once no later entry for the same entity remains.
func (p *Pusher) confirm(entry *models.OutboxEntry, rec *remote.Record) error {
	if err := p.outbox.Remove(entry.ID); err != nil {
		return err
	}

	cached, err := p.store.Get(entry.EntityType, entry.EntityID)
	if err != nil || cached == nil {
		return err
	}

	if rec != nil {
		v := rec.Version
		t := rec.UpdatedAt
		cached.ServerVersion = &v
		cached.ServerUpdatedAt = &t
	}

	remaining, err := p.remainingEntries(entry.EntityType, entry.EntityID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		cached.SyncStatus = models.SyncStatusSynced
		cached.LocalUpdatedAt = nil
		if rec != nil && len(rec.Data) > 0 {
			cached.Payload = datatypes.JSON(rec.Data)
		}
	}
	return p.store.Put(cached)
}

func (p *Pusher) remainingEntries(entityType, entityID string) (int64, error) {
	var n int64
	err := p.store.DB().Model(&models.OutboxEntry{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).Count(&n).Error
	return n, err
}
