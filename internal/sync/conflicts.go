package sync

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tracevia/cmmsgo/internal/database"
	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/remote"
)

// Resolution actions
const (
	ResolveAcceptLocal  = "accept_local"
	ResolveAcceptRemote = "accept_remote"
	ResolveMerge        = "merge"
)

// Resolution is an explicit decision for one conflict
type Resolution struct {
	Action string `json:"action"`

	// Per-field picks for merge: field name to chosen value
	FieldValues map[string]json.RawMessage `json:"fieldValues,omitempty"`
}

// Registry records divergences between local and remote state and
// applies explicit resolutions. Conflicts are never resolved
// automatically.
type Registry struct {
	db       *database.DB
	notifier Notifier
}

// NewRegistry creates a conflict registry
func NewRegistry(db *database.DB, notifier Notifier) *Registry {
	return &Registry{db: db, notifier: notifier}
}

// List returns all open conflicts, oldest first
func (r *Registry) List() ([]models.ConflictItem, error) {
	var items []models.ConflictItem
	err := r.db.Order("created_at asc").Find(&items).Error
	return items, err
}

// Get returns one conflict by ID, or nil if not found
func (r *Registry) Get(id string) (*models.ConflictItem, error) {
	var item models.ConflictItem
	err := r.db.Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Count returns the number of open conflicts
func (r *Registry) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.ConflictItem{}).Count(&n).Error
	return n, err
}

// RaisePushRejection records a conflict for a mutation the server
// refused with a version mismatch. The rejected entry's base snapshot
// anchors the three-way diff.
func (r *Registry) RaisePushRejection(entry *models.OutboxEntry, current *remote.Record) (*models.ConflictItem, error) {
	item := &models.ConflictItem{
		ID:             uuid.New().String(),
		EntityType:     entry.EntityType,
		EntityID:       entry.EntityID,
		Reason:         models.ConflictReasonPushRejected,
		LocalData:      entry.Payload,
		BaseData:       entry.BaseSnapshot,
		LocalUpdatedAt: &entry.CreatedAt,
		OutboxEntryID:  &entry.ID,
		CreatedAt:      time.Now().UTC(),
	}
	if current != nil {
		item.RemoteData = datatypes.JSON(current.Data)
		v := current.Version
		item.RemoteVersion = &v
	}
	return item, r.raise(item)
}

// RaisePullDivergence records a conflict found during a pull: the
// server changed an entity that also has unpushed local changes.
func (r *Registry) RaisePullDivergence(tx *gorm.DB, rec *models.CachedRecord, incoming remote.Record, base datatypes.JSON) (*models.ConflictItem, error) {
	v := incoming.Version
	item := &models.ConflictItem{
		ID:             uuid.New().String(),
		EntityType:     rec.EntityType,
		EntityID:       rec.EntityID,
		Reason:         models.ConflictReasonPullDivergence,
		LocalData:      rec.Payload,
		RemoteData:     datatypes.JSON(incoming.Data),
		BaseData:       base,
		LocalUpdatedAt: rec.LocalUpdatedAt,
		RemoteVersion:  &v,
		CreatedAt:      time.Now().UTC(),
	}

	fields := threeWayDiff(item.LocalData, item.RemoteData, item.BaseData)
	item.FieldConflicts = encodeFields(fields)

	if err := tx.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to record conflict: %w", err)
	}
	err := tx.Model(&models.CachedRecord{}).
		Where("entity_type = ? AND entity_id = ?", rec.EntityType, rec.EntityID).
		Update("sync_status", models.SyncStatusConflict).Error
	if err != nil {
		return nil, err
	}

	r.notify(item)
	return item, nil
}

func (r *Registry) raise(item *models.ConflictItem) error {
	fields := threeWayDiff(item.LocalData, item.RemoteData, item.BaseData)
	item.FieldConflicts = encodeFields(fields)

	err := r.db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("failed to record conflict: %w", err)
		}
		return tx.Model(&models.CachedRecord{}).
			Where("entity_type = ? AND entity_id = ?", item.EntityType, item.EntityID).
			Update("sync_status", models.SyncStatusConflict).Error
	})
	if err != nil {
		return err
	}

	r.notify(item)
	return nil
}

func (r *Registry) notify(item *models.ConflictItem) {
	log.Printf("⚠️ Conflict on %s/%s (%s)", item.EntityType, item.EntityID, item.Reason)
	if r.notifier != nil {
		r.notifier.Notify(EventConflictDetected, item)
	}
}

// Resolve applies an explicit resolution to one conflict. The whole
// resolution is atomic: cache update, outbox changes and conflict
// removal commit together.
func (r *Registry) Resolve(id string, res Resolution) error {
	item, err := r.Get(id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("conflict %s not found", id)
	}

	switch res.Action {
	case ResolveAcceptLocal:
		return r.resolveWithPayload(item, item.LocalData)
	case ResolveAcceptRemote:
		return r.resolveAcceptRemote(item)
	case ResolveMerge:
		merged, err := mergePayload(item.RemoteData, item.LocalData, res.FieldValues)
		if err != nil {
			return err
		}
		return r.resolveWithPayload(item, merged)
	default:
		return fmt.Errorf("unknown resolution action: %s", res.Action)
	}
}

// resolveWithPayload keeps (possibly merged) local data: the chosen
// payload is re-queued as an update based on the server's current
// version, so the next push submits it cleanly.
func (r *Registry) resolveWithPayload(item *models.ConflictItem, payload datatypes.JSON) error {
	if item.RemoteVersion == nil {
		return fmt.Errorf("conflict %s has no known server version", item.ID)
	}

	return r.db.DB.Transaction(func(tx *gorm.DB) error {
		// Old entries for this entity are superseded by the resolution
		if err := tx.Where("entity_type = ? AND entity_id = ?", item.EntityType, item.EntityID).
			Delete(&models.OutboxEntry{}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		op := models.OperationUpdate
		if len(payload) == 0 {
			op = models.OperationDelete
		}
		entry := &models.OutboxEntry{
			EntityType:   item.EntityType,
			EntityID:     item.EntityID,
			Operation:    op,
			Payload:      payload,
			BaseSnapshot: item.RemoteData,
			BaseVersion:  item.RemoteVersion,
			CreatedAt:    now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"sync_status":      models.SyncStatusPending,
			"local_updated_at": now,
			"server_version":   *item.RemoteVersion,
		}
		if op == models.OperationUpdate {
			updates["payload"] = payload
			updates["deleted"] = false
		} else {
			updates["deleted"] = true
		}
		if err := tx.Model(&models.CachedRecord{}).
			Where("entity_type = ? AND entity_id = ?", item.EntityType, item.EntityID).
			Updates(updates).Error; err != nil {
			return err
		}

		return tx.Delete(&models.ConflictItem{}, "id = ?", item.ID).Error
	})
}

// resolveAcceptRemote discards the local mutation and adopts the
// server's copy.
func (r *Registry) resolveAcceptRemote(item *models.ConflictItem) error {
	return r.db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity_type = ? AND entity_id = ?", item.EntityType, item.EntityID).
			Delete(&models.OutboxEntry{}).Error; err != nil {
			return err
		}

		if len(item.RemoteData) == 0 {
			// Remote copy is gone
			if err := tx.Where("entity_type = ? AND entity_id = ?", item.EntityType, item.EntityID).
				Delete(&models.CachedRecord{}).Error; err != nil {
				return err
			}
		} else {
			updates := map[string]interface{}{
				"payload":          item.RemoteData,
				"sync_status":      models.SyncStatusSynced,
				"deleted":          false,
				"local_updated_at": nil,
			}
			if item.RemoteVersion != nil {
				updates["server_version"] = *item.RemoteVersion
			}
			if err := tx.Model(&models.CachedRecord{}).
				Where("entity_type = ? AND entity_id = ?", item.EntityType, item.EntityID).
				Updates(updates).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&models.ConflictItem{}, "id = ?", item.ID).Error
	})
}

// threeWayDiff returns the fields where local and remote both diverged
// from the base and disagree with each other. Without a base snapshot
// every local/remote difference counts as a conflict.
func threeWayDiff(local, remote, base datatypes.JSON) []string {
	localMap := decodeObject(local)
	remoteMap := decodeObject(remote)
	baseMap := decodeObject(base)

	fields := map[string]bool{}
	for k := range localMap {
		fields[k] = true
	}
	for k := range remoteMap {
		fields[k] = true
	}

	var out []string
	for k := range fields {
		l, lok := localMap[k]
		rv, rok := remoteMap[k]
		b, bok := baseMap[k]

		if lok && rok && reflect.DeepEqual(l, rv) {
			continue
		}
		if base != nil {
			localChanged := !bok && lok || bok && (!lok || !reflect.DeepEqual(l, b))
			remoteChanged := !bok && rok || bok && (!rok || !reflect.DeepEqual(rv, b))
			if !localChanged || !remoteChanged {
				continue
			}
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// mergePayload builds the resolved payload: remote as the base,
// overlaid with the explicitly chosen field values. Fields only the
// local copy has and nobody picked stay local.
func mergePayload(remoteData, localData datatypes.JSON, picks map[string]json.RawMessage) (datatypes.JSON, error) {
	merged := decodeObject(remoteData)
	if merged == nil {
		merged = map[string]interface{}{}
	}
	localMap := decodeObject(localData)
	for k, v := range localMap {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	for k, raw := range picks {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("bad value for field %s: %w", k, err)
		}
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func decodeObject(data datatypes.JSON) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func encodeFields(fields []string) datatypes.JSON {
	if len(fields) == 0 {
		return nil
	}
	data, _ := json.Marshal(fields)
	return datatypes.JSON(data)
}
