package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/remote"
)

func deltaServer(t *testing.T, deltas map[string]remote.Delta, fail map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entityType := r.URL.Path[1:]
		if fail[entityType] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		delta, ok := deltas[entityType]
		if !ok {
			delta = remote.Delta{ServerTime: time.Now().UTC()}
		}
		json.NewEncoder(w).Encode(delta)
	}))
}

func TestPullUpsertsNewAndSyncedRecords(t *testing.T) {
	serverTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := deltaServer(t, map[string]remote.Delta{
		"assets": {
			Data: []remote.Record{
				{ID: "a-1", Version: 3, UpdatedAt: serverTime, Data: json.RawMessage(`{"id":"a-1","name":"Pump B"}`)},
				{ID: "a-2", Version: 1, UpdatedAt: serverTime, Data: json.RawMessage(`{"id":"a-2","name":"Fan"}`)},
			},
			ServerTime: serverTime,
		},
	}, nil)
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	s.seedSynced(t, "assets", "a-1", models.Asset{ID: "a-1", Name: "Pump A"}, 2)

	applied, err := s.puller.PullType(context.Background(), "assets")
	if err != nil {
		t.Fatalf("PullType failed: %v", err)
	}
	if applied != 2 {
		t.Errorf("Expected 2 applied, got %d", applied)
	}

	rec, _ := s.store.Get("assets", "a-1")
	var a models.Asset
	rec.DecodePayload(&a)
	if a.Name != "Pump B" {
		t.Errorf("Synced record should adopt remote state, got %s", a.Name)
	}
	if *rec.ServerVersion != 3 {
		t.Errorf("Expected version 3, got %d", *rec.ServerVersion)
	}

	if rec, _ := s.store.Get("assets", "a-2"); rec == nil || rec.SyncStatus != models.SyncStatusSynced {
		t.Errorf("New record should be cached synced: %+v", rec)
	}
}

func TestPullNeverOverwritesPendingRecord(t *testing.T) {
	serverTime := time.Now().UTC()
	srv := deltaServer(t, map[string]remote.Delta{
		"work_orders": {
			Data: []remote.Record{
				// Same version the pending edit was based on
				{ID: "wo-1", Version: 2, UpdatedAt: serverTime, Data: json.RawMessage(`{"id":"wo-1","title":"Server copy"}`)},
			},
			ServerTime: serverTime,
		},
	}, nil)
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	s.seedSynced(t, "work_orders", "wo-1", models.WorkOrder{ID: "wo-1", Title: "Original"}, 2)
	s.outbox.Enqueue("work_orders", "wo-1", models.OperationUpdate,
		models.WorkOrder{ID: "wo-1", Title: "Local edit"})

	if _, err := s.puller.PullType(context.Background(), "work_orders"); err != nil {
		t.Fatalf("PullType failed: %v", err)
	}

	rec, _ := s.store.Get("work_orders", "wo-1")
	var wo models.WorkOrder
	rec.DecodePayload(&wo)
	if wo.Title != "Local edit" {
		t.Errorf("Pending record was overwritten: %s", wo.Title)
	}
	if rec.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected still pending, got %s", rec.SyncStatus)
	}
	if n, _ := s.registry.Count(); n != 0 {
		t.Errorf("Same-version pull must not raise a conflict, got %d", n)
	}
}

func TestPullRaisesDivergenceForPendingRecord(t *testing.T) {
	serverTime := time.Now().UTC()
	srv := deltaServer(t, map[string]remote.Delta{
		"work_orders": {
			Data: []remote.Record{
				// Server advanced past the version the local edit saw
				{ID: "wo-1", Version: 5, UpdatedAt: serverTime, Data: json.RawMessage(`{"id":"wo-1","title":"Server edit","status":"open"}`)},
			},
			ServerTime: serverTime,
		},
	}, nil)
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	s.seedSynced(t, "work_orders", "wo-1", models.WorkOrder{ID: "wo-1", Title: "Original", Status: "open"}, 2)
	s.outbox.Enqueue("work_orders", "wo-1", models.OperationUpdate,
		models.WorkOrder{ID: "wo-1", Title: "Local edit", Status: "open"})

	if _, err := s.puller.PullType(context.Background(), "work_orders"); err != nil {
		t.Fatalf("PullType failed: %v", err)
	}

	conflicts, _ := s.registry.List()
	if len(conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Reason != models.ConflictReasonPullDivergence {
		t.Errorf("Unexpected reason: %s", c.Reason)
	}
	if len(c.BaseData) == 0 {
		t.Error("Divergence conflict should carry the base snapshot")
	}

	var fields []string
	json.Unmarshal(c.FieldConflicts, &fields)
	if len(fields) != 1 || fields[0] != "title" {
		t.Errorf("Expected conflict on title, got %v", fields)
	}

	rec, _ := s.store.Get("work_orders", "wo-1")
	if rec.SyncStatus != models.SyncStatusConflict {
		t.Errorf("Expected conflict status, got %s", rec.SyncStatus)
	}
	var wo models.WorkOrder
	rec.DecodePayload(&wo)
	if wo.Title != "Local edit" {
		t.Error("Local payload must survive the divergence")
	}
}

func TestPullSkipsSameVersionEcho(t *testing.T) {
	serverTime := time.Now().UTC()
	srv := deltaServer(t, map[string]remote.Delta{
		"work_orders": {
			Data: []remote.Record{
				{ID: "wo-1", Version: 3, UpdatedAt: serverTime, Data: json.RawMessage(`{"id":"wo-1","title":"Fix pump"}`)},
			},
			ServerTime: serverTime,
		},
	}, nil)
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	// The agent already holds version 3, e.g. from its own push
	s.seedSynced(t, "work_orders", "wo-1", models.WorkOrder{ID: "wo-1", Title: "Fix pump"}, 3)

	applied, err := s.puller.PullType(context.Background(), "work_orders")
	if err != nil {
		t.Fatalf("PullType failed: %v", err)
	}
	if applied != 0 {
		t.Errorf("Same-version echo must not count as applied, got %d", applied)
	}

	var wm models.SyncWatermark
	if err := s.db.Where("entity_type = ?", "work_orders").First(&wm).Error; err != nil {
		t.Fatalf("Watermark missing: %v", err)
	}
	if wm.LastSyncedAt == nil || !wm.LastSyncedAt.Equal(serverTime) {
		t.Error("Watermark must still advance past the echo")
	}
}

func TestPullAppliesRemoteDeletes(t *testing.T) {
	serverTime := time.Now().UTC()
	srv := deltaServer(t, map[string]remote.Delta{
		"parts": {
			Data:       []remote.Record{{ID: "p-1", Version: 4, UpdatedAt: serverTime, Deleted: true}},
			ServerTime: serverTime,
		},
	}, nil)
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	s.seedSynced(t, "parts", "p-1", models.Part{ID: "p-1", Name: "Filter"}, 3)

	if _, err := s.puller.PullType(context.Background(), "parts"); err != nil {
		t.Fatalf("PullType failed: %v", err)
	}
	if rec, _ := s.store.Get("parts", "p-1"); rec != nil {
		t.Error("Remote delete should remove the synced record")
	}
}

func TestWatermarkAdvancesToServerTime(t *testing.T) {
	serverTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := deltaServer(t, map[string]remote.Delta{
		"locations": {ServerTime: serverTime},
	}, nil)
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	if _, err := s.puller.PullType(context.Background(), "locations"); err != nil {
		t.Fatalf("PullType failed: %v", err)
	}

	var wm models.SyncWatermark
	if err := s.db.Where("entity_type = ?", "locations").First(&wm).Error; err != nil {
		t.Fatalf("Watermark missing: %v", err)
	}
	if wm.LastSyncedAt == nil || !wm.LastSyncedAt.Equal(serverTime) {
		t.Errorf("Expected watermark %v, got %v", serverTime, wm.LastSyncedAt)
	}
}

func TestFailedPullLeavesWatermarkAndOtherTypes(t *testing.T) {
	serverTime := time.Now().UTC()
	srv := deltaServer(t, map[string]remote.Delta{
		"assets": {
			Data:       []remote.Record{{ID: "a-1", Version: 1, UpdatedAt: serverTime, Data: json.RawMessage(`{"id":"a-1"}`)}},
			ServerTime: serverTime,
		},
	}, map[string]bool{"locations": true})
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	applied, errs := s.puller.Run(context.Background(), []string{"locations", "assets"})
	if len(errs) != 1 || errs[0].EntityType != "locations" {
		t.Fatalf("Expected one locations error, got %+v", errs)
	}
	if applied != 1 {
		t.Errorf("Assets should still apply, got %d", applied)
	}

	var wm models.SyncWatermark
	err := s.db.Where("entity_type = ?", "locations").First(&wm).Error
	if err == nil {
		t.Error("Failed pull must not create a watermark")
	}
}
