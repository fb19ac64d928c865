package sync

import (
	"encoding/json"
	"reflect"
	"testing"

	"gorm.io/datatypes"

	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/remote"
)

func TestThreeWayDiff(t *testing.T) {
	base := datatypes.JSON(`{"title":"Fix pump","status":"open","priority":"low"}`)

	cases := []struct {
		name   string
		local  datatypes.JSON
		remote datatypes.JSON
		base   datatypes.JSON
		want   []string
	}{
		{
			name:   "both changed same field differently",
			local:  datatypes.JSON(`{"title":"Fix pump","status":"completed","priority":"low"}`),
			remote: datatypes.JSON(`{"title":"Fix pump","status":"cancelled","priority":"low"}`),
			base:   base,
			want:   []string{"status"},
		},
		{
			name:   "changes to different fields do not conflict",
			local:  datatypes.JSON(`{"title":"Fix pump","status":"completed","priority":"low"}`),
			remote: datatypes.JSON(`{"title":"Fix pump","status":"open","priority":"high"}`),
			base:   base,
			want:   nil,
		},
		{
			name:   "both changed to same value",
			local:  datatypes.JSON(`{"title":"Fix pump","status":"completed","priority":"low"}`),
			remote: datatypes.JSON(`{"title":"Fix pump","status":"completed","priority":"low"}`),
			base:   base,
			want:   nil,
		},
		{
			name:   "no base counts any divergence",
			local:  datatypes.JSON(`{"title":"A","status":"open"}`),
			remote: datatypes.JSON(`{"title":"B","status":"open"}`),
			base:   nil,
			want:   []string{"title"},
		},
		{
			name:   "multiple conflicting fields sorted",
			local:  datatypes.JSON(`{"title":"A2","status":"completed","priority":"low"}`),
			remote: datatypes.JSON(`{"title":"A3","status":"cancelled","priority":"low"}`),
			base:   base,
			want:   []string{"status", "title"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := threeWayDiff(tc.local, tc.remote, tc.base)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("threeWayDiff = %v, want %v", got, tc.want)
			}
		})
	}
}

func seedConflict(t *testing.T, s *testStack) *models.ConflictItem {
	t.Helper()
	s.seedSynced(t, "work_orders", "wo-1",
		models.WorkOrder{ID: "wo-1", Title: "Fix pump", Status: "open"}, 2)
	entry, err := s.outbox.Enqueue("work_orders", "wo-1", models.OperationUpdate,
		models.WorkOrder{ID: "wo-1", Title: "Fix pump", Status: "completed"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	item, err := s.registry.RaisePushRejection(entry, &remote.Record{
		ID: "wo-1", Version: 7,
		Data: json.RawMessage(`{"id":"wo-1","title":"Fix pump urgently","status":"open"}`),
	})
	if err != nil {
		t.Fatalf("RaisePushRejection failed: %v", err)
	}
	if err := s.outbox.MarkStalled(entry.ID, "version mismatch"); err != nil {
		t.Fatalf("MarkStalled failed: %v", err)
	}
	return item
}

func TestResolveAcceptRemote(t *testing.T) {
	s := newTestStack(t, "http://unused")
	item := seedConflict(t, s)

	if err := s.registry.Resolve(item.ID, Resolution{Action: ResolveAcceptRemote}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	rec, _ := s.store.Get("work_orders", "wo-1")
	if rec.SyncStatus != models.SyncStatusSynced {
		t.Errorf("Expected synced, got %s", rec.SyncStatus)
	}
	if *rec.ServerVersion != 7 {
		t.Errorf("Expected server version 7, got %d", *rec.ServerVersion)
	}
	var wo models.WorkOrder
	rec.DecodePayload(&wo)
	if wo.Title != "Fix pump urgently" {
		t.Errorf("Expected remote payload, got %s", wo.Title)
	}

	if entries, _ := s.outbox.Stalled(); len(entries) != 0 {
		t.Error("Local mutation should be discarded")
	}
	if n, _ := s.registry.Count(); n != 0 {
		t.Error("Conflict should be closed")
	}
}

func TestResolveAcceptLocalRequeuesAgainstServerVersion(t *testing.T) {
	s := newTestStack(t, "http://unused")
	item := seedConflict(t, s)

	if err := s.registry.Resolve(item.ID, Resolution{Action: ResolveAcceptLocal}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	entries, _ := s.outbox.Drain()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 re-queued entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Operation != models.OperationUpdate {
		t.Errorf("Expected update, got %s", e.Operation)
	}
	if e.BaseVersion == nil || *e.BaseVersion != 7 {
		t.Errorf("Re-queued entry must base on the server's version, got %v", e.BaseVersion)
	}
	var wo models.WorkOrder
	json.Unmarshal(e.Payload, &wo)
	if wo.Status != "completed" {
		t.Errorf("Expected local payload, got %+v", wo)
	}

	rec, _ := s.store.Get("work_orders", "wo-1")
	if rec.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected pending, got %s", rec.SyncStatus)
	}
	if n, _ := s.registry.Count(); n != 0 {
		t.Error("Conflict should be closed")
	}
}

func TestResolveMerge(t *testing.T) {
	s := newTestStack(t, "http://unused")
	item := seedConflict(t, s)

	err := s.registry.Resolve(item.ID, Resolution{
		Action: ResolveMerge,
		FieldValues: map[string]json.RawMessage{
			"status": json.RawMessage(`"completed"`),
		},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	entries, _ := s.outbox.Drain()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 re-queued entry, got %d", len(entries))
	}
	var wo models.WorkOrder
	json.Unmarshal(entries[0].Payload, &wo)
	if wo.Title != "Fix pump urgently" {
		t.Errorf("Unpicked fields should come from remote, got %s", wo.Title)
	}
	if wo.Status != "completed" {
		t.Errorf("Picked field should win, got %s", wo.Status)
	}
}

func TestResolveUnknownConflict(t *testing.T) {
	s := newTestStack(t, "http://unused")
	if err := s.registry.Resolve("nope", Resolution{Action: ResolveAcceptRemote}); err == nil {
		t.Error("Expected error for unknown conflict")
	}
}

func TestResolveUnknownAction(t *testing.T) {
	s := newTestStack(t, "http://unused")
	item := seedConflict(t, s)
	if err := s.registry.Resolve(item.ID, Resolution{Action: "coin_flip"}); err == nil {
		t.Error("Expected error for unknown action")
	}
	if n, _ := s.registry.Count(); n != 1 {
		t.Error("Conflict must stay open after a bad resolution")
	}
}
