package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tracevia/cmmsgo/internal/config"
	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/remote"
)

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		Enabled:          true,
		AutoSyncEnabled:  false,
		AutoSyncInterval: 3600,
		SyncTimeout:      30,
		MaxRetries:       models.MaxRetryAttempts,
		Entities: map[string]config.EntitySyncConfig{
			"locations":        {Enabled: true, Priority: 10},
			"assets":           {Enabled: true, Priority: 9},
			"parts":            {Enabled: false},
			"users":            {Enabled: true, Priority: 7},
			"work_orders":      {Enabled: true, Priority: 6},
			"work_order_steps": {Enabled: true, Priority: 5},
		},
	}
}

func newTestEngine(t *testing.T, s *testStack, cfg *config.SyncConfig) (*Engine, *Monitor) {
	t.Helper()
	monitor := NewMonitor(s.client, time.Hour)
	engine := NewEngine(cfg, s.store, s.outbox, s.pusher, s.puller, s.registry, monitor, nil)
	return engine, monitor
}

func TestSyncFailsFastOffline(t *testing.T) {
	s := newTestStack(t, "http://unreachable.invalid")
	engine, _ := newTestEngine(t, s, testSyncConfig())

	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.Success {
		t.Error("Offline cycle must not succeed")
	}
	if len(result.Errors) == 0 {
		t.Error("Expected an error entry")
	}
}

func TestSyncPushesBeforePulls(t *testing.T) {
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(remote.Record{ID: "wo-1", Version: 1, UpdatedAt: time.Now().UTC()})
			return
		}
		json.NewEncoder(w).Encode(remote.Delta{ServerTime: time.Now().UTC()})
	}))
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	s.outbox.Enqueue("work_orders", "wo-1", models.OperationCreate, models.WorkOrder{ID: "wo-1"})

	engine, monitor := newTestEngine(t, s, testSyncConfig())
	monitor.SetOnline(true)

	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Cycle failed: %+v", result.Errors)
	}

	if len(order) == 0 || order[0] != "POST /work_orders" {
		t.Fatalf("Push must run first, saw %v", order)
	}

	// Pulls follow configured priority; disabled types never pull
	var pulls []string
	for _, req := range order[1:] {
		if strings.HasPrefix(req, "GET ") {
			pulls = append(pulls, strings.TrimPrefix(req, "GET /"))
		}
	}
	want := []string{"locations", "assets", "users", "work_orders", "work_order_steps"}
	if len(pulls) != len(want) {
		t.Fatalf("Expected pulls %v, got %v", want, pulls)
	}
	for i := range want {
		if pulls[i] != want[i] {
			t.Errorf("Pull %d: expected %s, got %s", i, want[i], pulls[i])
		}
	}
}

func TestSyncIsReentrantNoOp(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		json.NewEncoder(w).Encode(remote.Delta{ServerTime: time.Now().UTC()})
	}))
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	engine, monitor := newTestEngine(t, s, testSyncConfig())
	monitor.SetOnline(true)

	done := make(chan struct{})
	go func() {
		engine.Sync(context.Background())
		close(done)
	}()

	<-entered
	if _, err := engine.Sync(context.Background()); err != ErrSyncInProgress {
		t.Errorf("Expected ErrSyncInProgress, got %v", err)
	}
	st := engine.Status()
	if st.State != StateSyncing {
		t.Errorf("Expected syncing state, got %s", st.State)
	}

	close(release)
	<-done

	if st := engine.Status(); st.State != StateIdle {
		t.Errorf("Expected idle after cycle, got %s", st.State)
	}
}

func TestStatusCountsWorkOffline(t *testing.T) {
	s := newTestStack(t, "http://unreachable.invalid")
	engine, _ := newTestEngine(t, s, testSyncConfig())

	s.outbox.Enqueue("work_orders", "wo-1", models.OperationCreate, models.WorkOrder{ID: "wo-1"})
	entry, _ := s.outbox.Enqueue("work_orders", "wo-2", models.OperationCreate, models.WorkOrder{ID: "wo-2"})
	s.outbox.MarkStalled(entry.ID, "rejected")

	st := engine.Status()
	if st.Online {
		t.Error("Expected offline")
	}
	if st.PendingCount != 1 {
		t.Errorf("Expected 1 pending, got %d", st.PendingCount)
	}
	if st.StalledCount != 1 {
		t.Errorf("Expected 1 stalled, got %d", st.StalledCount)
	}
	if st.State != StateIdle {
		t.Errorf("Expected idle, got %s", st.State)
	}
}

func TestLastSyncRecordedOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remote.Delta{ServerTime: time.Now().UTC()})
	}))
	defer srv.Close()

	s := newTestStack(t, srv.URL)
	engine, monitor := newTestEngine(t, s, testSyncConfig())
	monitor.SetOnline(true)

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	st := engine.Status()
	if st.LastSyncAt == nil {
		t.Error("Expected last sync time")
	}
	if st.LastResult == nil || !st.LastResult.Success {
		t.Errorf("Expected successful last result, got %+v", st.LastResult)
	}
}
