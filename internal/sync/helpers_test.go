package sync

import (
	"path/filepath"
	"testing"

	"github.com/tracevia/cmmsgo/internal/config"
	"github.com/tracevia/cmmsgo/internal/database"
	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/outbox"
	"github.com/tracevia/cmmsgo/internal/remote"
	"github.com/tracevia/cmmsgo/internal/store"
)

// testStack bundles the pieces most sync tests need
type testStack struct {
	db       *database.DB
	store    *store.Store
	outbox   *outbox.Outbox
	client   *remote.Client
	registry *Registry
	pusher   *Pusher
	puller   *Puller
}

func newTestStack(t *testing.T, serverURL string) *testStack {
	t.Helper()
	db, err := database.Connect(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	st := store.New(db)
	ob := outbox.New(db, models.MaxRetryAttempts)
	client := remote.NewClient(&config.RemoteConfig{
		BaseURL: serverURL,
		Timeout: 5,
	}, "test-instance")
	registry := NewRegistry(db, nil)

	return &testStack{
		db:       db,
		store:    st,
		outbox:   ob,
		client:   client,
		registry: registry,
		pusher:   NewPusher(st, ob, client, registry),
		puller:   NewPuller(db, client, registry),
	}
}

// seedSynced puts a synced record with a known server version
func (s *testStack) seedSynced(t *testing.T, entityType, entityID string, payload interface{}, version int64) {
	t.Helper()
	rec := &models.CachedRecord{
		EntityType:    entityType,
		EntityID:      entityID,
		SyncStatus:    models.SyncStatusSynced,
		ServerVersion: &version,
	}
	if err := rec.SetPayload(payload); err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	if err := s.store.Put(rec); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
}
