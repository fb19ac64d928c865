package sync

import (
	"time"
)

// AllEntityTypes lists every entity type this agent caches, in default
// pull order (parents before dependents).
var AllEntityTypes = []string{
	"locations",
	"assets",
	"parts",
	"users",
	"work_orders",
	"work_order_steps",
}

// Engine states
const (
	StateIdle    = "idle"
	StateSyncing = "syncing"
)

// Event types broadcast to UI subscribers
const (
	EventSyncCompleted       = "sync_completed"
	EventConflictDetected    = "conflict_detected"
	EventConnectivityChanged = "connectivity_changed"
)

// Notifier receives sync lifecycle events for the UI layer
type Notifier interface {
	Notify(event string, payload interface{})
}

// SyncError describes one failed operation within a cycle
type SyncError struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId,omitempty"`
	Operation  string `json:"operation,omitempty"` // push operation or "pull"
	Message    string `json:"message"`
}

// SyncResult summarizes one sync cycle
type SyncResult struct {
	Success     bool        `json:"success"`
	SyncedCount int         `json:"syncedCount"`
	FailedCount int         `json:"failedCount"`
	Errors      []SyncError `json:"errors,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
}

// Status is the engine snapshot served to the UI, meaningful offline
type Status struct {
	State         string      `json:"state"`
	Online        bool        `json:"online"`
	PendingCount  int64       `json:"pendingCount"`
	StalledCount  int64       `json:"stalledCount"`
	ConflictCount int64       `json:"conflictCount"`
	LastSyncAt    *time.Time  `json:"lastSyncAt,omitempty"`
	LastResult    *SyncResult `json:"lastResult,omitempty"`
}
