package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tracevia/cmmsgo/internal/outbox"
	"github.com/tracevia/cmmsgo/internal/sync"
)

// SyncHandler exposes sync control and conflict resolution endpoints
type SyncHandler struct {
	engine   *sync.Engine
	registry *sync.Registry
	outbox   *outbox.Outbox
}

// NewSyncHandler creates a sync handler
func NewSyncHandler(engine *sync.Engine, registry *sync.Registry, ob *outbox.Outbox) *SyncHandler {
	return &SyncHandler{engine: engine, registry: registry, outbox: ob}
}

// GetStatus returns the engine snapshot. Always works, online or not.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// TriggerSync requests a cycle and returns immediately
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.engine.TriggerSync()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// ListConflicts returns all open conflicts
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	items, err := h.registry.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// GetConflict returns one conflict with full local/remote/base payloads
func (h *SyncHandler) GetConflict(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	item, err := h.registry.Get(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "conflict not found")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// ResolveConflict applies an explicit resolution
func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var res sync.Resolution
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.registry.Resolve(id, res); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Resolved local data wants to reach the server promptly
	h.engine.TriggerSync()
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ListStalled returns outbox entries parked after repeated failures
func (h *SyncHandler) ListStalled(w http.ResponseWriter, r *http.Request) {
	entries, err := h.outbox.Stalled()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// RetryStalled puts an entity's stalled entries back into rotation
func (h *SyncHandler) RetryStalled(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.outbox.RetryStalled(vars["entityType"], vars["entityId"]); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.engine.TriggerSync()
	respondJSON(w, http.StatusOK, map[string]string{"status": "retrying"})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
