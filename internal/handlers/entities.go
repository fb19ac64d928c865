package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/outbox"
	"github.com/tracevia/cmmsgo/internal/store"
)

// EntityHandler serves reads from the local cache and routes writes
// through the outbox. No request here ever touches the remote API.
type EntityHandler struct {
	store  *store.Store
	outbox *outbox.Outbox
}

// NewEntityHandler creates an entity handler
func NewEntityHandler(st *store.Store, ob *outbox.Outbox) *EntityHandler {
	return &EntityHandler{store: st, outbox: ob}
}

// CreateRecord enqueues a create mutation. The body must carry the
// client-assigned entity ID in its "id" field.
func (h *EntityHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	entityType := mux.Vars(r)["entityType"]

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, _ := payload["id"].(string)
	if id == "" {
		respondError(w, http.StatusBadRequest, "payload requires an id field")
		return
	}

	entry, err := h.outbox.Enqueue(entityType, id, models.OperationCreate, payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

// GetRecord returns the raw cached record with its sync metadata
func (h *EntityHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := h.store.Get(vars["entityType"], vars["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil || rec.Deleted {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// UpdateRecord enqueues an update mutation
func (h *EntityHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.outbox.Enqueue(vars["entityType"], vars["id"], models.OperationUpdate, payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// DeleteRecord enqueues a delete mutation
func (h *EntityHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	entry, err := h.outbox.Enqueue(vars["entityType"], vars["id"], models.OperationDelete, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// ListWorkOrders returns work orders, filtered by ?status= or ?q=
func (h *EntityHandler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" {
		wos, err := h.store.WorkOrdersByStatus(status)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, wos)
		return
	}
	if q := r.URL.Query().Get("q"); q != "" {
		wos, err := h.store.SearchWorkOrders(q)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, wos)
		return
	}

	recs, err := h.store.List("work_orders")
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	wos := make([]models.WorkOrder, 0, len(recs))
	for i := range recs {
		var wo models.WorkOrder
		if err := recs[i].DecodePayload(&wo); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		wos = append(wos, wo)
	}
	respondJSON(w, http.StatusOK, wos)
}

// GetWorkOrder returns one work order
func (h *EntityHandler) GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := h.store.WorkOrderByID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wo == nil {
		respondError(w, http.StatusNotFound, "work order not found")
		return
	}
	respondJSON(w, http.StatusOK, wo)
}

// GetWorkOrderSteps returns a work order's checklist in sequence order
func (h *EntityHandler) GetWorkOrderSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.store.StepsForWorkOrder(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, steps)
}

// ListAssets returns assets, filtered by ?locationId=
func (h *EntityHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	locationID := r.URL.Query().Get("locationId")
	if locationID != "" {
		assets, err := h.store.AssetsByLocation(locationID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, assets)
		return
	}

	recs, err := h.store.List("assets")
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	assets := make([]models.Asset, 0, len(recs))
	for i := range recs {
		var a models.Asset
		if err := recs[i].DecodePayload(&a); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		assets = append(assets, a)
	}
	respondJSON(w, http.StatusOK, assets)
}

// ListLocations returns the cached location hierarchy
func (h *EntityHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.store.Locations()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, locs)
}

// ListLowStockParts returns parts at or below minimum quantity
func (h *EntityHandler) ListLowStockParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.store.LowStockParts()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, parts)
}

// GetUser returns one cached user
func (h *EntityHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.UserByID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if u == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, u)
}
