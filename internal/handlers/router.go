package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tracevia/cmmsgo/internal/middleware"
	ws "github.com/tracevia/cmmsgo/internal/websocket"
)

// NewRouter builds the local HTTP API consumed by the UI layer
func NewRouter(apiSecret string, syncH *SyncHandler, entityH *EntityHandler, hub *ws.Hub) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, w, req)
	})

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(apiSecret))

	// Sync control
	api.HandleFunc("/sync/status", syncH.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/trigger", syncH.TriggerSync).Methods(http.MethodPost)
	api.HandleFunc("/sync/conflicts", syncH.ListConflicts).Methods(http.MethodGet)
	api.HandleFunc("/sync/conflicts/{id}", syncH.GetConflict).Methods(http.MethodGet)
	api.HandleFunc("/sync/conflicts/{id}/resolve", syncH.ResolveConflict).Methods(http.MethodPost)
	api.HandleFunc("/sync/outbox/stalled", syncH.ListStalled).Methods(http.MethodGet)
	api.HandleFunc("/sync/outbox/{entityType}/{entityId}/retry", syncH.RetryStalled).Methods(http.MethodPost)

	// Generic record mutations feeding the outbox
	api.HandleFunc("/records/{entityType}", entityH.CreateRecord).Methods(http.MethodPost)
	api.HandleFunc("/records/{entityType}/{id}", entityH.GetRecord).Methods(http.MethodGet)
	api.HandleFunc("/records/{entityType}/{id}", entityH.UpdateRecord).Methods(http.MethodPatch)
	api.HandleFunc("/records/{entityType}/{id}", entityH.DeleteRecord).Methods(http.MethodDelete)

	// Typed reads served entirely from the local cache
	api.HandleFunc("/work-orders", entityH.ListWorkOrders).Methods(http.MethodGet)
	api.HandleFunc("/work-orders/{id}", entityH.GetWorkOrder).Methods(http.MethodGet)
	api.HandleFunc("/work-orders/{id}/steps", entityH.GetWorkOrderSteps).Methods(http.MethodGet)
	api.HandleFunc("/assets", entityH.ListAssets).Methods(http.MethodGet)
	api.HandleFunc("/locations", entityH.ListLocations).Methods(http.MethodGet)
	api.HandleFunc("/parts/low-stock", entityH.ListLowStockParts).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", entityH.GetUser).Methods(http.MethodGet)

	return r
}
