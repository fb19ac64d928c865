package models

// Wire-format payload structs for the entity types this agent caches.
// Field sets cover what the local UI reads; unknown server fields
// survive round trips because records are stored as raw JSON.

// WorkOrder is a maintenance work order
type WorkOrder struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"` // open, in_progress, on_hold, completed, cancelled
	Priority    string   `json:"priority,omitempty"`
	AssetID     string   `json:"assetId,omitempty"`
	LocationID  string   `json:"locationId,omitempty"`
	AssignedTo  string   `json:"assignedTo,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	CompletedAt string   `json:"completedAt,omitempty"`
	PartIDs     []string `json:"partIds,omitempty"`
}

// WorkOrderStep is a single checklist step within a work order
type WorkOrderStep struct {
	ID          string `json:"id"`
	WorkOrderID string `json:"workOrderId"`
	Sequence    int    `json:"sequence"`
	Title       string `json:"title"`
	Done        bool   `json:"done"`
	Notes       string `json:"notes,omitempty"`
	CompletedBy string `json:"completedBy,omitempty"`
}

// Asset is a maintainable piece of equipment
type Asset struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Model        string `json:"model,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	LocationID   string `json:"locationId,omitempty"`
	Status       string `json:"status,omitempty"` // operational, down, maintenance
	Criticality  string `json:"criticality,omitempty"`
}

// Location is a site, building or area in the location hierarchy
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
	Address  string `json:"address,omitempty"`
}

// Part is an inventory item consumed by work orders
type Part struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	SKU         string  `json:"sku,omitempty"`
	Quantity    float64 `json:"quantity"`
	MinQuantity float64 `json:"minQuantity"`
	UnitCost    float64 `json:"unitCost,omitempty"`
	LocationID  string  `json:"locationId,omitempty"`
}

// User is a technician or manager referenced by work orders
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}
