package store

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"github.com/tracevia/cmmsgo/internal/models"
)

// Typed read accessors over the generic cache. These serve the local
// UI and must work fully offline.

// WorkOrderByID loads one work order, or nil if not cached
func (s *Store) WorkOrderByID(id string) (*models.WorkOrder, error) {
	rec, err := s.Get("work_orders", id)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, nil
	}
	var wo models.WorkOrder
	if err := rec.DecodePayload(&wo); err != nil {
		return nil, err
	}
	return &wo, nil
}

// WorkOrdersByStatus returns work orders with the given status
func (s *Store) WorkOrdersByStatus(status string) ([]models.WorkOrder, error) {
	var recs []models.CachedRecord
	err := s.db.Where("entity_type = ? AND deleted = ?", "work_orders", false).
		Where(datatypes.JSONQuery("payload").Equals(status, "status")).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query work orders by status: %w", err)
	}
	return decodeWorkOrders(recs)
}

// SearchWorkOrders returns work orders whose title or description
// contains the query, case-insensitively.
func (s *Store) SearchWorkOrders(query string) ([]models.WorkOrder, error) {
	recs, err := s.List("work_orders")
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []models.WorkOrder
	for i := range recs {
		var wo models.WorkOrder
		if err := recs[i].DecodePayload(&wo); err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(wo.Title), q) ||
			strings.Contains(strings.ToLower(wo.Description), q) {
			out = append(out, wo)
		}
	}
	return out, nil
}

// StepsForWorkOrder returns the checklist steps of one work order,
// ordered by sequence.
func (s *Store) StepsForWorkOrder(workOrderID string) ([]models.WorkOrderStep, error) {
	var recs []models.CachedRecord
	err := s.db.Where("entity_type = ? AND deleted = ?", "work_order_steps", false).
		Where(datatypes.JSONQuery("payload").Equals(workOrderID, "workOrderId")).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	steps := make([]models.WorkOrderStep, 0, len(recs))
	for i := range recs {
		var st models.WorkOrderStep
		if err := recs[i].DecodePayload(&st); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Sequence < steps[j].Sequence })
	return steps, nil
}

// AssetsByLocation returns assets cached for one location
func (s *Store) AssetsByLocation(locationID string) ([]models.Asset, error) {
	var recs []models.CachedRecord
	err := s.db.Where("entity_type = ? AND deleted = ?", "assets", false).
		Where(datatypes.JSONQuery("payload").Equals(locationID, "locationId")).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query assets by location: %w", err)
	}
	assets := make([]models.Asset, 0, len(recs))
	for i := range recs {
		var a models.Asset
		if err := recs[i].DecodePayload(&a); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// Locations returns the full cached location list
func (s *Store) Locations() ([]models.Location, error) {
	recs, err := s.List("locations")
	if err != nil {
		return nil, err
	}
	locs := make([]models.Location, 0, len(recs))
	for i := range recs {
		var l models.Location
		if err := recs[i].DecodePayload(&l); err != nil {
			return nil, err
		}
		locs = append(locs, l)
	}
	return locs, nil
}

// LowStockParts returns parts at or below their minimum quantity
func (s *Store) LowStockParts() ([]models.Part, error) {
	recs, err := s.List("parts")
	if err != nil {
		return nil, err
	}
	var out []models.Part
	for i := range recs {
		var p models.Part
		if err := recs[i].DecodePayload(&p); err != nil {
			return nil, err
		}
		if p.Quantity <= p.MinQuantity {
			out = append(out, p)
		}
	}
	return out, nil
}

// UserByID loads one user, or nil if not cached
func (s *Store) UserByID(id string) (*models.User, error) {
	rec, err := s.Get("users", id)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, nil
	}
	var u models.User
	if err := rec.DecodePayload(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func decodeWorkOrders(recs []models.CachedRecord) ([]models.WorkOrder, error) {
	out := make([]models.WorkOrder, 0, len(recs))
	for i := range recs {
		var wo models.WorkOrder
		if err := recs[i].DecodePayload(&wo); err != nil {
			return nil, err
		}
		out = append(out, wo)
	}
	return out, nil
}
