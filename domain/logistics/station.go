// Package logistics implements station inventories, the route graph, and the
// in-flight transfer scheduler: stations hold sorted resource
// inventories, routes connect them with a fixed duration and capacity, and
// the transfer scheduler moves normalized batches between them with
// arrival-time ordering and batch-invariant crediting.
package logistics

import (
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/registry"
)

// InventoryEntry is one resource line in a station's inventory, kept sorted
// ascending by ResourceID.
type InventoryEntry struct {
	ResourceID uint64
	Quantity   uint64
}

// Station holds a sorted resource inventory keyed by resource id. BodyID
// and FrameID locate the station for the outer engine's transit and render
// layers; the kernel itself never interprets them, but they are
// authoritative state and participate in the save container and world hash.
type Station struct {
	ID        uint64
	BodyID    uint64
	FrameID   uint64
	inventory *registry.Registry[InventoryEntry]
}

// NewStation creates an empty station. capacity <= 0 means an unbounded
// number of distinct resource lines.
func NewStation(id uint64, capacity int) *Station {
	return &Station{
		ID:        id,
		inventory: registry.New(capacity, func(e InventoryEntry) uint64 { return e.ResourceID }),
	}
}

// Quantity returns the current quantity of resource, or 0 if absent.
func (s *Station) Quantity(resource uint64) uint64 {
	e, ok := s.inventory.Find(resource)
	if !ok {
		return 0
	}
	return e.Quantity
}

// Add increments resource's quantity by amt, inserting a new line if absent.
// amt must be > 0.
func (s *Station) Add(resource, amt uint64) error {
	if resource == 0 || amt == 0 {
		return errors.New(errors.InvalidArgument, "resource and amount must be non-zero")
	}
	if i := s.inventory.Index(resource); i >= 0 {
		cur := s.inventory.All()[i].Quantity
		if amt > ^uint64(0)-cur {
			return errors.New(errors.Overflow, "inventory quantity overflow").WithDetails("resource", resource)
		}
		s.inventory.MutateAt(i, func(e *InventoryEntry) { e.Quantity = cur + amt })
		return nil
	}
	return s.inventory.Insert(InventoryEntry{ResourceID: resource, Quantity: amt})
}

// Remove decrements resource's quantity by amt, erasing the line once it
// reaches zero. Fails with Insufficient if the station does not hold enough.
func (s *Station) Remove(resource, amt uint64) error {
	if resource == 0 || amt == 0 {
		return errors.New(errors.InvalidArgument, "resource and amount must be non-zero")
	}
	i := s.inventory.Index(resource)
	if i < 0 || s.inventory.All()[i].Quantity < amt {
		return errors.New(errors.Insufficient, "insufficient inventory").WithDetails("resource", resource)
	}
	remaining := s.inventory.All()[i].Quantity - amt
	if remaining == 0 {
		return s.inventory.Remove(resource)
	}
	s.inventory.MutateAt(i, func(e *InventoryEntry) { e.Quantity = remaining })
	return nil
}

// Inventory returns the inventory lines sorted ascending by resource id.
// Callers must not retain the slice across a mutating call.
func (s *Station) Inventory() []InventoryEntry {
	return s.inventory.All()
}

// StationSet is the sorted registry of all stations in the world.
type StationSet struct {
	stations *registry.Registry[*Station]
}

// NewStationSet creates an empty station set. capacity <= 0 means unbounded.
func NewStationSet(capacity int) *StationSet {
	return &StationSet{stations: registry.New(capacity, func(s *Station) uint64 { return s.ID })}
}

// Register adds station to the set, rejecting a duplicate id.
func (ss *StationSet) Register(s *Station) error {
	if s == nil || s.ID == 0 {
		return errors.New(errors.InvalidArgument, "station id must be non-zero")
	}
	if err := ss.stations.Insert(s); err != nil {
		return errors.Wrap(errors.DuplicateID, "station already registered", err).WithDetails("station_id", s.ID)
	}
	return nil
}

// Get returns the station with the given id.
func (ss *StationSet) Get(id uint64) (*Station, bool) {
	return ss.stations.Find(id)
}

// Each visits every station in ascending id order.
func (ss *StationSet) Each(fn func(*Station)) {
	ss.stations.Each(fn)
}
