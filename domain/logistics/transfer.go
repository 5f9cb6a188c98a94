package logistics

import (
	"sort"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// TransferEntry is one resource line of a scheduled transfer.
type TransferEntry struct {
	ResourceID uint64
	Quantity   uint64
}

// TransferRecord is an in-flight transfer awaiting arrival.
type TransferRecord struct {
	TransferID  uint64
	RouteID     uint64
	StartTick   tick.Tick
	ArrivalTick tick.Tick
	Entries     []TransferEntry
	TotalUnits  uint64
}

func normalizeEntries(entries []TransferEntry) ([]TransferEntry, uint64, error) {
	if len(entries) == 0 {
		return nil, 0, errors.New(errors.InvalidArgument, "transfer requires at least one entry")
	}
	out := make([]TransferEntry, len(entries))
	copy(out, entries)
	for _, e := range out {
		if e.ResourceID == 0 || e.Quantity == 0 {
			return nil, 0, errors.New(errors.InvalidData, "transfer entry resource and quantity must be non-zero")
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })

	merged := out[:0:0]
	for _, e := range out {
		if n := len(merged); n > 0 && merged[n-1].ResourceID == e.ResourceID {
			if e.Quantity > ^uint64(0)-merged[n-1].Quantity {
				return nil, 0, errors.New(errors.Overflow, "merged transfer entry quantity overflow").WithDetails("resource", e.ResourceID)
			}
			merged[n-1].Quantity += e.Quantity
			continue
		}
		merged = append(merged, e)
	}

	var total uint64
	for _, e := range merged {
		if e.Quantity > ^uint64(0)-total {
			return nil, 0, errors.New(errors.Overflow, "transfer total units overflow")
		}
		total += e.Quantity
	}
	return merged, total, nil
}

// TransferScheduler holds in-flight transfers sorted by (arrival_tick,
// transfer_id) and the next transfer id to assign.
type TransferScheduler struct {
	records []TransferRecord
	nextID  uint64
}

// NewTransferScheduler creates an empty scheduler.
func NewTransferScheduler() *TransferScheduler {
	return &TransferScheduler{nextID: 1}
}

func recordLess(a, b TransferRecord) bool {
	if a.ArrivalTick != b.ArrivalTick {
		return a.ArrivalTick < b.ArrivalTick
	}
	return a.TransferID < b.TransferID
}

func (s *TransferScheduler) insertSorted(r TransferRecord) {
	i := sort.Search(len(s.records), func(i int) bool { return !recordLess(s.records[i], r) })
	s.records = append(s.records, TransferRecord{})
	copy(s.records[i+1:], s.records[i:len(s.records)-1])
	s.records[i] = r
}

// Schedule validates route and entries, normalizes and sorts entries by
// resource id merging duplicates, verifies total units against route
// capacity and source inventory, then atomically deducts from the source
// station and enqueues a record arriving at now + route.DurationTicks. No
// state changes on any validation failure.
func (s *TransferScheduler) Schedule(routes *RouteGraph, stations *StationSet, routeID uint64, entries []TransferEntry, now tick.Tick) (uint64, error) {
	if routeID == 0 {
		return 0, errors.New(errors.InvalidArgument, "route id must be non-zero")
	}
	route, ok := routes.Get(routeID)
	if !ok {
		return 0, errors.New(errors.NotFound, "route not found").WithDetails("route_id", routeID)
	}
	normalized, total, err := normalizeEntries(entries)
	if err != nil {
		return 0, err
	}
	if total > route.CapacityUnits {
		return 0, errors.New(errors.Insufficient, "transfer exceeds route capacity").
			WithDetails("route_id", routeID).WithDetails("total_units", total).WithDetails("capacity", route.CapacityUnits)
	}
	src, ok := stations.Get(route.SrcStationID)
	if !ok {
		return 0, errors.New(errors.NotFound, "source station not found").WithDetails("station_id", route.SrcStationID)
	}
	for _, e := range normalized {
		if src.Quantity(e.ResourceID) < e.Quantity {
			return 0, errors.New(errors.Insufficient, "source station lacks resource").WithDetails("resource", e.ResourceID)
		}
	}
	for _, e := range normalized {
		if err := src.Remove(e.ResourceID, e.Quantity); err != nil {
			return 0, err
		}
	}

	if s.nextID == 0 {
		s.nextID = 1
	}
	id := s.nextID
	s.nextID++
	arrival := tick.AddSaturating(now, route.DurationTicks)
	s.insertSorted(TransferRecord{
		TransferID:  id,
		RouteID:     route.ID,
		StartTick:   now,
		ArrivalTick: arrival,
		Entries:     normalized,
		TotalUnits:  total,
	})
	return id, nil
}

// Update credits destination inventory for every record whose ArrivalTick is
// <= now, in (arrival_tick, transfer_id) order, and removes them. Calling
// Update(t2) once after Update(t1) produces the same destination state as
// calling Update repeatedly for every tick from t1+1 through t2, because
// records are processed strictly in arrival order regardless of how many
// ticks elapsed between calls.
func (s *TransferScheduler) Update(routes *RouteGraph, stations *StationSet, now tick.Tick) error {
	i := 0
	for i < len(s.records) {
		rec := s.records[i]
		if rec.ArrivalTick > now {
			i++
			continue
		}
		route, ok := routes.Get(rec.RouteID)
		if !ok {
			return errors.New(errors.NotFound, "route not found for in-flight transfer").WithDetails("route_id", rec.RouteID)
		}
		dst, ok := stations.Get(route.DstStationID)
		if !ok {
			return errors.New(errors.NotFound, "destination station not found").WithDetails("station_id", route.DstStationID)
		}
		for _, e := range rec.Entries {
			if err := dst.Add(e.ResourceID, e.Quantity); err != nil {
				return err
			}
		}
		s.records = append(s.records[:i], s.records[i+1:]...)
	}
	return nil
}

// Pending returns the in-flight records sorted by (arrival_tick,
// transfer_id). Callers must not retain the slice across a mutating call.
func (s *TransferScheduler) Pending() []TransferRecord { return s.records }

// NextID returns the transfer id that will be assigned to the next
// Schedule call.
func (s *TransferScheduler) NextID() uint64 { return s.nextID }

// LoadState restores a scheduler's in-flight records and id counter exactly
// as captured by Pending/NextID, for save-container reload. records must
// already be in (arrival_tick, transfer_id) order, as Pending always
// produces.
func (s *TransferScheduler) LoadState(records []TransferRecord, nextID uint64) {
	s.records = append([]TransferRecord(nil), records...)
	s.nextID = nextID
}
