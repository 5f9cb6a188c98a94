package logistics

import (
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/registry"
)

// Route connects two stations with a fixed one-way transit duration and a
// per-transfer capacity, shared by every transfer scheduled on it.
type Route struct {
	ID            uint64
	SrcStationID  uint64
	DstStationID  uint64
	DurationTicks uint64
	CapacityUnits uint64
}

// RouteGraph is the sorted registry of all routes in the world.
type RouteGraph struct {
	routes *registry.Registry[Route]
}

// NewRouteGraph creates an empty route graph. capacity <= 0 means unbounded.
func NewRouteGraph(capacity int) *RouteGraph {
	return &RouteGraph{routes: registry.New(capacity, func(r Route) uint64 { return r.ID })}
}

// Register validates and adds a route, rejecting a duplicate id, a zero
// station/route id, zero duration, or zero capacity.
func (g *RouteGraph) Register(r Route) error {
	if r.ID == 0 || r.SrcStationID == 0 || r.DstStationID == 0 {
		return errors.New(errors.InvalidData, "route, source, and destination ids must be non-zero")
	}
	if r.DurationTicks == 0 || r.CapacityUnits == 0 {
		return errors.New(errors.InvalidData, "route duration and capacity must be non-zero")
	}
	if err := g.routes.Insert(r); err != nil {
		return errors.Wrap(errors.DuplicateID, "route already registered", err).WithDetails("route_id", r.ID)
	}
	return nil
}

// Get returns the route with the given id.
func (g *RouteGraph) Get(id uint64) (Route, bool) {
	return g.routes.Find(id)
}

// Each visits every route in ascending id order.
func (g *RouteGraph) Each(fn func(Route)) {
	g.routes.Each(fn)
}

// Count returns the number of registered routes.
func (g *RouteGraph) Count() int { return g.routes.Len() }
