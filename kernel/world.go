// Package kernel implements the per-tick driver: the fixed-order advance
// of every subsystem, the deterministic world hash computed
// over their authoritative state, and the save-container codecs that turn
// that state into the DMSG chunk set and back.
package kernel

import (
	"github.com/dominium-sim/simkernel/domain/economy"
	"github.com/dominium-sim/simkernel/domain/epistemic"
	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/domain/military"
	"github.com/dominium-sim/simkernel/domain/production"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// World bundles every domain registry and scheduler the driver advances or
// serializes, so call sites take one argument instead of a dozen.
type World struct {
	Stations    *logistics.StationSet
	Routes      *logistics.RouteGraph
	Transfers   *logistics.TransferScheduler
	Production  *production.Engine
	Economy     *economy.Economy
	MacroEvents *economy.EventScheduler
	Military    *military.World
	Factions    *faction.Registry
	AIScheduler *faction.Scheduler
	Epistemic   *epistemic.Snapshot

	// Seed is the deterministic RNG seed carried in the save header and
	// mixed into faction AI input digests; the kernel has no floating-point
	// or wall-clock-seeded randomness of its own.
	Seed uint64

	// OpaqueChunks carries the payloads of chunks this build has no domain
	// model for (cosmo transit, lane/bubble scheduling, media, weather,
	// aero properties/state, construction) — round-tripped byte-for-byte on
	// save/load so a container produced by a build that understands them is
	// never silently corrupted by one that doesn't.
	OpaqueChunks map[[4]byte][]byte
}

// NewWorld builds an empty world carrying seed; every domain constructor is
// given capacity 0, so each registry is unbounded.
func NewWorld(seed uint64) *World {
	return &World{
		Stations:    logistics.NewStationSet(0),
		Routes:      logistics.NewRouteGraph(0),
		Transfers:   logistics.NewTransferScheduler(),
		Production:  production.NewEngine(0),
		Economy:     economy.New(),
		MacroEvents: economy.NewEventScheduler(),
		Military:    military.NewWorld(0),
		Factions:    faction.NewRegistry(0),
		Epistemic:   epistemic.New(0),
		Seed:        seed,

		OpaqueChunks: make(map[[4]byte][]byte),
	}
}

// Tick is a type alias re-exported for callers that only import kernel.
type Tick = tick.Tick
