// Package military implements the readiness/morale state machines and
// schedulers, the mobilization and demobilization pipelines, and
// engagement resolution with its casualty generator.
package military

import (
	"sort"

	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/pkg/registry"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// Scale is the fixed-point ceiling for readiness, morale, and legitimacy
// values, matching the source's READINESS_SCALE/MORALE_SCALE convention.
const Scale = 1000

// MaxEquipmentLines bounds the number of distinct equipment asset lines a
// single mobilization request may carry.
const MaxEquipmentLines = 16

// Status is the lifecycle state of a mobilized force.
type Status uint32

const (
	StatusNone Status = iota
	StatusMobilizing
	StatusActive
	StatusDemobilized
)

// Force is a mobilized military unit: a population cohort turned into a
// standing formation with its own readiness, morale, equipment, and
// logistics references.
type Force struct {
	ID               uint64
	Domain           uint32
	Status           Status
	PopulationCohortID uint64
	ReadinessID      uint64
	MoraleID         uint64
	EquipmentStoreID uint64
	LogisticsStoreID uint64
	NextDueTick      tick.Tick

	equipmentLines []EquipmentLine
	logisticsDeps  []uint64
}

func forceID(f *Force) uint64 { return f.ID }

// PopulationCohort is a pool of unmobilized population available for draft.
type PopulationCohort struct {
	ID         uint64
	Count      uint64
	InMilitary bool
}

func populationCohortID(c *PopulationCohort) uint64 { return c.ID }

// Cohort is the military formation's troop count, keyed by the owning
// force's id.
type Cohort struct {
	ForceID            uint64
	PopulationCohortID uint64
	Count              uint64
}

func cohortForceID(c *Cohort) uint64 { return c.ForceID }

// LegitimacyEntry is one scope's legitimacy reading, sorted ascending by
// ScopeID.
type LegitimacyEntry struct {
	ScopeID uint64
	Value   uint32
}

// LegitimacyRegistry is a sorted, capacity-unbounded store of legitimacy
// readings.
type LegitimacyRegistry struct {
	entries []LegitimacyEntry
}

// NewLegitimacyRegistry creates an empty legitimacy registry.
func NewLegitimacyRegistry() *LegitimacyRegistry { return &LegitimacyRegistry{} }

func (r *LegitimacyRegistry) find(scopeID uint64) int {
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].ScopeID >= scopeID })
	if i < len(r.entries) && r.entries[i].ScopeID == scopeID {
		return i
	}
	return -1
}

// Get returns the legitimacy value for scopeID and whether it was present.
func (r *LegitimacyRegistry) Get(scopeID uint64) (uint32, bool) {
	i := r.find(scopeID)
	if i < 0 {
		return 0, false
	}
	return r.entries[i].Value, true
}

// Set writes the legitimacy value for scopeID, inserting sorted if absent.
func (r *LegitimacyRegistry) Set(scopeID uint64, value uint32) {
	i := r.find(scopeID)
	if i >= 0 {
		r.entries[i].Value = value
		return
	}
	j := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].ScopeID >= scopeID })
	r.entries = append(r.entries, LegitimacyEntry{})
	copy(r.entries[j+1:], r.entries[j:len(r.entries)-1])
	r.entries[j] = LegitimacyEntry{ScopeID: scopeID, Value: value}
}

// Delta applies a signed delta to scopeID's legitimacy value, clamped to
// [0, Scale], creating the entry if absent.
func (r *LegitimacyRegistry) Delta(scopeID uint64, delta int32) {
	current, _ := r.Get(scopeID)
	r.Set(scopeID, clampScale(int64(current)+int64(delta)))
}

// Each visits every legitimacy entry in ascending scope-id order.
func (r *LegitimacyRegistry) Each(fn func(LegitimacyEntry)) {
	for _, e := range r.entries {
		fn(e)
	}
}

// LoadEntries restores a legitimacy registry's entries exactly as captured
// by Each, for save-container reload. entries must already be sorted
// ascending by scope id.
func (r *LegitimacyRegistry) LoadEntries(entries []LegitimacyEntry) {
	r.entries = append([]LegitimacyEntry(nil), entries...)
}

// World bundles every registry the mobilization, demobilization, and
// engagement pipelines mutate, so a pipeline call takes one argument instead
// of a dozen.
type World struct {
	Forces            *registry.Registry[*Force]
	PopulationCohorts *registry.Registry[*PopulationCohort]
	MilitaryCohorts   *registry.Registry[*Cohort]
	Readiness         *ReadinessScheduler
	Morale            *MoraleScheduler
	EquipmentStores   *logistics.StationSet
	LogisticsStores   *logistics.StationSet
	Enforcement       *LegitimacyRegistry
	Legitimacy        *LegitimacyRegistry
	nextForceID       uint64
}

// NewWorld creates an empty military world with the given readiness/morale
// event capacities (0 = unbounded).
func NewWorld(eventCapacity int) *World {
	return &World{
		Forces:            registry.New(0, forceID),
		PopulationCohorts: registry.New(0, populationCohortID),
		MilitaryCohorts:   registry.New(0, cohortForceID),
		Readiness:         NewReadinessScheduler(eventCapacity),
		Morale:            NewMoraleScheduler(eventCapacity),
		EquipmentStores:   logistics.NewStationSet(0),
		LogisticsStores:   logistics.NewStationSet(0),
		Enforcement:       NewLegitimacyRegistry(),
		Legitimacy:        NewLegitimacyRegistry(),
		nextForceID:       1,
	}
}

// NextForceID returns the force id that will be assigned to the next
// mobilization that omits an explicit id.
func (w *World) NextForceID() uint64 { return w.nextForceID }

// LoadNextForceID restores the auto-assignment counter, for save-container
// reload.
func (w *World) LoadNextForceID(next uint64) { w.nextForceID = next }

// EquipmentLines returns f's equipment ledger sorted ascending by asset id,
// for save-container serialization.
func (f *Force) EquipmentLines() []EquipmentLine {
	return append([]EquipmentLine(nil), f.equipmentLines...)
}

// LoadEquipmentLines restores f's equipment ledger exactly as captured by
// EquipmentLines, for save-container reload.
func (f *Force) LoadEquipmentLines(lines []EquipmentLine) {
	f.equipmentLines = append([]EquipmentLine(nil), lines...)
}

// LogisticsDeps returns the force's logistics dependency set, sorted
// ascending and deduplicated. The designated supply store
// (LogisticsStoreID) is always a member.
func (f *Force) LogisticsDeps() []uint64 {
	return append([]uint64(nil), f.logisticsDeps...)
}

// LoadLogisticsDeps restores the dependency set exactly as captured by
// LogisticsDeps, for save-container reload.
func (f *Force) LoadLogisticsDeps(deps []uint64) {
	f.logisticsDeps = append([]uint64(nil), deps...)
}

func clampScale(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > Scale {
		return Scale
	}
	return uint32(v)
}
