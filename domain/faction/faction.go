// Package faction implements the faction registry: validated
// registration, sorted known-node lists, and resource ledgers whose deltas
// are applied in resource-id order with overflow/underflow and
// insufficient-quantity detection against signed 64-bit bounds.
package faction

import (
	"math"
	"sort"

	"github.com/dominium-sim/simkernel/domain/economy"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/registry"
)

// PolicyKind is a faction's macro behavioral stance, bounding how its AI
// scheduler plans are weighted.
type PolicyKind uint32

const (
	PolicyBalanced PolicyKind = iota
	PolicyExpansion
	PolicyConserve
)

func (k PolicyKind) valid() bool { return k <= PolicyConserve }

// PolicyFlags are independently toggled planner permissions.
type PolicyFlags uint32

const (
	PolicyAllowStation PolicyFlags = 1 << iota
	PolicyAllowRoute
	PolicyAllowEvents
)

// ResourceEntry is one resource line in a faction's ledger.
type ResourceEntry struct {
	ResourceID uint64
	Quantity   int64
}

// ResourceDelta is a signed change applied to a faction's resource ledger.
type ResourceDelta struct {
	ResourceID uint64
	Delta      int64
}

// Faction is a registered AI-driven or player-aligned polity.
type Faction struct {
	FactionID     uint64
	HomeScopeKind economy.ScopeKind
	HomeScopeID   uint64
	PolicyKind    PolicyKind
	PolicyFlags   PolicyFlags
	AISeed        uint64
	KnownNodes    []uint64
	resources     []ResourceEntry
}

func factionID(f *Faction) uint64 { return f.FactionID }

// Registry is the sorted-by-faction-id store of registered factions.
type Registry struct {
	factions *registry.Registry[*Faction]
}

// NewRegistry creates an empty faction registry. capacity <= 0 is unbounded.
func NewRegistry(capacity int) *Registry {
	return &Registry{factions: registry.New(capacity, factionID)}
}

// Desc describes a faction to register.
type Desc struct {
	FactionID     uint64
	HomeScopeKind economy.ScopeKind
	HomeScopeID   uint64
	PolicyKind    PolicyKind
	PolicyFlags   PolicyFlags
	AISeed        uint64
	KnownNodes    []uint64
}

// Register validates and inserts a new faction, sorting and deduplicating
// its known-node list. Nonzero faction_id/home_scope_id/ai_seed, a valid
// home scope kind, a valid policy kind, and (if any known nodes are given)
// a non-empty node list are required.
func (r *Registry) Register(desc Desc) error {
	if desc.FactionID == 0 || desc.HomeScopeID == 0 || desc.AISeed == 0 {
		return errors.New(errors.InvalidArgument, "faction_id, home_scope_id and ai_seed must be non-zero")
	}
	if desc.HomeScopeKind != economy.ScopeSystem && desc.HomeScopeKind != economy.ScopeGalaxy {
		return errors.New(errors.InvalidArgument, "home_scope_kind must be system or galaxy")
	}
	if !desc.PolicyKind.valid() {
		return errors.New(errors.InvalidArgument, "policy_kind out of range")
	}
	if len(desc.KnownNodes) == 0 && cap(desc.KnownNodes) > 0 {
		return errors.New(errors.InvalidArgument, "known_node_count without nodes")
	}

	nodes := append([]uint64(nil), desc.KnownNodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	nodes = dedupeSorted(nodes)

	f := &Faction{
		FactionID:     desc.FactionID,
		HomeScopeKind: desc.HomeScopeKind,
		HomeScopeID:   desc.HomeScopeID,
		PolicyKind:    desc.PolicyKind,
		PolicyFlags:   desc.PolicyFlags,
		AISeed:        desc.AISeed,
		KnownNodes:    nodes,
	}
	if err := r.factions.Insert(f); err != nil {
		if err == registry.ErrDuplicateID {
			return errors.New(errors.DuplicateID, "faction already registered").WithDetails("faction_id", desc.FactionID)
		}
		return errors.New(errors.Insufficient, "faction registry at capacity")
	}
	return nil
}

func dedupeSorted(nodes []uint64) []uint64 {
	if len(nodes) == 0 {
		return nodes
	}
	out := nodes[:1]
	for _, n := range nodes[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

// Get returns the faction registered under factionID.
func (r *Registry) Get(factionID uint64) (*Faction, bool) { return r.factions.Find(factionID) }

// Count returns the number of registered factions.
func (r *Registry) Count() int { return r.factions.Len() }

// Each visits every registered faction in ascending faction_id order.
func (r *Registry) Each(fn func(*Faction)) { r.factions.Each(fn) }

// KnownNodes returns the sorted, deduplicated known-node list for factionID.
func (r *Registry) KnownNodes(factionID uint64) ([]uint64, error) {
	f, ok := r.factions.Find(factionID)
	if !ok {
		return nil, errors.New(errors.NotFound, "faction not found").WithDetails("faction_id", factionID)
	}
	return f.KnownNodes, nil
}

// ResourceGet returns the current quantity of resourceID held by factionID
// (zero if the faction has never held it).
func (r *Registry) ResourceGet(factionID, resourceID uint64) (int64, error) {
	f, ok := r.factions.Find(factionID)
	if !ok {
		return 0, errors.New(errors.NotFound, "faction not found").WithDetails("faction_id", factionID)
	}
	for _, e := range f.resources {
		if e.ResourceID == resourceID {
			return e.Quantity, nil
		}
	}
	return 0, nil
}

// ResourceList returns the faction's resource ledger sorted by resource id.
func (r *Registry) ResourceList(factionID uint64) ([]ResourceEntry, error) {
	f, ok := r.factions.Find(factionID)
	if !ok {
		return nil, errors.New(errors.NotFound, "faction not found").WithDetails("faction_id", factionID)
	}
	return f.resources, nil
}

// UpdateResources applies deltas to factionID's resource ledger in
// resource-id-sorted order. A negative delta against an absent or
// insufficient resource fails INSUFFICIENT; a delta pushing the quantity
// outside signed 64-bit bounds fails OVERFLOW; either failure leaves the
// ledger untouched. Zero deltas are skipped; a resulting zero quantity
// erases the row.
func (r *Registry) UpdateResources(factionID uint64, deltas []ResourceDelta) error {
	idx := r.factions.Index(factionID)
	if idx < 0 {
		return errors.New(errors.NotFound, "faction not found").WithDetails("faction_id", factionID)
	}
	f := r.factions.All()[idx]

	ordered := append([]ResourceDelta(nil), deltas...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ResourceID < ordered[j].ResourceID })

	ledger := append([]ResourceEntry(nil), f.resources...)
	for _, d := range ordered {
		if d.Delta == 0 {
			continue
		}
		i := sort.Search(len(ledger), func(i int) bool { return ledger[i].ResourceID >= d.ResourceID })
		has := i < len(ledger) && ledger[i].ResourceID == d.ResourceID
		var current int64
		if has {
			current = ledger[i].Quantity
		} else if d.Delta < 0 {
			return errors.New(errors.Insufficient, "resource not held").WithDetails("resource_id", d.ResourceID)
		}

		if d.Delta > 0 && current > math.MaxInt64-d.Delta {
			return errors.New(errors.Overflow, "resource quantity overflow").WithDetails("resource_id", d.ResourceID)
		}
		if d.Delta < 0 && current < math.MinInt64-d.Delta {
			return errors.New(errors.Overflow, "resource quantity underflow").WithDetails("resource_id", d.ResourceID)
		}
		next := current + d.Delta
		if next < 0 {
			return errors.New(errors.Insufficient, "resource delta exceeds held quantity").WithDetails("resource_id", d.ResourceID)
		}

		switch {
		case !has && next != 0:
			ledger = append(ledger, ResourceEntry{})
			copy(ledger[i+1:], ledger[i:len(ledger)-1])
			ledger[i] = ResourceEntry{ResourceID: d.ResourceID, Quantity: next}
		case has && next == 0:
			ledger = append(ledger[:i], ledger[i+1:]...)
		case has:
			ledger[i].Quantity = next
		}
	}
	f.resources = ledger
	return nil
}
