// Package economy implements the macro economy aggregates and the macro
// event scheduler that drives them: system/galaxy scopes each
// hold sorted production-rate, demand-rate, and stockpile maps, and a
// cursor-based event queue applies scheduled rate/flag effects as the sim
// clock passes their trigger tick.
package economy

import (
	"sort"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
)

// ScopeKind distinguishes the two macro economy scope levels.
type ScopeKind uint32

const (
	ScopeSystem ScopeKind = 1
	ScopeGalaxy ScopeKind = 2
)

func (k ScopeKind) valid() bool { return k == ScopeSystem || k == ScopeGalaxy }

// RateEntry is one resource's rate line, sorted ascending by ResourceID.
type RateEntry struct {
	ResourceID  uint64
	RatePerTick int64
}

// StockEntry is one resource's stockpile line, sorted ascending by
// ResourceID.
type StockEntry struct {
	ResourceID uint64
	Quantity   int64
}

type scope struct {
	kind       ScopeKind
	id         uint64
	flags      uint32
	production []RateEntry
	demand     []RateEntry
	stockpile  []StockEntry
}

// Economy holds the system and galaxy scope lists, each sorted ascending by
// scope id.
type Economy struct {
	systems []*scope
	galaxies []*scope
}

// New creates an empty macro economy.
func New() *Economy {
	return &Economy{}
}

func (e *Economy) list(kind ScopeKind) *[]*scope {
	switch kind {
	case ScopeSystem:
		return &e.systems
	case ScopeGalaxy:
		return &e.galaxies
	default:
		return nil
	}
}

func findScope(list []*scope, id uint64) int {
	i := sort.Search(len(list), func(i int) bool { return list[i].id >= id })
	if i < len(list) && list[i].id == id {
		return i
	}
	return -1
}

func (e *Economy) ensureScope(kind ScopeKind, id uint64) (*scope, error) {
	if id == 0 || !kind.valid() {
		return nil, errors.New(errors.InvalidArgument, "scope id must be non-zero and kind must be valid")
	}
	list := e.list(kind)
	if i := findScope(*list, id); i >= 0 {
		return (*list)[i], nil
	}
	s := &scope{kind: kind, id: id}
	i := sort.Search(len(*list), func(i int) bool { return (*list)[i].id >= id })
	*list = append(*list, nil)
	copy((*list)[i+1:], (*list)[i:len(*list)-1])
	(*list)[i] = s
	return s, nil
}

// RegisterSystem registers a new system scope, rejecting a duplicate id.
func (e *Economy) RegisterSystem(systemID uint64) error { return e.register(ScopeSystem, systemID) }

// RegisterGalaxy registers a new galaxy scope, rejecting a duplicate id.
func (e *Economy) RegisterGalaxy(galaxyID uint64) error { return e.register(ScopeGalaxy, galaxyID) }

func (e *Economy) register(kind ScopeKind, id uint64) error {
	if id == 0 {
		return errors.New(errors.InvalidArgument, "scope id must be non-zero")
	}
	list := e.list(kind)
	if findScope(*list, id) >= 0 {
		return errors.New(errors.DuplicateID, "scope already registered").WithDetails("scope_id", id)
	}
	_, err := e.ensureScope(kind, id)
	return err
}

func (e *Economy) getScope(kind ScopeKind, id uint64) (*scope, error) {
	if id == 0 || !kind.valid() {
		return nil, errors.New(errors.InvalidArgument, "scope id must be non-zero and kind must be valid")
	}
	list := e.list(kind)
	if list == nil {
		return nil, errors.New(errors.InvalidArgument, "unknown scope kind")
	}
	i := findScope(*list, id)
	if i < 0 {
		return nil, errors.New(errors.NotFound, "scope not found").WithDetails("scope_id", id)
	}
	return (*list)[i], nil
}

func findRate(list []RateEntry, resource uint64) int {
	for i, e := range list {
		if e.ResourceID == resource {
			return i
		}
	}
	return -1
}

func updateRateList(list []RateEntry, resource uint64, rate int64) []RateEntry {
	idx := findRate(list, resource)
	if rate == 0 {
		if idx >= 0 {
			return append(list[:idx], list[idx+1:]...)
		}
		return list
	}
	if idx >= 0 {
		list[idx].RatePerTick = rate
		return list
	}
	i := sort.Search(len(list), func(i int) bool { return list[i].ResourceID >= resource })
	list = append(list, RateEntry{})
	copy(list[i+1:], list[i:len(list)-1])
	list[i] = RateEntry{ResourceID: resource, RatePerTick: rate}
	return list
}

func findStock(list []StockEntry, resource uint64) int {
	for i, e := range list {
		if e.ResourceID == resource {
			return i
		}
	}
	return -1
}

func updateStockList(list []StockEntry, resource uint64, qty int64) []StockEntry {
	idx := findStock(list, resource)
	if qty == 0 {
		if idx >= 0 {
			return append(list[:idx], list[idx+1:]...)
		}
		return list
	}
	if idx >= 0 {
		list[idx].Quantity = qty
		return list
	}
	i := sort.Search(len(list), func(i int) bool { return list[i].ResourceID >= resource })
	list = append(list, StockEntry{})
	copy(list[i+1:], list[i:len(list)-1])
	list[i] = StockEntry{ResourceID: resource, Quantity: qty}
	return list
}

// RateGet returns the production and demand rate for resource in the given
// scope; both are zero if the scope or resource is absent.
func (e *Economy) RateGet(kind ScopeKind, scopeID, resource uint64) (production, demand int64, err error) {
	s, err := e.getScope(kind, scopeID)
	if errors.Is(err, errors.NotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if i := findRate(s.production, resource); i >= 0 {
		production = s.production[i].RatePerTick
	}
	if i := findRate(s.demand, resource); i >= 0 {
		demand = s.demand[i].RatePerTick
	}
	return production, demand, nil
}

// RateSet writes both the production and demand rate for resource,
// registering the scope on first use. A zero rate erases that side's entry.
func (e *Economy) RateSet(kind ScopeKind, scopeID, resource uint64, production, demand int64) error {
	if resource == 0 {
		return errors.New(errors.InvalidArgument, "resource id must be non-zero")
	}
	s, err := e.ensureScope(kind, scopeID)
	if err != nil {
		return err
	}
	s.production = updateRateList(s.production, resource, production)
	s.demand = updateRateList(s.demand, resource, demand)
	return nil
}

// RateDelta reads the current rates, saturating-adds the deltas, and writes
// the result back, failing with Overflow rather than wrapping.
func (e *Economy) RateDelta(kind ScopeKind, scopeID, resource uint64, productionDelta, demandDelta int64) error {
	production, demand, err := e.RateGet(kind, scopeID, resource)
	if err != nil {
		return err
	}
	production, err = addSaturatingSigned(production, productionDelta)
	if err != nil {
		return err
	}
	demand, err = addSaturatingSigned(demand, demandDelta)
	if err != nil {
		return err
	}
	return e.RateSet(kind, scopeID, resource, production, demand)
}

// StockpileGet returns the stockpile quantity for resource, or zero if
// absent.
func (e *Economy) StockpileGet(kind ScopeKind, scopeID, resource uint64) (int64, error) {
	s, err := e.getScope(kind, scopeID)
	if errors.Is(err, errors.NotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if i := findStock(s.stockpile, resource); i >= 0 {
		return s.stockpile[i].Quantity, nil
	}
	return 0, nil
}

// StockpileSet writes the stockpile quantity for resource, registering the
// scope on first use. A zero quantity erases the entry.
func (e *Economy) StockpileSet(kind ScopeKind, scopeID, resource uint64, quantity int64) error {
	if resource == 0 {
		return errors.New(errors.InvalidArgument, "resource id must be non-zero")
	}
	s, err := e.ensureScope(kind, scopeID)
	if err != nil {
		return err
	}
	s.stockpile = updateStockList(s.stockpile, resource, quantity)
	return nil
}

// StockpileDelta reads, saturating-adds, and writes back the stockpile
// quantity, failing with Overflow rather than wrapping.
func (e *Economy) StockpileDelta(kind ScopeKind, scopeID, resource uint64, delta int64) error {
	qty, err := e.StockpileGet(kind, scopeID, resource)
	if err != nil {
		return err
	}
	qty, err = addSaturatingSigned(qty, delta)
	if err != nil {
		return err
	}
	return e.StockpileSet(kind, scopeID, resource, qty)
}

// FlagsApply sets flagsSet and then clears flagsClear on the scope,
// registering it on first use.
func (e *Economy) FlagsApply(kind ScopeKind, scopeID uint64, flagsSet, flagsClear uint32) error {
	s, err := e.ensureScope(kind, scopeID)
	if err != nil {
		return err
	}
	s.flags |= flagsSet
	s.flags &^= flagsClear
	return nil
}

// Flags returns the current flag bitmask of a scope, or 0 if absent.
func (e *Economy) Flags(kind ScopeKind, scopeID uint64) (uint32, error) {
	s, err := e.getScope(kind, scopeID)
	if errors.Is(err, errors.NotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.flags, nil
}

// ScopeView is a read-only snapshot of one economy scope, used by the
// kernel's world hash accumulator and save container — callers outside this
// package never see the unexported *scope type directly.
type ScopeView struct {
	Kind       ScopeKind
	ID         uint64
	Flags      uint32
	Production []RateEntry
	Demand     []RateEntry
	Stockpile  []StockEntry
}

func scopeView(s *scope) ScopeView {
	return ScopeView{
		Kind:       s.kind,
		ID:         s.id,
		Flags:      s.flags,
		Production: append([]RateEntry(nil), s.production...),
		Demand:     append([]RateEntry(nil), s.demand...),
		Stockpile:  append([]StockEntry(nil), s.stockpile...),
	}
}

// Each visits every registered scope in canonical order: system scopes
// ascending by id, then galaxy scopes ascending by id.
func (e *Economy) Each(fn func(ScopeView)) {
	for _, s := range e.systems {
		fn(scopeView(s))
	}
	for _, s := range e.galaxies {
		fn(scopeView(s))
	}
}

// LoadScope restores a scope exactly as captured by Each, for save-container
// reload. The view's rate/stockpile lists are assumed already
// id-sorted (as Each always produces).
func (e *Economy) LoadScope(v ScopeView) {
	s := &scope{
		kind:       v.Kind,
		id:         v.ID,
		flags:      v.Flags,
		production: append([]RateEntry(nil), v.Production...),
		demand:     append([]RateEntry(nil), v.Demand...),
		stockpile:  append([]StockEntry(nil), v.Stockpile...),
	}
	list := e.list(v.Kind)
	*list = append(*list, s)
}

func addSaturatingSigned(base, delta int64) (int64, error) {
	if delta > 0 && base > maxInt64-delta {
		return 0, errors.New(errors.Overflow, "rate/stockpile addition overflow")
	}
	if delta < 0 && base < minInt64-delta {
		return 0, errors.New(errors.Overflow, "rate/stockpile addition overflow")
	}
	return base + delta, nil
}

const (
	maxInt64 = int64(1<<63 - 1)
	minInt64 = -maxInt64 - 1
)
