package military

import (
	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/registry"
	"github.com/dominium-sim/simkernel/pkg/scheduler"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// ReadinessState is a force's combat readiness level, clamped to
// [0, Scale].
type ReadinessState struct {
	ID              uint64
	Level           uint32
	DegradationRate uint32
	RecoveryRate    uint32
	LastUpdateAct   tick.Tick
	NextDueTick     tick.Tick
}

func readinessID(s *ReadinessState) uint64 { return s.ID }

// ApplyDelta adds delta to the state's level, clamped to [0, Scale].
func (s *ReadinessState) ApplyDelta(delta int32) {
	s.Level = clampScale(int64(s.Level) + int64(delta))
}

// ReadinessEventKind distinguishes the two shapes of due-time readiness
// event; exported so save-container reload code can name a kind without
// reaching into scheduler internals.
type ReadinessEventKind int

const (
	ReadinessEventDelta ReadinessEventKind = iota
	ReadinessEventSupplyCheck
)

type readinessEvent struct {
	eventID       uint64
	subjectID     uint64
	kind          ReadinessEventKind
	delta         int32
	triggerAct    tick.Tick
	supplyStoreID uint64
	supplyAssetID uint64
	supplyQty     uint64
	shortageDelta int32
	sched         *ReadinessScheduler
}

func (e *readinessEvent) NextTick() tick.Tick { return e.triggerAct }

func (e *readinessEvent) ProcessUntil(tick.Tick) error {
	state, ok := e.sched.states.Find(e.subjectID)
	if ok {
		state.LastUpdateAct = e.triggerAct
		switch e.kind {
		case ReadinessEventDelta:
			state.ApplyDelta(e.delta)
		case ReadinessEventSupplyCheck:
			consumed := false
			if e.sched.stores != nil {
				if store, ok := e.sched.stores.Get(e.supplyStoreID); ok {
					if store.Quantity(e.supplyAssetID) >= e.supplyQty {
						_ = store.Remove(e.supplyAssetID, e.supplyQty)
						consumed = true
					}
				}
			}
			if !consumed {
				state.ApplyDelta(e.shortageDelta)
			}
		}
	}
	e.triggerAct = tick.None
	e.sched.recomputeNextDue(e.subjectID)
	return nil
}

// ReadinessScheduler owns every readiness state and the due-time events
// scheduled against them.
type ReadinessScheduler struct {
	states      *registry.Registry[*ReadinessState]
	due         *scheduler.Scheduler
	events      map[uint64]*readinessEvent
	bySubject   map[uint64][]*readinessEvent
	stores      *logistics.StationSet
	nextEventID uint64
}

// NewReadinessScheduler creates an empty readiness scheduler with the given
// due-event handle capacity.
func NewReadinessScheduler(eventCapacity int) *ReadinessScheduler {
	return &ReadinessScheduler{
		states:      registry.New(0, readinessID),
		due:         scheduler.New(eventCapacity),
		events:      make(map[uint64]*readinessEvent),
		bySubject:   make(map[uint64][]*readinessEvent),
		nextEventID: 1,
	}
}

// AttachStores wires the supply stores used by supply-check events.
func (s *ReadinessScheduler) AttachStores(stores *logistics.StationSet) { s.stores = stores }

// Register adds a new readiness state, rejecting a duplicate id.
func (s *ReadinessScheduler) Register(id uint64, level, degradationRate, recoveryRate uint32) error {
	if id == 0 {
		return errors.New(errors.InvalidArgument, "readiness id must be non-zero")
	}
	st := &ReadinessState{ID: id, Level: clampScale(int64(level)), DegradationRate: degradationRate, RecoveryRate: recoveryRate, NextDueTick: tick.None}
	if err := s.states.Insert(st); err != nil {
		return errors.Wrap(errors.DuplicateID, "readiness already registered", err).WithDetails("readiness_id", id)
	}
	return nil
}

// Find returns the readiness state for id.
func (s *ReadinessScheduler) Find(id uint64) (*ReadinessState, bool) { return s.states.Find(id) }

// Remove deletes the readiness state (and retires its events) for id, used
// by demobilization.
func (s *ReadinessScheduler) Remove(id uint64) error {
	for _, e := range s.bySubject[id] {
		e.triggerAct = tick.None
	}
	delete(s.bySubject, id)
	return s.states.Remove(id)
}

func (s *ReadinessScheduler) recomputeNextDue(subjectID uint64) {
	state, ok := s.states.Find(subjectID)
	if !ok {
		return
	}
	next := tick.None
	for _, e := range s.bySubject[subjectID] {
		if !e.triggerAct.IsNone() {
			next = tick.Min(next, e.triggerAct)
		}
	}
	state.NextDueTick = next
}

func (s *ReadinessScheduler) registerEvent(e *readinessEvent) error {
	if _, err := s.due.Register(e, e.eventID); err != nil {
		return errors.Wrap(errors.SchedulerFull, "readiness scheduler full", err)
	}
	s.events[e.eventID] = e
	s.bySubject[e.subjectID] = append(s.bySubject[e.subjectID], e)
	s.recomputeNextDue(e.subjectID)
	return nil
}

// ScheduleEvent allocates a due-time delta event for subjectID, applying
// delta to its readiness when triggerAct is reached.
func (s *ReadinessScheduler) ScheduleEvent(subjectID uint64, delta int32, triggerAct tick.Tick) (uint64, error) {
	if _, ok := s.states.Find(subjectID); !ok {
		return 0, errors.New(errors.NotFound, "readiness subject not found").WithDetails("readiness_id", subjectID)
	}
	id := s.nextEventID
	s.nextEventID++
	e := &readinessEvent{eventID: id, subjectID: subjectID, kind: ReadinessEventDelta, delta: delta, triggerAct: triggerAct, sched: s}
	if err := s.registerEvent(e); err != nil {
		return 0, err
	}
	return id, nil
}

// ScheduleSupplyCheck allocates a due-time supply check: on firing, if store
// holds at least qty of asset it is consumed, otherwise shortageDelta is
// applied to the subject's readiness.
func (s *ReadinessScheduler) ScheduleSupplyCheck(subjectID uint64, triggerAct tick.Tick, storeID, assetID uint64, qty uint64, shortageDelta int32) (uint64, error) {
	if _, ok := s.states.Find(subjectID); !ok {
		return 0, errors.New(errors.NotFound, "readiness subject not found").WithDetails("readiness_id", subjectID)
	}
	id := s.nextEventID
	s.nextEventID++
	e := &readinessEvent{
		eventID: id, subjectID: subjectID, kind: ReadinessEventSupplyCheck, triggerAct: triggerAct,
		supplyStoreID: storeID, supplyAssetID: assetID, supplyQty: qty, shortageDelta: shortageDelta, sched: s,
	}
	if err := s.registerEvent(e); err != nil {
		return 0, err
	}
	return id, nil
}

// Advance processes every due readiness event with trigger <= target, in
// (trigger, event_id) order.
func (s *ReadinessScheduler) Advance(target tick.Tick) error {
	return s.due.Advance(target)
}

// Each visits every registered readiness state in ascending id order.
func (s *ReadinessScheduler) Each(fn func(*ReadinessState)) { s.states.Each(fn) }

// PendingEventDesc describes one outstanding readiness event, in enough
// detail to replay via ScheduleEvent/ScheduleSupplyCheck on reload.
type PendingEventDesc struct {
	EventID       uint64
	SubjectID     uint64
	Kind          ReadinessEventKind
	Delta         int32
	TriggerAct    tick.Tick
	SupplyStoreID uint64
	SupplyAssetID uint64
	SupplyQty     uint64
	ShortageDelta int32
}

// PendingEvents returns every outstanding readiness event sorted by event
// id, for save-container serialization.
func (s *ReadinessScheduler) PendingEvents() []PendingEventDesc {
	out := make([]PendingEventDesc, 0, len(s.events))
	for _, e := range s.events {
		if e.triggerAct.IsNone() {
			continue
		}
		out = append(out, PendingEventDesc{
			EventID: e.eventID, SubjectID: e.subjectID, Kind: e.kind, Delta: e.delta,
			TriggerAct: e.triggerAct, SupplyStoreID: e.supplyStoreID, SupplyAssetID: e.supplyAssetID,
			SupplyQty: e.supplyQty, ShortageDelta: e.shortageDelta,
		})
	}
	sortPendingEvents(out)
	return out
}

// LoadPendingEvents replays a set of previously-captured events and restores
// the event-id counter, for save-container reload. States must already be
// registered.
func (s *ReadinessScheduler) LoadPendingEvents(events []PendingEventDesc, nextEventID uint64) error {
	for _, d := range events {
		var err error
		switch d.Kind {
		case ReadinessEventDelta:
			_, err = s.ScheduleEvent(d.SubjectID, d.Delta, d.TriggerAct)
		case ReadinessEventSupplyCheck:
			_, err = s.ScheduleSupplyCheck(d.SubjectID, d.TriggerAct, d.SupplyStoreID, d.SupplyAssetID, d.SupplyQty, d.ShortageDelta)
		}
		if err != nil {
			return err
		}
	}
	s.nextEventID = nextEventID
	return nil
}

// NextEventID returns the event id that will be assigned to the next
// scheduled event.
func (s *ReadinessScheduler) NextEventID() uint64 { return s.nextEventID }

func sortPendingEvents(events []PendingEventDesc) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j-1].EventID > events[j].EventID; j-- {
			events[j-1], events[j] = events[j], events[j-1]
		}
	}
}
