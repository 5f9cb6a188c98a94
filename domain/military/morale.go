package military

import (
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/registry"
	"github.com/dominium-sim/simkernel/pkg/scheduler"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// MoraleState is a force's morale level, clamped to [0, Scale].
type MoraleState struct {
	ID          uint64
	Level       uint32
	NextDueTick tick.Tick
}

func moraleID(s *MoraleState) uint64 { return s.ID }

// ApplyDelta adds delta to the state's level, clamped to [0, Scale].
func (s *MoraleState) ApplyDelta(delta int32) {
	s.Level = clampScale(int64(s.Level) + int64(delta))
}

// MoraleEventKind distinguishes the two shapes of due-time morale event;
// exported so save-container reload code can name a kind without reaching
// into scheduler internals.
type MoraleEventKind int

const (
	MoraleEventDelta MoraleEventKind = iota
	MoraleEventLegitimacyCheck
)

type moraleEvent struct {
	eventID       uint64
	subjectID     uint64
	kind          MoraleEventKind
	delta         int32
	triggerAct    tick.Tick
	legitimacyID  uint64
	legitimacyMin uint32
	sched         *MoraleScheduler
}

func (e *moraleEvent) NextTick() tick.Tick { return e.triggerAct }

func (e *moraleEvent) ProcessUntil(tick.Tick) error {
	state, ok := e.sched.states.Find(e.subjectID)
	if ok {
		switch e.kind {
		case MoraleEventDelta:
			state.ApplyDelta(e.delta)
		case MoraleEventLegitimacyCheck:
			if e.sched.legitimacy != nil {
				if value, ok := e.sched.legitimacy.Get(e.legitimacyID); ok && value < e.legitimacyMin {
					state.ApplyDelta(e.delta)
				}
			}
		}
	}
	e.triggerAct = tick.None
	e.sched.recomputeNextDue(e.subjectID)
	return nil
}

// MoraleScheduler owns every morale state and the due-time events scheduled
// against them.
type MoraleScheduler struct {
	states      *registry.Registry[*MoraleState]
	due         *scheduler.Scheduler
	events      map[uint64]*moraleEvent
	bySubject   map[uint64][]*moraleEvent
	legitimacy  *LegitimacyRegistry
	nextEventID uint64
}

// NewMoraleScheduler creates an empty morale scheduler with the given
// due-event handle capacity.
func NewMoraleScheduler(eventCapacity int) *MoraleScheduler {
	return &MoraleScheduler{
		states:      registry.New(0, moraleID),
		due:         scheduler.New(eventCapacity),
		events:      make(map[uint64]*moraleEvent),
		bySubject:   make(map[uint64][]*moraleEvent),
		nextEventID: 1,
	}
}

// AttachLegitimacy wires the legitimacy registry used by legitimacy-check
// events.
func (s *MoraleScheduler) AttachLegitimacy(l *LegitimacyRegistry) { s.legitimacy = l }

// Register adds a new morale state, rejecting a duplicate id.
func (s *MoraleScheduler) Register(id uint64, level uint32) error {
	if id == 0 {
		return errors.New(errors.InvalidArgument, "morale id must be non-zero")
	}
	st := &MoraleState{ID: id, Level: clampScale(int64(level)), NextDueTick: tick.None}
	if err := s.states.Insert(st); err != nil {
		return errors.Wrap(errors.DuplicateID, "morale already registered", err).WithDetails("morale_id", id)
	}
	return nil
}

// Find returns the morale state for id.
func (s *MoraleScheduler) Find(id uint64) (*MoraleState, bool) { return s.states.Find(id) }

// Remove deletes the morale state (and retires its events) for id, used by
// demobilization.
func (s *MoraleScheduler) Remove(id uint64) error {
	for _, e := range s.bySubject[id] {
		e.triggerAct = tick.None
	}
	delete(s.bySubject, id)
	return s.states.Remove(id)
}

func (s *MoraleScheduler) recomputeNextDue(subjectID uint64) {
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

func (s *MoraleScheduler) registerEvent(e *moraleEvent) error {
	if _, err := s.due.Register(e, e.eventID); err != nil {
		return errors.Wrap(errors.SchedulerFull, "morale scheduler full", err)
	}
	s.events[e.eventID] = e
	s.bySubject[e.subjectID] = append(s.bySubject[e.subjectID], e)
	s.recomputeNextDue(e.subjectID)
	return nil
}

// ScheduleEvent allocates a due-time delta event for subjectID, applying
// delta to its morale when triggerAct is reached.
func (s *MoraleScheduler) ScheduleEvent(subjectID uint64, delta int32, triggerAct tick.Tick) (uint64, error) {
	if _, ok := s.states.Find(subjectID); !ok {
		return 0, errors.New(errors.NotFound, "morale subject not found").WithDetails("morale_id", subjectID)
	}
	id := s.nextEventID
	s.nextEventID++
	e := &moraleEvent{eventID: id, subjectID: subjectID, kind: MoraleEventDelta, delta: delta, triggerAct: triggerAct, sched: s}
	if err := s.registerEvent(e); err != nil {
		return 0, err
	}
	return id, nil
}

// ScheduleLegitimacyCheck allocates a due-time legitimacy check: on firing,
// if legitimacyID's value is below min, delta is applied to the subject's
// morale.
func (s *MoraleScheduler) ScheduleLegitimacyCheck(subjectID uint64, triggerAct tick.Tick, legitimacyID uint64, min uint32, delta int32) (uint64, error) {
	if _, ok := s.states.Find(subjectID); !ok {
		return 0, errors.New(errors.NotFound, "morale subject not found").WithDetails("morale_id", subjectID)
	}
	id := s.nextEventID
	s.nextEventID++
	e := &moraleEvent{
		eventID: id, subjectID: subjectID, kind: MoraleEventLegitimacyCheck, triggerAct: triggerAct,
		legitimacyID: legitimacyID, legitimacyMin: min, delta: delta, sched: s,
	}
	if err := s.registerEvent(e); err != nil {
		return 0, err
	}
	return id, nil
}

// Advance processes every due morale event with trigger <= target, in
// (trigger, event_id) order.
func (s *MoraleScheduler) Advance(target tick.Tick) error {
	return s.due.Advance(target)
}

// Each visits every registered morale state in ascending id order.
func (s *MoraleScheduler) Each(fn func(*MoraleState)) { s.states.Each(fn) }

// MoralePendingEventDesc describes one outstanding morale event, in enough
// detail to replay via ScheduleEvent/ScheduleLegitimacyCheck on reload.
type MoralePendingEventDesc struct {
	EventID       uint64
	SubjectID     uint64
	Kind          MoraleEventKind
	Delta         int32
	TriggerAct    tick.Tick
	LegitimacyID  uint64
	LegitimacyMin uint32
}

// PendingEvents returns every outstanding morale event sorted by event id,
// for save-container serialization.
func (s *MoraleScheduler) PendingEvents() []MoralePendingEventDesc {
	out := make([]MoralePendingEventDesc, 0, len(s.events))
	for _, e := range s.events {
		if e.triggerAct.IsNone() {
			continue
		}
		out = append(out, MoralePendingEventDesc{
			EventID: e.eventID, SubjectID: e.subjectID, Kind: e.kind, Delta: e.delta,
			TriggerAct: e.triggerAct, LegitimacyID: e.legitimacyID, LegitimacyMin: e.legitimacyMin,
		})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].EventID > out[j].EventID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// LoadPendingEvents replays a set of previously-captured events and restores
// the event-id counter, for save-container reload. States must already be
// registered.
func (s *MoraleScheduler) LoadPendingEvents(events []MoralePendingEventDesc, nextEventID uint64) error {
	for _, d := range events {
		var err error
		switch d.Kind {
		case MoraleEventDelta:
			_, err = s.ScheduleEvent(d.SubjectID, d.Delta, d.TriggerAct)
		case MoraleEventLegitimacyCheck:
			_, err = s.ScheduleLegitimacyCheck(d.SubjectID, d.TriggerAct, d.LegitimacyID, d.LegitimacyMin, d.Delta)
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
func (s *MoraleScheduler) NextEventID() uint64 { return s.nextEventID }
