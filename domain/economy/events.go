package economy

import (
	"sort"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// EventEffect is one resource-scoped rate/flag adjustment applied when an
// event triggers.
type EventEffect struct {
	ResourceID      uint64
	ProductionDelta int64
	DemandDelta     int64
	FlagsSet        uint32
	FlagsClear      uint32
}

// EventDesc describes a macro event to schedule.
type EventDesc struct {
	EventID     uint64
	ScopeKind   ScopeKind
	ScopeID     uint64
	TriggerTick tick.Tick
	Effects     []EventEffect
}

type eventEntry struct {
	EventDesc
}

func eventLess(a, b eventEntry) bool {
	if a.TriggerTick != b.TriggerTick {
		return a.TriggerTick < b.TriggerTick
	}
	return a.EventID < b.EventID
}

// EventScheduler holds macro events sorted by (trigger_tick, event_id), a
// cursor into the next unprocessed event, and the tick of the last Update
// call.
type EventScheduler struct {
	events   []eventEntry
	cursor   int
	lastTick tick.Tick
	started  bool
}

// NewEventScheduler creates an empty event scheduler.
func NewEventScheduler() *EventScheduler {
	return &EventScheduler{}
}

// LastTick returns the tick Update (or Seek) was last called with, or 0 if
// neither has ever been called.
func (s *EventScheduler) LastTick() tick.Tick { return s.lastTick }

// Schedule validates and inserts a macro event. Rejects a zero event/scope
// id, an invalid scope kind, any effect with a zero resource id, a duplicate
// event id, and a trigger tick at or before the last processed tick — events
// must be scheduled strictly in the future relative to the sim clock.
func (s *EventScheduler) Schedule(desc EventDesc) error {
	if desc.EventID == 0 || desc.ScopeID == 0 || !desc.ScopeKind.valid() {
		return errors.New(errors.InvalidArgument, "event, scope id must be non-zero and scope kind must be valid")
	}
	for _, e := range s.events {
		if e.EventID == desc.EventID {
			return errors.New(errors.DuplicateID, "macro event already scheduled").WithDetails("event_id", desc.EventID)
		}
	}
	if s.started && uint64(desc.TriggerTick) <= uint64(s.lastTick) {
		return errors.New(errors.InvalidArgument, "macro event must trigger strictly after the last processed tick").
			WithDetails("trigger_tick", uint64(desc.TriggerTick)).WithDetails("last_tick", uint64(s.lastTick))
	}
	effects := make([]EventEffect, len(desc.Effects))
	copy(effects, desc.Effects)
	for _, eff := range effects {
		if eff.ResourceID == 0 {
			return errors.New(errors.InvalidData, "macro event effect resource id must be non-zero")
		}
	}
	desc.Effects = effects

	entry := eventEntry{desc}
	i := sort.Search(len(s.events), func(i int) bool { return !eventLess(s.events[i], entry) })
	s.events = append(s.events, eventEntry{})
	copy(s.events[i+1:], s.events[i:len(s.events)-1])
	s.events[i] = entry
	if s.cursor > i {
		s.cursor++
	}
	return nil
}

// Update fails if now is before the last processed tick; otherwise it
// advances the cursor over every event with TriggerTick <= now, applying
// each effect's rate delta and flag mask to econ, then sets last_tick <-
// now.
func (s *EventScheduler) Update(econ *Economy, now tick.Tick) error {
	if s.started && uint64(now) < uint64(s.lastTick) {
		return errors.New(errors.InvalidData, "macro event update tick must not precede last processed tick")
	}
	for s.cursor < len(s.events) {
		entry := s.events[s.cursor]
		if entry.TriggerTick > now {
			break
		}
		for _, eff := range entry.Effects {
			if err := econ.RateDelta(entry.ScopeKind, entry.ScopeID, eff.ResourceID, eff.ProductionDelta, eff.DemandDelta); err != nil {
				return err
			}
			if err := econ.FlagsApply(entry.ScopeKind, entry.ScopeID, eff.FlagsSet, eff.FlagsClear); err != nil {
				return err
			}
		}
		s.cursor++
	}
	s.lastTick = now
	s.started = true
	return nil
}

// Seek places the cursor at the first event with TriggerTick > t and sets
// last_tick <- t, without applying any effects. Used when restoring a saved
// scheduler to its position as of the save tick.
func (s *EventScheduler) Seek(t tick.Tick) {
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].TriggerTick > t })
	s.cursor = i
	s.lastTick = t
	s.started = true
}

// Pending returns the not-yet-triggered events in (trigger_tick, event_id)
// order.
func (s *EventScheduler) Pending() []EventDesc {
	out := make([]EventDesc, 0, len(s.events)-s.cursor)
	for _, e := range s.events[s.cursor:] {
		out = append(out, e.EventDesc)
	}
	return out
}
