// Package scheduler implements the due-time scheduler substrate: a small,
// capacity-bounded, insertion-ordered registry of due-time dispatchers,
// advanced in strict (next-tick, event-id) order. Readiness and morale
// schedulers (domain/military) embed one of these each; it is the shared
// ordering discipline the rest of the kernel's per-subject event queues are
// built on.
package scheduler

import (
	"errors"

	"github.com/dominium-sim/simkernel/pkg/tick"
)

// ErrFull is returned by Register when the scheduler has no free handle.
var ErrFull = errors.New("scheduler: full")

// ErrInvalid is returned on malformed registration input.
var ErrInvalid = errors.New("scheduler: invalid argument")

// Dispatcher is the vtable every registered entry supplies. NextTick reports
// the tick at which the entry next wants to run (tick.None if it has nothing
// pending). ProcessUntil is called at most once per Advance call when
// NextTick(...) <= target, and must itself retire the event (set its next
// trigger to tick.None) once consumed — the substrate never clears state on
// a dispatcher's behalf.
type Dispatcher interface {
	NextTick() tick.Tick
	ProcessUntil(target tick.Tick) error
}

type handle struct {
	dispatcher Dispatcher
	eventID    uint64
	inUse      bool
}

// Handle is an opaque reference to a registered dispatcher.
type Handle int

// Scheduler is a capacity-bounded array of registered dispatchers, advanced
// in non-decreasing (next-tick, event-id) order. It is not reentrant: a
// Dispatcher's ProcessUntil must never call Register or Advance on the same
// Scheduler instance.
type Scheduler struct {
	handles []handle
	now     tick.Tick
}

// New creates a Scheduler with the given handle capacity.
func New(capacity int) *Scheduler {
	return &Scheduler{handles: make([]handle, 0, capacity)}
}

// Now returns the tick the scheduler last advanced to.
func (s *Scheduler) Now() tick.Tick { return s.now }

// Register adds a dispatcher under the given event id, returning a stable
// handle. Fails with ErrFull once capacity is exhausted and ErrInvalid for a
// nil dispatcher.
func (s *Scheduler) Register(d Dispatcher, eventID uint64) (Handle, error) {
	if d == nil {
		return -1, ErrInvalid
	}
	if len(s.handles) == cap(s.handles) {
		return -1, ErrFull
	}
	s.handles = append(s.handles, handle{dispatcher: d, eventID: eventID, inUse: true})
	return Handle(len(s.handles) - 1), nil
}

// Release marks a handle as no longer participating in Advance.
func (s *Scheduler) Release(h Handle) error {
	if int(h) < 0 || int(h) >= len(s.handles) || !s.handles[h].inUse {
		return ErrInvalid
	}
	s.handles[h].inUse = false
	return nil
}

// Advance repeatedly picks the live handle with the smallest (NextTick,
// eventID) and, while that tick is <= target and not tick.None, calls
// ProcessUntil(target) on it exactly once before re-evaluating. It stops
// once every live handle's NextTick is either > target or tick.None.
func (s *Scheduler) Advance(target tick.Tick) error {
	for {
		best := -1
		var bestTick tick.Tick = tick.None
		var bestID uint64
		for i := range s.handles {
			h := &s.handles[i]
			if !h.inUse {
				continue
			}
			nt := h.dispatcher.NextTick()
			if nt.IsNone() {
				continue
			}
			if best == -1 || nt < bestTick || (nt == bestTick && h.eventID < bestID) {
				best = i
				bestTick = nt
				bestID = h.eventID
			}
		}
		if best == -1 || bestTick > target {
			break
		}
		if err := s.handles[best].dispatcher.ProcessUntil(target); err != nil {
			return err
		}
	}
	s.now = target
	return nil
}
