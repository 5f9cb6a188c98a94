// Package epistemic implements the capability-snapshot contract: a
// capacity-bounded buffer of observed capability entries, finalized into a
// triple-sorted snapshot, and queried under staleness/uncertainty rules so
// that UI layers never see more than what was actually observed.
package epistemic

import (
	"sort"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// State is whether a capability reading is known or unknown to the
// observer it was snapshotted for.
type State uint32

const (
	Unknown State = iota
	Known
)

// Kind enumerates the capability categories a subject can be observed
// under.
type Kind uint32

const (
	CapabilityTimeReadout Kind = iota + 1
	CapabilityCalendarView
	CapabilityMapView
	CapabilityPositionEstimate
	CapabilityHealthStatus
	CapabilityInventorySummary
	CapabilityEconomicAccount
	CapabilityMarketQuotes
	CapabilityCommunications
	CapabilityCommandStatus
	CapabilityEnvironmentalStatus
	CapabilityLegalStatus
)

// ExpiresNever marks an entry that never expires on its own.
const ExpiresNever = tick.None

// Entry is one observed capability reading for a subject.
type Entry struct {
	CapabilityID   uint32
	SubjectKind    uint32
	SubjectID      uint64
	State          State
	UncertaintyQ16 uint32
	LatencyTicks   uint32
	ObservedTick   tick.Tick
	ExpiresTick    tick.Tick
	SourceMask     uint32
}

func entryLess(a, b Entry) bool {
	if a.CapabilityID != b.CapabilityID {
		return a.CapabilityID < b.CapabilityID
	}
	if a.SubjectKind != b.SubjectKind {
		return a.SubjectKind < b.SubjectKind
	}
	return a.SubjectID < b.SubjectID
}

// Snapshot is a capacity-bounded, append-then-finalize buffer of capability
// entries. Entries are unordered until Finalize is called.
type Snapshot struct {
	entries      []Entry
	capacity     int
	snapshotTick tick.Tick
	finalized    bool
}

// New creates an empty snapshot. capacity <= 0 means unbounded.
func New(capacity int) *Snapshot {
	return &Snapshot{capacity: capacity}
}

// Clear empties the snapshot, ready for a new round of Add calls.
func (s *Snapshot) Clear() {
	s.entries = s.entries[:0]
	s.finalized = false
}

// Add appends entry, rejecting a zero capability id and an over-capacity
// buffer.
func (s *Snapshot) Add(entry Entry) error {
	if entry.CapabilityID == 0 {
		return errors.New(errors.InvalidArgument, "capability id must be non-zero")
	}
	if s.capacity > 0 && len(s.entries) >= s.capacity {
		return errors.New(errors.Insufficient, "capability snapshot at capacity")
	}
	s.entries = append(s.entries, entry)
	s.finalized = false
	return nil
}

// Finalize stably sorts the buffered entries under the lexicographic key
// (capability_id, subject_kind, subject_id), stamping snapshotTick.
func (s *Snapshot) Finalize(now tick.Tick) {
	sort.SliceStable(s.entries, func(i, j int) bool { return entryLess(s.entries[i], s.entries[j]) })
	s.snapshotTick = now
	s.finalized = true
}

// Find performs a linear scan for the exact (capability_id, subject_kind,
// subject_id) triple, matching the source's contract (order-stable either
// way, but a finalized snapshot lets callers binary-search if they want to).
func (s *Snapshot) Find(capabilityID uint32, subjectKind uint32, subjectID uint64) (Entry, bool) {
	for _, e := range s.entries {
		if e.CapabilityID == capabilityID && e.SubjectKind == subjectKind && e.SubjectID == subjectID {
			return e, true
		}
	}
	return Entry{}, false
}

// LoadEntries restores a snapshot's buffered entries and finalized state
// exactly as captured by Entries/SnapshotTick, for save-container reload.
func (s *Snapshot) LoadEntries(entries []Entry, snapshotTick tick.Tick) {
	s.entries = append([]Entry(nil), entries...)
	s.snapshotTick = snapshotTick
	s.finalized = true
}

// SnapshotTick returns the tick the snapshot was last finalized at.
func (s *Snapshot) SnapshotTick() tick.Tick { return s.snapshotTick }

// Len returns the number of buffered entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Entries returns the buffered entries in their current order. Callers must
// not retain the slice across a mutating call.
func (s *Snapshot) Entries() []Entry { return s.entries }

// View is the result of a query: the entry's state, uncertainty, observed
// tick, and latency copied as stored, plus derived stale/uncertain flags
// for presentation bucketing; zeroed entirely when unknown.
type View struct {
	State          State
	UncertaintyQ16 uint32
	ObservedTick   tick.Tick
	LatencyTicks   uint32
	IsStale        bool
	IsUncertain    bool
}

// Query resolves the view of (capabilityID, subjectKind, subjectID) as of
// now: an absent or expired entry yields an all-zero Unknown view; otherwise
// the entry's fields are copied and staleness/uncertainty are derived.
func Query(snap *Snapshot, capabilityID uint32, subjectKind uint32, subjectID uint64, now tick.Tick) View {
	entry, ok := snap.Find(capabilityID, subjectKind, subjectID)
	if !ok {
		return View{}
	}
	if entry.ExpiresTick != ExpiresNever && entry.ExpiresTick <= now {
		return View{}
	}
	view := View{
		State:          entry.State,
		UncertaintyQ16: entry.UncertaintyQ16,
		ObservedTick:   entry.ObservedTick,
		LatencyTicks:   entry.LatencyTicks,
		IsUncertain:    entry.UncertaintyQ16 != 0,
	}
	if entry.LatencyTicks > 0 {
		age := uint64(now) - uint64(entry.ObservedTick)
		if age > uint64(entry.LatencyTicks) {
			view.IsStale = true
		}
	}
	return view
}
