package faction

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// ReasonCode explains why a faction's scheduling slot produced what it did.
type ReasonCode uint32

const (
	ReasonNone ReasonCode = iota
	ReasonActions
	ReasonBudgetHit
	ReasonInvalidInput
)

// SchedulerConfig bounds the AI scheduler's per-tick work.
type SchedulerConfig struct {
	PeriodTicks        uint32
	MaxOpsPerTick      uint32
	MaxFactionsPerTick uint32
	EnableTraces       bool
}

// DefaultSchedulerConfig mirrors the scheduler's built-in defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{PeriodTicks: 60, MaxOpsPerTick: 8, MaxFactionsPerTick: 4, EnableTraces: true}
}

// FactionState is the scheduler's per-faction bookkeeping, reconciled
// against the registry every tick and persisted across saves.
type FactionState struct {
	FactionID        uint64
	NextDecisionTick tick.Tick
	LastPlanID       uint64
	LastOutputCount  uint32
	LastReasonCode   ReasonCode
	LastBudgetHit    bool
}

// PlannedCommand is one command a planner wants submitted to the kernel
// command queue.
type PlannedCommand struct {
	SchemaID  uint32
	SchemaVer uint32
	Tick      tick.Tick
	Payload   []byte
}

// PlannedEvent is one macro event a planner wants scheduled.
type PlannedEvent struct {
	EventID     uint64
	ScopeID     uint64
	ScopeKind   uint32
	TriggerTick tick.Tick
	Effects     []byte
}

// PlanResult is what a planner produces from one budgeted invocation.
type PlanResult struct {
	Commands   []PlannedCommand
	Events     []PlannedEvent
	OpsUsed    uint32
	ReasonCode ReasonCode
}

// Planner runs one faction's logistics or events AI pass bounded by
// opsBudget ops, returning what it would like submitted.
type Planner interface {
	Plan(f *Faction, tick tick.Tick, opsBudget uint32) PlanResult
}

// CommandSink submits a planned command to the kernel; it reports whether
// the command was accepted.
type CommandSink func(cmd PlannedCommand) bool

// EventSink schedules a planned macro event; it reports whether the event
// was accepted.
type EventSink func(evt PlannedEvent) bool

// TraceRecord is one best-effort, non-authoritative scheduler trace entry.
type TraceRecord struct {
	PlanID       uint64
	FactionID    uint64
	Tick         tick.Tick
	InputDigest  uint64
	OutputDigest uint64
	OutputCount  uint32
	ReasonCode   ReasonCode
	OpsUsed      uint32
	BudgetHit    bool
}

// TraceSink receives trace records; publishing is best-effort and must
// never affect scheduler state.
type TraceSink func(TraceRecord)

// Scheduler dispatches budgeted logistics/events planner passes across
// registered factions, in faction-id order, every tick it is invoked.
type Scheduler struct {
	factions        *Registry
	cfg             SchedulerConfig
	states          []FactionState
	logistics       Planner
	events          Planner
	submitCommand   CommandSink
	scheduleEvent   EventSink
	trace           TraceSink
	simHash         func() uint64
}

// NewScheduler builds a Scheduler bound to factions and driven by the given
// logistics/events planners and sinks. trace may be nil to disable tracing
// regardless of cfg.EnableTraces; simHash supplies the current world hash
// mixed into each input digest.
func NewScheduler(factions *Registry, cfg SchedulerConfig, logistics, events Planner, submitCommand CommandSink, scheduleEvent EventSink, trace TraceSink, simHash func() uint64) *Scheduler {
	return &Scheduler{
		factions:      factions,
		cfg:           cfg,
		logistics:     logistics,
		events:        events,
		submitCommand: submitCommand,
		scheduleEvent: scheduleEvent,
		trace:         trace,
		simHash:       simHash,
	}
}

// LoadStates seeds the scheduler's per-faction state, e.g. from a save.
func (s *Scheduler) LoadStates(states []FactionState) {
	s.states = append([]FactionState(nil), states...)
	sort.Slice(s.states, func(i, j int) bool { return s.states[i].FactionID < s.states[j].FactionID })
}

// States returns the scheduler's current per-faction state in faction-id
// order.
func (s *Scheduler) States() []FactionState { return s.states }

// State returns the per-faction state for factionID, if tracked.
func (s *Scheduler) State(factionID uint64) (FactionState, bool) {
	i := sort.Search(len(s.states), func(i int) bool { return s.states[i].FactionID >= factionID })
	if i < len(s.states) && s.states[i].FactionID == factionID {
		return s.states[i], true
	}
	return FactionState{}, false
}

func findState(states []FactionState, factionID uint64) int {
	for i := range states {
		if states[i].FactionID == factionID {
			return i
		}
	}
	return -1
}

// digestU64 folds v into d as little-endian bytes. xxhash's streaming
// digest keeps the fold order-sensitive and platform-stable; these digests
// are trace-only and never enter the authoritative world hash.
func digestU64(d *xxhash.Digest, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, _ = d.Write(b[:])
}

// Tick runs one scheduling pass: it reconciles per-faction state against
// the registry (sorted by faction id), then dispatches logistics/events
// planner passes to up to MaxFactionsPerTick factions, spending at most
// MaxOpsPerTick ops total, in faction-id order.
func (s *Scheduler) Tick(now tick.Tick) error {
	if s.factions == nil {
		return errors.New(errors.InvalidArgument, "scheduler has no faction registry")
	}
	if s.factions.Count() == 0 {
		return nil
	}

	next := make([]FactionState, 0, s.factions.Count())
	s.factions.Each(func(f *Faction) {
		if idx := findState(s.states, f.FactionID); idx >= 0 {
			next = append(next, s.states[idx])
			return
		}
		next = append(next, FactionState{FactionID: f.FactionID, NextDecisionTick: now})
	})
	sort.Slice(next, func(i, j int) bool { return next[i].FactionID < next[j].FactionID })
	s.states = next

	opsRemaining := s.cfg.MaxOpsPerTick
	factionsRemaining := s.cfg.MaxFactionsPerTick

	for i := range s.states {
		if factionsRemaining == 0 {
			break
		}
		entry := &s.states[i]
		if now < entry.NextDecisionTick {
			continue
		}

		if opsRemaining == 0 {
			entry.LastPlanID++
			entry.LastOutputCount = 0
			entry.LastReasonCode = ReasonBudgetHit
			entry.LastBudgetHit = true
			entry.NextDecisionTick = now + tick.Tick(s.cfg.PeriodTicks)
			if s.cfg.EnableTraces && s.trace != nil {
				input := s.inputDigest(entry.FactionID, entry.LastPlanID, now, 0)
				s.trace(TraceRecord{PlanID: entry.LastPlanID, FactionID: entry.FactionID, Tick: now, InputDigest: input, ReasonCode: ReasonBudgetHit, BudgetHit: true})
			}
			factionsRemaining--
			continue
		}

		f, ok := s.factions.Get(entry.FactionID)
		if !ok {
			entry.LastPlanID++
			entry.LastOutputCount = 0
			entry.LastReasonCode = ReasonInvalidInput
			entry.LastBudgetHit = false
			entry.NextDecisionTick = now + tick.Tick(s.cfg.PeriodTicks)
			factionsRemaining--
			continue
		}

		inputDigest := s.inputDigest(entry.FactionID, f.AISeed, now, 0)

		var outputCount uint32
		var opsUsed uint32
		budgetHit := false
		outDigest := xxhash.New()
		folded := false

		if s.logistics != nil {
			res := s.logistics.Plan(f, now, opsRemaining)
			if res.ReasonCode == ReasonBudgetHit {
				budgetHit = true
			}
			opsRemaining = saturatingSub(opsRemaining, res.OpsUsed)
			opsUsed += res.OpsUsed
			outputCount, folded = s.submitPlan(res, outputCount, outDigest, folded)
		}

		if opsRemaining > 0 && s.events != nil {
			res := s.events.Plan(f, now, opsRemaining)
			if res.ReasonCode == ReasonBudgetHit {
				budgetHit = true
			}
			opsRemaining = saturatingSub(opsRemaining, res.OpsUsed)
			opsUsed += res.OpsUsed
			outputCount, folded = s.submitPlan(res, outputCount, outDigest, folded)
		}

		var outputDigest uint64
		if folded {
			outputDigest = outDigest.Sum64()
		}

		reasonCode := ReasonNone
		switch {
		case budgetHit:
			reasonCode = ReasonBudgetHit
		case outputCount > 0:
			reasonCode = ReasonActions
		}

		entry.LastPlanID++
		entry.LastOutputCount = outputCount
		entry.LastReasonCode = reasonCode
		entry.LastBudgetHit = budgetHit
		entry.NextDecisionTick = now + tick.Tick(s.cfg.PeriodTicks)

		if s.cfg.EnableTraces && s.trace != nil && (outputCount > 0 || budgetHit) {
			s.trace(TraceRecord{
				PlanID: entry.LastPlanID, FactionID: entry.FactionID, Tick: now,
				InputDigest: inputDigest, OutputDigest: outputDigest, OutputCount: outputCount,
				ReasonCode: reasonCode, OpsUsed: opsUsed, BudgetHit: budgetHit,
			})
		}

		factionsRemaining--
	}
	return nil
}

func (s *Scheduler) inputDigest(factionID, seed uint64, now tick.Tick, extra uint64) uint64 {
	d := xxhash.New()
	if s.simHash != nil {
		digestU64(d, s.simHash())
	}
	digestU64(d, factionID)
	digestU64(d, seed)
	digestU64(d, uint64(now))
	if extra != 0 {
		digestU64(d, extra)
	}
	return d.Sum64()
}

func (s *Scheduler) submitPlan(res PlanResult, outputCount uint32, outDigest *xxhash.Digest, folded bool) (uint32, bool) {
	for _, cmd := range res.Commands {
		if s.submitCommand != nil && s.submitCommand(cmd) {
			outputCount++
		}
		digestU64(outDigest, uint64(cmd.SchemaID))
		digestU64(outDigest, uint64(cmd.SchemaVer))
		digestU64(outDigest, uint64(cmd.Tick))
		folded = true
	}
	for _, evt := range res.Events {
		if s.scheduleEvent != nil && s.scheduleEvent(evt) {
			outputCount++
		}
		digestU64(outDigest, evt.EventID)
		digestU64(outDigest, evt.ScopeID)
		digestU64(outDigest, uint64(evt.TriggerTick))
		folded = true
	}
	return outputCount, folded
}

func saturatingSub(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return 0
}
