package faction_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/domain/economy"
	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

type stubPlanner struct {
	commands []faction.PlannedCommand
	opsUsed  uint32
	reason   faction.ReasonCode
	seen     *[]uint64
}

func (p stubPlanner) Plan(f *faction.Faction, now tick.Tick, opsBudget uint32) faction.PlanResult {
	if p.seen != nil {
		*p.seen = append(*p.seen, f.FactionID)
	}
	return faction.PlanResult{Commands: p.commands, OpsUsed: p.opsUsed, ReasonCode: p.reason}
}

func newRegisteredFactions(t *testing.T, ids ...uint64) *faction.Registry {
	t.Helper()
	r := faction.NewRegistry(0)
	for _, id := range ids {
		require.NoError(t, r.Register(faction.Desc{
			FactionID: id, HomeScopeKind: economy.ScopeSystem, HomeScopeID: 1, AISeed: id + 100,
		}))
	}
	return r
}

func TestSchedulerDispatchesInFactionIDOrderAndCountsActions(t *testing.T) {
	factions := newRegisteredFactions(t, 2, 1)
	var submitted []uint64
	var planned []uint64
	logistics := stubPlanner{commands: []faction.PlannedCommand{{SchemaID: 1, Tick: tick.Tick(1)}}, opsUsed: 1, reason: faction.ReasonActions, seen: &planned}

	sched := faction.NewScheduler(factions, faction.DefaultSchedulerConfig(), logistics, nil,
		func(cmd faction.PlannedCommand) bool { submitted = append(submitted, uint64(cmd.SchemaID)); return true },
		nil, nil, nil)

	require.NoError(t, sched.Tick(tick.Tick(1)))
	require.Equal(t, []uint64{1, 2}, planned)

	s1, ok := sched.State(1)
	require.True(t, ok)
	require.Equal(t, faction.ReasonActions, s1.LastReasonCode)
	require.Equal(t, uint32(1), s1.LastOutputCount)
	require.Equal(t, uint64(1), s1.LastPlanID)

	s2, ok := sched.State(2)
	require.True(t, ok)
	require.Equal(t, faction.ReasonActions, s2.LastReasonCode)

	require.Len(t, submitted, 2)
}

func TestSchedulerHonorsFactionBudgetAndStops(t *testing.T) {
	factions := newRegisteredFactions(t, 1, 2, 3)
	cfg := faction.DefaultSchedulerConfig()
	cfg.MaxFactionsPerTick = 2
	logistics := stubPlanner{reason: faction.ReasonNone}

	sched := faction.NewScheduler(factions, cfg, logistics, nil, nil, nil, nil, nil)
	require.NoError(t, sched.Tick(tick.Tick(1)))

	_, ok1 := sched.State(1)
	_, ok2 := sched.State(2)
	s3, ok3 := sched.State(3)
	require.True(t, ok1)
	require.True(t, ok2)
	require.True(t, ok3)
	s1, _ := sched.State(1)
	require.Equal(t, uint64(1), s1.LastPlanID)
	require.Equal(t, uint64(0), s3.LastPlanID)
}

func TestSchedulerMarksBudgetHitWhenOpsExhausted(t *testing.T) {
	factions := newRegisteredFactions(t, 1, 2)
	cfg := faction.DefaultSchedulerConfig()
	cfg.MaxOpsPerTick = 1
	logistics := stubPlanner{opsUsed: 1, reason: faction.ReasonNone}

	sched := faction.NewScheduler(factions, cfg, logistics, nil, nil, nil, nil, nil)
	require.NoError(t, sched.Tick(tick.Tick(1)))

	s2, ok := sched.State(2)
	require.True(t, ok)
	require.Equal(t, faction.ReasonBudgetHit, s2.LastReasonCode)
	require.True(t, s2.LastBudgetHit)
}

func TestSchedulerSkipsFactionNotYetDue(t *testing.T) {
	factions := newRegisteredFactions(t, 1)
	sched := faction.NewScheduler(factions, faction.DefaultSchedulerConfig(), stubPlanner{reason: faction.ReasonActions, opsUsed: 1}, nil, nil, nil, nil, nil)

	sched.LoadStates([]faction.FactionState{{FactionID: 1, NextDecisionTick: tick.Tick(50)}})
	require.NoError(t, sched.Tick(tick.Tick(10)))

	s, ok := sched.State(1)
	require.True(t, ok)
	require.Equal(t, uint64(0), s.LastPlanID)
}

func TestSchedulerEmitsTraceOnlyForActionsOrBudgetHit(t *testing.T) {
	factions := newRegisteredFactions(t, 1)
	var traces []faction.TraceRecord
	logistics := stubPlanner{reason: faction.ReasonNone}

	sched := faction.NewScheduler(factions, faction.DefaultSchedulerConfig(), logistics, nil, nil, nil,
		func(r faction.TraceRecord) { traces = append(traces, r) }, func() uint64 { return 42 })
	require.NoError(t, sched.Tick(tick.Tick(1)))
	require.Empty(t, traces)
}
