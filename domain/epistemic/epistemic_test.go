package epistemic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/domain/epistemic"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

func TestCapabilityVisibility(t *testing.T) {
	snap := epistemic.New(0)
	require.NoError(t, snap.Add(epistemic.Entry{
		CapabilityID: uint32(epistemic.CapabilityTimeReadout),
		State:        epistemic.Known,
		ObservedTick: tick.Tick(10),
		ExpiresTick:  epistemic.ExpiresNever,
	}))
	snap.Finalize(tick.Tick(10))

	view := epistemic.Query(snap, uint32(epistemic.CapabilityTimeReadout), 0, 0, tick.Tick(10))
	require.Equal(t, epistemic.Known, view.State)
	require.False(t, view.IsStale)

	snap.Clear()
	view = epistemic.Query(snap, uint32(epistemic.CapabilityTimeReadout), 0, 0, tick.Tick(11))
	require.Equal(t, epistemic.Unknown, view.State)
}

func TestLatencyStaleness(t *testing.T) {
	snap := epistemic.New(0)
	require.NoError(t, snap.Add(epistemic.Entry{
		CapabilityID:   uint32(epistemic.CapabilityTimeReadout),
		State:          epistemic.Known,
		UncertaintyQ16: 4096,
		LatencyTicks:   5,
		ObservedTick:   tick.Tick(10),
		ExpiresTick:    epistemic.ExpiresNever,
	}))
	snap.Finalize(tick.Tick(10))

	view := epistemic.Query(snap, uint32(epistemic.CapabilityTimeReadout), 0, 0, tick.Tick(20))
	require.Equal(t, epistemic.Known, view.State)
	require.True(t, view.IsStale)
	require.True(t, view.IsUncertain)
}

func TestFinalizeOrderingIsPermutationInvariant(t *testing.T) {
	entries := []epistemic.Entry{
		{CapabilityID: 3, SubjectKind: 1, SubjectID: 1},
		{CapabilityID: 1, SubjectKind: 2, SubjectID: 5},
		{CapabilityID: 1, SubjectKind: 1, SubjectID: 9},
		{CapabilityID: 2, SubjectKind: 0, SubjectID: 0},
	}

	build := func(order []int) []epistemic.Entry {
		snap := epistemic.New(0)
		for _, i := range order {
			require.NoError(t, snap.Add(entries[i]))
		}
		snap.Finalize(tick.Tick(1))
		out := make([]epistemic.Entry, snap.Len())
		copy(out, snap.Entries())
		return out
	}

	a := build([]int{0, 1, 2, 3})
	b := build([]int{3, 2, 1, 0})
	require.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		require.True(t, a[i-1].CapabilityID < a[i].CapabilityID ||
			(a[i-1].CapabilityID == a[i].CapabilityID && a[i-1].SubjectKind <= a[i].SubjectKind))
	}
}

func TestCapabilityRejectsZeroID(t *testing.T) {
	snap := epistemic.New(0)
	require.Error(t, snap.Add(epistemic.Entry{CapabilityID: 0}))
}

func TestSnapshotRespectsCapacity(t *testing.T) {
	snap := epistemic.New(1)
	require.NoError(t, snap.Add(epistemic.Entry{CapabilityID: 1}))
	require.Error(t, snap.Add(epistemic.Entry{CapabilityID: 2}))
}
