package faction_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/domain/economy"
	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
)

func baseDesc() faction.Desc {
	return faction.Desc{
		FactionID:     1,
		HomeScopeKind: economy.ScopeSystem,
		HomeScopeID:   10,
		PolicyKind:    faction.PolicyBalanced,
		AISeed:        7,
		KnownNodes:    []uint64{5, 3, 3, 1},
	}
}

func TestRegisterSortsAndDedupesKnownNodes(t *testing.T) {
	r := faction.NewRegistry(0)
	require.NoError(t, r.Register(baseDesc()))

	nodes, err := r.KnownNodes(1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3, 5}, nodes)
}

func TestRegisterRejectsInvalidFields(t *testing.T) {
	r := faction.NewRegistry(0)

	d := baseDesc()
	d.FactionID = 0
	require.True(t, errors.Is(r.Register(d), errors.InvalidArgument))

	d = baseDesc()
	d.HomeScopeID = 0
	require.True(t, errors.Is(r.Register(d), errors.InvalidArgument))

	d = baseDesc()
	d.AISeed = 0
	require.True(t, errors.Is(r.Register(d), errors.InvalidArgument))

	d = baseDesc()
	d.HomeScopeKind = 99
	require.True(t, errors.Is(r.Register(d), errors.InvalidArgument))

	d = baseDesc()
	d.PolicyKind = faction.PolicyConserve + 1
	require.True(t, errors.Is(r.Register(d), errors.InvalidArgument))
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := faction.NewRegistry(0)
	require.NoError(t, r.Register(baseDesc()))
	require.True(t, errors.Is(r.Register(baseDesc()), errors.DuplicateID))
}

func TestUpdateResourcesAppliesInResourceIDOrder(t *testing.T) {
	r := faction.NewRegistry(0)
	require.NoError(t, r.Register(baseDesc()))

	require.NoError(t, r.UpdateResources(1, []faction.ResourceDelta{
		{ResourceID: 200, Delta: 10},
		{ResourceID: 100, Delta: 5},
	}))

	entries, err := r.ResourceList(1)
	require.NoError(t, err)
	require.Equal(t, []faction.ResourceEntry{{ResourceID: 100, Quantity: 5}, {ResourceID: 200, Quantity: 10}}, entries)
}

func TestUpdateResourcesRejectsNegativeAgainstAbsent(t *testing.T) {
	r := faction.NewRegistry(0)
	require.NoError(t, r.Register(baseDesc()))

	err := r.UpdateResources(1, []faction.ResourceDelta{{ResourceID: 100, Delta: -1}})
	require.True(t, errors.Is(err, errors.Insufficient))

	qty, _ := r.ResourceGet(1, 100)
	require.Equal(t, int64(0), qty)
}

func TestUpdateResourcesErasesZeroQuantityRow(t *testing.T) {
	r := faction.NewRegistry(0)
	require.NoError(t, r.Register(baseDesc()))
	require.NoError(t, r.UpdateResources(1, []faction.ResourceDelta{{ResourceID: 100, Delta: 5}}))
	require.NoError(t, r.UpdateResources(1, []faction.ResourceDelta{{ResourceID: 100, Delta: -5}}))

	entries, err := r.ResourceList(1)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUpdateResourcesSkipsZeroDeltaAndLeavesLedgerUnchangedOnFailure(t *testing.T) {
	r := faction.NewRegistry(0)
	require.NoError(t, r.Register(baseDesc()))
	require.NoError(t, r.UpdateResources(1, []faction.ResourceDelta{{ResourceID: 100, Delta: 5}}))

	err := r.UpdateResources(1, []faction.ResourceDelta{{ResourceID: 100, Delta: 0}, {ResourceID: 999, Delta: -1}})
	require.True(t, errors.Is(err, errors.Insufficient))

	qty, _ := r.ResourceGet(1, 100)
	require.Equal(t, int64(5), qty)
}
