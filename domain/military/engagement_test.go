package military_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/domain/military"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

func mobilizeForce(t *testing.T, w *military.World, forceID, popCohortID, equipmentStoreID, logisticsStoreID uint64) *military.Force {
	t.Helper()
	require.NoError(t, w.PopulationCohorts.Insert(&military.PopulationCohort{ID: popCohortID, Count: 8}))
	require.NoError(t, w.EquipmentStores.Register(logistics.NewStation(equipmentStoreID, 0)))
	equipmentStore, _ := w.EquipmentStores.Get(equipmentStoreID)
	require.NoError(t, equipmentStore.Add(500, 2))
	require.NoError(t, w.LogisticsStores.Register(logistics.NewStation(logisticsStoreID, 0)))
	logisticsStore, _ := w.LogisticsStores.Get(logisticsStoreID)
	require.NoError(t, logisticsStore.Add(900, 1))

	force, refusal, err := w.Apply(military.MobilizationRequest{
		ForceID:            forceID,
		Domain:             1,
		PopulationCohortID: popCohortID,
		PopulationCount:    8,
		Equipment:          []military.EquipmentLine{{AssetID: 500, Qty: 2}},
		EquipmentStoreID:   equipmentStoreID,
		LogisticsStoreID:   logisticsStoreID,
		SupplyAssetID:      900,
		SupplyQty:          1,
		DegradationRate:    50,
		RecoveryRate:       10,
	})
	require.NoError(t, err)
	require.Equal(t, errors.RefusalNone, refusal)
	return force
}

func newCasualtyHandler() military.LifeDeathHandler {
	var next uint64 = 9000
	return func(bodyID uint64, req military.CasualtyRequest) (uint64, error) {
		next++
		return next, nil
	}
}

func TestEngagementCasualtyConservation(t *testing.T) {
	w := military.NewWorld(0)
	attacker := mobilizeForce(t, w, 1, 1, 10, 20)
	defender := mobilizeForce(t, w, 2, 2, 11, 21)

	ctx := military.NewEngagementContext(w, newCasualtyHandler())
	require.NoError(t, ctx.RegisterCasualtySource(&military.CasualtySource{ForceID: attacker.ID, BodyIDs: []uint64{1, 2, 3, 4, 5, 6, 7, 8}}))
	require.NoError(t, ctx.RegisterCasualtySource(&military.CasualtySource{ForceID: defender.ID, BodyIDs: []uint64{9, 10, 11, 12, 13, 14, 15, 16}}))

	atkCohortBefore, _ := w.MilitaryCohorts.Find(attacker.ID)
	defCohortBefore, _ := w.MilitaryCohorts.Find(defender.ID)
	beforeAtk, beforeDef := atkCohortBefore.Count, defCohortBefore.Count

	eng := &military.Engagement{
		EngagementID:   1,
		DomainScope:    1,
		Participants:   []military.Participant{{ForceID: attacker.ID, Role: military.RoleAttacker}, {ForceID: defender.ID, Role: military.RoleDefender}},
		StartTick:      tick.Tick(1),
		ResolutionTick: tick.Tick(5),
		Objective:      military.ObjectiveAttack,
		SupplyAssetID:  900,
		SupplyQty:      1,
	}

	outcome, refusal, err := ctx.Resolve(eng)
	require.NoError(t, err)
	require.Equal(t, errors.RefusalNone, refusal)
	require.True(t, eng.Resolved)

	atkCohortAfter, _ := w.MilitaryCohorts.Find(attacker.ID)
	defCohortAfter, _ := w.MilitaryCohorts.Find(defender.ID)

	conserved := (beforeAtk - atkCohortAfter.Count) + (beforeDef - defCohortAfter.Count)
	require.Equal(t, uint64(outcome.CasualtyCount), conserved)
}

func TestEngagementRefusesAlreadyResolved(t *testing.T) {
	w := military.NewWorld(0)
	attacker := mobilizeForce(t, w, 1, 1, 10, 20)
	defender := mobilizeForce(t, w, 2, 2, 11, 21)
	ctx := military.NewEngagementContext(w, newCasualtyHandler())
	require.NoError(t, ctx.RegisterCasualtySource(&military.CasualtySource{ForceID: attacker.ID, BodyIDs: []uint64{1, 2, 3, 4, 5, 6, 7, 8}}))
	require.NoError(t, ctx.RegisterCasualtySource(&military.CasualtySource{ForceID: defender.ID, BodyIDs: []uint64{9, 10, 11, 12, 13, 14, 15, 16}}))

	eng := &military.Engagement{
		EngagementID:   1,
		DomainScope:    1,
		Participants:   []military.Participant{{ForceID: attacker.ID, Role: military.RoleAttacker}, {ForceID: defender.ID, Role: military.RoleDefender}},
		ResolutionTick: tick.Tick(1),
		Objective:      military.ObjectiveAttack,
	}
	_, _, err := ctx.Resolve(eng)
	require.NoError(t, err)

	_, refusal, err := ctx.Resolve(eng)
	require.Equal(t, errors.RefusalAlreadyResolved, refusal)
	require.True(t, errors.Is(err, errors.AlreadyResolved))
}

func TestEngagementRefusesOutOfDomainParticipant(t *testing.T) {
	w := military.NewWorld(0)
	attacker := mobilizeForce(t, w, 1, 1, 10, 20)
	require.NoError(t, w.PopulationCohorts.Insert(&military.PopulationCohort{ID: 2, Count: 8}))
	require.NoError(t, w.EquipmentStores.Register(logistics.NewStation(12, 0)))
	equipmentStore, _ := w.EquipmentStores.Get(12)
	require.NoError(t, equipmentStore.Add(500, 2))
	require.NoError(t, w.LogisticsStores.Register(logistics.NewStation(22, 0)))
	logisticsStore, _ := w.LogisticsStores.Get(22)
	require.NoError(t, logisticsStore.Add(900, 1))
	defender, _, err := w.Apply(military.MobilizationRequest{
		ForceID: 2, Domain: 2, PopulationCohortID: 2, PopulationCount: 8,
		Equipment: []military.EquipmentLine{{AssetID: 500, Qty: 2}}, EquipmentStoreID: 12, LogisticsStoreID: 22,
		SupplyAssetID: 900, SupplyQty: 1, DegradationRate: 50, RecoveryRate: 10,
	})
	require.NoError(t, err)

	ctx := military.NewEngagementContext(w, newCasualtyHandler())
	eng := &military.Engagement{
		EngagementID:   1,
		DomainScope:    1,
		Participants:   []military.Participant{{ForceID: attacker.ID, Role: military.RoleAttacker}, {ForceID: defender.ID, Role: military.RoleDefender}},
		ResolutionTick: tick.Tick(1),
		Objective:      military.ObjectiveAttack,
	}
	_, refusal, err := ctx.Resolve(eng)
	require.Equal(t, errors.RefusalOutOfDomain, refusal)
	require.True(t, errors.Is(err, errors.OutOfDomain))
}

// TestSupplyShortageWorsensLosses runs the same engagement twice, differing
// only in whether the attacker's supply store holds the required asset, and
// checks the depleted attacker loses at least as many troops.
func TestSupplyShortageWorsensLosses(t *testing.T) {
	runOnce := func(t *testing.T, attackerSupplied bool) uint64 {
		w := military.NewWorld(0)
		attacker := mobilizeForce(t, w, 1, 1, 10, 20)
		defender := mobilizeForce(t, w, 2, 2, 11, 21)

		attackerStore, _ := w.LogisticsStores.Get(20)
		if attackerSupplied {
			require.NoError(t, attackerStore.Add(900, 9))
		} else {
			require.NoError(t, attackerStore.Remove(900, 1))
		}

		ctx := military.NewEngagementContext(w, newCasualtyHandler())
		require.NoError(t, ctx.RegisterCasualtySource(&military.CasualtySource{ForceID: attacker.ID, BodyIDs: []uint64{1, 2, 3, 4, 5, 6, 7, 8}}))
		require.NoError(t, ctx.RegisterCasualtySource(&military.CasualtySource{ForceID: defender.ID, BodyIDs: []uint64{9, 10, 11, 12, 13, 14, 15, 16}}))

		before, _ := w.MilitaryCohorts.Find(attacker.ID)
		beforeCount := before.Count

		eng := &military.Engagement{
			EngagementID:   1,
			DomainScope:    1,
			Participants:   []military.Participant{{ForceID: attacker.ID, Role: military.RoleAttacker}, {ForceID: defender.ID, Role: military.RoleDefender}},
			StartTick:      tick.Tick(1),
			ResolutionTick: tick.Tick(5),
			Objective:      military.ObjectiveAttack,
			SupplyAssetID:  900,
			SupplyQty:      1,
		}
		_, refusal, err := ctx.Resolve(eng)
		require.NoError(t, err)
		require.Equal(t, errors.RefusalNone, refusal)

		after, _ := w.MilitaryCohorts.Find(attacker.ID)
		return beforeCount - after.Count
	}

	suppliedLosses := runOnce(t, true)
	depletedLosses := runOnce(t, false)
	require.GreaterOrEqual(t, depletedLosses, suppliedLosses)
}
