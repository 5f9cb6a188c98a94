package military

import (
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// Demobilize returns forceID's population to its cohort, deposits its
// equipment back into store, releases the military cohort, zeroes readiness
// and morale, and marks the force demobilized.
func (w *World) Demobilize(forceID uint64) error {
	force, ok := w.Forces.Find(forceID)
	if !ok {
		return errors.New(errors.NotFound, "force not found").WithDetails("force_id", forceID)
	}
	cohort, ok := w.MilitaryCohorts.Find(forceID)
	if !ok {
		return errors.New(errors.NotFound, "military cohort not found").WithDetails("force_id", forceID)
	}
	popCohort, ok := w.PopulationCohorts.Find(cohort.PopulationCohortID)
	if !ok {
		return errors.New(errors.NotFound, "population cohort not found").WithDetails("cohort_id", cohort.PopulationCohortID)
	}
	popCohort.Count += cohort.Count
	popCohort.InMilitary = false

	if store, ok := w.EquipmentStores.Get(force.EquipmentStoreID); ok {
		for _, line := range force.equipmentLines {
			_ = store.Add(line.AssetID, line.Qty)
		}
	}

	if err := w.MilitaryCohorts.Remove(forceID); err != nil {
		return errors.Wrap(errors.Err, "military cohort release failed", err)
	}

	if readinessState, ok := w.Readiness.Find(force.ReadinessID); ok {
		readinessState.Level = 0
		readinessState.NextDueTick = tick.None
	}
	if moraleState, ok := w.Morale.Find(force.MoraleID); ok {
		moraleState.Level = 0
		moraleState.NextDueTick = tick.None
	}
	_ = w.Readiness.Remove(force.ReadinessID)
	_ = w.Morale.Remove(force.MoraleID)

	force.equipmentLines = nil
	force.logisticsDeps = nil
	force.LogisticsStoreID = 0
	force.Status = StatusDemobilized
	force.NextDueTick = tick.None
	return nil
}
