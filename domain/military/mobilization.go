package military

import (
	"sort"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// EquipmentLine is one requested equipment asset and the quantity to draw
// from the equipment store.
type EquipmentLine struct {
	AssetID uint64
	Qty     uint64
}

// MobilizationRequest describes a population cohort to be turned into a
// standing force.
type MobilizationRequest struct {
	ForceID             uint64 // 0 = auto-assign
	Domain              uint32
	PopulationCohortID  uint64
	PopulationCount     uint64
	Equipment           []EquipmentLine
	EquipmentStoreID    uint64
	LogisticsStoreID    uint64
	LogisticsDeps       []uint64 // extra dependency stores; LogisticsStoreID is always included
	SupplyAssetID       uint64
	SupplyQty           uint64
	EnforcementProvided bool
	EnforcementCapacity uint64
	EnforcementRequired uint64
	LegitimacyProvided  bool
	LegitimacyValue     uint32
	LegitimacyMin       uint32
	DegradationRate     uint32
	RecoveryRate        uint32

	ScheduleReadinessRamp      bool
	ReadinessRampTrigger       tick.Tick
	ReadinessRampDelta         int32
	ScheduleSupplyCheck        bool
	SupplyCheckTrigger         tick.Tick
	SupplyCheckShortageDelta   int32
	ScheduleLegitimacyCheck    bool
	LegitimacyCheckTrigger     tick.Tick
	LegitimacyCheckMin         uint32
	LegitimacyCheckDeltaBelow  int32
}

// Apply validates and atomically mobilizes req, refusing with the first
// matching code and rolling back only the prior-step deltas it recorded.
func (w *World) Apply(req MobilizationRequest) (*Force, errors.RefusalCode, error) {
	if req.PopulationCount == 0 || req.PopulationCohortID == 0 {
		return nil, errors.RefusalInsufficientPopulation, errors.New(errors.InsufficientPopulation, "population count and cohort id must be non-zero")
	}
	if len(req.Equipment) > MaxEquipmentLines {
		return nil, errors.RefusalInsufficientEquipment, errors.New(errors.InsufficientEquipment, "too many equipment lines requested")
	}
	if req.LogisticsStoreID == 0 || req.SupplyAssetID == 0 || req.SupplyQty == 0 {
		return nil, errors.RefusalInsufficientLogistics, errors.New(errors.InsufficientLogistics, "logistics store, supply asset, and supply quantity must be non-zero")
	}
	if req.ForceID != 0 {
		if _, ok := w.Forces.Find(req.ForceID); ok {
			return nil, errors.RefusalInsufficientAuthority, errors.New(errors.InsufficientAuthority, "force id already registered").WithDetails("force_id", req.ForceID)
		}
	}
	popCohort, ok := w.PopulationCohorts.Find(req.PopulationCohortID)
	if ok && popCohort.InMilitary {
		return nil, errors.RefusalInsufficientAuthority, errors.New(errors.InsufficientAuthority, "cohort already in military").WithDetails("cohort_id", req.PopulationCohortID)
	}
	if !ok || popCohort.Count < req.PopulationCount {
		return nil, errors.RefusalInsufficientPopulation, errors.New(errors.InsufficientPopulation, "population cohort missing or insufficient").WithDetails("cohort_id", req.PopulationCohortID)
	}
	equipmentStore, ok := w.EquipmentStores.Get(req.EquipmentStoreID)
	if !ok {
		return nil, errors.RefusalInsufficientEquipment, errors.New(errors.InsufficientEquipment, "equipment store not found").WithDetails("store_id", req.EquipmentStoreID)
	}
	for _, line := range req.Equipment {
		if equipmentStore.Quantity(line.AssetID) < line.Qty {
			return nil, errors.RefusalInsufficientEquipment, errors.New(errors.InsufficientEquipment, "insufficient equipment in store").WithDetails("asset_id", line.AssetID)
		}
	}
	if req.EnforcementProvided && req.EnforcementCapacity < req.EnforcementRequired {
		return nil, errors.RefusalInsufficientAuthority, errors.New(errors.InsufficientAuthority, "enforcement capacity insufficient")
	}
	if req.LegitimacyProvided && req.LegitimacyValue < req.LegitimacyMin {
		return nil, errors.RefusalInsufficientLegitimacy, errors.New(errors.InsufficientLegitimacy, "legitimacy below minimum")
	}

	forceID := req.ForceID
	if forceID == 0 {
		forceID = w.nextForceID
	}
	w.nextForceID = maxU64(w.nextForceID, forceID) + 1

	force := &Force{ID: forceID, Domain: req.Domain, Status: StatusMobilizing, PopulationCohortID: req.PopulationCohortID}
	if err := w.Forces.Insert(force); err != nil {
		return nil, errors.RefusalNone, errors.Wrap(errors.Err, "force registration failed", err)
	}

	consumed := 0
	rollbackEquipment := func() {
		for i := 0; i < consumed; i++ {
			_ = equipmentStore.Add(req.Equipment[i].AssetID, req.Equipment[i].Qty)
		}
	}
	for i, line := range req.Equipment {
		if err := equipmentStore.Remove(line.AssetID, line.Qty); err != nil {
			rollbackEquipment()
			_ = w.Forces.Remove(forceID)
			return nil, errors.RefusalNone, errors.Wrap(errors.Err, "equipment consumption failed mid-sequence", err)
		}
		consumed = i + 1
	}

	popCohort.Count -= req.PopulationCount
	popDeducted := true
	rollbackPopulation := func() {
		if popDeducted {
			popCohort.Count += req.PopulationCount
			popDeducted = false
		}
	}

	cohort := &Cohort{ForceID: forceID, PopulationCohortID: req.PopulationCohortID, Count: req.PopulationCount}
	if err := w.MilitaryCohorts.Insert(cohort); err != nil {
		rollbackPopulation()
		rollbackEquipment()
		_ = w.Forces.Remove(forceID)
		return nil, errors.RefusalNone, errors.Wrap(errors.Err, "military cohort registration failed mid-sequence", err)
	}
	popCohort.InMilitary = true

	if err := w.Readiness.Register(forceID, Scale, req.DegradationRate, req.RecoveryRate); err != nil {
		_ = w.MilitaryCohorts.Remove(forceID)
		rollbackPopulation()
		rollbackEquipment()
		_ = w.Forces.Remove(forceID)
		return nil, errors.RefusalNone, errors.Wrap(errors.Err, "readiness registration failed mid-sequence", err)
	}
	if err := w.Morale.Register(forceID, Scale); err != nil {
		_ = w.Readiness.Remove(forceID)
		_ = w.MilitaryCohorts.Remove(forceID)
		rollbackPopulation()
		rollbackEquipment()
		_ = w.Forces.Remove(forceID)
		return nil, errors.RefusalNone, errors.Wrap(errors.Err, "morale registration failed mid-sequence", err)
	}

	if req.ScheduleReadinessRamp {
		_, _ = w.Readiness.ScheduleEvent(forceID, req.ReadinessRampDelta, req.ReadinessRampTrigger)
	}
	if req.ScheduleSupplyCheck {
		_, _ = w.Readiness.ScheduleSupplyCheck(forceID, req.SupplyCheckTrigger, req.LogisticsStoreID, req.SupplyAssetID, req.SupplyQty, req.SupplyCheckShortageDelta)
	}
	if req.ScheduleLegitimacyCheck {
		_, _ = w.Morale.ScheduleLegitimacyCheck(forceID, req.LegitimacyCheckTrigger, forceID, req.LegitimacyCheckMin, req.LegitimacyCheckDeltaBelow)
	}

	force.EquipmentStoreID = req.EquipmentStoreID
	force.LogisticsStoreID = req.LogisticsStoreID
	force.logisticsDeps = normalizeDeps(req.LogisticsStoreID, req.LogisticsDeps)
	force.equipmentLines = append([]EquipmentLine(nil), req.Equipment...)
	sort.Slice(force.equipmentLines, func(i, j int) bool {
		return force.equipmentLines[i].AssetID < force.equipmentLines[j].AssetID
	})
	readinessState, _ := w.Readiness.Find(forceID)
	moraleState, _ := w.Morale.Find(forceID)
	force.ReadinessID = readinessState.ID
	force.MoraleID = moraleState.ID
	force.Status = StatusMobilizing
	force.NextDueTick = tick.Min(readinessState.NextDueTick, moraleState.NextDueTick)

	return force, errors.RefusalNone, nil
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// normalizeDeps merges the designated supply store with any extra
// dependency stores into a sorted, deduplicated set.
func normalizeDeps(primary uint64, extras []uint64) []uint64 {
	deps := make([]uint64, 0, len(extras)+1)
	deps = append(deps, primary)
	deps = append(deps, extras...)
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	out := deps[:1]
	for _, d := range deps[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	return out
}
