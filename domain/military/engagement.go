package military

import (
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/registry"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// Engagement resolution bounds, matching the source's ENGAGEMENT_MAX_* caps.
const (
	MaxParticipants    = 32
	MaxEnvModifiers    = 8
	MaxEquipmentLosses = 16
)

// CauseViolence is the default casualty cause code used when a request
// leaves CauseCode unset.
const CauseViolence uint32 = 1

// Role is a participant's side in an engagement.
type Role uint32

const (
	RoleAttacker Role = iota
	RoleDefender
)

// ObjectiveKind is the tactical goal of an engagement, which weights
// strength in favor of one role or the other.
type ObjectiveKind uint32

const (
	ObjectiveAttack ObjectiveKind = iota
	ObjectiveDefend
	ObjectiveRaid
	ObjectiveBlockade
)

// Participant is one force's stake in an engagement.
type Participant struct {
	ForceID       uint64
	Role          Role
	LegitimacyID  uint64
	SupplyStoreID uint64 // 0 = use the force's own logistics store
}

// Engagement describes a scheduled or resolved clash between two or more
// forces sharing a domain scope.
type Engagement struct {
	EngagementID   uint64
	DomainScope    uint32
	Participants   []Participant
	StartTick      tick.Tick
	ResolutionTick tick.Tick
	Objective      ObjectiveKind
	EnvModifiers   []uint64
	SupplyAssetID  uint64
	SupplyQty      uint64
	ProvenanceRef  uint64
	Resolved       bool
}

// EquipmentLoss is one asset line lost by a participant during resolution.
type EquipmentLoss struct {
	AssetID uint64
	Qty     uint64
}

// Outcome is the recorded result of resolving an Engagement.
type Outcome struct {
	EngagementID      uint64
	WinnerForceID     uint64
	LoserForceID      uint64
	CasualtyEventIDs  []uint64
	CasualtyCount     uint32
	EquipmentLosses   []EquipmentLoss
	MoraleDelta       int32
	LegitimacyDelta   int32
	LogisticsConsumed uint64
	ProvenanceSummary uint64
}

// participantState is the working data collected for one participant during
// resolution; it never outlives a single Resolve call.
type participantState struct {
	participant     Participant
	force           *Force
	cohort          *Cohort
	readiness       *ReadinessState
	morale          *MoraleState
	cohortCount     uint32
	equipmentTotal  uint32
	supplyStoreID   uint64
	supplyShortage  bool
	legitimacyValue uint32
	hasLegitimacy   bool
	strength        uint64
}

// EngagementContext bundles the world and casualty-generation dependencies
// that engagement resolution needs beyond the Engagement record itself.
type EngagementContext struct {
	World           *World
	CasualtySources *registry.Registry[*CasualtySource]
	Handler         LifeDeathHandler
	CauseCode       uint32
	Outcomes        []Outcome
}

// NewEngagementContext creates a resolution context over world, dispatching
// casualties through handler.
func NewEngagementContext(world *World, handler LifeDeathHandler) *EngagementContext {
	return &EngagementContext{
		World:           world,
		CasualtySources: registry.New(0, casualtySourceForceID),
		Handler:         handler,
		CauseCode:       CauseViolence,
	}
}

// RegisterCasualtySource attaches a force's consumable body pool, rejecting
// a duplicate force id.
func (ctx *EngagementContext) RegisterCasualtySource(source *CasualtySource) error {
	if err := ctx.CasualtySources.Insert(source); err != nil {
		return errors.Wrap(errors.DuplicateID, "casualty source already registered", err).WithDetails("force_id", source.ForceID)
	}
	return nil
}

func hashMix(h, v uint64) uint64 {
	return h ^ (v + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2))
}

func environmentFactor(eng *Engagement) uint32 {
	h := uint64(0xC0FFEE)
	h = hashMix(h, uint64(eng.DomainScope))
	for _, m := range eng.EnvModifiers {
		h = hashMix(h, m)
	}
	return 900 + uint32(h%201)
}

func objectiveFactor(objective ObjectiveKind, role Role) uint32 {
	switch objective {
	case ObjectiveAttack, ObjectiveDefend:
		if role == RoleAttacker {
			return 900
		}
		return 1100
	case ObjectiveRaid:
		if role == RoleAttacker {
			return 950
		}
		return 1000
	case ObjectiveBlockade:
		return 1000
	default:
		return 1000
	}
}

func strengthCompute(eng *Engagement, st *participantState, envFactor uint32) uint64 {
	readinessLevel := st.readiness.Level
	moraleLevel := st.morale.Level
	if st.supplyShortage {
		if readinessLevel > 100 {
			readinessLevel -= 100
		} else {
			readinessLevel = 0
		}
	}
	legitimacyFactor := uint32(1000)
	if st.hasLegitimacy {
		legitimacyFactor = 900 + st.legitimacyValue/10
		if legitimacyFactor > 1000 {
			legitimacyFactor = 1000
		}
	}
	objFactor := objectiveFactor(eng.Objective, st.participant.Role)
	strength := uint64(st.cohortCount)*1000 + uint64(st.equipmentTotal)*500
	strength = strength * uint64(readinessLevel) / Scale
	strength = strength * uint64(moraleLevel) / Scale
	strength = strength * uint64(legitimacyFactor) / 1000
	strength = strength * uint64(envFactor) / 1000
	strength = strength * uint64(objFactor) / 1000
	return strength
}

func selectForceIDByRole(states []participantState, role Role) uint64 {
	var selected uint64
	for _, st := range states {
		if st.participant.Role != role || st.participant.ForceID == 0 {
			continue
		}
		if selected == 0 || st.participant.ForceID < selected {
			selected = st.participant.ForceID
		}
	}
	return selected
}

func computeCasualties(cohortCount uint32, ownStrength, oppStrength uint64, role Role) uint32 {
	if cohortCount == 0 {
		return 0
	}
	total := ownStrength + oppStrength
	if total == 0 {
		return 0
	}
	lossScale := oppStrength * 1000 / total
	casualties := uint64(cohortCount) * lossScale / 2000
	if role == RoleAttacker {
		casualties = casualties * 1100 / 1000
	} else {
		casualties = casualties * 900 / 1000
	}
	if casualties > uint64(cohortCount) {
		casualties = uint64(cohortCount)
	}
	return uint32(casualties)
}

// computeEquipmentLosses returns the per-asset losses force takes for
// casualties out of cohortCount troops, floor-proportional and capped at
// MaxEquipmentLosses distinct lines.
func computeEquipmentLosses(force *Force, casualties, cohortCount uint32) []EquipmentLoss {
	if cohortCount == 0 {
		return nil
	}
	losses := make([]EquipmentLoss, 0, len(force.equipmentLines))
	for _, line := range force.equipmentLines {
		if line.AssetID == 0 || line.Qty == 0 {
			continue
		}
		lossQty := line.Qty * uint64(casualties) / uint64(cohortCount)
		if lossQty == 0 {
			continue
		}
		if len(losses) >= MaxEquipmentLosses {
			continue
		}
		losses = append(losses, EquipmentLoss{AssetID: line.AssetID, Qty: lossQty})
	}
	return losses
}

func applyEquipmentLosses(force *Force, losses []EquipmentLoss) {
	for _, loss := range losses {
		for i := range force.equipmentLines {
			if force.equipmentLines[i].AssetID != loss.AssetID {
				continue
			}
			if force.equipmentLines[i].Qty > loss.Qty {
				force.equipmentLines[i].Qty -= loss.Qty
			} else {
				force.equipmentLines[i].Qty = 0
			}
			break
		}
	}
}

func (ctx *EngagementContext) collectParticipants(eng *Engagement) ([]participantState, errors.RefusalCode, error) {
	w := ctx.World
	states := make([]participantState, 0, len(eng.Participants))
	for _, p := range eng.Participants {
		if p.Role > RoleDefender {
			return nil, errors.RefusalObjectiveInvalid, errors.New(errors.ObjectiveInvalid, "invalid participant role").WithDetails("force_id", p.ForceID)
		}
		force, ok := w.Forces.Find(p.ForceID)
		if !ok {
			return nil, errors.RefusalParticipantNotReady, errors.New(errors.ParticipantNotReady, "participant force not found").WithDetails("force_id", p.ForceID)
		}
		if force.Domain != eng.DomainScope {
			return nil, errors.RefusalOutOfDomain, errors.New(errors.OutOfDomain, "participant force outside engagement domain").WithDetails("force_id", p.ForceID)
		}
		cohort, ok := w.MilitaryCohorts.Find(p.ForceID)
		if !ok || cohort.Count == 0 {
			return nil, errors.RefusalParticipantNotReady, errors.New(errors.ParticipantNotReady, "participant cohort missing or empty").WithDetails("force_id", p.ForceID)
		}
		readiness, rok := w.Readiness.Find(force.ReadinessID)
		morale, mok := w.Morale.Find(force.MoraleID)
		if !rok || !mok {
			return nil, errors.RefusalParticipantNotReady, errors.New(errors.ParticipantNotReady, "participant readiness or morale missing").WithDetails("force_id", p.ForceID)
		}
		if readiness.Level == 0 || morale.Level == 0 {
			return nil, errors.RefusalParticipantNotReady, errors.New(errors.ParticipantNotReady, "participant readiness or morale exhausted").WithDetails("force_id", p.ForceID)
		}
		var equipmentTotal uint64
		for _, line := range force.equipmentLines {
			equipmentTotal += line.Qty
		}
		st := participantState{
			participant:    p,
			force:          force,
			cohort:         cohort,
			readiness:      readiness,
			morale:         morale,
			cohortCount:    uint32(cohort.Count),
			equipmentTotal: uint32(equipmentTotal),
		}
		if p.LegitimacyID != 0 {
			if v, ok := w.Legitimacy.Get(p.LegitimacyID); ok {
				st.legitimacyValue = v
				st.hasLegitimacy = true
			}
		}
		supplyStoreID := p.SupplyStoreID
		if supplyStoreID == 0 {
			supplyStoreID = force.LogisticsStoreID
		}
		st.supplyStoreID = supplyStoreID
		if eng.SupplyAssetID != 0 && eng.SupplyQty > 0 && supplyStoreID != 0 {
			store, ok := w.LogisticsStores.Get(supplyStoreID)
			if !ok || store.Quantity(eng.SupplyAssetID) < eng.SupplyQty {
				st.supplyShortage = true
			}
		}
		states = append(states, st)
	}
	return states, errors.RefusalNone, nil
}

// Resolve runs the full engagement-resolution algorithm: refusal
// checks, participant collection, strength aggregation, winner
// determination, casualty and equipment-loss accounting, morale/legitimacy
// deltas, logistics consumption, and provenance hashing.
func (ctx *EngagementContext) Resolve(eng *Engagement) (*Outcome, errors.RefusalCode, error) {
	if ctx == nil || ctx.World == nil || ctx.Handler == nil {
		return nil, errors.RefusalNone, errors.New(errors.InvalidArgument, "engagement context requires a world and a life-death handler")
	}
	if eng.Resolved {
		return nil, errors.RefusalAlreadyResolved, errors.New(errors.AlreadyResolved, "engagement already resolved").WithDetails("engagement_id", eng.EngagementID)
	}
	if len(eng.Participants) < 2 || len(eng.Participants) > MaxParticipants {
		return nil, errors.RefusalParticipantNotReady, errors.New(errors.ParticipantNotReady, "engagement participant count out of range")
	}
	if len(eng.EnvModifiers) > MaxEnvModifiers {
		return nil, errors.RefusalObjectiveInvalid, errors.New(errors.ObjectiveInvalid, "too many environment modifiers")
	}
	if eng.Objective > ObjectiveBlockade {
		return nil, errors.RefusalObjectiveInvalid, errors.New(errors.ObjectiveInvalid, "invalid objective kind")
	}
	if eng.ResolutionTick < eng.StartTick {
		return nil, errors.RefusalObjectiveInvalid, errors.New(errors.ObjectiveInvalid, "resolution tick precedes start tick")
	}

	states, refusal, err := ctx.collectParticipants(eng)
	if err != nil {
		return nil, refusal, err
	}

	w := ctx.World
	envFactor := environmentFactor(eng)
	var attackerStrength, defenderStrength uint64
	var attackerCohort, defenderCohort uint32
	for i := range states {
		states[i].strength = strengthCompute(eng, &states[i], envFactor)
		if states[i].participant.Role == RoleAttacker {
			attackerStrength += states[i].strength
			attackerCohort += states[i].cohortCount
		} else {
			defenderStrength += states[i].strength
			defenderCohort += states[i].cohortCount
		}
	}
	if attackerStrength == 0 || defenderStrength == 0 || attackerCohort == 0 || defenderCohort == 0 {
		return nil, errors.RefusalParticipantNotReady, errors.New(errors.ParticipantNotReady, "one side has zero strength or cohort")
	}

	var winnerForceID, loserForceID uint64
	if attackerStrength > defenderStrength {
		diff := attackerStrength - defenderStrength
		if diff*100/attackerStrength >= 5 {
			winnerForceID = selectForceIDByRole(states, RoleAttacker)
			loserForceID = selectForceIDByRole(states, RoleDefender)
		}
	} else if defenderStrength > attackerStrength {
		diff := defenderStrength - attackerStrength
		if diff*100/defenderStrength >= 5 {
			winnerForceID = selectForceIDByRole(states, RoleDefender)
			loserForceID = selectForceIDByRole(states, RoleAttacker)
		}
	}

	outcome := Outcome{EngagementID: eng.EngagementID, WinnerForceID: winnerForceID, LoserForceID: loserForceID}
	var winnerMoraleDelta, loserMoraleDelta int32
	var winnerLegitimacyDelta, loserLegitimacyDelta int32
	if winnerForceID != 0 && loserForceID != 0 {
		winnerMoraleDelta, loserMoraleDelta = 50, -50
		winnerLegitimacyDelta, loserLegitimacyDelta = 10, -10
		outcome.MoraleDelta = winnerMoraleDelta
		outcome.LegitimacyDelta = winnerLegitimacyDelta
	}

	var totalCasualties uint32
	for i := range states {
		st := &states[i]
		ownStrength, oppStrength := attackerStrength, defenderStrength
		if st.participant.Role != RoleAttacker {
			ownStrength, oppStrength = defenderStrength, attackerStrength
		}
		casualties := computeCasualties(st.cohortCount, ownStrength, oppStrength, st.participant.Role)
		if st.supplyShortage {
			penalty := st.readiness.DegradationRate
			extra := (casualties + penalty + 19) / 20
			if extra > 0 {
				if casualties+extra > st.cohortCount {
					casualties = st.cohortCount
				} else {
					casualties += extra
				}
			}
		}
		if casualties == 0 {
			continue
		}

		source, ok := ctx.CasualtySources.Find(st.participant.ForceID)
		if !ok {
			return nil, errors.RefusalParticipantNotReady, errors.New(errors.ParticipantNotReady, "no casualty source for participant").WithDetails("force_id", st.participant.ForceID)
		}
		provenanceRef := eng.ProvenanceRef
		if provenanceRef == 0 {
			provenanceRef = eng.EngagementID
		}
		causeCode := ctx.CauseCode
		if causeCode == 0 {
			causeCode = CauseViolence
		}
		req := CasualtyRequest{CauseCode: causeCode, ActTime: eng.ResolutionTick, ProvenanceRef: provenanceRef}
		ids, produced, err := Generate(source, casualties, req, ctx.Handler, casualties)
		if err != nil {
			return nil, errors.RefusalParticipantNotReady, errors.Wrap(errors.ParticipantNotReady, "casualty generation failed", err)
		}
		outcome.CasualtyEventIDs = append(outcome.CasualtyEventIDs, ids...)
		totalCasualties += produced
		outcome.CasualtyCount = totalCasualties

		if st.cohort.Count > uint64(produced) {
			st.cohort.Count -= uint64(produced)
		} else {
			st.cohort.Count = 0
		}

		losses := computeEquipmentLosses(st.force, casualties, st.cohortCount)
		for _, loss := range losses {
			if len(outcome.EquipmentLosses) >= MaxEquipmentLosses {
				break
			}
			outcome.EquipmentLosses = append(outcome.EquipmentLosses, loss)
		}
		applyEquipmentLosses(st.force, losses)
	}

	for i := range states {
		st := &states[i]
		moraleDelta, legitimacyDelta := int32(0), int32(0)
		if winnerForceID != 0 && loserForceID != 0 {
			if winnerForceID == selectForceIDByRole(states, st.participant.Role) {
				moraleDelta, legitimacyDelta = winnerMoraleDelta, winnerLegitimacyDelta
			} else {
				moraleDelta, legitimacyDelta = loserMoraleDelta, loserLegitimacyDelta
			}
		}
		if st.supplyShortage {
			moraleDelta -= 25
			st.readiness.ApplyDelta(-int32(st.readiness.DegradationRate))
		}
		if st.hasLegitimacy {
			threshold := uint32(Scale / 2)
			if st.legitimacyValue < threshold {
				shortfall := threshold - st.legitimacyValue
				penalty := int32(shortfall / 10)
				if penalty > 50 {
					penalty = 50
				}
				moraleDelta -= penalty
			}
		}
		st.morale.ApplyDelta(moraleDelta)
		if st.participant.LegitimacyID != 0 {
			w.Legitimacy.Delta(st.participant.LegitimacyID, legitimacyDelta)
		}
	}

	if eng.SupplyAssetID != 0 && eng.SupplyQty > 0 {
		for i := range states {
			st := &states[i]
			if st.supplyStoreID == 0 {
				continue
			}
			if store, ok := w.LogisticsStores.Get(st.supplyStoreID); ok {
				if store.Remove(eng.SupplyAssetID, eng.SupplyQty) == nil {
					outcome.LogisticsConsumed += eng.SupplyQty
				}
			}
		}
	}

	outcome.ProvenanceSummary = hashMix(eng.EngagementID, uint64(outcome.CasualtyCount))
	eng.Resolved = true
	ctx.Outcomes = append(ctx.Outcomes, outcome)
	return &outcome, errors.RefusalNone, nil
}
