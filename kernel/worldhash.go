package kernel

import (
	"sort"

	"github.com/dominium-sim/simkernel/domain/economy"
	"github.com/dominium-sim/simkernel/domain/epistemic"
	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/domain/military"
	"github.com/dominium-sim/simkernel/domain/production"
	"github.com/dominium-sim/simkernel/infrastructure/worldhash"
)

// WorldHash computes the deterministic 64-bit rolling digest over every
// authoritative registry in a fixed subsystem order: stations,
// routes, in-flight transfers, production rules, economy scopes, pending
// macro events, military forces/cohorts/readiness/morale/legitimacy,
// factions and their AI scheduler state, the epistemic snapshot, and the
// non-empty opaque pass-through chunks in tag order. Every
// registry already iterates id-sorted, so no additional sort beyond what a
// few maps require is needed.
func (w *World) WorldHash() uint64 {
	h := worldhash.New()

	hashStations(h, w.Stations)
	hashRoutes(h, w.Routes)
	hashTransfers(h, w.Transfers)
	hashProduction(h, w.Production)
	hashEconomy(h, w.Economy)
	hashMacroEvents(h, w.MacroEvents)
	hashMilitary(h, w.Military)
	hashFactions(h, w.Factions, w.AIScheduler)
	hashEpistemic(h, w.Epistemic)
	hashOpaqueChunks(h, w.OpaqueChunks)

	return h.Sum64()
}

func hashStations(h *worldhash.Hash, stations *logistics.StationSet) {
	if stations == nil {
		return
	}
	stations.Each(func(s *logistics.Station) {
		h.WriteUint64(s.ID)
		h.WriteUint64(s.BodyID)
		h.WriteUint64(s.FrameID)
		for _, e := range s.Inventory() {
			h.WriteUint64(e.ResourceID)
			h.WriteUint64(e.Quantity)
		}
	})
}

func hashRoutes(h *worldhash.Hash, routes *logistics.RouteGraph) {
	if routes == nil {
		return
	}
	routes.Each(func(r logistics.Route) {
		h.WriteUint64(r.ID)
		h.WriteUint64(r.SrcStationID)
		h.WriteUint64(r.DstStationID)
		h.WriteUint64(r.DurationTicks)
		h.WriteUint64(r.CapacityUnits)
	})
}

func hashTransfers(h *worldhash.Hash, transfers *logistics.TransferScheduler) {
	if transfers == nil {
		return
	}
	h.WriteUint64(transfers.NextID())
	for _, rec := range transfers.Pending() {
		h.WriteUint64(rec.TransferID)
		h.WriteUint64(rec.RouteID)
		h.WriteUint64(uint64(rec.StartTick))
		h.WriteUint64(uint64(rec.ArrivalTick))
		for _, e := range rec.Entries {
			h.WriteUint64(e.ResourceID)
			h.WriteUint64(e.Quantity)
		}
	}
}

func hashProduction(h *worldhash.Hash, prod *production.Engine) {
	if prod == nil {
		return
	}
	h.WriteUint64(uint64(prod.LastTick()))
	prod.Each(func(r production.Rule) {
		h.WriteUint64(r.RuleID)
		h.WriteUint64(r.StationID)
		h.WriteUint64(r.ResourceID)
		h.WriteInt64(r.DeltaPerPeriod)
		h.WriteUint64(r.PeriodTicks)
	})
}

func hashEconomy(h *worldhash.Hash, econ *economy.Economy) {
	if econ == nil {
		return
	}
	econ.Each(func(v economy.ScopeView) {
		h.WriteUint32(uint32(v.Kind))
		h.WriteUint64(v.ID)
		h.WriteUint32(v.Flags)
		for _, r := range v.Production {
			h.WriteUint64(r.ResourceID)
			h.WriteInt64(r.RatePerTick)
		}
		for _, r := range v.Demand {
			h.WriteUint64(r.ResourceID)
			h.WriteInt64(r.RatePerTick)
		}
		for _, s := range v.Stockpile {
			h.WriteUint64(s.ResourceID)
			h.WriteInt64(s.Quantity)
		}
	})
}

func hashMacroEvents(h *worldhash.Hash, events *economy.EventScheduler) {
	if events == nil {
		return
	}
	h.WriteUint64(uint64(events.LastTick()))
	for _, e := range events.Pending() {
		h.WriteUint64(e.EventID)
		h.WriteUint32(uint32(e.ScopeKind))
		h.WriteUint64(e.ScopeID)
		h.WriteUint64(uint64(e.TriggerTick))
		for _, eff := range e.Effects {
			h.WriteUint64(eff.ResourceID)
			h.WriteInt64(eff.ProductionDelta)
			h.WriteInt64(eff.DemandDelta)
			h.WriteUint32(eff.FlagsSet)
			h.WriteUint32(eff.FlagsClear)
		}
	}
}

func hashMilitary(h *worldhash.Hash, w *military.World) {
	if w == nil {
		return
	}
	w.Forces.Each(func(f *military.Force) {
		h.WriteUint64(f.ID)
		h.WriteUint32(f.Domain)
		h.WriteUint32(uint32(f.Status))
		h.WriteUint64(f.PopulationCohortID)
		h.WriteUint64(f.ReadinessID)
		h.WriteUint64(f.MoraleID)
		h.WriteUint64(f.EquipmentStoreID)
		h.WriteUint64(f.LogisticsStoreID)
		h.WriteUint64(uint64(f.NextDueTick))
		for _, line := range f.EquipmentLines() {
			h.WriteUint64(line.AssetID)
			h.WriteUint64(line.Qty)
		}
		for _, dep := range f.LogisticsDeps() {
			h.WriteUint64(dep)
		}
	})
	w.PopulationCohorts.Each(func(c *military.PopulationCohort) {
		h.WriteUint64(c.ID)
		h.WriteUint64(c.Count)
		h.WriteBool(c.InMilitary)
	})
	w.MilitaryCohorts.Each(func(c *military.Cohort) {
		h.WriteUint64(c.ForceID)
		h.WriteUint64(c.PopulationCohortID)
		h.WriteUint64(c.Count)
	})
	w.Readiness.Each(func(s *military.ReadinessState) {
		h.WriteUint64(s.ID)
		h.WriteUint32(s.Level)
		h.WriteUint32(s.DegradationRate)
		h.WriteUint32(s.RecoveryRate)
		h.WriteUint64(uint64(s.LastUpdateAct))
		h.WriteUint64(uint64(s.NextDueTick))
	})
	w.Morale.Each(func(s *military.MoraleState) {
		h.WriteUint64(s.ID)
		h.WriteUint32(s.Level)
		h.WriteUint64(uint64(s.NextDueTick))
	})
	w.Enforcement.Each(func(e military.LegitimacyEntry) {
		h.WriteUint64(e.ScopeID)
		h.WriteUint32(e.Value)
	})
	w.Legitimacy.Each(func(e military.LegitimacyEntry) {
		h.WriteUint64(e.ScopeID)
		h.WriteUint32(e.Value)
	})
	h.WriteUint64(w.NextForceID())
}

func hashFactions(h *worldhash.Hash, factions *faction.Registry, sched *faction.Scheduler) {
	if factions == nil {
		return
	}
	factions.Each(func(f *faction.Faction) {
		h.WriteUint64(f.FactionID)
		h.WriteUint32(uint32(f.HomeScopeKind))
		h.WriteUint64(f.HomeScopeID)
		h.WriteUint32(uint32(f.PolicyKind))
		h.WriteUint32(uint32(f.PolicyFlags))
		h.WriteUint64(f.AISeed)
		for _, n := range f.KnownNodes {
			h.WriteUint64(n)
		}
		res, _ := factions.ResourceList(f.FactionID)
		for _, r := range res {
			h.WriteUint64(r.ResourceID)
			h.WriteInt64(r.Quantity)
		}
	})
	if sched == nil {
		return
	}
	for _, st := range sched.States() {
		h.WriteUint64(st.FactionID)
		h.WriteUint64(uint64(st.NextDecisionTick))
		h.WriteUint64(st.LastPlanID)
		h.WriteUint32(st.LastOutputCount)
		h.WriteUint32(uint32(st.LastReasonCode))
		h.WriteBool(st.LastBudgetHit)
	}
}

func hashEpistemic(h *worldhash.Hash, snap *epistemic.Snapshot) {
	if snap == nil {
		return
	}
	h.WriteUint64(uint64(snap.SnapshotTick()))
	for _, e := range snap.Entries() {
		h.WriteUint32(e.CapabilityID)
		h.WriteUint32(e.SubjectKind)
		h.WriteUint64(e.SubjectID)
		h.WriteUint32(uint32(e.State))
		h.WriteUint32(e.UncertaintyQ16)
		h.WriteUint32(e.LatencyTicks)
		h.WriteUint64(uint64(e.ObservedTick))
		h.WriteUint64(uint64(e.ExpiresTick))
		h.WriteUint32(e.SourceMask)
	}
}

func hashOpaqueChunks(h *worldhash.Hash, chunks map[[4]byte][]byte) {
	// An empty payload hashes the same as an absent tag: Save writes every
	// opaque tag whether or not the world holds a payload for it, so Load
	// cannot tell the two apart.
	tags := make([][4]byte, 0, len(chunks))
	for tag, payload := range chunks {
		if len(payload) == 0 {
			continue
		}
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return string(tags[i][:]) < string(tags[j][:]) })
	for _, tag := range tags {
		h.WriteBytes(tag[:])
		h.WriteBytes(chunks[tag])
	}
}
