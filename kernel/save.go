package kernel

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/dominium-sim/simkernel/domain/economy"
	"github.com/dominium-sim/simkernel/domain/epistemic"
	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/domain/military"
	"github.com/dominium-sim/simkernel/domain/production"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/infrastructure/save"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// SchemaVersion is the identity chunk's schema version this build writes
// and requires on load.
const SchemaVersion uint32 = 1

// SupportedFeatureEpoch is the feature epoch this build writes and the only
// one it will load. A save written under a different epoch requires a
// migration step this build doesn't perform, so Load refuses it outright
// rather than risk decoding a chunk layout it doesn't understand.
const SupportedFeatureEpoch uint32 = 1

// SaveOptions carries the identity fields a caller supplies for a new save;
// InstanceID/RunID are normally carried forward from the previous save of
// the same lineage rather than freshly generated on every write.
type SaveOptions struct {
	InstanceID save.Identity
	UPS        uint32
}

// Save serializes a driver's world into a DMSG container.
func Save(w io.Writer, d *Driver, opts SaveOptions) error {
	chunks := []save.Chunk{
		{Tag: save.TagCore, Version: 1, Payload: encodeCore(d)},
		{Tag: save.TagStations, Version: 1, Payload: encodeStations(d.World.Stations)},
		{Tag: save.TagRoutes, Version: 1, Payload: encodeRoutes(d.World.Routes)},
		{Tag: save.TagTransfers, Version: 1, Payload: encodeTransfers(d.World.Transfers)},
		{Tag: save.TagProduction, Version: 1, Payload: encodeProduction(d.World.Production)},
		{Tag: save.TagMacroEcon, Version: 1, Payload: encodeMacroEcon(d.World.Economy)},
		{Tag: save.TagMacroEvent, Version: 1, Payload: encodeMacroEvents(d.World.MacroEvents)},
		{Tag: save.TagFactions, Version: 1, Payload: encodeFactions(d.World.Factions)},
		{Tag: save.TagAIScheduler, Version: 1, Payload: encodeAIScheduler(d.World.AIScheduler)},
		{Tag: save.TagRNG, Version: 1, Payload: encodeRNG(d.World.Seed)},
	}
	for _, tag := range []([4]byte){
		save.TagOrbit, save.TagSovereign, save.TagMedia, save.TagWeather,
		save.TagAeroProps, save.TagAeroState, save.TagConstruct,
	} {
		chunks = append(chunks, save.Chunk{Tag: tag, Version: 1, Payload: d.World.OpaqueChunks[tag]})
	}

	id := opts.InstanceID
	id.SchemaVersion = SchemaVersion
	id.ContentHash = d.World.WorldHash()
	identityPayload := save.EncodeIdentity(id)
	chunks = append([]save.Chunk{{Tag: save.TagIdentity, Version: 1, Payload: identityPayload}}, chunks...)

	header := save.Header{
		Version:        save.Version,
		EndianSentinel: save.EndianSentinel,
		UPS:            opts.UPS,
		TickIndex:      uint64(d.Now()),
		Seed:           d.World.Seed,
		FeatureEpoch:   SupportedFeatureEpoch,
	}
	return save.Write(w, header, nil, chunks)
}

// Load parses a DMSG container and rebuilds a driver and world from it.
// wantUPS is the live runtime's configured ticks-per-second rate; the save's
// UPS must equal it exactly (a zero or mismatched UPS is refused, matching
// the runtime's own UPS gate rather than silently adopting the save's
// rate). Mandatory-chunk presence, the feature epoch, the identity schema
// version, and the content hash are all verified; a content-hash mismatch
// reports Format since it means the container was corrupted or hand-edited
// after being written.
func Load(r io.Reader, wantUPS uint32) (*Driver, error) {
	header, _, chunks, err := save.Read(r)
	if err != nil {
		return nil, err
	}
	if err := save.RequireMandatoryChunks(chunks); err != nil {
		return nil, err
	}
	if err := save.RequireChunkVersions(chunks); err != nil {
		return nil, err
	}
	if header.FeatureEpoch != SupportedFeatureEpoch {
		return nil, save.ErrFeatureEpochUnsupported(header.FeatureEpoch, SupportedFeatureEpoch)
	}
	if header.UPS == 0 || header.UPS != wantUPS {
		return nil, errors.New(errors.Err, "save UPS does not match runtime UPS").
			WithDetails("save_ups", header.UPS).WithDetails("runtime_ups", wantUPS)
	}

	idPayload, _, _ := save.Find(chunks, save.TagIdentity)
	id, err := save.DecodeIdentity(idPayload, SchemaVersion)
	if err != nil {
		return nil, err
	}

	world := NewWorld(header.Seed)

	corePayload, _, _ := save.Find(chunks, save.TagCore)
	if err := decodeCore(corePayload, world); err != nil {
		return nil, asFormat(err)
	}
	if p, _, ok := save.Find(chunks, save.TagStations); ok {
		if err := decodeStations(p, world.Stations); err != nil {
			return nil, asFormat(err)
		}
	}
	if p, _, ok := save.Find(chunks, save.TagRoutes); ok {
		if err := decodeRoutes(p, world.Routes); err != nil {
			return nil, asFormat(err)
		}
	}
	if p, _, ok := save.Find(chunks, save.TagTransfers); ok {
		if err := decodeTransfers(p, world.Transfers); err != nil {
			return nil, asFormat(err)
		}
	}
	for _, rec := range world.Transfers.Pending() {
		if uint64(rec.ArrivalTick) <= header.TickIndex || rec.StartTick >= rec.ArrivalTick {
			return nil, errors.New(errors.Format, "in-flight transfer arrival tick not in the future").
				WithDetails("transfer_id", rec.TransferID).WithDetails("arrival_tick", uint64(rec.ArrivalTick))
		}
	}
	if p, _, ok := save.Find(chunks, save.TagProduction); ok {
		if err := decodeProduction(p, world.Production); err != nil {
			return nil, asFormat(err)
		}
	}
	if p, _, ok := save.Find(chunks, save.TagMacroEcon); ok {
		if err := decodeMacroEcon(p, world.Economy); err != nil {
			return nil, asFormat(err)
		}
	}
	if p, _, ok := save.Find(chunks, save.TagMacroEvent); ok {
		if err := decodeMacroEvents(p, world.MacroEvents); err != nil {
			return nil, asFormat(err)
		}
	}
	if p, _, ok := save.Find(chunks, save.TagFactions); ok {
		if err := decodeFactions(p, world.Factions); err != nil {
			return nil, asFormat(err)
		}
	}

	for _, tag := range []([4]byte){
		save.TagOrbit, save.TagSovereign, save.TagMedia, save.TagWeather,
		save.TagAeroProps, save.TagAeroState, save.TagConstruct,
	} {
		if p, _, ok := save.Find(chunks, tag); ok {
			world.OpaqueChunks[tag] = append([]byte(nil), p...)
		}
	}

	d := NewDriver(world, tick.Tick(header.TickIndex), header.UPS)

	if p, _, ok := save.Find(chunks, save.TagAIScheduler); ok {
		sched, err := decodeAIScheduler(p, world.Factions)
		if err != nil {
			return nil, err
		}
		world.AIScheduler = sched
	}

	if id.ContentHash != world.WorldHash() {
		return nil, errors.New(errors.Format, "save content hash mismatch")
	}

	return d, nil
}

// asFormat re-kinds any reapply failure (duplicate id, out-of-order id,
// overflow, insufficient inventory) as Format: a chunk whose payload cannot
// be reapplied through the normal mutation invariants is a malformed save,
// whatever the inner subsystem called the violation.
func asFormat(err error) error {
	if err == nil || errors.Is(err, errors.Format) || errors.Is(err, errors.Migration) {
		return err
	}
	return errors.Wrap(errors.Format, "chunk payload violates reload invariants", err)
}

func encodeRNG(seed uint64) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, seed)
	return buf.Bytes()
}

// encodeCore carries the run-level scalars with no dedicated chunk of their
// own: the current tick index is already in the container header, so CORE
// carries the military world (its auto-assignment counter, forces, cohorts,
// readiness and morale state with pending events, and enforcement and
// legitimacy tables) and the epistemic snapshot. CORE is the
// subsystem-defined world body blob,
// opaque to the container framing; this build's domain owns its content,
// the save package only frames it.
func encodeCore(d *Driver) []byte {
	var buf bytes.Buffer
	writeU64(&buf, d.World.Military.NextForceID())
	encodeMilitary(&buf, d.World.Military)
	encodeEpistemic(&buf, d.World.Epistemic)
	return buf.Bytes()
}

func decodeCore(payload []byte, world *World) error {
	r := bytes.NewReader(payload)
	nextForceID, err := readU64(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed core chunk", err)
	}
	world.Military.LoadNextForceID(nextForceID)
	if err := decodeMilitary(r, world.Military); err != nil {
		return err
	}
	return decodeEpistemic(r, world.Epistemic)
}

// --- stations / routes / transfers / production -----------------------

func encodeStations(stations *logistics.StationSet) []byte {
	var buf bytes.Buffer
	var count uint32
	stations.Each(func(*logistics.Station) { count++ })
	writeU32(&buf, count)
	stations.Each(func(s *logistics.Station) {
		writeU64(&buf, s.ID)
		writeU64(&buf, s.BodyID)
		writeU64(&buf, s.FrameID)
		inv := s.Inventory()
		writeU32(&buf, uint32(len(inv)))
		for _, e := range inv {
			writeU64(&buf, e.ResourceID)
			writeU64(&buf, e.Quantity)
		}
	})
	return buf.Bytes()
}

func decodeStations(payload []byte, stations *logistics.StationSet) error {
	r := bytes.NewReader(payload)
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed stations chunk", err)
	}
	for i := uint32(0); i < count; i++ {
		id, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed station entry", err)
		}
		bodyID, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed station entry", err)
		}
		frameID, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed station entry", err)
		}
		lineCount, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed station entry", err)
		}
		st := logistics.NewStation(id, 0)
		st.BodyID, st.FrameID = bodyID, frameID
		for j := uint32(0); j < lineCount; j++ {
			resource, err := readU64(r)
			if err != nil {
				return errors.Wrap(errors.Format, "malformed station inventory line", err)
			}
			qty, err := readU64(r)
			if err != nil {
				return errors.Wrap(errors.Format, "malformed station inventory line", err)
			}
			if err := st.Add(resource, qty); err != nil {
				return err
			}
		}
		if err := stations.Register(st); err != nil {
			return err
		}
	}
	return nil
}

func encodeRoutes(routes *logistics.RouteGraph) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(routes.Count()))
	routes.Each(func(r logistics.Route) {
		writeU64(&buf, r.ID)
		writeU64(&buf, r.SrcStationID)
		writeU64(&buf, r.DstStationID)
		writeU64(&buf, r.DurationTicks)
		writeU64(&buf, r.CapacityUnits)
	})
	return buf.Bytes()
}

func decodeRoutes(payload []byte, routes *logistics.RouteGraph) error {
	r := bytes.NewReader(payload)
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed routes chunk", err)
	}
	for i := uint32(0); i < count; i++ {
		var route logistics.Route
		var err error
		if route.ID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed route entry", err)
		}
		if route.SrcStationID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed route entry", err)
		}
		if route.DstStationID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed route entry", err)
		}
		if route.DurationTicks, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed route entry", err)
		}
		if route.CapacityUnits, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed route entry", err)
		}
		if err := routes.Register(route); err != nil {
			return err
		}
	}
	return nil
}

func encodeTransfers(sched *logistics.TransferScheduler) []byte {
	var buf bytes.Buffer
	writeU64(&buf, sched.NextID())
	pending := sched.Pending()
	writeU32(&buf, uint32(len(pending)))
	for _, rec := range pending {
		writeU64(&buf, rec.TransferID)
		writeU64(&buf, rec.RouteID)
		writeU64(&buf, uint64(rec.StartTick))
		writeU64(&buf, uint64(rec.ArrivalTick))
		writeU32(&buf, uint32(len(rec.Entries)))
		for _, e := range rec.Entries {
			writeU64(&buf, e.ResourceID)
			writeU64(&buf, e.Quantity)
		}
	}
	return buf.Bytes()
}

func decodeTransfers(payload []byte, sched *logistics.TransferScheduler) error {
	r := bytes.NewReader(payload)
	nextID, err := readU64(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed transfers chunk", err)
	}
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed transfers chunk", err)
	}
	records := make([]logistics.TransferRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var rec logistics.TransferRecord
		var startTick, arrivalTick uint64
		var entryCount uint32
		if rec.TransferID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed transfer record", err)
		}
		if rec.RouteID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed transfer record", err)
		}
		if startTick, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed transfer record", err)
		}
		if arrivalTick, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed transfer record", err)
		}
		rec.StartTick, rec.ArrivalTick = tick.Tick(startTick), tick.Tick(arrivalTick)
		if entryCount, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed transfer record", err)
		}
		for j := uint32(0); j < entryCount; j++ {
			var e logistics.TransferEntry
			if e.ResourceID, err = readU64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed transfer entry", err)
			}
			if e.Quantity, err = readU64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed transfer entry", err)
			}
			rec.Entries = append(rec.Entries, e)
			rec.TotalUnits += e.Quantity
		}
		records = append(records, rec)
	}
	sched.LoadState(records, nextID)
	return nil
}

func encodeProduction(engine *production.Engine) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(engine.LastTick()))
	var rules []production.Rule
	engine.Each(func(r production.Rule) { rules = append(rules, r) })
	writeU32(&buf, uint32(len(rules)))
	for _, r := range rules {
		writeU64(&buf, r.RuleID)
		writeU64(&buf, r.StationID)
		writeU64(&buf, r.ResourceID)
		writeI64(&buf, r.DeltaPerPeriod)
		writeU64(&buf, r.PeriodTicks)
	}
	return buf.Bytes()
}

func decodeProduction(payload []byte, engine *production.Engine) error {
	r := bytes.NewReader(payload)
	lastTick, err := readU64(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed production chunk", err)
	}
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed production chunk", err)
	}
	for i := uint32(0); i < count; i++ {
		var rule production.Rule
		var err error
		if rule.RuleID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed production rule", err)
		}
		if rule.StationID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed production rule", err)
		}
		if rule.ResourceID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed production rule", err)
		}
		if rule.DeltaPerPeriod, err = readI64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed production rule", err)
		}
		if rule.PeriodTicks, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed production rule", err)
		}
		if err := engine.Register(rule); err != nil {
			return err
		}
	}
	engine.SetLastTick(tick.Tick(lastTick))
	return nil
}

// --- macro economy / macro events --------------------------------------

func encodeMacroEcon(econ *economy.Economy) []byte {
	var buf bytes.Buffer
	var scopes []economy.ScopeView
	econ.Each(func(v economy.ScopeView) { scopes = append(scopes, v) })
	writeU32(&buf, uint32(len(scopes)))
	for _, v := range scopes {
		writeU32(&buf, uint32(v.Kind))
		writeU64(&buf, v.ID)
		writeU32(&buf, v.Flags)
		writeU32(&buf, uint32(len(v.Production)))
		for _, e := range v.Production {
			writeU64(&buf, e.ResourceID)
			writeI64(&buf, e.RatePerTick)
		}
		writeU32(&buf, uint32(len(v.Demand)))
		for _, e := range v.Demand {
			writeU64(&buf, e.ResourceID)
			writeI64(&buf, e.RatePerTick)
		}
		writeU32(&buf, uint32(len(v.Stockpile)))
		for _, e := range v.Stockpile {
			writeU64(&buf, e.ResourceID)
			writeI64(&buf, e.Quantity)
		}
	}
	return buf.Bytes()
}

func decodeMacroEcon(payload []byte, econ *economy.Economy) error {
	r := bytes.NewReader(payload)
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed macro economy chunk", err)
	}
	for i := uint32(0); i < count; i++ {
		var v economy.ScopeView
		kind, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed economy scope", err)
		}
		v.Kind = economy.ScopeKind(kind)
		if v.ID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed economy scope", err)
		}
		if v.Flags, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed economy scope", err)
		}
		if v.Production, err = readRateEntries(r); err != nil {
			return err
		}
		if v.Demand, err = readRateEntries(r); err != nil {
			return err
		}
		if v.Stockpile, err = readStockEntries(r); err != nil {
			return err
		}
		econ.LoadScope(v)
	}
	return nil
}

func readRateEntries(r *bytes.Reader) ([]economy.RateEntry, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(errors.Format, "malformed rate entry list", err)
	}
	out := make([]economy.RateEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e economy.RateEntry
		if e.ResourceID, err = readU64(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed rate entry", err)
		}
		if e.RatePerTick, err = readI64(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed rate entry", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func readStockEntries(r *bytes.Reader) ([]economy.StockEntry, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(errors.Format, "malformed stock entry list", err)
	}
	out := make([]economy.StockEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e economy.StockEntry
		if e.ResourceID, err = readU64(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed stock entry", err)
		}
		if e.Quantity, err = readI64(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed stock entry", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func encodeMacroEvents(sched *economy.EventScheduler) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(sched.LastTick()))
	pending := sched.Pending()
	writeU32(&buf, uint32(len(pending)))
	for _, e := range pending {
		writeU64(&buf, e.EventID)
		writeU32(&buf, uint32(e.ScopeKind))
		writeU64(&buf, e.ScopeID)
		writeU64(&buf, uint64(e.TriggerTick))
		writeU32(&buf, uint32(len(e.Effects)))
		for _, eff := range e.Effects {
			writeU64(&buf, eff.ResourceID)
			writeI64(&buf, eff.ProductionDelta)
			writeI64(&buf, eff.DemandDelta)
			writeU32(&buf, eff.FlagsSet)
			writeU32(&buf, eff.FlagsClear)
		}
	}
	return buf.Bytes()
}

func decodeMacroEvents(payload []byte, sched *economy.EventScheduler) error {
	r := bytes.NewReader(payload)
	lastTick, err := readU64(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed macro events chunk", err)
	}
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed macro events chunk", err)
	}
	for i := uint32(0); i < count; i++ {
		var desc economy.EventDesc
		var kind uint32
		if desc.EventID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed macro event", err)
		}
		if kind, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed macro event", err)
		}
		desc.ScopeKind = economy.ScopeKind(kind)
		if desc.ScopeID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed macro event", err)
		}
		var trigger uint64
		if trigger, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed macro event", err)
		}
		// A fresh scheduler's Schedule has no last-tick yet, so an event
		// triggering at or before the saved cursor position would slip
		// through it and then be silently skipped by the Seek below;
		// reject it here instead, since the encoder only ever serializes
		// events still ahead of the cursor.
		if trigger <= lastTick {
			return errors.New(errors.Format, "macro event trigger at or before saved cursor tick").
				WithDetails("event_id", desc.EventID).WithDetails("trigger_tick", trigger).WithDetails("last_tick", lastTick)
		}
		desc.TriggerTick = tick.Tick(trigger)
		effCount, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed macro event", err)
		}
		for j := uint32(0); j < effCount; j++ {
			var eff economy.EventEffect
			if eff.ResourceID, err = readU64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed macro event effect", err)
			}
			if eff.ProductionDelta, err = readI64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed macro event effect", err)
			}
			if eff.DemandDelta, err = readI64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed macro event effect", err)
			}
			if eff.FlagsSet, err = readU32(r); err != nil {
				return errors.Wrap(errors.Format, "malformed macro event effect", err)
			}
			if eff.FlagsClear, err = readU32(r); err != nil {
				return errors.Wrap(errors.Format, "malformed macro event effect", err)
			}
			desc.Effects = append(desc.Effects, eff)
		}
		if err := sched.Schedule(desc); err != nil {
			return err
		}
	}
	// Seeking to lastTick restores the cursor/last-processed-tick position
	// without replaying already-applied effects, which the chunk never
	// serialized in the first place (Pending only returns what's left).
	sched.Seek(tick.Tick(lastTick))
	return nil
}

// --- military (embedded in CORE) ---------------------------------------

func encodeMilitary(buf *bytes.Buffer, w *military.World) {
	var forces []*military.Force
	w.Forces.Each(func(f *military.Force) { forces = append(forces, f) })
	writeU32(buf, uint32(len(forces)))
	for _, f := range forces {
		writeU64(buf, f.ID)
		writeU32(buf, f.Domain)
		writeU32(buf, uint32(f.Status))
		writeU64(buf, f.PopulationCohortID)
		writeU64(buf, f.ReadinessID)
		writeU64(buf, f.MoraleID)
		writeU64(buf, f.EquipmentStoreID)
		writeU64(buf, f.LogisticsStoreID)
		writeU64(buf, uint64(f.NextDueTick))
		lines := f.EquipmentLines()
		writeU32(buf, uint32(len(lines)))
		for _, l := range lines {
			writeU64(buf, l.AssetID)
			writeU64(buf, l.Qty)
		}
		deps := f.LogisticsDeps()
		writeU32(buf, uint32(len(deps)))
		for _, d := range deps {
			writeU64(buf, d)
		}
	}

	var cohorts []*military.PopulationCohort
	w.PopulationCohorts.Each(func(c *military.PopulationCohort) { cohorts = append(cohorts, c) })
	writeU32(buf, uint32(len(cohorts)))
	for _, c := range cohorts {
		writeU64(buf, c.ID)
		writeU64(buf, c.Count)
		writeBool(buf, c.InMilitary)
	}

	var military_ []*military.Cohort
	w.MilitaryCohorts.Each(func(c *military.Cohort) { military_ = append(military_, c) })
	writeU32(buf, uint32(len(military_)))
	for _, c := range military_ {
		writeU64(buf, c.ForceID)
		writeU64(buf, c.PopulationCohortID)
		writeU64(buf, c.Count)
	}

	var readiness []*military.ReadinessState
	w.Readiness.Each(func(s *military.ReadinessState) { readiness = append(readiness, s) })
	writeU32(buf, uint32(len(readiness)))
	for _, s := range readiness {
		writeU64(buf, s.ID)
		writeU32(buf, s.Level)
		writeU32(buf, s.DegradationRate)
		writeU32(buf, s.RecoveryRate)
		writeU64(buf, uint64(s.LastUpdateAct))
	}
	readinessEvents := w.Readiness.PendingEvents()
	writeU64(buf, w.Readiness.NextEventID())
	writeU32(buf, uint32(len(readinessEvents)))
	for _, e := range readinessEvents {
		writeU64(buf, e.SubjectID)
		writeU32(buf, uint32(e.Kind))
		writeI64(buf, int64(e.Delta))
		writeU64(buf, uint64(e.TriggerAct))
		writeU64(buf, e.SupplyStoreID)
		writeU64(buf, e.SupplyAssetID)
		writeU64(buf, e.SupplyQty)
		writeI64(buf, int64(e.ShortageDelta))
	}

	var morale []*military.MoraleState
	w.Morale.Each(func(s *military.MoraleState) { morale = append(morale, s) })
	writeU32(buf, uint32(len(morale)))
	for _, s := range morale {
		writeU64(buf, s.ID)
		writeU32(buf, s.Level)
	}
	moraleEvents := w.Morale.PendingEvents()
	writeU64(buf, w.Morale.NextEventID())
	writeU32(buf, uint32(len(moraleEvents)))
	for _, e := range moraleEvents {
		writeU64(buf, e.SubjectID)
		writeU32(buf, uint32(e.Kind))
		writeI64(buf, int64(e.Delta))
		writeU64(buf, uint64(e.TriggerAct))
		writeU64(buf, e.LegitimacyID)
		writeU32(buf, e.LegitimacyMin)
	}

	var enforcement, legitimacy []military.LegitimacyEntry
	w.Enforcement.Each(func(e military.LegitimacyEntry) { enforcement = append(enforcement, e) })
	w.Legitimacy.Each(func(e military.LegitimacyEntry) { legitimacy = append(legitimacy, e) })
	writeU32(buf, uint32(len(enforcement)))
	for _, e := range enforcement {
		writeU64(buf, e.ScopeID)
		writeU32(buf, e.Value)
	}
	writeU32(buf, uint32(len(legitimacy)))
	for _, e := range legitimacy {
		writeU64(buf, e.ScopeID)
		writeU32(buf, e.Value)
	}
}

func decodeMilitary(r *bytes.Reader, w *military.World) error {
	forceCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed military forces", err)
	}
	for i := uint32(0); i < forceCount; i++ {
		f := &military.Force{}
		if f.ID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		if f.Domain, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		status, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		f.Status = military.Status(status)
		if f.PopulationCohortID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		if f.ReadinessID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		if f.MoraleID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		if f.EquipmentStoreID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		if f.LogisticsStoreID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		nextDue, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		f.NextDueTick = tick.Tick(nextDue)
		lineCount, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		lines := make([]military.EquipmentLine, 0, lineCount)
		for j := uint32(0); j < lineCount; j++ {
			var l military.EquipmentLine
			if l.AssetID, err = readU64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed equipment line", err)
			}
			if l.Qty, err = readU64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed equipment line", err)
			}
			lines = append(lines, l)
		}
		f.LoadEquipmentLines(lines)
		depCount, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed force", err)
		}
		deps := make([]uint64, 0, depCount)
		for j := uint32(0); j < depCount; j++ {
			d, err := readU64(r)
			if err != nil {
				return errors.Wrap(errors.Format, "malformed logistics dependency", err)
			}
			deps = append(deps, d)
		}
		f.LoadLogisticsDeps(deps)
		if err := w.Forces.Insert(f); err != nil {
			return err
		}
	}

	cohortCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed population cohorts", err)
	}
	for i := uint32(0); i < cohortCount; i++ {
		c := &military.PopulationCohort{}
		if c.ID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed population cohort", err)
		}
		if c.Count, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed population cohort", err)
		}
		if c.InMilitary, err = readBool(r); err != nil {
			return errors.Wrap(errors.Format, "malformed population cohort", err)
		}
		if err := w.PopulationCohorts.Insert(c); err != nil {
			return err
		}
	}

	militaryCohortCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed military cohorts", err)
	}
	for i := uint32(0); i < militaryCohortCount; i++ {
		c := &military.Cohort{}
		if c.ForceID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed military cohort", err)
		}
		if c.PopulationCohortID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed military cohort", err)
		}
		if c.Count, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed military cohort", err)
		}
		if err := w.MilitaryCohorts.Insert(c); err != nil {
			return err
		}
	}

	readinessCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed readiness states", err)
	}
	for i := uint32(0); i < readinessCount; i++ {
		id, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness state", err)
		}
		level, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness state", err)
		}
		degradation, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness state", err)
		}
		recovery, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness state", err)
		}
		lastUpdate, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness state", err)
		}
		if err := w.Readiness.Register(id, level, degradation, recovery); err != nil {
			return err
		}
		if st, ok := w.Readiness.Find(id); ok {
			st.LastUpdateAct = tick.Tick(lastUpdate)
		}
	}
	nextReadinessEventID, err := readU64(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed readiness events", err)
	}
	readinessEventCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed readiness events", err)
	}
	readinessEvents := make([]military.PendingEventDesc, 0, readinessEventCount)
	for i := uint32(0); i < readinessEventCount; i++ {
		var d military.PendingEventDesc
		if d.SubjectID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		kind32, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		d.Kind = military.ReadinessEventKind(kind32)
		deltaSigned, err := readI64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		d.Delta = int32(deltaSigned)
		triggerAct, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		d.TriggerAct = tick.Tick(triggerAct)
		if d.SupplyStoreID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		if d.SupplyAssetID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		if d.SupplyQty, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		shortageSigned, err := readI64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed readiness event", err)
		}
		d.ShortageDelta = int32(shortageSigned)
		readinessEvents = append(readinessEvents, d)
	}
	if err := w.Readiness.LoadPendingEvents(readinessEvents, nextReadinessEventID); err != nil {
		return err
	}

	moraleCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed morale states", err)
	}
	for i := uint32(0); i < moraleCount; i++ {
		id, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed morale state", err)
		}
		level, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed morale state", err)
		}
		if err := w.Morale.Register(id, level); err != nil {
			return err
		}
	}
	nextMoraleEventID, err := readU64(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed morale events", err)
	}
	moraleEventCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed morale events", err)
	}
	moraleEvents := make([]military.MoralePendingEventDesc, 0, moraleEventCount)
	for i := uint32(0); i < moraleEventCount; i++ {
		var d military.MoralePendingEventDesc
		if d.SubjectID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed morale event", err)
		}
		kind32, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed morale event", err)
		}
		d.Kind = military.MoraleEventKind(kind32)
		deltaSigned, err := readI64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed morale event", err)
		}
		d.Delta = int32(deltaSigned)
		triggerAct, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed morale event", err)
		}
		d.TriggerAct = tick.Tick(triggerAct)
		if d.LegitimacyID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed morale event", err)
		}
		if d.LegitimacyMin, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed morale event", err)
		}
		moraleEvents = append(moraleEvents, d)
	}
	if err := w.Morale.LoadPendingEvents(moraleEvents, nextMoraleEventID); err != nil {
		return err
	}

	enforcementCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed enforcement legitimacy", err)
	}
	enforcement := make([]military.LegitimacyEntry, 0, enforcementCount)
	for i := uint32(0); i < enforcementCount; i++ {
		var e military.LegitimacyEntry
		if e.ScopeID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed legitimacy entry", err)
		}
		if e.Value, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed legitimacy entry", err)
		}
		enforcement = append(enforcement, e)
	}
	w.Enforcement.LoadEntries(enforcement)

	legitimacyCount, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed legitimacy", err)
	}
	legitimacy := make([]military.LegitimacyEntry, 0, legitimacyCount)
	for i := uint32(0); i < legitimacyCount; i++ {
		var e military.LegitimacyEntry
		if e.ScopeID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed legitimacy entry", err)
		}
		if e.Value, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed legitimacy entry", err)
		}
		legitimacy = append(legitimacy, e)
	}
	w.Legitimacy.LoadEntries(legitimacy)

	return nil
}

// --- epistemic (embedded in CORE) --------------------------------------

func encodeEpistemic(buf *bytes.Buffer, snap *epistemic.Snapshot) {
	writeU64(buf, uint64(snap.SnapshotTick()))
	entries := snap.Entries()
	writeU32(buf, uint32(len(entries)))
	for _, e := range entries {
		writeU32(buf, e.CapabilityID)
		writeU32(buf, e.SubjectKind)
		writeU64(buf, e.SubjectID)
		writeU32(buf, uint32(e.State))
		writeU32(buf, e.UncertaintyQ16)
		writeU32(buf, e.LatencyTicks)
		writeU64(buf, uint64(e.ObservedTick))
		writeU64(buf, uint64(e.ExpiresTick))
		writeU32(buf, e.SourceMask)
	}
}

func decodeEpistemic(r *bytes.Reader, snap *epistemic.Snapshot) error {
	snapshotTick, err := readU64(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed epistemic snapshot", err)
	}
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed epistemic snapshot", err)
	}
	entries := make([]epistemic.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e epistemic.Entry
		if e.CapabilityID, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		if e.SubjectKind, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		if e.SubjectID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		state, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		e.State = epistemic.State(state)
		if e.UncertaintyQ16, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		if e.LatencyTicks, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		observed, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		e.ObservedTick = tick.Tick(observed)
		expires, err := readU64(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		e.ExpiresTick = tick.Tick(expires)
		if e.SourceMask, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed epistemic entry", err)
		}
		entries = append(entries, e)
	}
	snap.LoadEntries(entries, tick.Tick(snapshotTick))
	return nil
}

// --- factions / AI scheduler --------------------------------------------

func encodeFactions(factions *faction.Registry) []byte {
	var buf bytes.Buffer
	var all []*faction.Faction
	factions.Each(func(f *faction.Faction) { all = append(all, f) })
	writeU32(&buf, uint32(len(all)))
	for _, f := range all {
		writeU64(&buf, f.FactionID)
		writeU32(&buf, uint32(f.HomeScopeKind))
		writeU64(&buf, f.HomeScopeID)
		writeU32(&buf, uint32(f.PolicyKind))
		writeU32(&buf, uint32(f.PolicyFlags))
		writeU64(&buf, f.AISeed)
		writeU32(&buf, uint32(len(f.KnownNodes)))
		for _, n := range f.KnownNodes {
			writeU64(&buf, n)
		}
		res, _ := factions.ResourceList(f.FactionID)
		writeU32(&buf, uint32(len(res)))
		for _, e := range res {
			writeU64(&buf, e.ResourceID)
			writeI64(&buf, e.Quantity)
		}
	}
	return buf.Bytes()
}

func decodeFactions(payload []byte, factions *faction.Registry) error {
	r := bytes.NewReader(payload)
	count, err := readU32(r)
	if err != nil {
		return errors.Wrap(errors.Format, "malformed factions chunk", err)
	}
	for i := uint32(0); i < count; i++ {
		var desc faction.Desc
		var kind uint32
		if desc.FactionID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed faction", err)
		}
		if kind, err = readU32(r); err != nil {
			return errors.Wrap(errors.Format, "malformed faction", err)
		}
		desc.HomeScopeKind = economy.ScopeKind(kind)
		if desc.HomeScopeID, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed faction", err)
		}
		policyKind, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed faction", err)
		}
		desc.PolicyKind = faction.PolicyKind(policyKind)
		policyFlags, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed faction", err)
		}
		desc.PolicyFlags = faction.PolicyFlags(policyFlags)
		if desc.AISeed, err = readU64(r); err != nil {
			return errors.Wrap(errors.Format, "malformed faction", err)
		}
		nodeCount, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed faction", err)
		}
		for j := uint32(0); j < nodeCount; j++ {
			node, err := readU64(r)
			if err != nil {
				return errors.Wrap(errors.Format, "malformed faction known node", err)
			}
			desc.KnownNodes = append(desc.KnownNodes, node)
		}
		if err := factions.Register(desc); err != nil {
			return err
		}
		resCount, err := readU32(r)
		if err != nil {
			return errors.Wrap(errors.Format, "malformed faction resources", err)
		}
		deltas := make([]faction.ResourceDelta, 0, resCount)
		for j := uint32(0); j < resCount; j++ {
			var resourceID uint64
			var qty int64
			if resourceID, err = readU64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed faction resource", err)
			}
			if qty, err = readI64(r); err != nil {
				return errors.Wrap(errors.Format, "malformed faction resource", err)
			}
			deltas = append(deltas, faction.ResourceDelta{ResourceID: resourceID, Delta: qty})
		}
		if len(deltas) > 0 {
			if err := factions.UpdateResources(desc.FactionID, deltas); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeAIScheduler(sched *faction.Scheduler) []byte {
	var buf bytes.Buffer
	if sched == nil {
		writeU32(&buf, 0)
		return buf.Bytes()
	}
	states := sched.States()
	writeU32(&buf, uint32(len(states)))
	for _, st := range states {
		writeU64(&buf, st.FactionID)
		writeU64(&buf, uint64(st.NextDecisionTick))
		writeU64(&buf, st.LastPlanID)
		writeU32(&buf, st.LastOutputCount)
		writeU32(&buf, uint32(st.LastReasonCode))
		writeBool(&buf, st.LastBudgetHit)
	}
	return buf.Bytes()
}

// decodeAIScheduler rebuilds a minimal Scheduler carrying only persisted
// per-faction state; a caller that wants live planners/sinks wires them
// separately via faction.NewScheduler and LoadStates. A chunk with no
// states (what Save writes for a nil scheduler) decodes to nil.
func decodeAIScheduler(payload []byte, factions *faction.Registry) (*faction.Scheduler, error) {
	r := bytes.NewReader(payload)
	count, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(errors.Format, "malformed AI scheduler chunk", err)
	}
	if count == 0 {
		return nil, nil
	}
	states := make([]faction.FactionState, 0, count)
	for i := uint32(0); i < count; i++ {
		var st faction.FactionState
		if st.FactionID, err = readU64(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed AI scheduler state", err)
		}
		nextDecision, err := readU64(r)
		if err != nil {
			return nil, errors.Wrap(errors.Format, "malformed AI scheduler state", err)
		}
		st.NextDecisionTick = tick.Tick(nextDecision)
		if st.LastPlanID, err = readU64(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed AI scheduler state", err)
		}
		if st.LastOutputCount, err = readU32(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed AI scheduler state", err)
		}
		reason, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(errors.Format, "malformed AI scheduler state", err)
		}
		st.LastReasonCode = faction.ReasonCode(reason)
		if st.LastBudgetHit, err = readBool(r); err != nil {
			return nil, errors.Wrap(errors.Format, "malformed AI scheduler state", err)
		}
		states = append(states, st)
	}
	sched := faction.NewScheduler(factions, faction.DefaultSchedulerConfig(), nil, nil, nil, nil, nil, nil)
	sched.LoadStates(states)
	return sched, nil
}

// --- low-level wire helpers ----------------------------------------------

func writeU32(buf *bytes.Buffer, v uint32) { _ = binary.Write(buf, binary.LittleEndian, v) }
func writeU64(buf *bytes.Buffer, v uint64) { _ = binary.Write(buf, binary.LittleEndian, v) }
func writeI64(buf *bytes.Buffer, v int64)  { _ = binary.Write(buf, binary.LittleEndian, v) }
func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU64(r *bytes.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readI64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}
