package kernel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/domain/economy"
	"github.com/dominium-sim/simkernel/domain/epistemic"
	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/domain/military"
	"github.com/dominium-sim/simkernel/domain/production"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/infrastructure/save"
)

// buildNonTrivialDriver constructs a driver whose world exercises every
// subsystem the save container and world hash cover: stations with
// inventory, a route, an in-flight transfer, a production rule, economy
// scopes with rates/stockpile, a pending macro event, a mobilized military
// force with a scheduled readiness event, a faction with a resource ledger,
// and an epistemic entry.
func buildNonTrivialDriver(t *testing.T) *Driver {
	t.Helper()
	world := NewWorld(99)

	srcStation := logistics.NewStation(1, 0)
	require.NoError(t, srcStation.Add(100, 500))
	dstStation := logistics.NewStation(2, 0)
	require.NoError(t, world.Stations.Register(srcStation))
	require.NoError(t, world.Stations.Register(dstStation))

	require.NoError(t, world.Routes.Register(logistics.Route{
		ID: 1, SrcStationID: 1, DstStationID: 2, DurationTicks: 3, CapacityUnits: 1000,
	}))

	_, err := world.Transfers.Schedule(world.Routes, world.Stations, 1,
		[]logistics.TransferEntry{{ResourceID: 100, Quantity: 50}}, 0)
	require.NoError(t, err)

	require.NoError(t, world.Production.Register(production.Rule{
		RuleID: 1, StationID: 2, ResourceID: 100, DeltaPerPeriod: 10, PeriodTicks: 2,
	}))

	require.NoError(t, world.Economy.RegisterSystem(1))
	require.NoError(t, world.Economy.RateSet(economy.ScopeSystem, 1, 100, 20, 5))
	require.NoError(t, world.Economy.StockpileSet(economy.ScopeSystem, 1, 100, 1000))

	require.NoError(t, world.MacroEvents.Schedule(economy.EventDesc{
		EventID: 1, ScopeKind: economy.ScopeSystem, ScopeID: 1, TriggerTick: 10,
		Effects: []economy.EventEffect{{ResourceID: 100, ProductionDelta: 5}},
	}))

	require.NoError(t, world.Military.PopulationCohorts.Insert(&military.PopulationCohort{ID: 1, Count: 1000}))
	require.NoError(t, world.Military.EquipmentStores.Register(logistics.NewStation(1, 0)))
	force, refusal, err := world.Military.Apply(military.MobilizationRequest{
		Domain:                1,
		PopulationCohortID:    1,
		PopulationCount:       200,
		EquipmentStoreID:      1,
		LogisticsStoreID:      1,
		SupplyAssetID:         100,
		SupplyQty:             10,
		ScheduleReadinessRamp: true,
		ReadinessRampTrigger:  5,
		ReadinessRampDelta:    -50,
	})
	require.NoError(t, err)
	require.Equal(t, errors.RefusalNone, refusal)
	require.NotZero(t, force.ID)

	require.NoError(t, world.Factions.Register(faction.Desc{
		FactionID: 1, HomeScopeKind: economy.ScopeSystem, HomeScopeID: 1,
		PolicyKind: faction.PolicyExpansion, AISeed: 7, KnownNodes: []uint64{1, 2},
	}))
	require.NoError(t, world.Factions.UpdateResources(1, []faction.ResourceDelta{{ResourceID: 100, Delta: 30}}))

	require.NoError(t, world.Epistemic.Add(epistemic.Entry{
		CapabilityID: uint32(epistemic.CapabilityInventorySummary),
		SubjectKind:  1,
		SubjectID:    1,
		State:        epistemic.Known,
		ObservedTick: 0,
		ExpiresTick:  epistemic.ExpiresNever,
	}))
	world.Epistemic.Finalize(0)

	return NewDriver(world, 0, 10)
}

func saveOptionsFor(d *Driver) SaveOptions {
	return SaveOptions{
		InstanceID: save.Identity{SchemaVersion: SchemaVersion, InstanceID: save.NewInstanceID()},
		UPS:        d.UPS(),
	}
}

// TestSaveLoadRoundTripPreservesWorldHash is the save round-trip law:
// world_hash(K) must equal world_hash(K') immediately after reload, and the
// two drivers must still agree after one more tick each.
func TestSaveLoadRoundTripPreservesWorldHash(t *testing.T) {
	driver := buildNonTrivialDriver(t)
	wantHash := driver.World.WorldHash()

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, driver, saveOptionsFor(driver)))

	loaded, err := Load(bytes.NewReader(buf.Bytes()), driver.UPS())
	require.NoError(t, err)

	require.Equal(t, wantHash, loaded.World.WorldHash())
	require.Equal(t, driver.Now(), loaded.Now())

	require.NoError(t, driver.Tick())
	require.NoError(t, loaded.Tick())
	require.Equal(t, driver.World.WorldHash(), loaded.World.WorldHash())
}

// TestLoadRejectsUnsupportedFeatureEpoch exercises the migration gate: a
// header carrying any epoch other than SupportedFeatureEpoch must fail with
// a Migration-kind error rather than be decoded.
func TestLoadRejectsUnsupportedFeatureEpoch(t *testing.T) {
	driver := buildNonTrivialDriver(t)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, driver, saveOptionsFor(driver)))

	// Header layout (see infrastructure/save.Write): magic(4) + version(4) +
	// endian_sentinel(4) + ups(4) + tick_index(8) + seed(8) + feature_epoch(4).
	corrupted := append([]byte(nil), buf.Bytes()...)
	const featureEpochOffset = 4 + 4 + 4 + 4 + 8 + 8
	copy(corrupted[featureEpochOffset:featureEpochOffset+4], u32LE(SupportedFeatureEpoch+1))

	_, err := Load(bytes.NewReader(corrupted), driver.UPS())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.Migration))
}

// TestLoadRejectsUPSMismatch exercises the UPS-equality gate: a save
// whose header UPS doesn't equal the live runtime's configured rate must be
// refused outright.
func TestLoadRejectsUPSMismatch(t *testing.T) {
	driver := buildNonTrivialDriver(t)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, driver, saveOptionsFor(driver)))

	_, err := Load(bytes.NewReader(buf.Bytes()), driver.UPS()+1)
	require.Error(t, err)
}

func u32LE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// TestLoadRejectsContainerVersionMismatch rewrites the header version field
// and expects the Migration gate, per the version-equality contract.
func TestLoadRejectsContainerVersionMismatch(t *testing.T) {
	driver := buildNonTrivialDriver(t)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, driver, saveOptionsFor(driver)))

	corrupted := append([]byte(nil), buf.Bytes()...)
	const versionOffset = 4 // directly after the magic
	copy(corrupted[versionOffset:versionOffset+4], u32LE(save.Version-1))

	_, err := Load(bytes.NewReader(corrupted), driver.UPS())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.Migration))
}

// TestLoadRejectsUnknownChunk appends a chunk with an unrecognized tag and
// expects Format: a container carrying state this build cannot restore must
// not load partially.
func TestLoadRejectsUnknownChunk(t *testing.T) {
	driver := buildNonTrivialDriver(t)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, driver, saveOptionsFor(driver)))

	extended := append([]byte(nil), buf.Bytes()...)
	extended = append(extended, 'X', 'X', 'X', 'X')
	extended = append(extended, u32LE(1)...) // chunk version
	extended = append(extended, u32LE(0)...) // empty payload

	_, err := Load(bytes.NewReader(extended), driver.UPS())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.Format))
}

// TestLoadRejectsNewerChunkVersion bumps one chunk's version past what this
// build understands and expects Migration.
func TestLoadRejectsNewerChunkVersion(t *testing.T) {
	driver := buildNonTrivialDriver(t)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, driver, saveOptionsFor(driver)))

	corrupted := append([]byte(nil), buf.Bytes()...)
	i := bytes.Index(corrupted, []byte("STAT"))
	require.Positive(t, i)
	copy(corrupted[i+4:i+8], u32LE(save.MaxChunkVersion+1))

	_, err := Load(bytes.NewReader(corrupted), driver.UPS())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.Migration))
}
