package logistics_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

func TestStationAddRemove(t *testing.T) {
	s := logistics.NewStation(1, 0)
	require.NoError(t, s.Add(10, 5))
	require.NoError(t, s.Add(10, 3))
	require.Equal(t, uint64(8), s.Quantity(10))

	require.NoError(t, s.Remove(10, 8))
	require.Equal(t, uint64(0), s.Quantity(10))
	require.Empty(t, s.Inventory())
}

func TestStationRemoveInsufficient(t *testing.T) {
	s := logistics.NewStation(1, 0)
	require.NoError(t, s.Add(10, 2))
	err := s.Remove(10, 3)
	require.True(t, errors.Is(err, errors.Insufficient))
}

func TestStationInventorySortedByResourceID(t *testing.T) {
	s := logistics.NewStation(1, 0)
	require.NoError(t, s.Add(30, 1))
	require.NoError(t, s.Add(10, 1))
	require.NoError(t, s.Add(20, 1))

	var ids []uint64
	for _, e := range s.Inventory() {
		ids = append(ids, e.ResourceID)
	}
	require.Equal(t, []uint64{10, 20, 30}, ids)
}

func TestRouteGraphRejectsInvalid(t *testing.T) {
	g := logistics.NewRouteGraph(0)
	require.NoError(t, g.Register(logistics.Route{ID: 1, SrcStationID: 1, DstStationID: 2, DurationTicks: 10, CapacityUnits: 100}))

	err := g.Register(logistics.Route{ID: 1, SrcStationID: 1, DstStationID: 2, DurationTicks: 10, CapacityUnits: 100})
	require.True(t, errors.Is(err, errors.DuplicateID))

	err = g.Register(logistics.Route{ID: 2, SrcStationID: 1, DstStationID: 2, DurationTicks: 0, CapacityUnits: 100})
	require.True(t, errors.Is(err, errors.InvalidData))

	err = g.Register(logistics.Route{ID: 3, SrcStationID: 1, DstStationID: 2, DurationTicks: 10, CapacityUnits: 0})
	require.True(t, errors.Is(err, errors.InvalidData))
}

func newWorld(t *testing.T) (*logistics.StationSet, *logistics.RouteGraph) {
	t.Helper()
	stations := logistics.NewStationSet(0)
	src := logistics.NewStation(1, 0)
	dst := logistics.NewStation(2, 0)
	require.NoError(t, src.Add(100, 50))
	require.NoError(t, stations.Register(src))
	require.NoError(t, stations.Register(dst))

	routes := logistics.NewRouteGraph(0)
	require.NoError(t, routes.Register(logistics.Route{ID: 1, SrcStationID: 1, DstStationID: 2, DurationTicks: 5, CapacityUnits: 40}))
	return stations, routes
}

func TestTransferScheduleMergesAndDeductsAtomically(t *testing.T) {
	stations, routes := newWorld(t)
	sched := logistics.NewTransferScheduler()

	id, err := sched.Schedule(routes, stations, 1, []logistics.TransferEntry{
		{ResourceID: 100, Quantity: 10},
		{ResourceID: 100, Quantity: 15},
	}, tick.Tick(3))
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	src, _ := stations.Get(1)
	require.Equal(t, uint64(25), src.Quantity(100))

	pending := sched.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, tick.Tick(8), pending[0].ArrivalTick)
	require.Equal(t, uint64(25), pending[0].TotalUnits)
}

func TestTransferScheduleRejectsOverCapacityWithoutSideEffects(t *testing.T) {
	stations, routes := newWorld(t)
	sched := logistics.NewTransferScheduler()

	_, err := sched.Schedule(routes, stations, 1, []logistics.TransferEntry{{ResourceID: 100, Quantity: 41}}, tick.Tick(0))
	require.True(t, errors.Is(err, errors.Insufficient))

	src, _ := stations.Get(1)
	require.Equal(t, uint64(50), src.Quantity(100))
}

func TestTransferScheduleRejectsInsufficientSourceWithoutSideEffects(t *testing.T) {
	stations, routes := newWorld(t)
	sched := logistics.NewTransferScheduler()

	_, err := sched.Schedule(routes, stations, 1, []logistics.TransferEntry{{ResourceID: 100, Quantity: 30}, {ResourceID: 200, Quantity: 1}}, tick.Tick(0))
	require.True(t, errors.Is(err, errors.Insufficient))

	src, _ := stations.Get(1)
	require.Equal(t, uint64(50), src.Quantity(100))
	require.Equal(t, uint64(0), src.Quantity(200))
}

func TestTransferUpdateBatchInvariance(t *testing.T) {
	stationsA, routesA := newWorld(t)
	schedA := logistics.NewTransferScheduler()
	_, err := schedA.Schedule(routesA, stationsA, 1, []logistics.TransferEntry{{ResourceID: 100, Quantity: 10}}, tick.Tick(0))
	require.NoError(t, err)
	require.NoError(t, schedA.Update(routesA, stationsA, tick.Tick(5)))

	stationsB, routesB := newWorld(t)
	schedB := logistics.NewTransferScheduler()
	_, err = schedB.Schedule(routesB, stationsB, 1, []logistics.TransferEntry{{ResourceID: 100, Quantity: 10}}, tick.Tick(0))
	require.NoError(t, err)
	for now := tick.Tick(1); now <= 5; now++ {
		require.NoError(t, schedB.Update(routesB, stationsB, now))
	}

	dstA, _ := stationsA.Get(2)
	dstB, _ := stationsB.Get(2)
	require.Equal(t, dstA.Quantity(100), dstB.Quantity(100))
	require.Empty(t, schedA.Pending())
	require.Empty(t, schedB.Pending())
}
