package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/pkg/scheduler"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

type fakeDispatcher struct {
	due       tick.Tick
	processed []tick.Tick
}

func (f *fakeDispatcher) NextTick() tick.Tick { return f.due }

func (f *fakeDispatcher) ProcessUntil(target tick.Tick) error {
	f.processed = append(f.processed, target)
	f.due = tick.None
	return nil
}

func TestAdvanceOrdersByTickThenEventID(t *testing.T) {
	s := scheduler.New(4)
	var order []uint64

	mk := func(id uint64, due tick.Tick) *fakeDispatcher {
		d := &fakeDispatcher{due: due}
		_, err := s.Register(recordingDispatcher{d, id, &order}, id)
		require.NoError(t, err)
		return d
	}

	mk(3, 5)
	mk(1, 5)
	mk(2, 1)

	require.NoError(t, s.Advance(5))
	require.Equal(t, []uint64{2, 1, 3}, order)
}

type recordingDispatcher struct {
	inner *fakeDispatcher
	id    uint64
	order *[]uint64
}

func (r recordingDispatcher) NextTick() tick.Tick { return r.inner.NextTick() }

func (r recordingDispatcher) ProcessUntil(target tick.Tick) error {
	*r.order = append(*r.order, r.id)
	return r.inner.ProcessUntil(target)
}

func TestAdvanceStopsAtNoneOrFutureTicks(t *testing.T) {
	s := scheduler.New(2)
	future := &fakeDispatcher{due: 100}
	never := &fakeDispatcher{due: tick.None}
	_, err := s.Register(future, 1)
	require.NoError(t, err)
	_, err = s.Register(never, 2)
	require.NoError(t, err)

	require.NoError(t, s.Advance(10))
	require.Empty(t, future.processed)
	require.Empty(t, never.processed)
	require.Equal(t, tick.Tick(10), s.Now())
}

func TestRegisterFailsWhenFull(t *testing.T) {
	s := scheduler.New(1)
	_, err := s.Register(&fakeDispatcher{due: tick.None}, 1)
	require.NoError(t, err)
	_, err = s.Register(&fakeDispatcher{due: tick.None}, 2)
	require.ErrorIs(t, err, scheduler.ErrFull)
}

func TestRegisterRejectsNilDispatcher(t *testing.T) {
	s := scheduler.New(1)
	_, err := s.Register(nil, 1)
	require.ErrorIs(t, err, scheduler.ErrInvalid)
}
