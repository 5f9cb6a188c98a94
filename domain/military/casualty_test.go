package military_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominium-sim/simkernel/domain/military"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

func TestCasualtyGenerateConsumesCursorInOrder(t *testing.T) {
	source := &military.CasualtySource{ForceID: 1, BodyIDs: []uint64{11, 12, 13, 14}}
	var seen []uint64
	handler := func(bodyID uint64, req military.CasualtyRequest) (uint64, error) {
		seen = append(seen, bodyID)
		return bodyID + 1000, nil
	}

	ids, produced, err := military.Generate(source, 2, military.CasualtyRequest{ActTime: tick.Tick(5)}, handler, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(2), produced)
	require.Equal(t, []uint64{1011, 1012}, ids)
	require.Equal(t, []uint64{11, 12}, seen)
	require.Equal(t, uint64(2), source.Cursor)
	require.Equal(t, uint64(2), source.Available())
}

func TestCasualtyGenerateRejectsWhenSourceExhausted(t *testing.T) {
	source := &military.CasualtySource{ForceID: 1, BodyIDs: []uint64{1, 2}}
	handler := func(bodyID uint64, req military.CasualtyRequest) (uint64, error) { return bodyID, nil }

	_, produced, err := military.Generate(source, 3, military.CasualtyRequest{}, handler, 3)
	require.True(t, errors.Is(err, errors.Insufficient))
	require.Equal(t, uint32(0), produced)
	require.Equal(t, uint64(0), source.Cursor)
}

func TestCasualtyGenerateStopsOnHandlerFailureWithPartialProgress(t *testing.T) {
	source := &military.CasualtySource{ForceID: 1, BodyIDs: []uint64{1, 2, 3}}
	call := 0
	handler := func(bodyID uint64, req military.CasualtyRequest) (uint64, error) {
		call++
		if call == 2 {
			return 0, errors.New(errors.Err, "life-death handler failed")
		}
		return bodyID, nil
	}

	ids, produced, err := military.Generate(source, 3, military.CasualtyRequest{}, handler, 3)
	require.Error(t, err)
	require.Equal(t, uint32(1), produced)
	require.Equal(t, []uint64{1}, ids)
	require.Equal(t, uint64(2), source.Cursor)
}
