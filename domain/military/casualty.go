package military

import (
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// CasualtyRequest carries the fields copied into every casualty produced by
// a single Generate call; ActTime is stamped with the engagement's
// resolution tick before dispatch.
type CasualtyRequest struct {
	CauseCode     uint32
	ActTime       tick.Tick
	ProvenanceRef uint64
}

// LifeDeathHandler is the external life-death pipeline adapter: given a body
// id and the casualty request, it returns the death event id it recorded.
type LifeDeathHandler func(bodyID uint64, req CasualtyRequest) (uint64, error)

// CasualtySource is an ordered pool of consumable body ids for one force.
// Cursor advances monotonically; a body id is never reused.
type CasualtySource struct {
	ForceID uint64
	BodyIDs []uint64
	Cursor  uint64
}

func casualtySourceForceID(s *CasualtySource) uint64 { return s.ForceID }

// Available returns the number of unconsumed body ids remaining.
func (s *CasualtySource) Available() uint64 {
	if s.Cursor >= uint64(len(s.BodyIDs)) {
		return 0
	}
	return uint64(len(s.BodyIDs)) - s.Cursor
}

// Generate consumes up to count body ids from source in cursor order,
// dispatching each through handler. It stops at the first handler failure,
// returning the event ids produced so far and the partial produced count
// alongside the failure.
func Generate(source *CasualtySource, count uint32, req CasualtyRequest, handler LifeDeathHandler, outCapacity uint32) ([]uint64, uint32, error) {
	if source == nil || handler == nil {
		return nil, 0, errors.New(errors.InvalidArgument, "casualty source and handler are required")
	}
	if source.Available() < uint64(count) || uint64(outCapacity) < uint64(count) {
		return nil, 0, errors.New(errors.Insufficient, "casualty source exhausted or output capacity too small").
			WithDetails("force_id", source.ForceID).WithDetails("requested", count)
	}
	ids := make([]uint64, 0, count)
	var produced uint32
	for i := uint32(0); i < count; i++ {
		bodyID := source.BodyIDs[source.Cursor]
		source.Cursor++
		eventID, err := handler(bodyID, req)
		if err != nil {
			return ids, produced, err
		}
		ids = append(ids, eventID)
		produced++
	}
	return ids, produced, nil
}
