// Package production implements the periodic production/consumption
// engine: each rule applies a signed delta once per period_ticks, accumulated
// as a single bucket-difference multiplication so that batching ticks
// together produces the same result as applying them one at a time.
package production

import (
	"github.com/dominium-sim/simkernel/domain/logistics"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/registry"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// Rule is a periodic production (positive DeltaPerPeriod) or consumption
// (negative) effect applied to one resource at one station.
type Rule struct {
	RuleID         uint64
	StationID      uint64
	ResourceID     uint64
	DeltaPerPeriod int64
	PeriodTicks    uint64
}

func ruleID(r Rule) uint64 { return r.RuleID }

// Engine holds the registered rules and the tick they were last applied
// through.
type Engine struct {
	rules    *registry.Registry[Rule]
	lastTick tick.Tick
}

// NewEngine creates an empty production engine. capacity <= 0 means
// unbounded rule storage.
func NewEngine(capacity int) *Engine {
	return &Engine{rules: registry.New(capacity, ruleID)}
}

// Register validates and adds a rule, rejecting a duplicate id, a zero
// rule/station/resource id, a zero delta, or a zero period.
func (e *Engine) Register(r Rule) error {
	if r.RuleID == 0 || r.StationID == 0 || r.ResourceID == 0 {
		return errors.New(errors.InvalidData, "rule, station, and resource ids must be non-zero")
	}
	if r.DeltaPerPeriod == 0 {
		return errors.New(errors.InvalidData, "delta_per_period must be non-zero")
	}
	if r.PeriodTicks == 0 {
		return errors.New(errors.InvalidData, "period_ticks must be non-zero")
	}
	if err := e.rules.Insert(r); err != nil {
		return errors.Wrap(errors.DuplicateID, "production rule already registered", err).WithDetails("rule_id", r.RuleID)
	}
	return nil
}

// LastTick returns the tick production was last applied through.
func (e *Engine) LastTick() tick.Tick { return e.lastTick }

// SetLastTick overrides the last-applied tick, used when restoring a saved
// engine without replaying every intervening period.
func (e *Engine) SetLastTick(t tick.Tick) { e.lastTick = t }

// Each visits every rule in ascending rule-id order.
func (e *Engine) Each(fn func(Rule)) { e.rules.Each(fn) }

// Update applies every rule's accumulated delta for the periods elapsed
// between the last applied tick and now, then advances the last-applied
// tick to now. A non-advancing call (now <= last) is a no-op that still
// records last <- now. Each rule's contribution depends only on
// floor(now/period) - floor(last/period), so splitting a span of ticks
// across multiple Update calls produces the same final state as one call
// covering the whole span.
func (e *Engine) Update(stations *logistics.StationSet, now tick.Tick) error {
	if uint64(now) <= uint64(e.lastTick) {
		e.lastTick = now
		return nil
	}

	var applyErr error
	e.rules.Each(func(r Rule) {
		if applyErr != nil {
			return
		}
		prevBucket := uint64(e.lastTick) / r.PeriodTicks
		currBucket := uint64(now) / r.PeriodTicks
		if currBucket <= prevBucket {
			return
		}
		periods := currBucket - prevBucket

		station, ok := stations.Get(r.StationID)
		if !ok {
			applyErr = errors.New(errors.NotFound, "production station not found").WithDetails("station_id", r.StationID)
			return
		}

		if r.DeltaPerPeriod > 0 {
			magnitude := uint64(r.DeltaPerPeriod)
			if periods != 0 && magnitude > ^uint64(0)/periods {
				applyErr = errors.New(errors.Overflow, "production delta overflow").WithDetails("rule_id", r.RuleID)
				return
			}
			applyErr = station.Add(r.ResourceID, periods*magnitude)
			return
		}

		magnitude := uint64(-r.DeltaPerPeriod)
		if periods != 0 && magnitude > ^uint64(0)/periods {
			applyErr = errors.New(errors.Overflow, "production delta overflow").WithDetails("rule_id", r.RuleID)
			return
		}
		applyErr = station.Remove(r.ResourceID, periods*magnitude)
	})
	if applyErr != nil {
		return applyErr
	}

	e.lastTick = now
	return nil
}
