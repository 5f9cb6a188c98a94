package kernel

import (
	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/infrastructure/errors"
	"github.com/dominium-sim/simkernel/pkg/tick"
)

// ReplayPacket is one externally-supplied command to inject before the tick
// it targets advances, used to deterministically re-derive a past run from
// a recorded command log instead of a save file.
type ReplayPacket struct {
	Tick      tick.Tick
	SchemaID  uint32
	SchemaVer uint32
	Payload   []byte
}

// ReplaySource supplies replay packets in tick order. Next returns ok=false
// once exhausted.
type ReplaySource interface {
	Next() (ReplayPacket, bool)
}

// CommandHandler applies one replayed or AI-submitted command's payload to
// the world. It is the driver's only hook into command semantics — the
// driver itself never interprets a payload.
type CommandHandler func(w *World, pkt ReplayPacket) error

// WarpFactor is a pending simulation speed change that takes effect at a
// specific future tick, replacing the global tick-callback-observer pattern
// with an explicit, per-driver pending value.
type WarpFactor struct {
	EffectiveTick tick.Tick
	UPS           uint32
}

// Driver advances one World through the fixed per-tick order and exposes
// the accumulated world hash.
type Driver struct {
	World   *World
	Replay  ReplaySource
	OnCmd   CommandHandler
	pending *WarpFactor
	// lookahead holds the one packet pulled off Replay whose target tick
	// has not been reached yet; Next is destructive, so a packet for a
	// future tick has to be parked here rather than re-requested.
	lookahead *ReplayPacket
	ups       uint32
	now       tick.Tick
}

// NewDriver builds a driver over world, starting at startTick with the
// given initial ticks-per-second rate.
func NewDriver(world *World, startTick tick.Tick, ups uint32) *Driver {
	return &Driver{World: world, now: startTick, ups: ups}
}

// Now returns the current tick index.
func (d *Driver) Now() tick.Tick { return d.now }

// UPS returns the currently active ticks-per-second rate.
func (d *Driver) UPS() uint32 { return d.ups }

// SetWarpFactor schedules a ticks-per-second change to take effect at
// effectiveTick. Only one change may be pending at a time; scheduling a new
// one replaces whatever was pending.
func (d *Driver) SetWarpFactor(effectiveTick tick.Tick, ups uint32) {
	d.pending = &WarpFactor{EffectiveTick: effectiveTick, UPS: ups}
}

// AttachAIScheduler wires a faction AI scheduler into the driver's
// world-simulation-advance step. Passing nil disables faction AI entirely.
func (d *Driver) AttachAIScheduler(s *faction.Scheduler) { d.World.AIScheduler = s }

// Tick advances the world by exactly one tick in the fixed order: replay
// injection, pending warp-factor commit, world simulation advance (military
// readiness/morale schedulers and the faction AI scheduler), opaque
// cosmo-transit and lane-scheduler placeholders, then transfer, macro-event,
// and production updates.
//
// With a replay source attached, an exhausted source surfaces as a
// ReplayEnd error before any state is touched: the tick that would have run
// past the recording does not run. The source is detached at that point, so
// a caller that wants to continue live simply calls Tick again.
func (d *Driver) Tick() error {
	target := d.now + 1

	if d.Replay != nil {
		if d.lookahead == nil {
			pkt, ok := d.Replay.Next()
			if !ok {
				// Exhaustion is only ever reported here, before any state
				// has been touched this tick: a packet applied mid-tick
				// leaves the refill below to park lookahead as nil, and
				// the NEXT Tick call lands on this branch clean.
				d.Replay = nil
				return errors.New(errors.ReplayEnd, "replay source exhausted").
					WithDetails("tick", uint64(target))
			}
			d.lookahead = &pkt
		}
		for d.lookahead != nil && d.lookahead.Tick <= target {
			pkt := *d.lookahead
			d.lookahead = nil
			if d.OnCmd != nil {
				if err := d.OnCmd(d.World, pkt); err != nil {
					return errors.Wrap(errors.Err, "replay command application failed", err)
				}
			}
			if next, ok := d.Replay.Next(); ok {
				d.lookahead = &next
			}
		}
	}

	if d.pending != nil && d.pending.EffectiveTick <= target {
		d.ups = d.pending.UPS
		d.pending = nil
	}

	d.now = target

	if d.World.Military != nil {
		if d.World.Military.Readiness != nil {
			if err := d.World.Military.Readiness.Advance(d.now); err != nil {
				return err
			}
		}
		if d.World.Military.Morale != nil {
			if err := d.World.Military.Morale.Advance(d.now); err != nil {
				return err
			}
		}
	}
	if d.World.AIScheduler != nil {
		if err := d.World.AIScheduler.Tick(d.now); err != nil {
			return err
		}
	}

	// Cosmo transit and lane-scheduler/bubble-interest advance: this build
	// carries no domain model for either; their chunk payloads pass through
	// World.OpaqueChunks untouched across every tick and save/load cycle.

	if d.World.Transfers != nil {
		if err := d.World.Transfers.Update(d.World.Routes, d.World.Stations, d.now); err != nil {
			return err
		}
	}
	if d.World.MacroEvents != nil {
		if err := d.World.MacroEvents.Update(d.World.Economy, d.now); err != nil {
			return err
		}
	}
	if d.World.Production != nil {
		if err := d.World.Production.Update(d.World.Stations, d.now); err != nil {
			return err
		}
	}

	return nil
}
