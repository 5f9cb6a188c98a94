// Package pacing governs wall-clock tick cadence: a rate-limited pacer that
// gates each driver advance to a configured ticks-per-second rate (with live
// warp-factor support), and a cron-scheduled autosave loop built on top of
// the save container and kernel codecs.
package pacing

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Pacer gates tick advancement to a wall-clock rate, so a driver loop that
// calls Wait before every kernel.Driver.Tick never runs faster than the
// configured UPS, including across a live warp-factor change.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	ups     uint32
}

// New builds a Pacer ticking at ups ticks per second. ups == 0 means
// unthrottled: Wait and Allow always succeed immediately.
func New(ups uint32) *Pacer {
	p := &Pacer{}
	p.setRate(ups)
	return p
}

func (p *Pacer) setRate(ups uint32) {
	p.ups = ups
	if ups == 0 {
		p.limiter = nil
		return
	}
	// Burst of 1: a tick is only ever due once per period: we want the
	// pacer to gate cadence, not let a stalled consumer build up credit
	// and then burn through several ticks back-to-back.
	p.limiter = rate.NewLimiter(rate.Limit(ups), 1)
}

// SetUPS changes the paced rate, effective on the next Wait/Allow call.
// Callers applying a kernel.WarpFactor should call SetUPS from the same
// point that commits the warp factor, so the pacer's rate change and the
// driver's UPS() change land on the same tick.
func (p *Pacer) SetUPS(ups uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setRate(ups)
}

// UPS returns the currently configured ticks-per-second rate.
func (p *Pacer) UPS() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ups
}

// Wait blocks until the next tick is due, or returns ctx.Err() if ctx is
// cancelled first.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow reports whether a tick may proceed right now without blocking, for
// callers that poll a paced loop instead of blocking on it.
func (p *Pacer) Allow() bool {
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}
