// Package tracebus publishes faction AI scheduler trace records to a Redis
// channel for out-of-process observability. Publishing is best-effort and
// time-bounded: a slow or unreachable broker must never stall the scheduler
// tick that produced the trace.
package tracebus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dominium-sim/simkernel/domain/faction"
	"github.com/dominium-sim/simkernel/infrastructure/logging"
)

// DefaultPublishTimeout bounds a single publish call so a stalled broker
// connection can never block the caller for long.
const DefaultPublishTimeout = 2 * time.Second

// wireRecord is the JSON shape published to the channel; it exists
// separately from faction.TraceRecord so the wire format doesn't silently
// change if that struct's fields are reordered.
type wireRecord struct {
	PlanID       uint64 `json:"plan_id"`
	FactionID    uint64 `json:"faction_id"`
	Tick         uint64 `json:"tick"`
	InputDigest  uint64 `json:"input_digest"`
	OutputDigest uint64 `json:"output_digest"`
	OutputCount  uint32 `json:"output_count"`
	ReasonCode   uint32 `json:"reason_code"`
	OpsUsed      uint32 `json:"ops_used"`
	BudgetHit    bool   `json:"budget_hit"`
}

// Publisher publishes faction.TraceRecord values to a Redis channel,
// implementing faction.TraceSink via its Publish method.
type Publisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	log     *logging.Logger
}

// Config configures a Publisher's Redis connection and channel.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Timeout  time.Duration
}

// DefaultChannel is the channel name used when Config.Channel is empty.
const DefaultChannel = "dominium:faction-trace"

// New builds a Publisher bound to a fresh Redis client. The connection is
// lazy: New never contacts the broker, so a misconfigured or unreachable
// Redis instance only ever surfaces as failed (logged, swallowed) publishes.
func New(cfg Config, log *logging.Logger) *Publisher {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel: channel,
		timeout: timeout,
		log:     log,
	}
}

// Sink adapts Publish to faction.TraceSink, for wiring directly into
// faction.NewScheduler's trace argument.
func (p *Publisher) Sink() faction.TraceSink {
	return p.Publish
}

// Publish serializes rec and sends it to the configured channel, logging
// (never returning) any failure — satisfies the non-authoritative,
// best-effort contract TraceSink documents.
func (p *Publisher) Publish(rec faction.TraceRecord) {
	if p == nil || p.client == nil {
		return
	}

	payload, err := json.Marshal(wireRecord{
		PlanID:       rec.PlanID,
		FactionID:    rec.FactionID,
		Tick:         uint64(rec.Tick),
		InputDigest:  rec.InputDigest,
		OutputDigest: rec.OutputDigest,
		OutputCount:  rec.OutputCount,
		ReasonCode:   uint32(rec.ReasonCode),
		OpsUsed:      rec.OpsUsed,
		BudgetHit:    rec.BudgetHit,
	})
	if err != nil {
		p.logError("tracebus: marshal failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logError("tracebus: publish failed", err)
	}
}

func (p *Publisher) logError(msg string, err error) {
	if p.log == nil {
		return
	}
	p.log.WithError(err).Error(msg)
}

// Close releases the underlying Redis connection pool.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
