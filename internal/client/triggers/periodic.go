package triggers

import (
	"context"
	"math/rand"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// Periodic runs a sync every interval, spread by a jitter ratio so that
// several devices do not hit the remote in lockstep.
type Periodic struct {
	engine       Engine
	log          logging.Logger
	interval     time.Duration
	jitter       float64
	cycleTimeout time.Duration
	sample       func() float64
}

func NewPeriodic(engine Engine, log logging.Logger, interval time.Duration, jitter float64, cycleTimeout time.Duration) *Periodic {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Periodic{
		engine:       engine,
		log:          log.With("trigger", "periodic"),
		interval:     interval,
		jitter:       jitter,
		cycleTimeout: cycleTimeout,
		sample:       rng.Float64,
	}
}

// Run blocks until ctx is done. A non-positive interval disables it.
func (p *Periodic) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.log.Info(ctx, "periodic sync disabled")
		return
	}

	timer := time.NewTimer(jitteredIntervalWithSample(p.interval, p.jitter, p.sample()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info(ctx, "periodic sync stopping", "reason", ctx.Err())
			return
		case <-timer.C:
			runCycle(ctx, p.engine, p.log, syncer.TriggerPeriodic, p.cycleTimeout)
			timer.Reset(jitteredIntervalWithSample(p.interval, p.jitter, p.sample()))
		}
	}
}

// runCycle runs one bounded sync and logs the result.
func runCycle(ctx context.Context, engine Engine, log logging.Logger, trig syncer.Trigger, timeout time.Duration) syncer.Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := engine.Sync(ctx, trig)
	switch {
	case res.Dropped:
	case res.Healthy:
		log.Debug(ctx, "sync cycle completed", "message", res.Message)
	case res.Err != nil:
		log.Warn(ctx, "sync cycle failed", "message", res.Message, "error", res.Err)
	}
	return res
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	sample = min(max(sample, 0), 1)
	factor := max(1+((sample*2)-1)*jitterRatio, 0)
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
