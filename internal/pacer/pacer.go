// Package pacer implements the flush-cadence loop described in spec
// §4.9 (C9): a three-phase loop (wait for work, fill the frame,
// flush) that coalesces bursts of drawing into one frame without
// indefinite delay, and throttles the producer when a consumer falls
// behind.
package pacer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the pacer's timing knobs, all sourced from process
// configuration (spec §6) with the defaults named in §4.9.
type Config struct {
	WaitTimeout      time.Duration // default 1000ms: wait-for-work phase timeout
	MaxFrameDuration time.Duration // default 40ms: frame-fill phase ceiling
	FillPollInterval time.Duration // default 5ms: frame-fill phase poll granularity (0-10ms)
	LagThreshold     time.Duration // default 100ms: producer throttle trigger

	// MaxFlushRate caps the number of flushes per second a single
	// pacer emits regardless of how quickly work arrives, independent
	// of the LagThreshold throttle above. Zero disables the cap.
	MaxFlushRate float64
}

func (c Config) withDefaults() Config {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 1000 * time.Millisecond
	}
	if c.MaxFrameDuration <= 0 {
		c.MaxFrameDuration = 40 * time.Millisecond
	}
	if c.FillPollInterval <= 0 {
		c.FillPollInterval = 5 * time.Millisecond
	}
	if c.LagThreshold <= 0 {
		c.LagThreshold = 100 * time.Millisecond
	}
	return c
}

// ClientLag reports the current worst-case processing lag across
// connected clients, used to decide whether the frame-fill phase
// should hold before flushing (spec §4.9's producer throttle).
type ClientLag func() time.Duration

// FramePacer owns the modified flag and its signaling channel — the
// sole synchronization point between producers (drawing-order
// handlers, driver hooks) and the flush loop, per spec §4.9.
//
// The condition-variable wait-with-timeout spec §4.9 describes is
// expressed here as a buffered notification channel plus a timer,
// which is the idiomatic Go shape for the same "block until signaled
// or timeout" wait.
type FramePacer struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	modified bool
	notify   chan struct{}

	flush     func()
	clientLag ClientLag
	limiter   *rate.Limiter
}

// New builds a FramePacer. flush is called once per frame to drain
// and send pending display state (Display.Flush plus the sync
// instruction and socket write, owned by the caller). clientLag may
// be nil, in which case the lag-throttle step is skipped. If
// cfg.MaxFlushRate is positive, flushes beyond that rate wait for a
// token rather than firing immediately, composed with (not replacing)
// the lag-based throttle.
func New(cfg Config, flush func(), clientLag ClientLag, log *slog.Logger) *FramePacer {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	p := &FramePacer{
		cfg:       cfg,
		log:       log,
		notify:    make(chan struct{}, 1),
		flush:     flush,
		clientLag: clientLag,
	}
	if cfg.MaxFlushRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.MaxFlushRate), 1)
	}
	return p
}

// MarkModified signals that a surface changed. Safe to call from any
// goroutine (drawing-order handlers, driver hooks).
func (p *FramePacer) MarkModified() {
	p.mu.Lock()
	p.modified = true
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is canceled.
func (p *FramePacer) Run(ctx context.Context) {
	for {
		if !p.waitForWork(ctx) {
			if ctx.Err() != nil {
				return
			}
			continue // timed out with no modification, loop again
		}
		p.fillFrame(ctx)
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}
		p.flush()
	}
}

// waitForWork blocks until the modified flag is set or WaitTimeout
// elapses, returning whether work arrived.
func (p *FramePacer) waitForWork(ctx context.Context) bool {
	if p.consumeModified() {
		return true
	}

	timer := time.NewTimer(p.cfg.WaitTimeout)
	defer timer.Stop()
	select {
	case <-p.notify:
		p.consumeModified()
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *FramePacer) consumeModified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.modified {
		p.modified = false
		return true
	}
	return false
}

// fillFrame runs the frame-fill phase: collect further modifications
// until MaxFrameDuration elapses, extending the frame each time new
// work arrives, and hold the frame open while any client's lag
// exceeds LagThreshold.
func (p *FramePacer) fillFrame(ctx context.Context) {
	deadline := time.Now().Add(p.cfg.MaxFrameDuration)

	for time.Now().Before(deadline) {
		timer := time.NewTimer(p.cfg.FillPollInterval)
		select {
		case <-p.notify:
			timer.Stop()
			p.consumeModified()
			continue
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	p.throttleForLag(ctx)
}

// throttleForLag blocks past the frame deadline while any connected
// client's accumulated lag exceeds LagThreshold, preventing the
// producer from outpacing a slow consumer.
func (p *FramePacer) throttleForLag(ctx context.Context) {
	if p.clientLag == nil {
		return
	}
	for {
		lag := p.clientLag()
		if lag <= p.cfg.LagThreshold {
			return
		}
		p.log.Debug("pacer: throttling for client lag", "lag", lag, "threshold", p.cfg.LagThreshold)
		select {
		case <-time.After(p.cfg.FillPollInterval):
		case <-ctx.Done():
			return
		}
	}
}
