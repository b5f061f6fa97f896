// Package client contains the observer-side pieces: an adaptive-interval
// progress poller and a websocket step-event consumer. Both talk to the
// service only through its documented HTTP surface.
package client

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nvalerio/portalsync/internal/session"
)

// Fetcher retrieves the current session progress snapshot. The HTTP
// implementation lives in fetcher.go; tests substitute a scripted one.
type Fetcher interface {
	FetchProgress(ctx context.Context) (session.Progress, error)
}

type PollerConfig struct {
	InitialInterval    time.Duration
	BackoffFactor      float64
	MaxInterval        time.Duration
	StopOnSuccessDelay time.Duration
	RequestTimeout     time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 700 * time.Millisecond
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1.4
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 4 * time.Second
	}
	if c.StopOnSuccessDelay <= 0 {
		c.StopOnSuccessDelay = 1500 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// NextInterval grows the polling interval by the backoff factor, capped at
// max. Within one run the interval never decreases; only an explicit Start
// resets it.
func NextInterval(cur time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(math.Round(float64(cur) * factor))
	if next > max {
		return max
	}
	if next < cur {
		return cur
	}
	return next
}

// Poller polls the progress endpoint with exponential backoff. It is the
// fallback for observers that cannot hold a live event stream open.
type Poller struct {
	cfg      PollerConfig
	fetcher  Fetcher
	onUpdate func(session.Progress)
	onError  func(error)

	mu       sync.Mutex
	timer    *time.Timer
	interval time.Duration
	gen      int
	running  bool
}

func NewPoller(fetcher Fetcher, cfg PollerConfig, onUpdate func(session.Progress), onError func(error)) *Poller {
	return &Poller{
		cfg:      cfg.withDefaults(),
		fetcher:  fetcher,
		onUpdate: onUpdate,
		onError:  onError,
	}
}

// Start resets the interval to its initial value and issues an immediate
// poll. Calling Start on a running poller restarts its schedule.
func (p *Poller) Start() {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.running = true
	p.interval = p.cfg.InitialInterval
	p.stopTimerLocked()
	p.mu.Unlock()

	go p.poll(gen)
}

// Stop cancels any pending timer and suppresses already-in-flight
// reschedules via the generation counter.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.running = false
	p.stopTimerLocked()
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Interval reports the wait that will precede the next poll.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) poll(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	prog, err := p.fetcher.FetchProgress(ctx)
	cancel()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}

	if err != nil {
		// Transport failure is client-local: stop polling and surface it
		// without assuming the server failed too.
		p.running = false
		p.stopTimerLocked()
		p.mu.Unlock()
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(prog)
	}

	if prog.Done {
		p.finish(gen)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	wait := p.interval
	p.interval = NextInterval(p.interval, p.cfg.BackoffFactor, p.cfg.MaxInterval)
	p.stopTimerLocked()
	p.timer = time.AfterFunc(wait, func() { p.poll(gen) })
}

// finish performs one extra fetch for a final authoritative read, then keeps
// Running true for StopOnSuccessDelay so the UI can show the terminal state
// before the poller disappears.
func (p *Poller) finish(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	final, err := p.fetcher.FetchProgress(ctx)
	cancel()
	if err == nil && p.onUpdate != nil {
		p.onUpdate(final)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.stopTimerLocked()
	p.timer = time.AfterFunc(p.cfg.StopOnSuccessDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.gen {
			return
		}
		p.running = false
		p.timer = nil
	})
}
