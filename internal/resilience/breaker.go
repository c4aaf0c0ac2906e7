// Package resilience keeps a game going when a model or speech backend
// misbehaves. [Retry] re-runs a call with backoff, a [Breaker] stops calling
// a backend that keeps failing, and a [Chain] fails over across backends of
// one kind, each behind its own breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while calls are being rejected.
var ErrOpen = errors.New("resilience: circuit open")

// State is a breaker's mode.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults noted.
type BreakerConfig struct {
	Name string

	// Threshold consecutive failures open the breaker. Default: 5.
	Threshold int

	// Cooldown is how long an open breaker rejects calls. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of half-open successes that close it. Default: 2.
	Probes int

	// OnStateChange runs after every transition, outside the lock.
	OnStateChange func(name string, from, to State)
}

// Breaker is a closed/open/half-open circuit breaker. Errors caused by the
// caller's own cancellation are passed through without counting.
type Breaker struct {
	cfg   BreakerConfig
	clock func() time.Time

	mu       sync.Mutex
	state    State
	streak   int // consecutive failures while closed, successes while half-open
	inflight int // half-open probes admitted
	until    time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	return &Breaker{cfg: cfg, clock: time.Now}
}

// Do runs fn unless the breaker is open and returns fn's error unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release(probe)
		return err
	}
	b.settle(probe, err == nil)
	return err
}

func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	if b.state == StateOpen {
		if b.clock().Before(b.until) {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.state, b.streak, b.inflight = StateHalfOpen, 0, 0
	}
	if b.state == StateHalfOpen {
		if b.inflight >= b.cfg.Probes {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.inflight++
		probe = true
	}
	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
	return probe, nil
}

// release returns an uncounted probe slot.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	if b.state == StateHalfOpen && b.inflight > 0 {
		b.inflight--
	}
	b.mu.Unlock()
}

func (b *Breaker) settle(probe, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case !ok && (probe || b.streak+1 >= b.cfg.Threshold):
		b.state, b.streak, b.until = StateOpen, 0, b.clock().Add(b.cfg.Cooldown)
	case !ok:
		b.streak++
	case probe && b.state == StateHalfOpen:
		b.streak++
		if b.streak >= b.cfg.Probes {
			b.state, b.streak, b.inflight = StateClosed, 0, 0
		}
	default:
		b.streak = 0
	}
	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
}

func (b *Breaker) changed(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State reports the current mode. An open breaker past its cooldown reports
// half-open before the next call moves it there.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.clock().Before(b.until) {
		return StateHalfOpen
	}
	return b.state
}
