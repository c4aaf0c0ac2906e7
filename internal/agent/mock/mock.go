// Package mock provides a scriptable test double for agent.Decider.
//
// Replies are looked up by seat and kind first, then by kind alone; anything
// unscripted gets the zero Decision (silence, no target). Every call is
// recorded so tests can assert who was asked for what, in which order.
//
// Example:
//
//	d := mock.New()
//	d.On(4, agent.KindVote, agent.Decision{Target: 7})
//	d.OnKind(agent.KindWolfKill, agent.Decision{Target: 4})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/werewolf/internal/agent"
)

type key struct {
	seat int
	kind agent.Kind
}

// Decider is a mock implementation of agent.Decider. It is safe for
// concurrent use.
type Decider struct {
	mu      sync.Mutex
	bySeat  map[key][]agent.Decision
	byKind  map[agent.Kind][]agent.Decision
	calls   []agent.Request
	onCall  func(agent.Request)
	blocker chan struct{}
}

var _ agent.Decider = (*Decider)(nil)

// New returns an empty script.
func New() *Decider {
	return &Decider{
		bySeat: make(map[key][]agent.Decision),
		byKind: make(map[agent.Kind][]agent.Decision),
	}
}

// On queues decisions for seat when asked for kind. Queued decisions are used
// in order; the last one repeats.
func (d *Decider) On(seat int, kind agent.Kind, decs ...agent.Decision) *Decider {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key{seat, kind}
	d.bySeat[k] = append(d.bySeat[k], decs...)
	return d
}

// OnKind queues decisions for any seat asked for kind.
func (d *Decider) OnKind(kind agent.Kind, decs ...agent.Decision) *Decider {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKind[kind] = append(d.byKind[kind], decs...)
	return d
}

// OnCall registers a hook run for every request before the reply is chosen.
func (d *Decider) OnCall(fn func(agent.Request)) *Decider {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCall = fn
	return d
}

// Block makes every Decide wait until the returned channel is closed or the
// request context ends.
func (d *Decider) Block() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocker = make(chan struct{})
	return d.blocker
}

// Decide records req and returns the scripted reply.
func (d *Decider) Decide(ctx context.Context, req agent.Request) agent.Decision {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	hook, blocker := d.onCall, d.blocker
	dec := d.next(key{req.Self.Seat, req.Kind})
	d.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if blocker != nil {
		select {
		case <-blocker:
		case <-ctx.Done():
			return agent.Decision{Failed: true}
		}
	}
	return dec
}

func (d *Decider) next(k key) agent.Decision {
	if q := d.bySeat[k]; len(q) > 0 {
		if len(q) > 1 {
			d.bySeat[k] = q[1:]
		}
		return q[0]
	}
	if q := d.byKind[k.kind]; len(q) > 0 {
		if len(q) > 1 {
			d.byKind[k.kind] = q[1:]
		}
		return q[0]
	}
	return agent.Decision{}
}

// Calls returns a copy of every recorded request.
func (d *Decider) Calls() []agent.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]agent.Request(nil), d.calls...)
}

// CallsFor returns the recorded requests of the given kind.
func (d *Decider) CallsFor(kind agent.Kind) []agent.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []agent.Request
	for _, c := range d.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
