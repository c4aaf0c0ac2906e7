package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Chain] failed or was
// skipped because its breaker was open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [Chain].
type FallbackConfig struct {
	// Breaker is copied into every member's breaker, with Name set to the
	// member's name.
	Breaker BreakerConfig

	// OnFailover, if set, is called when member failed with err and the
	// chain moves on. Open breakers are skipped silently.
	OnFailover func(member string, err error)
}

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain is an ordered list of interchangeable providers, each behind its own
// circuit breaker. Members are added during setup; Try is safe for
// concurrent use afterwards.
type Chain[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewChain returns a chain whose first member is primary.
func NewChain[T any](primaryName string, primary T, cfg FallbackConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a member tried after all earlier ones.
func (c *Chain[T]) Add(name string, value T) {
	bc := c.cfg.Breaker
	bc.Name = name
	c.members = append(c.members, member[T]{name: name, value: value, breaker: NewBreaker(bc)})
}

// Names returns the member names in try order.
func (c *Chain[T]) Names() []string {
	out := make([]string, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m.name)
	}
	return out
}

// Primary returns the first member.
func (c *Chain[T]) Primary() T { return c.members[0].value }

// Try calls fn with each member in order and returns the first success. fn
// learns whether it is talking to the primary. A cancelled ctx ends the walk
// without blaming the remaining members.
func Try[T, R any](ctx context.Context, c *Chain[T], fn func(v T, primary bool) (R, error)) (R, error) {
	var (
		zero R
		last error
	)
	for i := range c.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		m := &c.members[i]
		var out R
		err := m.breaker.Do(ctx, func(context.Context) error {
			var err error
			out, err = fn(m.value, i == 0)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Debug("served by fallback", "provider", m.name)
			}
			return out, nil
		}
		last = err
		if errors.Is(err, ErrOpen) {
			continue
		}
		if ctx.Err() != nil {
			return zero, err
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		if c.cfg.OnFailover != nil {
			c.cfg.OnFailover(m.name, err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}
