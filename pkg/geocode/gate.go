package geocode

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
)

// DefaultMinInterval is the spacing Nominatim's usage policy needs between
// consecutive requests from one process, with a little headroom.
const DefaultMinInterval = 1100 * time.Millisecond

// Gate serializes provider calls across all callers and spaces them at least
// interval apart, measured from the end of one call to the start of the next.
// Waiting callers are served in arrival order; nothing is dropped.
type Gate struct {
	interval time.Duration
	clock    clock.Clock
	token    chan struct{}

	// lastDone is only touched by the token holder.
	lastDone time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) GateOption {
	return func(g *Gate) {
		g.clock = c
	}
}

// NewGate creates a Gate. A non-positive interval disables spacing but keeps
// calls serialized.
func NewGate(interval time.Duration, opts ...GateOption) *Gate {
	g := &Gate{
		interval: interval,
		clock:    clock.New(),
		token:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.token <- struct{}{}
	return g
}

// Interval returns the minimum spacing between calls.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Do waits for the caller's turn, then runs fn while holding the gate. A
// cancelled ctx aborts the wait; once fn has started it runs to completion.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "gate: acquire")
	}
	select {
	case <-g.token:
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "gate: acquire")
	}
	defer func() { g.token <- struct{}{} }()

	if !g.lastDone.IsZero() {
		if wait := g.lastDone.Add(g.interval).Sub(g.clock.Now()); wait > 0 {
			select {
			case <-g.clock.After(wait):
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "gate: wait")
			}
		}
	}

	err := fn(ctx)
	g.lastDone = g.clock.Now()
	return err
}
