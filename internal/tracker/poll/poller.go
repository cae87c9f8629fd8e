// Package poll implements the fixed-interval synchronization loop that
// keeps a role-scoped view consistent with server state. It is best-effort
// eventual consistency: a mutation made by one principal becomes visible to
// another only on that principal's next tick, so staleness is bounded by
// one interval.
package poll

import (
	"context"
	"time"

	"threattracker.org/internal/obs"
)

// DefaultInterval matches the dashboards' 5-second refresh cadence.
const DefaultInterval = 5 * time.Second

// FetchFunc re-reads the active view's collection.
type FetchFunc func(ctx context.Context) error

// Poller drives a FetchFunc on a fixed interval. Fetch failures are
// reported through OnError but never stop the loop; cancelling the context
// releases the timer deterministically so no background work outlives the
// view that started it.
type Poller struct {
	Interval time.Duration
	Fetch    FetchFunc
	// OnError receives transient fetch failures. Optional.
	OnError func(error)

	kick chan struct{}
}

// New creates a poller with the default interval.
func New(fetch FetchFunc) *Poller {
	return &Poller{
		Interval: DefaultInterval,
		Fetch:    fetch,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an immediate re-fetch ahead of the next tick. Views call
// this right after a mutation so the actor sees its own write without
// waiting out the staleness window. Safe from any goroutine; coalesces
// when a refresh is already pending.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run fetches immediately, then on every tick or kick until ctx is
// cancelled. It returns ctx.Err() on teardown.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.fetchOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.fetchOnce(ctx)
		case <-p.kick:
			p.fetchOnce(ctx)
		}
	}
}

func (p *Poller) fetchOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.Fetch(ctx); err != nil {
		obs.PollFailures.Inc()
		if p.OnError != nil {
			p.OnError(err)
		}
	}
}
