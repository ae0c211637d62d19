package redundancy

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/aoikida/Orthrus/internal/obs"
)

// gate bounds how many validations may be in flight at once for the one
// Runner that owns it. Each Runner builds its own gate, so the limit is not
// shared across groups. A limit of zero means unlimited — tryAcquire always
// succeeds and release is a no-op.
//
// semaphore.Weighted has no instrumentation of its own, so saturation is
// reported through a rate.Sometimes-gated log line rather than on every
// single rejected acquire — at full validator throughput a saturated gate
// would otherwise flood the log.
type gate struct {
	sem     *semaphore.Weighted
	limit   int64
	inUse   func(delta int64) int64
	pressure rate.Sometimes
}

// newGate builds a gate with the given limit. onDelta is called with +1 on
// each successful acquire and -1 on each release, and must return the new
// occupancy — the caller uses this to drive the ConcurrencyInUse metric
// without the gate needing its own atomic counter.
func newGate(limit int, onDelta func(delta int64) int64) *gate {
	g := &gate{inUse: onDelta, pressure: rate.Sometimes{Interval: 5 * time.Second}}
	if limit > 0 {
		g.sem = semaphore.NewWeighted(int64(limit))
		g.limit = int64(limit)
	}
	return g
}

// tryAcquire attempts to reserve one validation slot without blocking. It
// reports false when the gate is saturated — the caller's fallback is to
// reclaim the frame unvalidated rather than block the producer.
func (g *gate) tryAcquire() bool {
	if g.sem == nil {
		return true
	}
	if !g.sem.TryAcquire(1) {
		g.pressure.Do(func() {
			obs.Logger().Warn("validation concurrency gate saturated", "limit", g.limit)
		})
		return false
	}
	if g.inUse != nil {
		g.inUse(1)
	}
	return true
}

// acquire blocks until a validation slot is free. Synchronous mode must
// not skip validation just because the gate is saturated — the caller is
// already blocking its application thread on the frame's ticket, so
// waiting here (rather than falling back to tryAcquire's skip-and-reclaim)
// is what keeps the "caller never observes an unconfirmed result"
// guarantee true under a concurrency limit.
func (g *gate) acquire() {
	if g.sem == nil {
		return
	}
	if err := g.sem.Acquire(context.Background(), 1); err != nil {
		obs.Fatal("validation gate acquire failed", "err", err)
	}
	if g.inUse != nil {
		g.inUse(1)
	}
}

func (g *gate) release() {
	if g.sem == nil {
		return
	}
	g.sem.Release(1)
	if g.inUse != nil {
		g.inUse(-1)
	}
}
