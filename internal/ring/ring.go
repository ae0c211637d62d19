// Package ring implements C3, a single-producer/single-consumer queue of
// committed log frames running between one application thread and its
// paired validator thread. Capacity is fixed at construction and must be a
// power of two so index wrap-around is a mask instead of a modulo.
//
// This is grounded on the same head/tail-index SPSC design
// AleutianLocal's internal ring buffer sketches, but built from genuinely
// lock-free atomics rather than a mutex — the spec calls for a true SPSC
// ring on the hot path between exactly one producer and exactly one
// consumer, and Go's memory model gives us that via atomic loads/stores on
// the shared head/tail counters without needing CAS (there is never more
// than one writer to either counter).
package ring

import (
	"runtime"
	"sync/atomic"

	"github.com/aoikida/Orthrus/internal/logmgr"
)

// Ring is a bounded SPSC queue of *logmgr.Frame. Push must only ever be
// called from the producer (application) goroutine; Pop only from the
// consumer (validator) goroutine.
type Ring struct {
	mask uint64
	buf  []atomic.Pointer[logmgr.Frame]

	// head/tail live on separate cachelines: head is producer-written/
	// consumer-read, tail is consumer-written/producer-read. Padding keeps
	// a Pop on one core from invalidating the cacheline a concurrent Push
	// is hammering on the other.
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte
}

// New creates a ring of the given capacity, which must be a power of two.
func New(capacity int) *Ring {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &Ring{
		mask: uint64(capacity - 1),
		buf:  make([]atomic.Pointer[logmgr.Frame], capacity),
	}
}

// Push enqueues f, spinning while the ring is full. It returns false only
// if stop reports true while still spinning (graceful shutdown path).
func (r *Ring) Push(f *logmgr.Frame, stop func() bool) bool {
	head := r.head.Load()
	for {
		tail := r.tail.Load()
		if head-tail < uint64(len(r.buf)) {
			break
		}
		if stop != nil && stop() {
			return false
		}
		runtime.Gosched()
	}
	r.buf[head&r.mask].Store(f)
	r.head.Store(head + 1)
	return true
}

// Pop dequeues the oldest frame, spinning while the ring is empty. It
// returns (nil, false) only if stop reports true while still spinning.
func (r *Ring) Pop(stop func() bool) (*logmgr.Frame, bool) {
	tail := r.tail.Load()
	for {
		head := r.head.Load()
		if tail != head {
			break
		}
		if stop != nil && stop() {
			return nil, false
		}
		runtime.Gosched()
	}
	f := r.buf[tail&r.mask].Load()
	r.buf[tail&r.mask].Store(nil)
	r.tail.Store(tail + 1)
	return f, true
}

// Depth returns a momentary occupancy estimate, for metrics only — the
// producer and consumer indices can both move between the two loads.
func (r *Ring) Depth() int64 {
	return int64(r.head.Load() - r.tail.Load())
}

// Capacity returns the ring's fixed slot count.
func (r *Ring) Capacity() int { return len(r.buf) }
