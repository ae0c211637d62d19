// Package arena implements C1, the log buffer arena: a process-wide free
// list of fixed-size aligned slabs that C2 carves log frames out of.
//
// Each slab's backing bytes come from an anonymous mmap (golang.org/x/sys/unix)
// rather than make([]byte, ...) — finding a slab from a frame pointer by
// masking low address bits wants page-granular, GC-untouched memory. In
// idiomatic Go we don't need the masking itself (a Frame simply carries a
// pointer back to its Slab, see logmgr.Frame), but the slab's memory still
// comes from mmap so acquire/release genuinely recycles OS pages the way
// cheetah-db's ManagedFile recycles file handles (file_manager.go) rather
// than pretending with a GC slice.
package arena

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/aoikida/Orthrus/internal/obs"
)

// Slab is a fixed-size aligned allocation holding many log frames. Header
// fields live on separate cachelines (via padding) to avoid false sharing
// between the producing application thread and its paired validator.
type Slab struct {
	// Written exclusively by the producing application thread. The write
	// cursor itself lives in logmgr's per-thread state, not here — a Slab only tracks how many
	// frames it holds and how many have been reclaimed.
	nrLogs uint64
	_      [56]byte // pad to its own cacheline

	// Written by validator threads via atomic fetch-add.
	nrReclaimed uint64
	_           [56]byte

	// Flipped 0->1 at acquire, 1->0 once by the producer; read by validators
	// with a plain, unsynchronized load.
	inUse int32

	buf  []byte
	size int64
}

// Size returns the slab's total capacity in bytes.
func (s *Slab) Size() int64 { return s.size }

// Bytes exposes the raw backing buffer for C2 to carve frames out of.
func (s *Slab) Bytes() []byte { return s.buf }

// NrLogs returns the producer's commit count (relaxed read; only the
// producer mutates it, only validators and the arena read it).
func (s *Slab) NrLogs() uint64 { return atomic.LoadUint64(&s.nrLogs) }

// IncrLogs is called exactly once per commit, exclusively by the owning
// application thread.
func (s *Slab) IncrLogs() { atomic.AddUint64(&s.nrLogs, 1) }

// NrReclaimed returns the validators' cumulative reclaim count.
func (s *Slab) NrReclaimed() uint64 { return atomic.LoadUint64(&s.nrReclaimed) }

// IncrReclaimed is called by a validator thread on each frame reclaim.
func (s *Slab) IncrReclaimed() uint64 { return atomic.AddUint64(&s.nrReclaimed, 1) }

// InUse reports the producer's unsynchronized in_use flag. A relaxed load is
// intentional: the two-phase release rule only needs this to
// eventually observe 0 after the producer's release-store, not to be linear
// with nrLogs.
func (s *Slab) InUse() bool { return atomic.LoadInt32(&s.inUse) != 0 }

// MarkFull is the producer's one-time release-store publishing nrLogs to
// any validator that later reclaims a frame from this slab.
func (s *Slab) MarkFull() { atomic.StoreInt32(&s.inUse, 0) }

func newSlab(size int64) (*Slab, error) {
	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap slab: %w", err)
	}
	return &Slab{buf: buf, size: size, inUse: 1}, nil
}

func (s *Slab) reset() {
	s.nrLogs = 0
	s.nrReclaimed = 0
	s.inUse = 1
}

// Arena is the process-wide slab free list behind a single spin lock.
// Contention is low: one acquisition per ~MAX/MIN frames.
type Arena struct {
	slabSize int64
	mu       spinLock
	free     []*Slab
	all      []*Slab // every slab ever allocated, for Close to unmap

	acquired atomic.Int64
	released atomic.Int64

	metrics *obs.Metrics
}

// New creates an arena whose slabs are all slabSize bytes (must be a power
// of two).
func New(slabSize int64) *Arena {
	return &Arena{slabSize: slabSize}
}

// SetMetrics attaches counters that AcquireSlab/ReleaseSlab drive from then
// on. Optional — an Arena with no metrics attached behaves identically,
// just without the /metrics observability. Call this once, before any
// goroutine starts acquiring or releasing slabs; it is not itself
// synchronized against concurrent Acquire/Release calls.
func (a *Arena) SetMetrics(m *obs.Metrics) {
	a.metrics = m
}

// AcquireSlab returns a slab from the free list, or a freshly mmap'd one.
func (a *Arena) AcquireSlab() (*Slab, error) {
	a.mu.Lock()
	if n := len(a.free); n > 0 {
		s := a.free[n-1]
		a.free = a.free[:n-1]
		a.mu.Unlock()
		s.reset()
		a.acquired.Add(1)
		if a.metrics != nil {
			a.metrics.SlabsAcquired.Inc()
		}
		return s, nil
	}
	a.mu.Unlock()

	s, err := newSlab(a.slabSize)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.all = append(a.all, s)
	a.mu.Unlock()
	a.acquired.Add(1)
	if a.metrics != nil {
		a.metrics.SlabsAcquired.Inc()
	}
	return s, nil
}

// Close unmaps every slab the arena has ever allocated. Callers must only
// call this after every application and validator thread drawing on the
// arena has stopped — it does not check that any slab is still in_use.
func (a *Arena) Close() error {
	a.mu.Lock()
	slabs := a.all
	a.all = nil
	a.free = nil
	a.mu.Unlock()

	var firstErr error
	for _, s := range slabs {
		if err := unix.Munmap(s.buf); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("arena: munmap slab: %w", err)
		}
	}
	return firstErr
}

// ReleaseSlab pushes a fully-reclaimed slab back onto the free list. Callers
// must only call this once the two-phase release invariant (in_use==0 &&
// nr_reclaimed==nr_logs) holds.
func (a *Arena) ReleaseSlab(s *Slab) {
	a.mu.Lock()
	a.free = append(a.free, s)
	a.mu.Unlock()
	a.released.Add(1)
	if a.metrics != nil {
		a.metrics.SlabsReleased.Inc()
	}
}

// Outstanding returns acquired-released, a testable invariant:
// it must never exceed the concurrent working set of application threads,
// and must reach zero after a full drain-and-join.
func (a *Arena) Outstanding() int64 { return a.acquired.Load() - a.released.Load() }

// spinLock guards the free list. Go's sync.Mutex already spins briefly
// on an uncontended or soon-to-be-free lock before parking the goroutine,
// so a hand-rolled CAS loop on top would only add a starvation risk
// without changing the contention profile for this access pattern (once
// per ~MAX/MIN frames).
type spinLock struct {
	mu sync.Mutex
}

func (l *spinLock) Lock()   { l.mu.Lock() }
func (l *spinLock) Unlock() { l.mu.Unlock() }
