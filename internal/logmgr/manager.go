package logmgr

import (
	"encoding/binary"
	"fmt"

	"github.com/aoikida/Orthrus/internal/arena"
	"github.com/aoikida/Orthrus/internal/obs"
)

// Manager is a single application thread's log cursor: the "current log"
// plus the arena it draws slabs from. One Manager belongs to exactly one
// application goroutine; it is not safe for concurrent use.
//
// A thread only ever writes into its single current slab — once a slab
// falls under MinLogBufferSize remaining room it is marked full and
// handed off for good, so there is never a second partially-used slab
// to keep around behind the current one. See DESIGN.md for this
// accepted simplification.
type Manager struct {
	arena *arena.Arena
	max   int64
	min   int64

	cur      *arena.Slab
	writeOff int64

	epoch func() uint64 // GC-epoch source, injected so tests can control it
}

// New creates a log manager drawing slabs of at most maxSize bytes from a,
// rotating to a fresh slab once fewer than minSize bytes remain.
func New(a *arena.Arena, maxSize, minSize int64, epoch func() uint64) *Manager {
	if epoch == nil {
		epoch = func() uint64 { return 0 }
	}
	return &Manager{arena: a, max: maxSize, min: minSize, epoch: epoch}
}

// reserve ensures the current slab has room for need bytes, rotating slabs
// as necessary. It returns the slab and offset the frame should be written
// at.
func (m *Manager) reserve(need int64) (*arena.Slab, int64, error) {
	if need > m.max {
		return nil, 0, fmt.Errorf("logmgr: frame of %d bytes exceeds slab size %d", need, m.max)
	}
	if m.cur == nil || m.max-m.writeOff < need || m.max-m.writeOff < m.min {
		if m.cur != nil {
			m.cur.MarkFull()
		}
		s, err := m.arena.AcquireSlab()
		if err != nil {
			return nil, 0, fmt.Errorf("logmgr: acquire slab: %w", err)
		}
		m.cur = s
		m.writeOff = 0
	}
	return m.cur, m.writeOff, nil
}

// frameSize computes the total on-wire size (head+args+result+tail) for a
// call record, with each field 8-byte aligned.
func frameSize(a Args, r Result) int64 {
	body := align8(int64(len(a.Key))) + align8(int64(len(a.Value)))
	body += align8(int64(len(r.Status))) + align8(int64(len(r.Value))) + 8 /* Found flag */
	return frameHeaderSize + body + frameTailSize
}

// NewLog reserves space for and writes a complete frame in one call: the
// redundancy primitive calls this once per app-thread execution, after the
// application closure has already produced args+result, then enqueues the
// returned Frame onto the SPSC ring.
//
// startedAtMicros is the monotonic microsecond timestamp the caller sampled
// immediately before invoking the application closure.
func (m *Manager) NewLog(op OpTag, a Args, r Result, startedAtMicros int64, ticket *Ticket) (*Frame, error) {
	length := frameSize(a, r)
	slab, off, err := m.reserve(length)
	if err != nil {
		return nil, err
	}

	f := &Frame{
		slab:      slab,
		start:     off,
		length:    length,
		startedAt: startedAtMicros,
		ticket:    ticket,
		Op:        op,
		Args:      a,
		Result:    r,
	}
	if err := f.encode(slab.Bytes()); err != nil {
		return nil, err
	}

	m.writeOff = off + length
	slab.IncrLogs()
	f.committed = true
	return f, nil
}

// encode writes the frame's head, body records, and tail into buf at
// f.start, per the layout in frame.go's doc comment.
func (f *Frame) encode(buf []byte) error {
	p := f.start
	binary.LittleEndian.PutUint64(buf[p:p+8], uint64(f.length))
	binary.LittleEndian.PutUint64(buf[p+8:p+16], uint64(f.startedAt))
	p += frameHeaderSize

	writeField := func(data []byte) {
		n := int64(len(data))
		copy(buf[p:p+n], data)
		p += align8(n)
	}
	writeField(f.Args.Key)
	writeField(f.Args.Value)
	writeField([]byte(f.Result.Status))
	writeField(f.Result.Value)
	if f.Result.Found {
		binary.LittleEndian.PutUint64(buf[p:p+8], 1)
	} else {
		binary.LittleEndian.PutUint64(buf[p:p+8], 0)
	}
	p += 8

	tailOff := f.start + f.length - frameTailSize
	if p > tailOff {
		return fmt.Errorf("logmgr: encoded body overran frame bounds (p=%d tail=%d)", p, tailOff)
	}
	binary.LittleEndian.PutUint64(buf[tailOff:tailOff+8], uint64(f.length))
	binary.LittleEndian.PutUint64(buf[tailOff+8:tailOff+16], tailMagic)
	return nil
}

// Reclaim is called by the paired validator thread once it has finished
// re-running and comparing a frame. It verifies the head/tail invariant —
// any violation is a fatal integrity error, not a recoverable one — then
// increments the owning slab's reclaim count and returns the slab to the
// arena once the two-phase release condition is met.
func Reclaim(a *arena.Arena, f *Frame) {
	if err := f.checkInvariants(); err != nil {
		obs.Fatal("log frame integrity violation", "err", err)
	}
	n := f.slab.IncrReclaimed()
	if !f.slab.InUse() && n == f.slab.NrLogs() {
		a.ReleaseSlab(f.slab)
	}
}

// Slab exposes the frame's owning slab, for callers (e.g. the validator)
// that need to re-derive reclaim bookkeeping without re-threading it
// through every call site.
func (f *Frame) Slab() *arena.Slab { return f.slab }

// Ticket returns the frame's synchronous-mode validation ticket, if any.
func (f *Frame) Ticket() *Ticket { return f.ticket }
