// Package redundancy implements C4: the run2/run primitive that drives one
// application-thread execution and its paired validator re-execution,
// logging both through C1-C3 and aborting the process on divergence.
package redundancy

import (
	"bytes"
	"time"

	"github.com/aoikida/Orthrus/internal/arena"
	"github.com/aoikida/Orthrus/internal/logmgr"
	"github.com/aoikida/Orthrus/internal/obs"
	"github.com/aoikida/Orthrus/internal/ring"
)

// Handler executes one recorded operation and produces its result. The
// same Handler type serves both the application side and the validator
// side; callers typically pass the identical underlying function for both
// (the whole point is re-running it), but Runner never assumes that.
type Handler func(op logmgr.OpTag, args logmgr.Args) logmgr.Result

// Config configures one Runner — one per (application thread, validator
// thread) pair, matching a single group's dispatcher.
type Config struct {
	Synchronous      bool
	SamplingRate     float64
	ConcurrencyLimit int
	Metrics          *obs.Metrics
}

// Runner ties together a log manager, its SPSC ring, the concurrency gate,
// and the sampler, for one application/validator pair.
type Runner struct {
	arena   *arena.Arena
	mgr     *logmgr.Manager
	ring    *ring.Ring
	gate    *gate
	sampler *sampler
	sync    bool
	metrics *obs.Metrics

	concurrencyInUse int64
	nowMicros        func() int64
}

// New builds a Runner. mgr and r must belong exclusively to this
// application/validator pair — Runner is not safe to share across groups.
func New(a *arena.Arena, mgr *logmgr.Manager, r *ring.Ring, cfg Config) *Runner {
	base := time.Now()
	rn := &Runner{
		arena:   a,
		mgr:     mgr,
		ring:    r,
		sampler: newSampler(cfg.SamplingRate),
		sync:    cfg.Synchronous,
		metrics: cfg.Metrics,
		nowMicros: func() int64 {
			return time.Since(base).Microseconds()
		},
	}
	rn.gate = newGate(cfg.ConcurrencyLimit, rn.onGateDelta)
	return rn
}

func (r *Runner) onGateDelta(delta int64) int64 {
	r.concurrencyInUse += delta
	if r.metrics != nil {
		r.metrics.ConcurrencyInUse.Set(float64(r.concurrencyInUse))
	}
	return r.concurrencyInUse
}

// Run2 is the redundant-execution entry point: it runs appFn once on the
// caller's own goroutine, decides whether this call is selected for
// validation (always, under synchronous mode; sampled, under async mode),
// and — if selected — commits a log frame for the paired validator
// goroutine to re-run validatorFn against and compare.
//
// Under synchronous mode Run2 blocks until the validator raises the
// frame's ticket before returning, so a caller never observes an
// application result that hasn't yet been independently confirmed.
func (r *Runner) Run2(op logmgr.OpTag, args logmgr.Args, appFn, validatorFn Handler) logmgr.Result {
	start := r.nowMicros()
	result := appFn(op, args)

	if !r.sync && !r.sampler.shouldSample() {
		if r.metrics != nil {
			r.metrics.FramesSampleSkip.Inc()
		}
		return result
	}

	var ticket *logmgr.Ticket
	if r.sync {
		ticket = logmgr.NewTicket()
	}

	frame, err := r.mgr.NewLog(op, args, result, start, ticket)
	if err != nil {
		obs.Fatal("log frame allocation failed", "err", err)
	}
	if r.metrics != nil {
		r.metrics.FramesCommitted.Inc()
	}

	stopNever := func() bool { return false }
	if !r.ring.Push(frame, stopNever) {
		obs.Fatal("log frame could not be enqueued")
	}
	if r.metrics != nil {
		r.metrics.RingDepth.Set(float64(r.ring.Depth()))
	}

	if r.sync {
		ticket.Wait()
	}
	return result
}

// Run is the single-function convenience form of Run2 for self-checking
// code: the same implementation serves as both the application and the
// validator side.
func (r *Runner) Run(op logmgr.OpTag, args logmgr.Args, fn Handler) logmgr.Result {
	return r.Run2(op, args, fn, fn)
}

// ValidateLoop runs on the paired validator goroutine: it drains frames
// from the ring, re-executes validatorFn against the recorded arguments,
// compares the outcome byte-for-byte against the application's recorded
// result, and fatally aborts the process on any mismatch. stop should
// report true once the validator should give up waiting on an empty ring
// (process shutdown).
func (r *Runner) ValidateLoop(validatorFn Handler, stop func() bool) {
	for {
		frame, ok := r.ring.Pop(stop)
		if !ok {
			return
		}
		r.validateOne(frame, validatorFn)
		if r.metrics != nil {
			r.metrics.RingDepth.Set(float64(r.ring.Depth()))
		}
	}
}

func (r *Runner) validateOne(frame *logmgr.Frame, validatorFn Handler) {
	// A ticketed frame came from a synchronous-mode call whose application
	// thread is already blocked waiting for this validation to finish —
	// skipping it under gate pressure would raise the ticket for a result
	// that was never actually re-checked. Block until a slot frees up
	// instead. Unticketed (async) frames may legitimately be skipped: the
	// caller has already returned and nothing is waiting on this frame.
	if frame.Ticket() != nil {
		r.gate.acquire()
	} else if !r.gate.tryAcquire() {
		if r.metrics != nil {
			r.metrics.FramesGateSkip.Inc()
		}
		r.finishFrame(frame)
		return
	}
	defer r.gate.release()

	got := validatorFn(frame.Op, frame.Args)
	if r.metrics != nil {
		r.metrics.FramesValidated.Inc()
	}
	if !resultsEqual(got, frame.Result) {
		if r.metrics != nil {
			r.metrics.DivergenceAborts.Inc()
		}
		obs.Fatal("validation divergence",
			"op", frame.Op,
			"app_result", frame.Result,
			"validator_result", got,
		)
	}
	r.finishFrame(frame)
}

func (r *Runner) finishFrame(frame *logmgr.Frame) {
	logmgr.Reclaim(r.arena, frame)
	if frame.Ticket() != nil {
		frame.Ticket().Raise()
	}
}

// resultsEqual deliberately excludes Status from the comparison. Status
// (STORED vs CREATED) is derived from whether a key existed *before* the
// application's own mutation — information the validator, running after
// that mutation has already landed in the live table, cannot independently
// re-derive without mutating a second time and skewing the label. What a
// silent bit-flip would actually corrupt is the payload the caller
// receives, so Found and Value are the part that gets bit-for-bit checked;
// Status is response-formatting metadata captured once at the application
// side. See the project's design notes for the analogous reasoning behind
// excluding DEL from this path entirely.
func resultsEqual(a, b logmgr.Result) bool {
	return a.Found == b.Found && bytes.Equal(a.Value, b.Value)
}
