package redundancy

import "sync/atomic"

// sampler decides, for async-mode validation, whether a given frame should
// be validated at all (the sampling rate is mutually exclusive with
// synchronous mode — enforced earlier at config load). It is a simple
// deterministic counter/threshold rather than a random draw, so the same
// sequence of calls always samples the same fraction — useful for test
// reproducibility.
type sampler struct {
	rate  float64
	calls atomic.Uint64
}

func newSampler(rate float64) *sampler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &sampler{rate: rate}
}

// shouldSample reports whether the n-th call (1-indexed) falls inside the
// configured rate, using a Bresenham-style running accumulator so the
// sampled fraction converges to rate exactly rather than only in
// expectation.
func (s *sampler) shouldSample() bool {
	if s.rate >= 1 {
		return true
	}
	if s.rate <= 0 {
		return false
	}
	n := s.calls.Add(1)
	// target = floor(n * rate); sample iff target advanced on this call.
	target := uint64(float64(n) * s.rate)
	prevTarget := uint64(float64(n-1) * s.rate)
	return target > prevTarget
}
