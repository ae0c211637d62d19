package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics carries the validator-side and dispatcher-side counters an
// operator or test harness needs to observe the runtime's behavior from.
type Metrics struct {
	FramesCommitted   prometheus.Counter
	FramesValidated   prometheus.Counter
	FramesSampleSkip  prometheus.Counter
	FramesGateSkip    prometheus.Counter
	DivergenceAborts  prometheus.Counter
	SlabsAcquired     prometheus.Counter
	SlabsReleased     prometheus.Counter
	RingDepth         prometheus.Gauge
	ConcurrencyInUse  prometheus.Gauge
}

// NewMetrics registers a fresh set of counters against the default registry.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		FramesCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_committed_total",
			Help: "Log frames committed by application threads.",
		}),
		FramesValidated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_validated_total",
			Help: "Log frames re-executed and compared by validator threads.",
		}),
		FramesSampleSkip: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_sample_skipped_total",
			Help: "Calls for which no frame was logged or validated because the sampling rate did not select them.",
		}),
		FramesGateSkip: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_gate_skipped_total",
			Help: "Frames reclaimed without validation because the concurrency-limit gate was saturated.",
		}),
		DivergenceAborts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "divergence_aborts_total",
			Help: "Process aborts triggered by a validator/application mismatch.",
		}),
		SlabsAcquired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "slabs_acquired_total",
			Help: "Slabs pulled from the arena free list or freshly allocated.",
		}),
		SlabsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "slabs_released_total",
			Help: "Slabs returned to the arena free list.",
		}),
		RingDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ring_depth",
			Help: "Most recently observed SPSC ring occupancy.",
		}),
		ConcurrencyInUse: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "validation_gate_in_use",
			Help: "Frames currently occupying the concurrency-limit gate.",
		}),
	}
}

// ServeMetrics starts the Prometheus /metrics endpoint in the background.
// Errors are logged, not fatal — metrics are observability, not correctness.
func ServeMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			Errorf("metrics endpoint stopped: %v", err)
		}
	}()
}
