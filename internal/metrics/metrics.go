package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Interrupt servicing and gesture decoding, partitioned by sensor name.

var (
	InterruptCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gesturebrainz",
		Subsystem: "dispatch",
		Name:      "cycles_total",
		Help:      "Total interrupt servicing cycles started",
	}, []string{"sensor"})

	InterruptCycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gesturebrainz",
		Subsystem: "dispatch",
		Name:      "cycle_errors_total",
		Help:      "Total interrupt servicing cycles aborted by an i/o error",
	}, []string{"sensor"})

	InterruptCycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gesturebrainz",
		Subsystem: "dispatch",
		Name:      "cycle_duration_seconds",
		Help:      "Interrupt servicing cycle duration",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"sensor"})

	WriteRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gesturebrainz",
		Subsystem: "dispatch",
		Name:      "write_retries_total",
		Help:      "Total failed register write attempts during interrupt servicing",
	}, []string{"sensor", "op"})

	InterruptTags = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gesturebrainz",
		Subsystem: "dispatch",
		Name:      "tags_total",
		Help:      "Total raw status tags dispatched",
	}, []string{"sensor", "tag"})

	Gestures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gesturebrainz",
		Subsystem: "decoder",
		Name:      "gestures_total",
		Help:      "Total gestures reported, by direction",
	}, []string{"sensor", "direction"})

	DecoderUsageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gesturebrainz",
		Subsystem: "decoder",
		Name:      "usage_errors_total",
		Help:      "Total FIFO batches rejected by the decoder",
	}, []string{"sensor"})

	FIFOSamples = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gesturebrainz",
		Subsystem: "fifo",
		Name:      "samples_per_read",
		Help:      "Samples returned per gesture FIFO read",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
	}, []string{"sensor"})
)
