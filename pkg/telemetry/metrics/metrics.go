// Package metrics exposes Prometheus instrumentation for the
// request-lifecycle control plane: stream duration, interrupt latency,
// active session count, and per-provider call outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "halo"

var (
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of StreamAudio requests currently being handled",
		},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of a full StreamAudio RPC from first message to terminal message",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"status"}, // success, error, interrupted
	)

	interruptLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interrupt_latency_seconds",
			Help:      "Latency from interrupt mark to request loop exit",
			Buckets:   []float64{.01, .025, .05, .1, .2, .4, .8, 1.6},
		},
		[]string{"outcome"},
	)

	sentencesEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_emitted_total",
			Help:      "Total number of text sentences emitted by the streaming workflow",
		},
		[]string{"status"}, // emitted, deduped
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of external provider calls (STT, LLM, TTS)",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"kind", "provider", "status"}, // kind: stt, llm, tts
	)

	memoryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Total MemoryCoordinator read/write operations",
		},
		[]string{"op", "status"}, // op: read, write
	)

	allMetrics = []prometheus.Collector{
		sessionsActive,
		requestDuration,
		interruptLatency,
		sentencesEmittedTotal,
		providerRequestDuration,
		memoryOperationsTotal,
	}
)

// MustRegister registers every metric in this package against reg. Call
// once at server startup.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(allMetrics...)
}

// SessionStarted increments the active session gauge.
func SessionStarted() { sessionsActive.Inc() }

// SessionEnded decrements the active session gauge and records the
// request's total duration.
func SessionEnded(status string, durationSeconds float64) {
	sessionsActive.Dec()
	requestDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordInterruptLatency records how long it took to exit the
// RequestOrchestrator loop after an interrupt mark was observed.
func RecordInterruptLatency(outcome string, durationSeconds float64) {
	interruptLatency.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordSentenceEmitted records one sentence emission outcome.
func RecordSentenceEmitted(status string) {
	sentencesEmittedTotal.WithLabelValues(status).Inc()
}

// RecordProviderRequest records one external provider call.
func RecordProviderRequest(kind, provider, status string, durationSeconds float64) {
	providerRequestDuration.WithLabelValues(kind, provider, status).Observe(durationSeconds)
}

// RecordMemoryOperation records one MemoryCoordinator read or write.
func RecordMemoryOperation(op, status string) {
	memoryOperationsTotal.WithLabelValues(op, status).Inc()
}
