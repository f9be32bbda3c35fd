package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	totalCycles  atomic.Int64
	totalSamples atomic.Int64
)

var (
	CaptureCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neurons_capture_cycles_total",
		Help: "Completed enable/forward/collect cycles",
	})

	SamplesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurons_samples_recorded_total",
		Help: "Samples appended to a capture run",
	}, []string{"component"})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "neurons_inference_duration_seconds",
		Help:    "Duration of one instrumented forward pass",
		Buckets: prometheus.DefBuckets,
	})

	InferenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neurons_inference_errors_total",
		Help: "Forward passes that failed",
	})

	SkippedExamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neurons_skipped_examples_total",
		Help: "Examples skipped under the skip failure policy",
	})

	ContextTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neurons_context_truncations_total",
		Help: "Token sequences cut down to the context window",
	})

	ContextLengthHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "neurons_context_length_tokens",
		Help:    "Distribution of context lengths processed",
		Buckets: []float64{8, 16, 32, 64, 128, 256, 512, 1024},
	})

	ShapeFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurons_shape_fallbacks_total",
		Help: "Tensors flattened because no reduction rule matched",
	}, []string{"stage"})

	NormalizationDiscards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurons_normalization_discards_total",
		Help: "Samples dropped by majority-shape filtering",
	}, []string{"component"})

	NumericalInstability = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurons_numerical_instability_total",
		Help: "NaN/Inf values seen in captured tensors",
	}, []string{"component", "type"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neurons_analysis_duration_seconds",
		Help:    "Per-component analysis time",
		Buckets: prometheus.DefBuckets,
	}, []string{"component"})

	PersistenceBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurons_persistence_bytes_total",
		Help: "Bytes written for capture runs",
	}, []string{"file"})

	ExportedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurons_exported_rows_total",
		Help: "Feature rows sent to the vector store",
	}, []string{"component"})
)

func RecordCycle(duration time.Duration, tokens int) {
	CaptureCyclesTotal.Inc()
	totalCycles.Add(1)
	InferenceDuration.Observe(duration.Seconds())
	ContextLengthHistogram.Observe(float64(tokens))
}

func RecordSample(component string) {
	SamplesRecorded.WithLabelValues(component).Inc()
	totalSamples.Add(1)
}

func RecordInferenceError(skipped bool) {
	InferenceErrors.Inc()
	if skipped {
		SkippedExamples.Inc()
	}
}

func RecordTruncation() {
	ContextTruncations.Inc()
}

func RecordShapeFallback(stage string) {
	ShapeFallbacks.WithLabelValues(stage).Inc()
}

func RecordDiscards(component string, n int) {
	if n > 0 {
		NormalizationDiscards.WithLabelValues(component).Add(float64(n))
	}
}

func RecordNumericalInstability(component string, nanCount, infCount int) {
	if nanCount > 0 {
		NumericalInstability.WithLabelValues(component, "nan").Add(float64(nanCount))
	}
	if infCount > 0 {
		NumericalInstability.WithLabelValues(component, "inf").Add(float64(infCount))
	}
}

func RecordAnalysis(component string, duration time.Duration) {
	AnalysisDuration.WithLabelValues(component).Observe(duration.Seconds())
}

func RecordBytesWritten(file string, n int64) {
	PersistenceBytes.WithLabelValues(file).Add(float64(n))
}

func RecordExport(component string, rows int) {
	ExportedRows.WithLabelValues(component).Add(float64(rows))
}

// Totals returns process-wide cycle and sample counts.
func Totals() (cycles, samples int64) {
	return totalCycles.Load(), totalSamples.Load()
}
