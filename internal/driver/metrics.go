package driver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/selector"
)

// Metrics holds Prometheus metrics for the driver loop.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	ArtifactsTotal   prometheus.Counter
	ArtifactFiles    prometheus.Histogram
	CheckpointsTotal prometheus.Counter
	CheckpointBytes  prometheus.Histogram
	ErrorsTotal      *prometheus.CounterVec
	Correlation      *prometheus.GaugeVec
}

// NewMetrics registers and returns driver metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bepsel_events_total",
			Help: "Build events processed by kind.",
		}, []string{"kind"}),
		ArtifactsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bepsel_artifacts_total",
			Help: "Artifacts emitted.",
		}),
		ArtifactFiles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bepsel_artifact_files",
			Help:    "Files per emitted artifact.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1 .. 128
		}),
		CheckpointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bepsel_checkpoints_total",
			Help: "Checkpoints written.",
		}),
		CheckpointBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bepsel_checkpoint_bytes",
			Help:    "Size of serialized selector state in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8), // 64B .. ~1MB
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bepsel_errors_total",
			Help: "Non-fatal driver errors by operation.",
		}, []string{"op"}),
		Correlation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bepsel_correlation_ids",
			Help: "File set ids held by the selector by state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.ArtifactsTotal,
		m.ArtifactFiles,
		m.CheckpointsTotal,
		m.CheckpointBytes,
		m.ErrorsTotal,
		m.Correlation,
	)

	return m
}

// Hooks returns driver Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnEvent: func(kind bep.Kind, _ bool) {
			m.EventsTotal.WithLabelValues(kind.String()).Inc()
		},
		OnArtifact: func(_ int64, a selector.Artifact) {
			m.ArtifactsTotal.Inc()
			m.ArtifactFiles.Observe(float64(len(a.Files)))
		},
		OnCheckpoint: func(bytes int) {
			m.CheckpointsTotal.Inc()
			m.CheckpointBytes.Observe(float64(bytes))
		},
		OnError: func(op string) {
			m.ErrorsTotal.WithLabelValues(op).Inc()
		},
		OnSelectorStats: func(st selector.Stats) {
			m.Correlation.WithLabelValues("pending").Set(float64(st.Pending))
			m.Correlation.WithLabelValues("resolved").Set(float64(st.Resolved))
			m.Correlation.WithLabelValues("consumed").Set(float64(st.Consumed))
		},
	}
}
