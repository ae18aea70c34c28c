package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// decode and correlation pipeline.
type Metrics struct {
	FilesDecoded    prometheus.Counter
	FramesDecoded   prometheus.Counter
	RecordsDecoded  prometheus.Counter
	DecodeFailures  prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Boundary scan metrics.
	ScanCandidatesRejected prometheus.Counter
	StructuralAnomalies    prometheus.Counter
	FileScanDuration       prometheus.Histogram

	// Correlation metrics.
	SecondsCorrelated   prometheus.Counter
	ClustersFound       prometheus.Counter
	ReportsPublished    prometheus.Counter
	MergedPeaks         prometheus.Histogram
	CorrelationDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FilesDecoded,
		m.FramesDecoded,
		m.RecordsDecoded,
		m.DecodeFailures,
		m.PipelineRunning,
		m.ScanCandidatesRejected,
		m.StructuralAnomalies,
		m.FileScanDuration,
		m.SecondsCorrelated,
		m.ClustersFound,
		m.ReportsPublished,
		m.MergedPeaks,
		m.CorrelationDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "files_decoded_total",
			Help:      "Total raw capture files scanned successfully.",
		}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "frames_decoded_total",
			Help:      "Total sensor-second frames decoded.",
		}),
		RecordsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "records_decoded_total",
			Help:      "Total peak-detection data records decoded.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "decode_failures_total",
			Help:      "Total files or frames abandoned due to decode errors.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lma_phasor",
			Name:      "pipeline_running",
			Help:      "1 while a batch is being processed, 0 otherwise.",
		}),
		ScanCandidatesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "scan_candidates_rejected_total",
			Help:      "Forward-scan offsets that did not decode as status records.",
		}),
		StructuralAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "structural_anomalies_total",
			Help:      "Backward scans stopped early by files truncated at the start.",
		}),
		FileScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lma_phasor",
			Name:      "file_scan_duration_seconds",
			Help:      "Duration of boundary scans per capture file.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SecondsCorrelated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "seconds_correlated_total",
			Help:      "Sensor-seconds run through the coincidence scan.",
		}),
		ClustersFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "clusters_found_total",
			Help:      "Candidate clusters accepted by the coincidence scan.",
		}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma_phasor",
			Name:      "reports_published_total",
			Help:      "Cluster reports written to the sink.",
		}),
		MergedPeaks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lma_phasor",
			Name:      "merged_peaks",
			Help:      "Merged peak count per correlated second.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
		}),
		CorrelationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lma_phasor",
			Name:      "correlation_duration_seconds",
			Help:      "Duration of merge plus coincidence scan per second.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
	}
}
