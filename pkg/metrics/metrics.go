package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Analysis metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	BatchFailures    prometheus.Counter

	// Collection and preprocessing metrics
	CollectionFailures *prometheus.CounterVec
	PointsDropped      *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Score distributions
	ProfileScore  prometheus.Histogram
	FusionQuality prometheus.Histogram

	// Publishing metrics
	ResultsPublished *prometheus.CounterVec
)

// Init initializes all metrics and registers them with a private registry
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		AnalysesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuescore_analyses_total",
				Help: "Total number of customer analyses by type and outcome",
			},
			[]string{"analysis_type", "status"},
		)

		AnalysisDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valuescore_analysis_duration_seconds",
				Help:    "Wall-clock duration of a single customer analysis",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"analysis_type"},
		)

		BatchFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "valuescore_batch_failures_total",
				Help: "Customers omitted from batch results because their analysis failed",
			},
		)

		CollectionFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuescore_collection_failures_total",
				Help: "Collector calls that failed and degraded a modality to empty",
			},
			[]string{"modality"},
		)

		PointsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuescore_points_dropped_total",
				Help: "Raw records dropped during preprocessing",
			},
			[]string{"modality"},
		)

		BreakerRejections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuescore_breaker_rejections_total",
				Help: "Collector calls rejected by an open circuit breaker",
			},
			[]string{"modality"},
		)

		ProfileScore = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "valuescore_profile_score",
				Help:    "Overall score of computed customer value profiles",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		)

		FusionQuality = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "valuescore_fusion_quality",
				Help:    "Fusion quality of analysed customers",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		)

		ResultsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuescore_results_published_total",
				Help: "Analysis results published to the message broker",
			},
			[]string{"queue", "status"},
		)

		registry.MustRegister(
			AnalysesTotal,
			AnalysisDuration,
			BatchFailures,
			CollectionFailures,
			PointsDropped,
			BreakerRejections,
			ProfileScore,
			FusionQuality,
			ResultsPublished,
		)

		logger.Debug("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled && registry != nil
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if !IsMetricsEnabled() {
		return
	}
	handler := promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
	mux.Handle(defaultMetricsPath, handler)
}

// StartMetrics initializes metrics collection
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Debug("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
}

// RecordAnalysis records the outcome of one analysis
func RecordAnalysis(analysisType, status string, duration time.Duration) {
	if !IsMetricsEnabled() {
		return
	}
	AnalysesTotal.WithLabelValues(analysisType, status).Inc()
	AnalysisDuration.WithLabelValues(analysisType).Observe(duration.Seconds())
}

// RecordBatchFailure records a customer dropped from a batch
func RecordBatchFailure() {
	if IsMetricsEnabled() {
		BatchFailures.Inc()
	}
}

// RecordCollectionFailure records a failed collector call
func RecordCollectionFailure(modality string) {
	if IsMetricsEnabled() {
		CollectionFailures.WithLabelValues(modality).Inc()
	}
}

// RecordPointDropped records a raw record dropped during preprocessing
func RecordPointDropped(modality string) {
	if IsMetricsEnabled() {
		PointsDropped.WithLabelValues(modality).Inc()
	}
}

// RecordBreakerRejection records a call short-circuited by an open breaker
func RecordBreakerRejection(modality string) {
	if IsMetricsEnabled() {
		BreakerRejections.WithLabelValues(modality).Inc()
	}
}

// ObserveProfileScore records the overall score of a value profile
func ObserveProfileScore(score float64) {
	if IsMetricsEnabled() {
		ProfileScore.Observe(score)
	}
}

// ObserveFusionQuality records the fusion quality of an analysis
func ObserveFusionQuality(quality float64) {
	if IsMetricsEnabled() {
		FusionQuality.Observe(quality)
	}
}

// RecordResultPublish records an attempt to publish a result
func RecordResultPublish(queue, status string) {
	if IsMetricsEnabled() {
		ResultsPublished.WithLabelValues(queue, status).Inc()
	}
}
