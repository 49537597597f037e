package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Simulation metrics
	backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratlab_backtests_total",
			Help: "Total number of backtest runs",
		},
		[]string{"strategy"},
	)

	backtestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratlab_backtest_duration_seconds",
			Help:    "Distribution of backtest run durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// Optimization metrics
	candidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratlab_optimization_candidates_total",
			Help: "Total number of optimization candidates evaluated",
		},
		[]string{"searcher"},
	)

	candidateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratlab_optimization_candidate_failures_total",
			Help: "Total number of optimization candidates discarded after errors",
		},
		[]string{"searcher"},
	)

	// Numeric hygiene metrics
	numericAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratlab_numeric_anomalies_total",
			Help: "Total number of NaN or Inf values clamped to neutral",
		},
		[]string{"component"},
	)

	// Walk-forward metrics
	walkforwardWindows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratlab_walkforward_windows_total",
			Help: "Total number of walk-forward windows evaluated",
		},
		[]string{"valid"},
	)
)

func init() {
	prometheus.MustRegister(backtestsTotal)
	prometheus.MustRegister(backtestDuration)
	prometheus.MustRegister(candidatesTotal)
	prometheus.MustRegister(candidateFailures)
	prometheus.MustRegister(numericAnomalies)
	prometheus.MustRegister(walkforwardWindows)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBacktest records a completed backtest run.
func RecordBacktest(strategy string, seconds float64) {
	backtestsTotal.WithLabelValues(strategy).Inc()
	backtestDuration.WithLabelValues(strategy).Observe(seconds)
}

// RecordCandidate records one evaluated optimization candidate.
func RecordCandidate(searcher string) {
	candidatesTotal.WithLabelValues(searcher).Inc()
}

// RecordCandidateFailure records a discarded optimization candidate.
func RecordCandidateFailure(searcher string) {
	candidateFailures.WithLabelValues(searcher).Inc()
}

// RecordNumericAnomaly records a NaN/Inf clamped to neutral.
func RecordNumericAnomaly(component string) {
	numericAnomalies.WithLabelValues(component).Inc()
}

// RecordWalkforwardWindow records an evaluated walk-forward window.
func RecordWalkforwardWindow(valid bool) {
	label := "false"
	if valid {
		label = "true"
	}
	walkforwardWindows.WithLabelValues(label).Inc()
}
