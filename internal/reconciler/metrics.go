package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"timesheet-reconciliation-service/internal/matcher"
)

// runMetrics are registered on a registry of their own so that one process
// can hold several runs without collector clashes
type runMetrics struct {
	registry *prometheus.Registry

	results   *prometheus.CounterVec
	skipped   prometheus.Counter
	excluded  prometheus.Counter
	warnings  prometheus.Counter
	hints     prometheus.Counter
	fxCache   prometheus.Gauge
	matchRate prometheus.Gauge
	duration  prometheus.Histogram
}

func newRunMetrics() *runMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &runMetrics{
		registry: registry,
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_results_total",
			Help: "Source records resolved per matching pass",
		}, []string{"pass"}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_skipped_total",
			Help: "Source records that never entered matching",
		}),
		excluded: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_excluded_total",
			Help: "Skipped source records left out by the exclusion list",
		}),
		warnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_warnings_total",
			Help: "Data quality warnings raised while indexing planning records",
		}),
		hints: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_hints_total",
			Help: "Near-miss hints proposed for unmatched records",
		}),
		fxCache: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reconciler_fx_cache_entries",
			Help: "Currency pairs cached by the normalizer at the end of the run",
		}),
		matchRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reconciler_match_rate_percent",
			Help: "Matched over matchable source records",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciler_run_duration_seconds",
			Help:    "Wall time of a reconciliation run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

// observe records result and returns the registry holding the values
func (m *runMetrics) observe(result *Result) *prometheus.Registry {
	s := result.Summary

	m.results.WithLabelValues(matcher.PassComposite.String()).Add(float64(s.Composite))
	m.results.WithLabelValues(matcher.PassMultimatch.String()).Add(float64(s.Multimatch))
	m.results.WithLabelValues(matcher.PassUnmatched.String()).Add(float64(s.Unmatched))

	m.skipped.Add(float64(s.Skipped))
	m.excluded.Add(float64(s.Excluded))
	m.warnings.Add(float64(s.Warnings))
	m.hints.Add(float64(s.Hints))
	m.matchRate.Set(s.MatchRate)
	m.duration.Observe(result.Duration.Seconds())

	if result.ProcessingStats != nil {
		m.fxCache.Set(float64(result.ProcessingStats.FXCacheEntries))
	}

	return m.registry
}
