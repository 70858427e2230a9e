// Package metrics exposes audit results as Prometheus series.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/models"
)

const (
	namespace  = "lighthouse"
	DefaultJob = "lighthouse_report"
)

var durationBuckets = []float64{5, 15, 30, 60, 120, 300, 600, 1200}

// Recorder owns a registry so CLI pushes and server scrapes never mix with
// the global default registry.
type Recorder struct {
	registry    *prometheus.Registry
	scores      *prometheus.GaugeVec
	audits      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastRun     prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		scores: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "category_score",
			Help:      "Latest Lighthouse category score in [0,1]",
		}, []string{"url", "form_factor", "category"}),
		audits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_total",
			Help:      "Number of reports aggregated into the summary",
		}, []string{"form_factor"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Number of non-fatal failures by kind",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete pipeline runs",
			Buckets:   durationBuckets,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}
	r.registry.MustRegister(r.scores, r.audits, r.failures, r.runDuration, r.lastRun)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRecords replaces the score gauges with the given summary records.
func (r *Recorder) ObserveRecords(records []models.MetricsRecord) {
	r.scores.Reset()
	for _, rec := range records {
		r.audits.WithLabelValues(rec.RunType).Inc()
		r.scores.WithLabelValues(rec.URL, rec.RunType, "performance").Set(rec.Categories.Performance)
		r.scores.WithLabelValues(rec.URL, rec.RunType, "accessibility").Set(rec.Categories.Accessibility)
		r.scores.WithLabelValues(rec.URL, rec.RunType, "seo").Set(rec.Categories.SEO)
	}
}

func (r *Recorder) ObserveFailures(errs []*failure.Error) {
	for _, e := range errs {
		r.failures.WithLabelValues(string(e.Kind)).Inc()
	}
}

func (r *Recorder) ObserveRun(duration time.Duration, finished time.Time) {
	r.runDuration.Observe(duration.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

// Handler serves the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Push replaces the job's series on a Pushgateway.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = DefaultJob
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
