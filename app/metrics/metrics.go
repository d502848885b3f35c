// Package metrics records ingestion counters. Components receive a Sink so
// tests can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink receives pipeline observations. Implementations must be safe for
// concurrent use: every feed task of a cycle shares one sink.
type Sink interface {
	FeedFetched(duration time.Duration)
	FeedFetchFailed()
	EntryProcessed(result string)
	ValidationPassed()
	ValidationRejected(reason string)
	Enrichment(status string)
	Persistence(result string)
	CycleCompleted(duration time.Duration)
}

const namespace = "feed_archiver"

type Prometheus struct {
	feedsFetched     prometheus.Counter
	fetchDuration    prometheus.Histogram
	feedFetchErrors  prometheus.Counter
	entriesProcessed *prometheus.CounterVec
	validations      *prometheus.CounterVec
	enrichments      *prometheus.CounterVec
	persistence      *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus registers the collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		feedsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeds_fetched_total",
			Help:      "Total number of feed documents fetched and parsed",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of feed fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		feedFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetch_errors_total",
			Help:      "Total number of feeds that could not be fetched or parsed",
		}),
		entriesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_processed_total",
			Help:      "Total number of feed entries processed by result",
		}, []string{"result"}),
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_total",
			Help:      "Total number of entry validations by result and rejection reason",
		}, []string{"result", "reason"}),
		enrichments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_total",
			Help:      "Total number of enrichment gate decisions by status",
		}, []string{"status"}),
		persistence: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_total",
			Help:      "Total number of entry writes by result",
		}, []string{"result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of ingestion cycles in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (p *Prometheus) FeedFetched(duration time.Duration) {
	p.feedsFetched.Inc()
	p.fetchDuration.Observe(duration.Seconds())
}

func (p *Prometheus) FeedFetchFailed() {
	p.feedFetchErrors.Inc()
}

func (p *Prometheus) EntryProcessed(result string) {
	p.entriesProcessed.WithLabelValues(result).Inc()
}

func (p *Prometheus) ValidationPassed() {
	p.validations.WithLabelValues("ok", "").Inc()
}

func (p *Prometheus) ValidationRejected(reason string) {
	p.validations.WithLabelValues("rejected", reason).Inc()
}

func (p *Prometheus) Enrichment(status string) {
	p.enrichments.WithLabelValues(status).Inc()
}

func (p *Prometheus) Persistence(result string) {
	p.persistence.WithLabelValues(result).Inc()
}

func (p *Prometheus) CycleCompleted(duration time.Duration) {
	p.cycleDuration.Observe(duration.Seconds())
}

// Noop discards every observation.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) FeedFetched(time.Duration)    {}
func (Noop) FeedFetchFailed()             {}
func (Noop) EntryProcessed(string)        {}
func (Noop) ValidationPassed()            {}
func (Noop) ValidationRejected(string)    {}
func (Noop) Enrichment(string)            {}
func (Noop) Persistence(string)           {}
func (Noop) CycleCompleted(time.Duration) {}
