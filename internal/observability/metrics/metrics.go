// Package metrics holds the Prometheus collectors for the watch loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prefix = "sillyreader_"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics bundles the loop's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	FetchesTotal     *prometheus.CounterVec
	SkewRetriesTotal prometheus.Counter
	TransitionsTotal *prometheus.CounterVec
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	RenderDuration   prometheus.Histogram
	CommitErrors     prometheus.Counter
	NextPollSeconds  prometheus.Gauge
	LastFetchUnix    prometheus.Gauge
}

// New builds the collectors on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "fetches_total",
			Help: "Status fetches by resulting state",
		}, []string{"state"}),
		SkewRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "skew_retries_total",
			Help: "Fetches discarded because the source had not rotated yet",
		}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "transitions_total",
			Help: "Novel states announced, by state kind",
		}, []string{"state"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "dispatch_total",
			Help: "Channel deliveries by channel and result",
		}, []string{"channel", "result"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "dispatch_duration_seconds",
			Help:    "Channel delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "render_duration_seconds",
			Help:    "Image render duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
		}),
		CommitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "state_commit_errors_total",
			Help: "Failed writes of the last notified state",
		}),
		NextPollSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "next_poll_seconds",
			Help: "Seconds until the next scheduled fetch, as of the last cycle",
		}),
		LastFetchUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "last_fetch_timestamp_seconds",
			Help: "Unix time of the last fetch",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FetchesTotal,
		m.SkewRetriesTotal,
		m.TransitionsTotal,
		m.DispatchTotal,
		m.DispatchDuration,
		m.RenderDuration,
		m.CommitErrors,
		m.NextPollSeconds,
		m.LastFetchUnix,
	)
	return m
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(state string, at time.Time) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(state).Inc()
	m.LastFetchUnix.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveSkew() {
	if m == nil {
		return
	}
	m.SkewRetriesTotal.Inc()
}

// ObserveTransition counts an announced state. state is a Kind name, never
// a raw server value, so the label set stays bounded.
func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveDispatch(channel string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	m.DispatchTotal.WithLabelValues(channel, result).Inc()
	m.DispatchDuration.WithLabelValues(channel).Observe(took.Seconds())
}

func (m *Metrics) ObserveRender(took time.Duration) {
	if m == nil {
		return
	}
	m.RenderDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveCommitError() {
	if m == nil {
		return
	}
	m.CommitErrors.Inc()
}

func (m *Metrics) SetNextPoll(wait time.Duration) {
	if m == nil {
		return
	}
	m.NextPollSeconds.Set(wait.Seconds())
}
