// Package metrics exports sync activity as Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notopress"

// Observer records sync, asset and API activity. A nil *Observer is valid
// and records nothing.
type Observer struct {
	pages     *prometheus.CounterVec
	assets    *prometheus.CounterVec
	retries   prometheus.Counter
	render    prometheus.Histogram
	lastRun   prometheus.Gauge
	runErrors prometheus.Counter
}

// New registers the collectors on reg, reusing any already registered under
// the same names. A nil reg means prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observer{}
	var err error

	if o.pages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_total",
		Help:      "Pages processed by sync runs, by terminal outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if o.assets, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assets_total",
		Help:      "Asset fetches, by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if o.retries, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_retries_total",
		Help:      "Notion API requests retried after a rate-limit response.",
	})); err != nil {
		return nil, err
	}
	if o.render, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "render_duration_seconds",
		Help:      "Time to build and render one page.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if o.lastRun, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last sync run finished.",
	})); err != nil {
		return nil, err
	}
	if o.runErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_errors_total",
		Help:      "Sync runs that ended with an error.",
	})); err != nil {
		return nil, err
	}

	return o, nil
}

// register adds c to reg, returning the existing collector when one with the
// same descriptor is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("registering collector: %w", err)
	}
	return c, nil
}

// PageOutcome counts a page's terminal outcome.
func (o *Observer) PageOutcome(outcome string) {
	if o == nil {
		return
	}
	o.pages.WithLabelValues(outcome).Inc()
}

// AssetFetched counts an asset fetch outcome.
func (o *Observer) AssetFetched(outcome string) {
	if o == nil {
		return
	}
	o.assets.WithLabelValues(outcome).Inc()
}

// APIRetried counts one backoff between API attempts.
func (o *Observer) APIRetried() {
	if o == nil {
		return
	}
	o.retries.Inc()
}

// ObserveRender records how long a page render took.
func (o *Observer) ObserveRender(d time.Duration) {
	if o == nil {
		return
	}
	o.render.Observe(d.Seconds())
}

// RunFinished stamps the end of a sync run.
func (o *Observer) RunFinished(at time.Time, err error) {
	if o == nil {
		return
	}
	o.lastRun.Set(float64(at.Unix()))
	if err != nil {
		o.runErrors.Inc()
	}
}
