/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics to analyze how the registry is used.
type MetricsCollector interface {
	// SetInFlightAmount sets the current number of tracked in-flight entries.
	SetInFlightAmount(int)

	// IncDispatchStarts increments the total number of dispatches that started a new operation.
	IncDispatchStarts()

	// IncDispatchJoins increments the total number of dispatches that joined an operation
	// already in flight.
	IncDispatchJoins()

	// IncFactoryFailures increments the total number of factories that failed synchronously
	// or returned an invalid result.
	IncFactoryFailures()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for the registry.
type PrometheusMetrics struct {
	InFlightAmount       *prometheus.GaugeVec
	DispatchStartsTotal  *prometheus.CounterVec
	DispatchJoinsTotal   *prometheus.CounterVec
	FactoryFailuresTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	inFlightAmount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "inflight_entries_amount",
			Help:        "Current number of tracked in-flight entries.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	dispatchStartsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "inflight_dispatch_starts_total",
			Help:        "Number of dispatches that started a new in-flight operation.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	dispatchJoinsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "inflight_dispatch_joins_total",
			Help:        "Number of dispatches that joined an operation already in flight.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	factoryFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "inflight_factory_failures_total",
			Help:        "Number of factories that failed synchronously or returned an invalid result.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		InFlightAmount:       inFlightAmount,
		DispatchStartsTotal:  dispatchStartsTotal,
		DispatchJoinsTotal:   dispatchJoinsTotal,
		FactoryFailuresTotal: factoryFailuresTotal,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		InFlightAmount:       pm.InFlightAmount.MustCurryWith(labels),
		DispatchStartsTotal:  pm.DispatchStartsTotal.MustCurryWith(labels),
		DispatchJoinsTotal:   pm.DispatchJoinsTotal.MustCurryWith(labels),
		FactoryFailuresTotal: pm.FactoryFailuresTotal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.InFlightAmount,
		pm.DispatchStartsTotal,
		pm.DispatchJoinsTotal,
		pm.FactoryFailuresTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.InFlightAmount)
	prometheus.Unregister(pm.DispatchStartsTotal)
	prometheus.Unregister(pm.DispatchJoinsTotal)
	prometheus.Unregister(pm.FactoryFailuresTotal)
}

// SetInFlightAmount sets the current number of tracked in-flight entries.
func (pm *PrometheusMetrics) SetInFlightAmount(amount int) {
	pm.InFlightAmount.With(nil).Set(float64(amount))
}

// IncDispatchStarts increments the total number of dispatches that started a new operation.
func (pm *PrometheusMetrics) IncDispatchStarts() {
	pm.DispatchStartsTotal.With(nil).Inc()
}

// IncDispatchJoins increments the total number of dispatches that joined an in-flight operation.
func (pm *PrometheusMetrics) IncDispatchJoins() {
	pm.DispatchJoinsTotal.With(nil).Inc()
}

// IncFactoryFailures increments the total number of failed factories.
func (pm *PrometheusMetrics) IncFactoryFailures() {
	pm.FactoryFailuresTotal.With(nil).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetInFlightAmount(int) {}
func (disabledMetrics) IncDispatchStarts()    {}
func (disabledMetrics) IncDispatchJoins()     {}
func (disabledMetrics) IncFactoryFailures()   {}
