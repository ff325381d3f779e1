package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"freshledger/pkg/domain"
)

// DefaultMetricsNamespace prefixes metric names when no namespace is given.
const DefaultMetricsNamespace = "freshledger"

// PrometheusMetricsRecorder counts registry operations by status and
// records their latency.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the recorder's collectors on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer, namespace string) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Total number of registry operations by outcome",
		}, []string{"operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operation_duration_seconds",
			Help:      "Registry operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// InventoryCollector exports inventory gauges computed from a store snapshot
// at scrape time.
type InventoryCollector struct {
	store     domain.PersistentStore
	analytics *AnalyticsEngine
	clock     Clock
	products  *prometheus.Desc
	value    *prometheus.Desc
	expired  *prometheus.Desc
}

// NewInventoryCollector builds a collector over store. Register it with a
// prometheus.Registerer to expose it.
func NewInventoryCollector(store domain.PersistentStore, clock Clock, namespace string) *InventoryCollector {
	if clock == nil {
		clock = systemClock{}
	}
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}
	return &InventoryCollector{
		store:     store,
		analytics: NewAnalyticsEngine(store),
		clock:     clock,
		products: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "inventory", "products"),
			"Number of products by location and category",
			[]string{"location", "category"}, nil,
		),
		value: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "inventory", "value"),
			"Sum of price times quantity over non-expired products",
			nil, nil,
		),
		expired: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "inventory", "expired_products"),
			"Number of expired products",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *InventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.products
	ch <- c.value
	ch <- c.expired
}

// Collect implements prometheus.Collector.
func (c *InventoryCollector) Collect(ch chan<- prometheus.Metric) {
	now := c.clock.Now()
	type key struct {
		location domain.Location
		category domain.Category
	}
	counts := make(map[key]int)
	var expired int
	for _, p := range c.store.ListProducts() {
		counts[key{p.Location, p.Category}]++
		if p.IsExpired(now) {
			expired++
		}
	}
	for _, loc := range domain.Locations() {
		for _, cat := range domain.Categories() {
			ch <- prometheus.MustNewConstMetric(c.products, prometheus.GaugeValue,
				float64(counts[key{loc, cat}]), loc.String(), cat.String())
		}
	}
	if value, err := c.analytics.TotalInventoryValue(context.Background(), now); err != nil {
		ch <- prometheus.NewInvalidMetric(c.value, err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, float64(value))
	}
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.GaugeValue, float64(expired))
}
