// Package promcollector exports pdbcache metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc := promcollector.New(reg, "pdbcache")
//	db, _ := pdbcache.New(tbl, store, pdbcache.WithMetricsCollector(mc))
//	promcollector.RegisterCacheStats(reg, "pdbcache", db.Stats)
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package promcollector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/pdbcache"
	"github.com/hupe1980/pdbcache/blockcache"
)

// Collector implements pdbcache.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	gets        *prometheus.CounterVec
	batchIDs    *prometheus.CounterVec
	reloads     *prometheus.CounterVec
	reloadSize  prometheus.Histogram
	invalidates *prometheus.CounterVec
	writes      *prometheus.CounterVec
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of cache operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gets_total",
			Help:      "Point reads by result",
		}, []string{"result"}),
		batchIDs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_ids_total",
			Help:      "Ids requested through batch reads by result",
		}, []string{"result"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_reloads_total",
			Help:      "Block reloads from the table",
		}, []string{"status"}),
		reloadSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_reload_records",
			Help:      "Records per reloaded block",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		invalidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_invalidations_total",
			Help:      "Blocks marked stale",
		}, []string{"status"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Table writes",
		}, []string{"op", "status"}),
	}

	reg.MustRegister(c.opLatency, c.gets, c.batchIDs, c.reloads, c.reloadSize, c.invalidates, c.writes)
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordGet implements pdbcache.MetricsCollector.
func (c *Collector) RecordGet(d time.Duration, found bool, err error) {
	c.opLatency.WithLabelValues("get", status(err)).Observe(d.Seconds())
	switch {
	case err != nil:
		c.gets.WithLabelValues("error").Inc()
	case found:
		c.gets.WithLabelValues("found").Inc()
	default:
		c.gets.WithLabelValues("not_found").Inc()
	}
}

// RecordGetMany implements pdbcache.MetricsCollector.
func (c *Collector) RecordGetMany(requested, found int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("get_many", status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	c.batchIDs.WithLabelValues("found").Add(float64(found))
	c.batchIDs.WithLabelValues("not_found").Add(float64(requested - found))
}

// RecordReload implements pdbcache.MetricsCollector.
func (c *Collector) RecordReload(records int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("reload", status(err)).Observe(d.Seconds())
	c.reloads.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.reloadSize.Observe(float64(records))
	}
}

// RecordInvalidate implements pdbcache.MetricsCollector.
func (c *Collector) RecordInvalidate(err error) {
	c.invalidates.WithLabelValues(status(err)).Inc()
}

// RecordWrite implements pdbcache.MetricsCollector.
func (c *Collector) RecordWrite(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
	c.writes.WithLabelValues(op, status(err)).Inc()
}

var _ pdbcache.MetricsCollector = (*Collector)(nil)

// RegisterCacheStats exposes block cache counters read from stats on scrape.
func RegisterCacheStats(reg prometheus.Registerer, namespace string, stats func() blockcache.Stats) {
	counter := func(name, help string, get func(blockcache.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blockcache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(stats())) })
	}

	reg.MustRegister(
		counter("hits_total", "Blocks served fresh from the cache store", func(s blockcache.Stats) int64 { return s.Hits }),
		counter("misses_total", "Blocks absent from the cache store", func(s blockcache.Stats) int64 { return s.Misses }),
		counter("stale_reads_total", "Blocks found stale", func(s blockcache.Stats) int64 { return s.StaleReads }),
		counter("degraded_reads_total", "Reads served from the table after a cache store failure", func(s blockcache.Stats) int64 { return s.Degraded }),
	)
}
