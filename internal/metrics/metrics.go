// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers bot metrics. It satisfies the cache and scheduler
// reporting interfaces.
type Collector struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	catalogErrors   prometheus.Counter
	digestsSent     prometheus.Counter
	digestsEmpty    prometheus.Counter
	digestsFailed   prometheus.Counter
	handlerDuration prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boskobot_cache_hits_total",
			Help: "Catalog cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boskobot_cache_misses_total",
			Help: "Catalog cache misses (producer invocations).",
		}),
		catalogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boskobot_catalog_errors_total",
			Help: "Failed catalog requests.",
		}),
		digestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boskobot_digests_sent_total",
			Help: "Daily digests delivered.",
		}),
		digestsEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boskobot_digests_empty_total",
			Help: "Digest runs that matched nothing and sent nothing.",
		}),
		digestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boskobot_digests_failed_total",
			Help: "Digest runs whose delivery failed.",
		}),
		handlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boskobot_handler_duration_seconds",
			Help:    "Update handling latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.catalogErrors,
		c.digestsSent,
		c.digestsEmpty,
		c.digestsFailed,
		c.handlerDuration,
	)
	return c
}

// CacheHit records a cache hit.
func (c *Collector) CacheHit() { c.cacheHits.Inc() }

// CacheMiss records a producer invocation.
func (c *Collector) CacheMiss() { c.cacheMisses.Inc() }

// CatalogError records a failed catalog request.
func (c *Collector) CatalogError() { c.catalogErrors.Inc() }

// DigestSent records a delivered digest.
func (c *Collector) DigestSent() { c.digestsSent.Inc() }

// DigestEmpty records a digest run with no matches.
func (c *Collector) DigestEmpty() { c.digestsEmpty.Inc() }

// DigestFailed records a digest delivery failure.
func (c *Collector) DigestFailed() { c.digestsFailed.Inc() }

// ObserveHandler records one update's handling latency.
func (c *Collector) ObserveHandler(d time.Duration) {
	c.handlerDuration.Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr. It blocks, so run it in a goroutine.
func Serve(addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return http.ListenAndServe(addr, mux)
}
