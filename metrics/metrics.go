// Package metrics exports tile lifecycle and HTTP metrics to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tilestream"

// Collector is an event.Sink turning lifecycle events into metrics.
type Collector struct {
	events      *prometheus.CounterVec
	tiles       prometheus.Gauge
	active      prometheus.Gauge
	loadLatency prometheus.Histogram

	mu      sync.Mutex
	started map[uint64]time.Time
}

var _ event.Sink = (*Collector)(nil)

// NewCollector registers the lifecycle metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Tile lifecycle events by kind.",
		}, []string{"kind"}),
		tiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tiles",
			Help:      "Tiles currently loaded, active or not.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tiles",
			Help:      "Tiles currently active.",
		}),
		loadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_load_seconds",
			Help:      "Time from load start to load finish of a tile.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		started: make(map[uint64]time.Time),
	}
	for _, kind := range event.Kinds() {
		c.events.WithLabelValues(kind.String())
	}
	return c
}

func (c *Collector) Publish(e event.Event) {
	c.events.WithLabelValues(e.Kind.String()).Inc()

	switch e.Kind {
	case event.LoadStarted:
		c.mu.Lock()
		c.started[e.Index.Key()] = e.Time
		c.mu.Unlock()
	case event.LoadFinished:
		c.tiles.Inc()
		c.mu.Lock()
		start, ok := c.started[e.Index.Key()]
		delete(c.started, e.Index.Key())
		c.mu.Unlock()
		if ok {
			c.loadLatency.Observe(e.Time.Sub(start).Seconds())
		}
	case event.Activated:
		c.active.Inc()
	case event.Deactivated:
		c.active.Dec()
	case event.Destroyed:
		c.tiles.Dec()
	}
}

// HTTP holds request metrics of the position server.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	factory := promauto.With(reg)
	return &HTTP{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (h *HTTP) Observe(method, route, code string, latency time.Duration) {
	h.requests.WithLabelValues(method, route, code).Inc()
	h.duration.WithLabelValues(method, route).Observe(latency.Seconds())
}
