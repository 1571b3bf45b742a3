// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"buildtime-agent/src/stream"
)

// Feed labels.
const (
	FeedDiscovery = "discovery"
	FeedBuild     = "build"
)

// Collector holds the pipeline metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	buildsDiscovered prometheus.Counter
	buildsReduced    prometheus.Counter
	buildsAccepted   prometheus.Counter
	buildsRejected   prometheus.Counter

	streamConnects   *prometheus.CounterVec
	streamReconnects *prometheus.CounterVec
	streamEvents     *prometheus.CounterVec

	detailFeedsOpen prometheus.Gauge
	buildDuration   prometheus.Histogram
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		buildsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtime_builds_discovered_total",
			Help: "Builds announced by the discovery feed",
		}),
		buildsReduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtime_builds_reduced_total",
			Help: "Builds whose detail feed completed and were reduced to a summary",
		}),
		buildsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtime_builds_accepted_total",
			Help: "Builds that passed the filter and were recorded",
		}),
		buildsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtime_builds_rejected_total",
			Help: "Builds dropped by the filter",
		}),
		streamConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildtime_stream_connects_total",
			Help: "Feed connections opened",
		}, []string{"feed"}),
		streamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildtime_stream_reconnects_total",
			Help: "Feed reconnects after a transport error",
		}, []string{"feed"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildtime_stream_events_total",
			Help: "Events received per feed",
		}, []string{"feed"}),
		detailFeedsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buildtime_detail_feeds_open",
			Help: "Per-build detail feeds currently open",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buildtime_build_duration_seconds",
			Help:    "Duration of accepted builds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 13), // 1s .. ~68m
		}),
	}

	c.registry.MustRegister(
		c.buildsDiscovered,
		c.buildsReduced,
		c.buildsAccepted,
		c.buildsRejected,
		c.streamConnects,
		c.streamReconnects,
		c.streamEvents,
		c.detailFeedsOpen,
		c.buildDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) BuildDiscovered() { c.buildsDiscovered.Inc() }
func (c *Collector) BuildReduced()    { c.buildsReduced.Inc() }
func (c *Collector) BuildRejected()   { c.buildsRejected.Inc() }

func (c *Collector) BuildAccepted(d time.Duration) {
	c.buildsAccepted.Inc()
	c.buildDuration.Observe(d.Seconds())
}

func (c *Collector) DetailFeedOpened() { c.detailFeedsOpen.Inc() }
func (c *Collector) DetailFeedClosed() { c.detailFeedsOpen.Dec() }

// StreamObserver returns a stream.Observer counting under the feed label.
func (c *Collector) StreamObserver(feed string) stream.Observer {
	return &feedObserver{
		connects:   c.streamConnects.WithLabelValues(feed),
		reconnects: c.streamReconnects.WithLabelValues(feed),
		events:     c.streamEvents.WithLabelValues(feed),
	}
}

type feedObserver struct {
	connects, reconnects, events prometheus.Counter
}

func (o *feedObserver) Connected(bool)  { o.connects.Inc() }
func (o *feedObserver) Event()          { o.events.Inc() }
func (o *feedObserver) Reconnect(error) { o.reconnects.Inc() }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		return nil
	}
}
