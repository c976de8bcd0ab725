// Package metrics exposes Prometheus counters for the overlay engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SourcesLoadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_sources_loaded_total",
		Help: "Total number of sources registered",
	})
	SourcesRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_sources_removed_total",
		Help: "Total number of sources removed",
	})
	LoadFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_load_failures_total",
		Help: "Total number of failed loads by stage",
	}, []string{"stage"})
	LoadDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overlay_load_duration_ms",
		Help:    "Decode and classify duration in milliseconds",
		Buckets: []float64{5, 10, 50, 100, 250, 500, 1000, 5000},
	})
	LoadedSources = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlay_loaded_sources",
		Help: "Number of currently loaded sources",
	})
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_searches_total",
		Help: "Total number of searches by mode",
	}, []string{"mode"})
	SearchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overlay_search_duration_ms",
		Help:    "Search duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_uploads_total",
		Help: "Total number of files uploaded to the store",
	})
)

func init() {
	prometheus.MustRegister(SourcesLoadedTotal)
	prometheus.MustRegister(SourcesRemovedTotal)
	prometheus.MustRegister(LoadFailuresTotal)
	prometheus.MustRegister(LoadDurationMs)
	prometheus.MustRegister(LoadedSources)
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDurationMs)
	prometheus.MustRegister(UploadsTotal)
}

// Handler serves the registered metrics.
func Handler() http.Handler { return promhttp.Handler() }
