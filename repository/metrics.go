package repository

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"sv6tool/metrics"
)

var (
	repositoryMetrics sync.Once

	filesScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "repository",
			Name:      "files_scanned_total",
			Help:      "Number of asset files scanned, by result",
		},
		[]string{"result"})
	itemConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "repository",
			Name:      "item_conflicts_total",
			Help:      "Number of assets dropped because an equal object was already indexed",
		})
	indexLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "repository",
			Name:      "index_loads_total",
			Help:      "Number of times the object index was loaded from disk or rebuilt",
		},
		[]string{"source"})
	payloadCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "repository",
			Name:      "payload_cache_lookups_total",
			Help:      "Number of asset payload cache lookups, by result",
		},
		[]string{"result"})
	packedObjectsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "repository",
			Name:      "packed_objects_extracted_total",
			Help:      "Number of objects packed in parks that were added to the user object directory",
		})
)

func registerMetrics() {
	repositoryMetrics.Do(func() {
		prometheus.MustRegister(filesScanned)
		prometheus.MustRegister(itemConflicts)
		prometheus.MustRegister(indexLoads)
		prometheus.MustRegister(payloadCacheLookups)
		prometheus.MustRegister(packedObjectsExtracted)
	})
}
