package s6

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"sv6tool/metrics"
)

var (
	s6Metrics sync.Once

	parksLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "s6",
			Name:      "parks_loaded_total",
			Help:      "Number of park files read, by kind",
		},
		[]string{"kind"})
	parksSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "s6",
			Name:      "parks_saved_total",
			Help:      "Number of park files written, by kind",
		},
		[]string{"kind"})
	packedObjectsRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "s6",
			Name:      "packed_objects_read_total",
			Help:      "Number of objects read from the packed objects section of park files",
		})
)

func registerMetrics() {
	s6Metrics.Do(func() {
		prometheus.MustRegister(parksLoaded)
		prometheus.MustRegister(parksSaved)
		prometheus.MustRegister(packedObjectsRead)
	})
}
