package sawyer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"sv6tool/metrics"
)

var (
	sawyerMetrics sync.Once

	chunksDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sawyer",
			Name:      "chunks_decoded_total",
			Help:      "Number of chunks decoded, by encoding",
		},
		[]string{"encoding"})
	chunksEncoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sawyer",
			Name:      "chunks_encoded_total",
			Help:      "Number of chunks encoded, by encoding",
		},
		[]string{"encoding"})
	checksumMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sawyer",
			Name:      "checksum_mismatches_total",
			Help:      "Number of chunk streams whose trailing checksum did not match",
		})
)

func registerMetrics() {
	sawyerMetrics.Do(func() {
		prometheus.MustRegister(chunksDecoded)
		prometheus.MustRegister(chunksEncoded)
		prometheus.MustRegister(checksumMismatches)
	})
}
