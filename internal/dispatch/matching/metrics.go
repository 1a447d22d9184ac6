package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	candidateCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_candidates_per_request",
		Help:    "Number of mechanics matched per service request.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	candidateLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_candidate_lookups_total",
		Help: "Total candidate pool lookups grouped by outcome.",
	}, []string{"result"})
)

// ObserveLookup records a candidate pool lookup outcome.
func ObserveLookup(matched int, err error) {
	if err != nil {
		candidateLookups.WithLabelValues("error").Inc()
		return
	}
	candidateLookups.WithLabelValues("ok").Inc()
	candidateCount.Observe(float64(matched))
}
