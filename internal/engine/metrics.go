package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricQueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sqlgate_query_duration_seconds",
		Help:    "Statement execution time, including connection open and result assembly.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{
		"database",
		"result", // ok, interrupted, error
	},
)

func observeQuery(database string, elapsed time.Duration, err error) {
	result := "ok"
	switch {
	case err == nil:
	case IsInterrupted(err):
		result = "interrupted"
	default:
		result = "error"
	}
	metricQueryDuration.WithLabelValues(database, result).Observe(elapsed.Seconds())
}
