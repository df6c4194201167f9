package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	CirculationOpsTotal *prometheus.CounterVec
	OverdueLoansSeen    prometheus.Gauge
}

var (
	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "circulation_engine_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		CirculationOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circulation_engine_operations_total",
				Help: "Total circulation operations by kind and outcome.",
			},
			[]string{"operation", "status"},
		),
		OverdueLoansSeen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "circulation_engine_overdue_loans",
				Help: "Number of overdue open loans found by the last report run.",
			},
		),
	}
)

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordCirculation(operation, status string) {
	Business.CirculationOpsTotal.WithLabelValues(operation, status).Inc()
}

func SetOverdueLoans(count int) {
	Business.OverdueLoansSeen.Set(float64(count))
}
