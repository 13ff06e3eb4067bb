package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feesd"

var (
	ReconcileRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "reconcile_runs_total", Help: "Reconciliation passes",
	})
	ReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "reconcile_duration_seconds", Help: "Reconciliation pass latency",
		Buckets: prometheus.DefBuckets,
	})
	OrphansPurged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "orphans_purged_total", Help: "Orphaned records removed by reconciliation",
	}, []string{"kind"})
	TrackedStudents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "tracked_students", Help: "Students in the last tracking report",
	})
	Outstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "outstanding_amount", Help: "Total outstanding across all students",
	})
	CollectionRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "collection_rate_percent", Help: "Collected over billed, percent",
	})
	OverdueStudents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "overdue_students", Help: "Students classified overdue",
	})
	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "operations_total", Help: "Fee operations by result",
	}, []string{"op", "result"})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "API requests",
	}, []string{"route", "code"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		ReconcileRuns, ReconcileDuration, OrphansPurged,
		TrackedStudents, Outstanding, CollectionRate, OverdueStudents,
		Operations, HTTPRequests, DBPing,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// Op counts one fee operation; err decides the result label.
func Op(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Operations.WithLabelValues(op, result).Inc()
}
