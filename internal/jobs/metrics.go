package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feesd", Subsystem: "job", Name: "runs_total",
		Help: "Background job runs",
	}, []string{"job"})

	jobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feesd", Subsystem: "job", Name: "errors_total",
		Help: "Background job runs that returned an error",
	}, []string{"job"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "feesd", Subsystem: "job", Name: "duration_seconds",
		Help:    "Background job duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// unix time; alert when it stops moving
	jobLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "feesd", Subsystem: "job", Name: "last_success_timestamp_seconds",
		Help: "When the job last finished without error",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(jobRuns, jobErrors, jobDuration, jobLastSuccess)
}
