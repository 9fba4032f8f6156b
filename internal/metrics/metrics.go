package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logstream_job_duration_seconds",
		Help:    "Duration of jobs that write to the log feed",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"type", "status"})

	jobStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logstream_job_status_total",
		Help: "Total jobs completed grouped by type and status",
	}, []string{"type", "status"})

	jobEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logstream_job_events_total",
		Help: "Raw events appended to job logs grouped by store and outcome",
	}, []string{"store", "status"})

	entriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logstream_subscriber_entries_total",
		Help: "Log entries appended to subscriber buffers",
	}, []string{"transport"})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logstream_subscriber_sessions_ended_total",
		Help: "Subscriber sessions ended grouped by transport and reason",
	}, []string{"transport", "reason"})

	pollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logstream_subscriber_poll_failures_total",
		Help: "Pull cycles skipped because the history request failed",
	})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logstream_stream_clients",
		Help: "Currently connected SSE readers",
	})
)

// ObserveJobCompletion records the duration and status of a completed job.
func ObserveJobCompletion(jobType, status string, duration time.Duration) {
	if jobType == "" {
		jobType = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	jobDuration.WithLabelValues(jobType, status).Observe(duration.Seconds())
	jobStatusTotal.WithLabelValues(jobType, status).Inc()
}

// ObserveJobEvent counts an append to a job log store.
func ObserveJobEvent(store string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	jobEventsTotal.WithLabelValues(store, status).Inc()
}

// ObserveEntries counts entries appended by a subscriber.
func ObserveEntries(transport string, n int) {
	entriesAppended.WithLabelValues(transport).Add(float64(n))
}

// ObserveSessionEnd counts a finished subscriber session.
func ObserveSessionEnd(transport, reason string) {
	sessionsEnded.WithLabelValues(transport, reason).Inc()
}

// ObservePollFailure counts a skipped pull cycle.
func ObservePollFailure() {
	pollFailures.Inc()
}

// StreamClientConnected tracks an SSE reader joining; the returned func marks it gone.
func StreamClientConnected() func() {
	streamClients.Inc()
	return streamClients.Dec
}
