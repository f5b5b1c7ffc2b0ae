// Package metrics exposes Prometheus instrumentation for the vetting
// pipeline and the HTTP ingress.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	interviewsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekeeper",
		Name:      "interviews_started_total",
		Help:      "Total interview attempts started",
	}, []string{"chat"})

	interviewsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekeeper",
		Name:      "interviews_finished_total",
		Help:      "Total interviews reaching a terminal state",
	}, []string{"chat", "outcome"})

	interviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatekeeper",
		Name:      "interview_duration_seconds",
		Help:      "Wall-clock length of finished interviews",
		Buckets:   prometheus.ExponentialBuckets(60, 2, 10),
	}, []string{"chat"})

	remindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekeeper",
		Name:      "reminders_sent_total",
		Help:      "Reminder messages sent to quiet candidates",
	}, []string{"chat"})

	candidatesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekeeper",
		Name:      "candidates_removed_total",
		Help:      "Candidates auto-removed after a failed interview",
	}, []string{"chat"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekeeper",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatekeeper",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func InterviewStarted(chat string) {
	interviewsStarted.WithLabelValues(chat).Inc()
}

func InterviewFinished(chat, outcome string, duration time.Duration) {
	interviewsFinished.WithLabelValues(chat, outcome).Inc()
	interviewDuration.WithLabelValues(chat).Observe(duration.Seconds())
}

func ReminderSent(chat string) {
	remindersSent.WithLabelValues(chat).Inc()
}

func CandidateRemoved(chat string) {
	candidatesRemoved.WithLabelValues(chat).Inc()
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request metrics with Prometheus labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
