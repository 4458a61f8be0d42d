package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countersignal_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "countersignal_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countersignal_hits_total",
			Help: "Callbacks recorded as hits, by confidence",
		},
		[]string{"confidence"},
	)

	RejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "countersignal_rejected_lookups_total",
		Help: "Callbacks bearing a malformed or unknown token",
	})

	CallbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "countersignal_callback_duration_seconds",
		Help:    "Time to resolve, score and persist one callback",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
	})

	SpoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "countersignal_spool_depth",
		Help: "Callbacks waiting for a storage retry",
	})

	StreamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "countersignal_stream_events_dropped_total",
		Help: "Live hit events skipped because a subscriber fell behind",
	})

	DiskFreeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "countersignal_disk_free_bytes",
		Help: "Free bytes on the data directory filesystem",
	})

	ArtifactBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "countersignal_artifact_bytes",
		Help: "Bytes of generated artifacts on disk",
	})

	SpoolOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countersignal_spool_outcomes_total",
			Help: "Spooled callbacks by outcome (spooled, recovered, dead_lettered)",
		},
		[]string{"outcome"},
	)

	GeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countersignal_documents_generated_total",
			Help: "Generated documents by format and status",
		},
		[]string{"format", "status"},
	)

	EmailAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countersignal_email_alerts_total",
			Help: "Hit alert mails by outcome",
		},
		[]string{"outcome"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countersignal_webhook_deliveries_total",
			Help: "Hit notifications by outcome",
		},
		[]string{"outcome"},
	)
)

// Middleware records request counts and latencies. The route label is the
// matched chi pattern so tokens never become label values.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
