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
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govtender_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govtender_auth_attempts_total",
			Help: "Auth attempts by role, action and outcome",
		},
		[]string{"role", "action", "success"},
	)
	ledgerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govtender_ledger_calls_total",
			Help: "Ledger calls by event kind and outcome",
		},
		[]string{"kind", "success"},
	)
	storageUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govtender_storage_uploads_total",
			Help: "Object storage uploads by kind and outcome",
		},
		[]string{"kind", "success"},
	)
)

// Middleware records request duration labelled by the matched chi route
// pattern, so path parameters do not explode the label set.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(ww.Status())
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func RecordAuthAttempt(role, action string, success bool) {
	authAttempts.WithLabelValues(role, action, strconv.FormatBool(success)).Inc()
}

func RecordLedgerCall(kind string, success bool) {
	ledgerCalls.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}

func RecordStorageUpload(kind string, success bool) {
	storageUploads.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}
