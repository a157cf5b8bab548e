package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests no route claimed, keeping raw paths out of metric labels.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records request latency by route pattern and tracks requests in flight.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := observability.TrackInFlight()
		defer done()

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK, ctx: r.Context()}
		next.ServeHTTP(rw, r)

		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

// routePattern reads the pattern chi matched, e.g. /v1/deals/{id}/close.
func routePattern(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return unmatchedRoute
	}
	if pattern := rc.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}
