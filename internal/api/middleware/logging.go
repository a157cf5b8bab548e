package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware emits structured request logs enriched with the trace id and caller identity.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK, ctx: r.Context()}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), recorderContextKey, rw)))

			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.String("trace_id", TraceIDFromContext(r.Context())),
				zap.String("user_id", UserIDFromContext(rw.ctx)),
				zap.String("org_id", OrgIDFromContext(rw.ctx)),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	// ctx is replaced by AuthMiddleware once the caller is known.
	ctx context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

const recorderContextKey contextKey = "status_recorder"

// attachIdentity lets the request logger see the identity resolved by AuthMiddleware.
func attachIdentity(ctx context.Context) {
	if rw, ok := ctx.Value(recorderContextKey).(*statusRecorder); ok {
		rw.ctx = ctx
	}
}
