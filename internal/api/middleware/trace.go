package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	traceHeader   = "X-Trace-ID"
	requestHeader = "X-Request-ID"
)

// Caller supplied ids end up in logs and problem bodies, so only short opaque tokens are kept.
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// TraceMiddleware gives every request a trace id. An id from X-Trace-ID or X-Request-ID is reused
// when it looks sane, otherwise a fresh UUID is minted. The id is echoed in X-Trace-ID.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(contextWithTraceID(r.Context(), traceID)))
	})
}

func incomingTraceID(r *http.Request) string {
	for _, h := range []string{traceHeader, requestHeader} {
		if id := r.Header.Get(h); validTraceID.MatchString(id) {
			return id
		}
	}
	return ""
}

func contextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey, traceID)
}
