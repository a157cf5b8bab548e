package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/ayo6706/trade-escrow/internal/api/problem"
	"github.com/ayo6706/trade-escrow/internal/idempotency"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "X-Idempotent-Replay"
	acquireAttempts   = 3
)

var validIdempotencyKey = regexp.MustCompile(`^[\x21-\x7e]{1,255}$`)

// IdempotencyMiddleware guards POST /v1/payments. The first request under a key reserves it; a
// durable outcome is stored and replayed to every retry carrying the same key and body. Keys are
// scoped to the caller's organization and the request hash includes the user.
//
// Durable outcomes are 2xx responses and problems that name a recorded payment (a reservation
// that failed for lack of funds). Anything else releases the key so the client can correct the
// request and retry with it.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			rawKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case rawKey == "":
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), "", "Idempotency-Key header is required")
				return
			case !validIdempotencyKey.MatchString(rawKey):
				observability.IncrementIdempotencyEvent("invalid_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/invalid-key"), "", "Idempotency-Key must be 1-255 printable characters")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "", "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			g := guard{
				store:  store,
				logger: logger,
				method: r.Method,
				path:   r.URL.Path,
				key:    scopedKey(r, rawKey),
				hash:   hashRequest(r.Method, r.URL.Path, UserIDFromContext(r.Context()), body),
			}
			rec, outcome := g.acquire(r.Context())
			switch outcome {
			case outcomeReplay:
				replay(w, rawKey, rec)
			case outcomeMismatch:
				problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), "", "Idempotency-Key was already used with a different request")
			case outcomeBusy:
				problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), "", "a request with this Idempotency-Key is still being processed")
			case outcomeUnavailable:
				problem.Write(w, r, http.StatusServiceUnavailable, problem.Type("idempotency/unavailable"), "", "idempotency records are unavailable")
			case outcomeReserved:
				g.serve(w, r, next)
			}
		})
	}
}

type acquireOutcome int

const (
	outcomeReserved acquireOutcome = iota
	outcomeReplay
	outcomeMismatch
	outcomeBusy
	outcomeUnavailable
)

// guard drives one request through lookup, reservation and finalization of its key.
type guard struct {
	store  *idempotency.Store
	logger *zap.Logger
	method string
	path   string
	key    string
	hash   string
}

// acquire either reserves the key or returns the record to replay. A holder that releases its
// reservation while we wait lets us try again.
func (g guard) acquire(ctx context.Context) (*idempotency.Record, acquireOutcome) {
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		rec, err := g.store.Lookup(ctx, g.key, g.hash)
		switch {
		case err == nil:
			observability.IncrementIdempotencyEvent("replay")
			return rec, outcomeReplay
		case errors.Is(err, idempotency.ErrHashMismatch):
			observability.IncrementIdempotencyEvent("hash_mismatch")
			return nil, outcomeMismatch
		case errors.Is(err, idempotency.ErrInProgress):
			if rec, out, done := g.wait(ctx); done {
				return rec, out
			}
			continue
		case !errors.Is(err, idempotency.ErrNotFound):
			observability.IncrementIdempotencyEvent("lookup_error")
			g.logger.Warn("idempotency lookup failed", zap.Error(err))
		}

		reserved, err := g.store.Reserve(ctx, g.key, g.hash, g.method, g.path)
		if err != nil {
			observability.IncrementIdempotencyEvent("reserve_error")
			g.logger.Error("idempotency reserve failed", zap.Error(err))
			return nil, outcomeUnavailable
		}
		if reserved {
			observability.IncrementIdempotencyEvent("reserved")
			return nil, outcomeReserved
		}
		if rec, out, done := g.wait(ctx); done {
			return rec, out
		}
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	return nil, outcomeBusy
}

// wait blocks on the current holder. done is false when the holder released the key.
func (g guard) wait(ctx context.Context) (*idempotency.Record, acquireOutcome, bool) {
	rec, err := g.store.WaitForCompletion(ctx, g.key, g.hash)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay_after_wait")
		return rec, outcomeReplay, true
	case errors.Is(err, idempotency.ErrNotFound):
		return nil, 0, false
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		return nil, outcomeMismatch, true
	default:
		observability.IncrementIdempotencyEvent("in_progress_conflict")
		g.logger.Warn("idempotency wait failed", zap.Error(err))
		return nil, outcomeBusy, true
	}
}

// serve runs the handler under a held reservation and then keeps or releases the key.
func (g guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	recorder := &bodyRecorder{ResponseWriter: w}
	finished := false
	defer func() {
		// A panicking handler never produced an outcome worth keeping.
		if !finished {
			g.release(context.WithoutCancel(r.Context()))
		}
	}()
	next.ServeHTTP(recorder, r)
	finished = true
	if recorder.status == 0 {
		recorder.status = http.StatusOK
	}

	// The payment may be committed even if the client went away, so finish the bookkeeping.
	ctx := context.WithoutCancel(r.Context())
	if !durableOutcome(recorder.status, recorder.body.Bytes()) {
		g.release(ctx)
		return
	}
	contentType := recorder.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if _, err := g.store.Finalize(ctx, g.key, g.hash, recorder.status, recorder.body.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		g.logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", g.key))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

func (g guard) release(ctx context.Context) {
	if err := g.store.Release(ctx, g.key, g.hash); err != nil && !errors.Is(err, idempotency.ErrNotFound) {
		observability.IncrementIdempotencyEvent("release_error")
		g.logger.Warn("idempotency release failed", zap.Error(err), zap.String("key", g.key))
		return
	}
	observability.IncrementIdempotencyEvent("released")
}

// durableOutcome reports whether a response reflects committed state that a retry must not redo.
func durableOutcome(status int, body []byte) bool {
	if status >= 200 && status < 300 {
		return true
	}
	if status >= 500 {
		return false
	}
	var ext struct {
		PaymentID string `json:"payment_id"`
	}
	return json.Unmarshal(body, &ext) == nil && ext.PaymentID != ""
}

func hashRequest(method, path, userID string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+"|"+path+"|"+userID+"|"), body...))
	return hex.EncodeToString(sum[:])
}

func scopedKey(r *http.Request, key string) string {
	if org := OrgIDFromContext(r.Context()); org != "" {
		return org + ":" + key
	}
	return key
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func replay(w http.ResponseWriter, key string, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set(idempotencyHeader, key)
	w.Header().Set(replayHeader, rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
