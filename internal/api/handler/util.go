package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/trade-escrow/internal/api/middleware"
	"github.com/ayo6706/trade-escrow/internal/api/problem"
	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	problem.Write(w, r, status, problemTypeURL(problemType), http.StatusText(status), message)
}

func problemTypeURL(problemType string) string {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		return problem.Type(problemType)
	}
	return problemType
}

// requestActor rebuilds the caller from the claims AuthMiddleware put in the context.
func requestActor(r *http.Request) (service.Actor, error) {
	ctx := r.Context()
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return service.Actor{}, errors.New("missing user in auth context")
	}
	actor := service.Actor{UserID: userID, Role: middleware.UserRoleFromContext(ctx)}
	if org := middleware.OrgIDFromContext(ctx); org != "" {
		if actor.OrgID, err = uuid.Parse(org); err != nil {
			return service.Actor{}, errors.New("invalid org_id in auth context")
		}
	}
	return actor, nil
}

// withActor resolves the caller or answers 401.
func withActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return service.Actor{}, false
	}
	return actor, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// actOnID runs op for the caller against the {id} path parameter and answers 200 with its result.
func actOnID[T any](w http.ResponseWriter, r *http.Request, scope string, op func(context.Context, service.Actor, uuid.UUID) (T, error)) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := op(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, scope, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

// listFilter reads role, status, limit and offset from the query string.
func listFilter(w http.ResponseWriter, r *http.Request) (service.ListFilter, bool) {
	q := r.URL.Query()
	f := service.ListFilter{Role: q.Get("role"), Status: q.Get("status")}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a non-negative integer")
		return f, false
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
		return f, false
	}
	return f, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

// writeServiceError maps the domain error taxonomy onto problem responses. scope prefixes the
// problem type, e.g. "rfqs/not-found".
func writeServiceError(w http.ResponseWriter, r *http.Request, scope string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		RespondError(w, r, http.StatusBadRequest, scope+"/invalid", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, scope+"/not-found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		RespondError(w, r, http.StatusForbidden, scope+"/forbidden", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		RespondError(w, r, http.StatusConflict, scope+"/invalid-state", err.Error())
	case errors.Is(err, domain.ErrConflict):
		RespondError(w, r, http.StatusConflict, scope+"/conflict", err.Error())
	case errors.Is(err, domain.ErrExpired):
		RespondError(w, r, http.StatusBadRequest, scope+"/expired", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusBadRequest, scope+"/insufficient-funds", err.Error())
	case errors.Is(err, domain.ErrInvariantViolation):
		zap.L().Error("ledger invariant violated",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
			zap.Error(err),
		)
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
			zap.Error(err),
		)
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
