package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/cartloom/promo-engine/internal/domain/abtest"
	"github.com/cartloom/promo-engine/internal/domain/auth"
	"github.com/cartloom/promo-engine/internal/domain/discount"
	"github.com/cartloom/promo-engine/internal/domain/promo"
	"github.com/cartloom/promo-engine/internal/metrics"
)

// errorResponse is the wire envelope for failures. Kind carries the stable
// machine-readable failure identifier when one applies.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

// writeError maps domain errors onto HTTP statuses and the error envelope.
// Unrecognized errors are treated as infrastructure failures: logged and
// reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if kind, ok := discount.KindOf(err); ok {
		status := http.StatusUnprocessableEntity
		if kind == discount.FailNotFound {
			status = http.StatusNotFound
		}
		metrics.CountFailure(string(kind))
		writeJSON(w, status, errorResponse{
			Code:    status,
			Message: err.Error(),
			Kind:    string(kind),
		})
		return
	}

	switch {
	case errors.Is(err, promo.ErrDiscountRequired),
		errors.Is(err, promo.ErrOrderRequired),
		errors.Is(err, abtest.ErrUserRequired):
		writeBadRequest(w, err.Error())
	case errors.Is(err, abtest.ErrTestNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: err.Error(),
			Kind:    string(discount.FailNotFound),
		})
	case errors.Is(err, abtest.ErrInvalidTrafficSplit):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: err.Error(),
			Kind:    string(discount.FailInvalidStackingConfig),
		})
	case errors.Is(err, auth.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Code:    http.StatusUnauthorized,
			Message: "unauthorized",
		})
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal server error",
		})
	}
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records a latency observation per request, labeled with the
// operation and whether it ended in an error status.
func instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		outcome := "ok"
		if rec.status >= http.StatusBadRequest {
			outcome = "error"
		}
		metrics.ObserveResolution(operation, outcome, time.Since(start).Seconds())
	}
}
