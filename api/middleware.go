package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"election-ledger/blockchain/ledger"
	"election-ledger/election"
	"election-ledger/logging"
	"election-ledger/service"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets server-sent events pass through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WithLogging logs every request once it completes.
func WithLogging(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(logging.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote":      r.RemoteAddr,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("request completed")
		})
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func JSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func ErrorResponse(w http.ResponseWriter, status int, message string) {
	JSONResponse(w, status, ErrorBody{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// WriteError maps err to an HTTP status and writes it.
func WriteError(w http.ResponseWriter, err error) {
	ErrorResponse(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, election.ErrPhase),
		errors.Is(err, election.ErrConflict),
		errors.Is(err, service.ErrNonceMismatch):
		return http.StatusConflict
	case errors.Is(err, election.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, election.ErrNotFound),
		errors.Is(err, ledger.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, election.ErrInvalid),
		errors.Is(err, service.ErrInvalidTransaction),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrQueueFull),
		errors.Is(err, service.ErrQueueStopped),
		errors.Is(err, service.ErrSealedTallyDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
