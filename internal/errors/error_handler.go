package errors

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Timestamp  string `json:"timestamp"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
		now:    time.Now,
	}
}

// HandleError classifies err and writes the matching response. prefix is the
// operation description prepended to client-facing messages.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	kind := KindOf(err)
	statusCode := HTTPStatus(kind)
	requestID := r.Header.Get("X-Request-ID")

	message := prefix + ": " + err.Error()
	if kind == KindInternal {
		h.logger.Error("internal error",
			zap.String("operation", prefix),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		message = prefix + ": internal server error"
	}

	h.WriteErrorResponse(w, statusCode, message, requestID)
}

// HTTPStatus maps an error kind to an HTTP status code. Not-found and
// capacity rejections are client-type errors and share 400 with validation.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindNotFound, KindCapacityExceeded:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Timestamp:  h.now().UTC().Format(time.RFC3339Nano),
		StatusCode: statusCode,
		Message:    message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, message, requestID)
}

// WriteNotFound writes a route-not-found response.
func (h *Handler) WriteNotFound(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusNotFound, "endpoint not found", requestID)
}

// WriteMethodNotAllowed writes a method-not-allowed response.
func (h *Handler) WriteMethodNotAllowed(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Retry-After", "1")
	h.WriteErrorResponse(w, http.StatusTooManyRequests, "rate limit exceeded", requestID)
}

// WriteInternalError writes a generic internal error response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, "internal server error", requestID)
}
