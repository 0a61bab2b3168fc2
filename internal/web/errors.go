package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - logged with full technical details and the request id (server-side)
//   - mapped via core.MapError to a user-friendly message with an action
//   - written as JSON with a status derived from the error's sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/JonMunkholm/verifier/internal/logging"
	"github.com/JonMunkholm/verifier/internal/report"
	"github.com/JonMunkholm/verifier/internal/session"
	"github.com/JonMunkholm/verifier/internal/store"
	"github.com/JonMunkholm/verifier/internal/verify"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Action  string            `json:"action,omitempty"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor maps package sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrMalformedInput),
		errors.Is(err, store.ErrNoSupplierCode),
		errors.Is(err, session.ErrNoSupplier):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrMissingMapping),
		errors.Is(err, core.ErrInvalidMapping),
		errors.Is(err, verify.ErrMalformedEvent),
		errors.Is(err, report.ErrNoExportableItems):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrNotApplied):
		return http.StatusConflict
	case errors.Is(err, store.ErrMappingNotFound):
		return http.StatusNotFound
	case errors.Is(err, report.ErrExportBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, report.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user message with the status derived
// from err.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus is respondError with an explicit status.
func respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeError writes a plain message that is already safe to show.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logging.FromContext(r.Context()).Warn("request rejected", "path", r.URL.Path, "status", status, "reason", message)
	writeJSON(w, status, ErrorResponse{Error: message, Message: message, Code: http.StatusText(status)})
}

// decodeJSON reads a request body into v and validates it. It writes the
// error response itself and reports whether the handler should continue.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			respondErrorStatus(w, r, err, http.StatusBadRequest)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Message: "validation failed",
			Action:  "Correct the highlighted fields and try again",
			Code:    "REQ003",
			Fields:  fields,
		})
		return false
	}
	return true
}
