package web

// errors.go provides unified error response handling for the web layer.
//
// Handlers pass workflow errors to respondError, which picks the HTTP status
// from the error's kind or sentinel, logs the technical error with the
// request ID and returns the user-facing message from core.MapError.

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/cablemap/internal/core"
	"github.com/JonMunkholm/cablemap/internal/logging"
	"github.com/JonMunkholm/cablemap/internal/store"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code, Kind) and human-readable (Message,
// Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Kind    string   `json:"kind,omitempty"`
	Label   string   `json:"label,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

var sentinelStatus = []struct {
	err    error
	status int
}{
	{core.ErrTooManyConversions, http.StatusServiceUnavailable},
	{core.ErrNoSession, http.StatusNotFound},
	{core.ErrUnknownRecord, http.StatusNotFound},
	{store.ErrNotFound, http.StatusNotFound},
	{core.ErrUnknownExport, http.StatusBadRequest},
	{core.ErrEmptyDocument, http.StatusBadRequest},
	{core.ErrWrongStage, http.StatusConflict},
	{core.ErrCommitInFlight, http.StatusConflict},
	{core.ErrActionInFlight, http.StatusConflict},
	{core.ErrConversionInFlight, http.StatusConflict},
	{core.ErrSessionClosed, http.StatusConflict},
}

var kindStatus = map[core.ErrorKind]int{
	core.KindInvalidFormat:      http.StatusUnsupportedMediaType,
	core.KindConversionFailed:   http.StatusUnprocessableEntity,
	core.KindValidationBlocked:  http.StatusUnprocessableEntity,
	core.KindPersistenceFailed:  http.StatusBadGateway,
	core.KindExportFailed:       http.StatusBadGateway,
	core.KindConfirmationFailed: http.StatusBadGateway,
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	if kind, ok := core.KindOf(err); ok {
		if status, ok := kindStatus[kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// respondError logs the technical error and writes the user-facing JSON
// response with the status statusFor picks.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var we *core.WorkflowError
	if errors.As(err, &we) {
		resp.Kind = string(we.Kind)
		resp.Label = we.Label
		resp.Fields = we.Fields
	}
	writeJSONStatus(w, status, resp)
}

// writeError writes a JSON error for request problems detected by the web
// layer itself, such as malformed bodies.
func writeError(w http.ResponseWriter, status int, message string) {
	slog.Debug("http error", "status", status, "message", message)
	writeJSONStatus(w, status, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    fmt.Sprintf("HTTP%d", status),
	})
}
