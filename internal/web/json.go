package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/guard"
	"github.com/thoughtnest/nestclient/internal/notify"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

type redirectResponse struct {
	Redirect string `json:"redirect"`
	Message  string `json:"message,omitempty"`
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// userMessage prefers the message attached to err, replacing the generic
// fallback with the action-specific one.
func userMessage(err error, fallback string) string {
	msg := apperr.Message(err, "")
	if msg == "" || msg == apperr.MsgGeneric {
		return fallback
	}
	return msg
}

// statusFor maps a classified failure to the local response status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNetwork:
		return http.StatusServiceUnavailable
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

// fail reports err to the user through the notifier and answers with the
// mapped status. Auth failures carry a redirect to the login page.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	body := errResponse{Error: userMessage(err, fallback)}
	switch status {
	case http.StatusUnauthorized:
		body.Redirect = guard.LoginPath
		h.resetDashboard()
	case http.StatusServiceUnavailable:
		body.Error = apperr.MsgNetwork
	}

	level := slog.LevelWarn
	if status == http.StatusBadGateway {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()))

	h.notifier.Notify(body.Error, notify.Error)
	writeJSON(w, status, body)
}
