package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/givehub-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OtpVerifyEnvelope wraps /otp/verify responses. ActionRequired tells the
// client what to render next: none, resend_required, or code_regenerated.
type OtpVerifyEnvelope struct {
	Success           bool   `json:"success"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	ActionRequired    string `json:"action_required"`
	Error             string `json:"error,omitempty"`
}

// OtpResendEnvelope wraps /otp/resend responses.
type OtpResendEnvelope struct {
	Success           bool   `json:"success"`
	RetryAfterSeconds *int   `json:"retry_after_seconds,omitempty"`
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
}

// NotificationListEnvelope wraps paginated notification lists.
type NotificationListEnvelope struct {
	Notifications []domain.Notification `json:"notifications"`
	NextCursor    string                `json:"next_cursor,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
