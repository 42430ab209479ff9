package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/givehub-api/internal/application/otp"
	"github.com/givehub-api/internal/domain"
	"github.com/givehub-api/internal/pkg/validate"
)

// OtpHandler handles the one-time-code challenge endpoints.
type OtpHandler struct {
	svc otp.Service
}

func NewOtpHandler(svc otp.Service) *OtpHandler {
	return &OtpHandler{svc: svc}
}

type otpChallengeBody struct {
	Subject string `json:"subject" validate:"required"`
	Purpose string `json:"purpose" validate:"required,oneof=verify_email change_password"`
}

type otpVerifyBody struct {
	Subject string `json:"subject" validate:"required"`
	Purpose string `json:"purpose" validate:"required,oneof=verify_email change_password"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

func (h *OtpHandler) Request(w http.ResponseWriter, r *http.Request) {
	var body otpChallengeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RequestChallenge(r.Context(), body.Subject, body.Purpose); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "verification code sent"})
}

func (h *OtpHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var body otpVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.svc.VerifyChallenge(r.Context(), body.Subject, body.Purpose, body.Code)
	if err == nil {
		writeJSON(w, http.StatusOK, OtpVerifyEnvelope{Success: true, ActionRequired: "none"})
		return
	}

	var incorrect *domain.IncorrectCodeError
	var exhausted *domain.ExhaustedError
	switch {
	case errors.Is(err, domain.ErrOTPExpired):
		writeJSON(w, http.StatusGone, OtpVerifyEnvelope{
			ActionRequired: "resend_required",
			Error:          "code expired",
		})
	case errors.As(err, &exhausted):
		writeJSON(w, http.StatusUnauthorized, OtpVerifyEnvelope{
			ActionRequired: "code_regenerated",
			Error:          "attempts exhausted, a new code was sent",
		})
	case errors.As(err, &incorrect):
		remaining := incorrect.RemainingAttempts
		writeJSON(w, http.StatusUnauthorized, OtpVerifyEnvelope{
			RemainingAttempts: &remaining,
			ActionRequired:    "none",
			Error:             "incorrect code",
		})
	default:
		httpError(w, err)
	}
}

func (h *OtpHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var body otpChallengeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.svc.ResendChallenge(r.Context(), body.Subject, body.Purpose)
	if err == nil {
		writeJSON(w, http.StatusAccepted, OtpResendEnvelope{Success: true, Message: "verification code sent"})
		return
	}

	var limited *domain.RateLimitedError
	if errors.As(err, &limited) {
		retry := int(limited.RetryAfter / time.Second)
		writeJSON(w, http.StatusTooManyRequests, OtpResendEnvelope{
			RetryAfterSeconds: &retry,
			Error:             "resend cooldown active",
		})
		return
	}
	httpError(w, err)
}
