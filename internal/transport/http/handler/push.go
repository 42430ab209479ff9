package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/givehub-api/internal/application/push"
	"github.com/givehub-api/internal/domain"
	"github.com/givehub-api/internal/pkg/validate"
	"github.com/givehub-api/internal/transport/http/middleware"
)

// PushHandler handles push subscription and preference endpoints.
type PushHandler struct {
	svc push.Service
}

func NewPushHandler(svc push.Service) *PushHandler {
	return &PushHandler{svc: svc}
}

// PublicKey is public: browsers fetch it before the user authenticates.
func (h *PushHandler) PublicKey(w http.ResponseWriter, _ *http.Request) {
	key, err := h.svc.PublicKey()
	if err != nil {
		if errors.Is(err, domain.ErrNotConfigured) {
			writeError(w, http.StatusNotFound, "push notifications are not configured")
			return
		}
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": key})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body domain.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.svc.Subscribe(r.Context(), claims.UserID, body)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body domain.UnsubscribeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.svc.Unsubscribe(r.Context(), claims.UserID, body.Endpoint); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "unsubscribed"})
}

func (h *PushHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	prefs, err := h.svc.GetPreferences(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body domain.UpdatePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs, err := h.svc.UpdatePreferences(r.Context(), claims.UserID, body)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
