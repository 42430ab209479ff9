package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/givehub-api/internal/domain"
	jwtinfra "github.com/givehub-api/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockPushSvc struct{ mock.Mock }

func (m *mockPushSvc) PublicKey() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockPushSvc) Subscribe(ctx context.Context, userID string, req domain.SubscribeRequest) (*domain.PushSubscription, error) {
	args := m.Called(ctx, userID, req)
	if s, _ := args.Get(0).(*domain.PushSubscription); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPushSvc) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return m.Called(ctx, userID, endpoint).Error(0)
}

func (m *mockPushSvc) GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.NotificationPreference); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPushSvc) UpdatePreferences(ctx context.Context, userID string, req domain.UpdatePreferenceRequest) (*domain.NotificationPreference, error) {
	args := m.Called(ctx, userID, req)
	if p, _ := args.Get(0).(*domain.NotificationPreference); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- PublicKey tests ---

func TestPublicKey_NotConfigured(t *testing.T) {
	svc := &mockPushSvc{}
	svc.On("PublicKey").Return("", domain.ErrNotConfigured)
	h := NewPushHandler(svc)

	rr := httptest.NewRecorder()
	h.PublicKey(rr, httptest.NewRequest(http.MethodGet, "/v1/push/public-key", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPublicKey_Configured(t *testing.T) {
	svc := &mockPushSvc{}
	svc.On("PublicKey").Return("BPqM-vapid-key", nil)
	h := NewPushHandler(svc)

	rr := httptest.NewRecorder()
	h.PublicKey(rr, httptest.NewRequest(http.MethodGet, "/v1/push/public-key", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "BPqM-vapid-key", resp["public_key"])
}

// --- Subscribe tests ---

func TestSubscribe_MissingKeys(t *testing.T) {
	p := newTestJWTProvider(t)
	h := NewPushHandler(&mockPushSvc{})

	body, _ := json.Marshal(domain.SubscribeRequest{Endpoint: "https://push.example.org/sub/abc"})
	r := bearerReq(t, p, http.MethodPost, "/v1/push/subscribe", "u1", jwtinfra.RoleVolunteer, body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Subscribe), rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubscribe_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPushSvc{}
	req := domain.SubscribeRequest{
		Endpoint:   "https://push.example.org/sub/abc",
		Keys:       domain.SubscriptionKeys{P256dh: "p256dh-key", Auth: "auth-secret"},
		DeviceInfo: "Firefox on Linux",
	}
	sub := &domain.PushSubscription{SubscriptionID: "s1", UserID: "u1", Endpoint: req.Endpoint}
	svc.On("Subscribe", mock.Anything, "u1", req).Return(sub, nil)
	h := NewPushHandler(svc)

	body, _ := json.Marshal(req)
	r := bearerReq(t, p, http.MethodPost, "/v1/push/subscribe", "u1", jwtinfra.RoleVolunteer, body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Subscribe), rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp domain.PushSubscription
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "s1", resp.SubscriptionID)
	svc.AssertExpectations(t)
}

// --- Unsubscribe tests ---

func TestUnsubscribe_EmptyBody_RevokesAll(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPushSvc{}
	svc.On("Unsubscribe", mock.Anything, "u1", "").Return(nil)
	h := NewPushHandler(svc)

	r := bearerReq(t, p, http.MethodPost, "/v1/push/unsubscribe", "u1", jwtinfra.RoleVolunteer, nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Unsubscribe), rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestUnsubscribe_SingleEndpoint(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPushSvc{}
	svc.On("Unsubscribe", mock.Anything, "u1", "https://push.example.org/sub/abc").Return(nil)
	h := NewPushHandler(svc)

	body, _ := json.Marshal(domain.UnsubscribeRequest{Endpoint: "https://push.example.org/sub/abc"})
	r := bearerReq(t, p, http.MethodPost, "/v1/push/unsubscribe", "u1", jwtinfra.RoleVolunteer, body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Unsubscribe), rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

// --- Preference tests ---

func TestGetPreferences(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPushSvc{}
	svc.On("GetPreferences", mock.Anything, "u1").Return(domain.DefaultPreference("u1"), nil)
	h := NewPushHandler(svc)

	r := bearerReq(t, p, http.MethodGet, "/v1/push/preferences", "u1", jwtinfra.RoleDonor, nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.GetPreferences), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.NotificationPreference
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.True(t, resp.PushEnabled)
}

func TestUpdatePreferences_BadFrequency(t *testing.T) {
	p := newTestJWTProvider(t)
	h := NewPushHandler(&mockPushSvc{})

	r := bearerReq(t, p, http.MethodPut, "/v1/push/preferences", "u1", jwtinfra.RoleDonor,
		[]byte(`{"email_frequency":"hourly"}`))
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.UpdatePreferences), rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdatePreferences_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPushSvc{}
	enabled := false
	updated := domain.DefaultPreference("u1")
	updated.PushEnabled = false
	svc.On("UpdatePreferences", mock.Anything, "u1", domain.UpdatePreferenceRequest{PushEnabled: &enabled}).
		Return(updated, nil)
	h := NewPushHandler(svc)

	r := bearerReq(t, p, http.MethodPut, "/v1/push/preferences", "u1", jwtinfra.RoleDonor,
		[]byte(`{"push_enabled":false}`))
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.UpdatePreferences), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.NotificationPreference
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.PushEnabled)
	svc.AssertExpectations(t)
}
