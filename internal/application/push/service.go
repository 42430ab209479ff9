package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/givehub-api/internal/domain"
	"github.com/givehub-api/internal/infrastructure/webpush"
	"github.com/givehub-api/internal/pkg/id"
)

// SubscriptionStore is the minimal interface the service requires from the
// subscription repository.
type SubscriptionStore interface {
	Upsert(ctx context.Context, s *domain.PushSubscription) error
	Get(ctx context.Context, endpoint string) (*domain.PushSubscription, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	Revoke(ctx context.Context, endpoint string, at time.Time) error
}

type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	Put(ctx context.Context, p *domain.NotificationPreference) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type Service interface {
	// PublicKey returns the VAPID key browsers need to subscribe.
	// domain.ErrNotConfigured means push is unavailable; callers degrade,
	// they never error at the user.
	PublicKey() (string, error)
	Subscribe(ctx context.Context, userID string, req domain.SubscribeRequest) (*domain.PushSubscription, error)
	// Unsubscribe revokes one endpoint, or every subscription the user
	// holds when endpoint is empty. Unknown endpoints are a no-op.
	Unsubscribe(ctx context.Context, userID, endpoint string) error
	GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	UpdatePreferences(ctx context.Context, userID string, req domain.UpdatePreferenceRequest) (*domain.NotificationPreference, error)
}

type ServiceDeps struct {
	SubscriptionRepo SubscriptionStore
	PreferenceRepo   PreferenceStore
	PushSender       webpush.Sender // nil when push is not configured
}

type service struct {
	subscriptionRepo SubscriptionStore
	preferenceRepo   PreferenceStore
	pushSender       webpush.Sender
}

func NewService(deps ServiceDeps) Service {
	return &service{
		subscriptionRepo: deps.SubscriptionRepo,
		preferenceRepo:   deps.PreferenceRepo,
		pushSender:       deps.PushSender,
	}
}

func (s *service) PublicKey() (string, error) {
	if s.pushSender == nil {
		return "", fmt.Errorf("push delivery: %w", domain.ErrNotConfigured)
	}
	return s.pushSender.PublicKey()
}

func (s *service) Subscribe(ctx context.Context, userID string, req domain.SubscribeRequest) (*domain.PushSubscription, error) {
	sub := &domain.PushSubscription{
		Endpoint:       req.Endpoint,
		SubscriptionID: id.New(),
		UserID:         userID,
		P256dh:         req.Keys.P256dh,
		Auth:           req.Keys.Auth,
		DeviceInfo:     req.DeviceInfo,
		CreatedAt:      time.Now().UTC(),
	}
	// Upsert keyed by endpoint: a browser re-subscribing keeps one row.
	if err := s.subscriptionRepo.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return s.subscriptionRepo.Get(ctx, req.Endpoint)
}

func (s *service) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	now := time.Now().UTC()

	if endpoint == "" {
		subs, err := s.subscriptionRepo.ListActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if err := s.subscriptionRepo.Revoke(ctx, sub.Endpoint, now); err != nil {
				slog.Warn("could not revoke subscription", "endpoint", sub.Endpoint, "err", err)
			}
		}
		return nil
	}

	sub, err := s.subscriptionRepo.Get(ctx, endpoint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // double-unsubscribe races are fine
		}
		return err
	}
	if sub.UserID != userID {
		return fmt.Errorf("not the subscription owner: %w", domain.ErrForbidden)
	}
	return s.subscriptionRepo.Revoke(ctx, endpoint, now)
}

// GetPreferences returns the user's settings, creating defaults on first
// access.
func (s *service) GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	prefs, err := s.preferenceRepo.Get(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	prefs = domain.DefaultPreference(userID)
	if err := s.preferenceRepo.Put(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *service) UpdatePreferences(ctx context.Context, userID string, req domain.UpdatePreferenceRequest) (*domain.NotificationPreference, error) {
	// Ensure the record exists so a partial update has a base to land on.
	if _, err := s.GetPreferences(ctx, userID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.PushEnabled != nil {
		updates["push_enabled"] = *req.PushEnabled
	}
	if req.PushTypesEnabled != nil {
		if err := validTypes(req.PushTypesEnabled); err != nil {
			return nil, err
		}
		updates["push_types_enabled"] = req.PushTypesEnabled
	}
	if req.EmailEnabled != nil {
		updates["email_enabled"] = *req.EmailEnabled
	}
	if req.EmailTypesEnabled != nil {
		if err := validTypes(req.EmailTypesEnabled); err != nil {
			return nil, err
		}
		updates["email_types_enabled"] = req.EmailTypesEnabled
	}
	if req.EmailFrequency != nil {
		updates["email_frequency"] = *req.EmailFrequency
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", *req.Timezone, domain.ErrBadRequest)
		}
		updates["timezone"] = *req.Timezone
	}
	if req.QuietHours != nil {
		updates["quiet_hours"] = *req.QuietHours
	}
	if len(updates) == 0 {
		return s.preferenceRepo.Get(ctx, userID)
	}

	if err := s.preferenceRepo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.preferenceRepo.Get(ctx, userID)
}

func validTypes(types []string) error {
	for _, t := range types {
		known := false
		for _, k := range domain.AllNotificationTypes {
			if t == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown notification type %q: %w", t, domain.ErrBadRequest)
		}
	}
	return nil
}
