package http

import (
	"context"
	"time"

	"github.com/givehub-api/internal/domain"
)

// ChallengeRepository is the minimal interface the router requires from
// the OTP challenge store.
type ChallengeRepository interface {
	Put(ctx context.Context, c *domain.OtpChallenge) error
	Get(ctx context.Context, subjectKey string) (*domain.OtpChallenge, error)
	DecrementAttempts(ctx context.Context, subjectKey, challengeID string, from int) error
	Consume(ctx context.Context, subjectKey, challengeID string, at time.Time) error
}

// NotificationRepository is the minimal interface the router requires from
// the notification store.
type NotificationRepository interface {
	PutIfAbsent(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListPage(ctx context.Context, userID string, limit int32, cursor string) ([]domain.Notification, string, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, notificationID string, at time.Time) error
	Delete(ctx context.Context, notificationID string) error
}

// SubscriptionRepository is the minimal interface the router requires from
// the push subscription store.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, s *domain.PushSubscription) error
	Get(ctx context.Context, endpoint string) (*domain.PushSubscription, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	Revoke(ctx context.Context, endpoint string, at time.Time) error
}

// PreferenceRepository is the minimal interface the router requires from
// the notification preference store.
type PreferenceRepository interface {
	Put(ctx context.Context, p *domain.NotificationPreference) error
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}
