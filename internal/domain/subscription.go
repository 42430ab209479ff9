package domain

import "time"

// PushSubscription is one browser push endpoint for one device.
// PK: endpoint. Re-subscribing the same endpoint updates in place.
type PushSubscription struct {
	Endpoint       string     `json:"endpoint" dynamodbav:"endpoint"`
	SubscriptionID string     `json:"id" dynamodbav:"subscription_id"`
	UserID         string     `json:"user_id" dynamodbav:"user_id"`
	P256dh         string     `json:"-" dynamodbav:"p256dh"`
	Auth           string     `json:"-" dynamodbav:"auth"`
	DeviceInfo     string     `json:"device_info,omitempty" dynamodbav:"device_info"`
	CreatedAt      time.Time  `json:"created" dynamodbav:"created_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty" dynamodbav:"revoked_at,omitempty"`
}

// Active reports whether the subscription should still receive deliveries.
func (s *PushSubscription) Active() bool { return s.RevokedAt == nil }

type SubscribeRequest struct {
	Endpoint   string           `json:"endpoint" validate:"required,url"`
	Keys       SubscriptionKeys `json:"keys"`
	DeviceInfo string           `json:"device_info"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

type UnsubscribeRequest struct {
	// Endpoint empty means "all subscriptions for the caller".
	Endpoint string `json:"endpoint"`
}
