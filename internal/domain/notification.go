package domain

import "time"

// Notification types dispatched by the portal.
const (
	TypeEventCreated      = "event_created"
	TypeEventUpdated      = "event_updated"
	TypeEventCancelled    = "event_cancelled"
	TypeEventReminder     = "event_reminder"
	TypeDonationReceived  = "donation_received"
	TypeVolunteerApproved = "volunteer_approved"
	TypeAnnouncement      = "announcement"
)

type Notification struct {
	NotificationID string            `json:"id" dynamodbav:"notification_id"`
	UserID         string            `json:"user_id" dynamodbav:"user_id"`
	Type           string            `json:"type" dynamodbav:"type"`
	Title          string            `json:"title" dynamodbav:"title"`
	Message        string            `json:"message" dynamodbav:"message"`
	Payload        map[string]string `json:"payload,omitempty" dynamodbav:"payload"`
	CreatedAt      time.Time         `json:"created" dynamodbav:"created_at"`
	ReadAt         *time.Time        `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
}

// CreateNotificationRequest is the dispatch input. SourceEvent, when set,
// makes creation idempotent: the same (user, source event, type) triple
// never produces two rows.
type CreateNotificationRequest struct {
	UserID      string            `json:"user_id" validate:"required"`
	Type        string            `json:"type" validate:"required"`
	Payload     map[string]string `json:"payload"`
	SourceEvent string            `json:"source_event"`
}
