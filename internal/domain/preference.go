package domain

import "time"

// Email digest frequencies.
const (
	EmailFrequencyImmediate = "immediate"
	EmailFrequencyDaily     = "daily"
	EmailFrequencyNever     = "never"
)

// QuietHours is a window during which push delivery is withheld.
// Start and End are "HH:MM"; a window may wrap past midnight (22:00–08:00).
// In-app rows are always written regardless of quiet hours.
type QuietHours struct {
	Enabled bool   `json:"enabled" dynamodbav:"enabled"`
	Start   string `json:"start" dynamodbav:"start"`
	End     string `json:"end" dynamodbav:"end"`
}

// NotificationPreference is one user's channel settings.
// PK: user_id. Created lazily with all types enabled on first access.
type NotificationPreference struct {
	UserID            string     `json:"user_id" dynamodbav:"user_id"`
	PushEnabled       bool       `json:"push_enabled" dynamodbav:"push_enabled"`
	PushTypesEnabled  []string   `json:"push_types_enabled" dynamodbav:"push_types_enabled"`
	EmailEnabled      bool       `json:"email_enabled" dynamodbav:"email_enabled"`
	EmailTypesEnabled []string   `json:"email_types_enabled" dynamodbav:"email_types_enabled"`
	EmailFrequency    string     `json:"email_frequency" dynamodbav:"email_frequency"`
	Timezone          string     `json:"timezone" dynamodbav:"timezone"` // IANA name, default UTC
	QuietHours        QuietHours `json:"quiet_hours" dynamodbav:"quiet_hours"`
	UpdatedAt         time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// AllNotificationTypes lists every type the portal dispatches.
var AllNotificationTypes = []string{
	TypeEventCreated,
	TypeEventUpdated,
	TypeEventCancelled,
	TypeEventReminder,
	TypeDonationReceived,
	TypeVolunteerApproved,
	TypeAnnouncement,
}

// DefaultPreference returns the lazily-created settings: every channel and
// type enabled, no quiet hours.
func DefaultPreference(userID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:            userID,
		PushEnabled:       true,
		PushTypesEnabled:  append([]string(nil), AllNotificationTypes...),
		EmailEnabled:      true,
		EmailTypesEnabled: append([]string(nil), AllNotificationTypes...),
		EmailFrequency:    EmailFrequencyImmediate,
		Timezone:          "UTC",
		QuietHours:        QuietHours{},
		UpdatedAt:         time.Now().UTC(),
	}
}

// PushAllows reports whether the push channel is open for the given type.
func (p *NotificationPreference) PushAllows(notifType string) bool {
	if !p.PushEnabled {
		return false
	}
	for _, t := range p.PushTypesEnabled {
		if t == notifType {
			return true
		}
	}
	return false
}

// EmailAllows reports whether the email channel is open for the given type.
func (p *NotificationPreference) EmailAllows(notifType string) bool {
	if !p.EmailEnabled || p.EmailFrequency == EmailFrequencyNever {
		return false
	}
	for _, t := range p.EmailTypesEnabled {
		if t == notifType {
			return true
		}
	}
	return false
}

type UpdatePreferenceRequest struct {
	PushEnabled       *bool       `json:"push_enabled"`
	PushTypesEnabled  []string    `json:"push_types_enabled"`
	EmailEnabled      *bool       `json:"email_enabled"`
	EmailTypesEnabled []string    `json:"email_types_enabled"`
	EmailFrequency    *string     `json:"email_frequency" validate:"omitempty,oneof=immediate daily never"`
	Timezone          *string     `json:"timezone"`
	QuietHours        *QuietHours `json:"quiet_hours"`
}
