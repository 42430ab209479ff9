package notification

import (
	"fmt"
	"sort"
	"strings"

	"github.com/givehub-api/internal/domain"
)

// template renders a human-readable title/message per notification type.
// Message bodies reference payload fields as {field}.
type template struct {
	title   string
	message string
}

var templates = map[string]template{
	domain.TypeEventCreated: {
		title:   "New event: {event_name}",
		message: "A new volunteer event \"{event_name}\" was published. It starts on {event_date}.",
	},
	domain.TypeEventUpdated: {
		title:   "Event updated: {event_name}",
		message: "Details for \"{event_name}\" have changed. Check the event page for the latest schedule.",
	},
	domain.TypeEventCancelled: {
		title:   "Event cancelled: {event_name}",
		message: "\"{event_name}\" on {event_date} has been cancelled.",
	},
	domain.TypeEventReminder: {
		title:   "Reminder: {event_name}",
		message: "\"{event_name}\" starts on {event_date}. See you there!",
	},
	domain.TypeDonationReceived: {
		title:   "Donation received",
		message: "Thank you! Your donation of {amount} to {campaign} was received.",
	},
	domain.TypeVolunteerApproved: {
		title:   "Application approved",
		message: "You have been approved as a volunteer for \"{event_name}\".",
	},
	domain.TypeAnnouncement: {
		title:   "{title}",
		message: "{body}",
	},
}

// render resolves the template for the type and substitutes payload fields.
// Unknown types fall back to a generic listing of the payload.
func render(notifType string, payload map[string]string) (title, message string) {
	tpl, ok := templates[notifType]
	if !ok {
		return genericRender(notifType, payload)
	}
	return substitute(tpl.title, payload), substitute(tpl.message, payload)
}

func substitute(s string, payload map[string]string) string {
	for k, v := range payload {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func genericRender(notifType string, payload map[string]string) (string, string) {
	title := "Notification: " + notifType
	if len(payload) == 0 {
		return title, "You have a new notification."
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, payload[k]))
	}
	return title, strings.Join(parts, ", ")
}
