package notification

import (
	"strconv"
	"strings"
	"time"

	"github.com/givehub-api/internal/domain"
)

// inQuietHours reports whether now falls inside the user's quiet window.
// The window is evaluated in the user's timezone and may wrap past
// midnight (22:00–08:00 covers late evening and early morning).
func inQuietHours(q domain.QuietHours, timezone string, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, okStart := parseClock(q.Start)
	end, okEnd := parseClock(q.End)
	if !okStart || !okEnd || start == end {
		return false
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	// Wrapping window: quiet from start until midnight, then until end.
	return minute >= start || minute < end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
