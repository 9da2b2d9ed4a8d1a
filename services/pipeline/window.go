package pipeline

import (
	"fmt"
	"time"

	"github.com/nijaru/reelflow/models"
)

// parseClock returns minutes since midnight for "HH:MM".
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// NextPublishTime returns now when now falls inside the publish window
// [start, end), otherwise the next window start. Windows may wrap past
// midnight. An empty or zero-length window is always open.
func NextPublishTime(settings models.Settings, now time.Time) time.Time {
	if settings.PublishTimeStart == "" || settings.PublishTimeEnd == "" {
		return now
	}
	start, err := parseClock(settings.PublishTimeStart)
	if err != nil {
		return now
	}
	end, err := parseClock(settings.PublishTimeEnd)
	if err != nil || start == end {
		return now
	}

	minute := now.Hour()*60 + now.Minute()
	open := minute >= start && minute < end
	if start > end {
		open = minute >= start || minute < end
	}
	if open {
		return now
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), start/60, start%60, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, start/60, start%60, 0, 0, now.Location())
	}
	return next
}
