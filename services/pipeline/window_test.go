package pipeline

import (
	"testing"
	"time"

	"github.com/nijaru/reelflow/models"
	"github.com/stretchr/testify/assert"
)

func TestNextPublishTime(t *testing.T) {
	day := func(h, m int) time.Time {
		return time.Date(2024, 6, 1, h, m, 0, 0, time.UTC)
	}
	window := func(start, end string) models.Settings {
		return models.Settings{PublishTimeStart: start, PublishTimeEnd: end}
	}

	tests := []struct {
		name     string
		settings models.Settings
		now      time.Time
		want     time.Time
	}{
		{"inside window", window("09:00", "21:00"), day(12, 0), day(12, 0)},
		{"at window start", window("09:00", "21:00"), day(9, 0), day(9, 0)},
		{"before window", window("09:00", "21:00"), day(7, 30), day(9, 0)},
		{"at window end", window("09:00", "21:00"), day(21, 0), day(9, 0).AddDate(0, 0, 1)},
		{"after window", window("09:00", "21:00"), day(23, 59), day(9, 0).AddDate(0, 0, 1)},
		{"wrapping window late", window("22:00", "02:00"), day(23, 0), day(23, 0)},
		{"wrapping window early", window("22:00", "02:00"), day(1, 0), day(1, 0)},
		{"wrapping window closed", window("22:00", "02:00"), day(12, 0), day(22, 0)},
		{"empty window", window("", ""), day(3, 0), day(3, 0)},
		{"zero length window", window("10:00", "10:00"), day(3, 0), day(3, 0)},
		{"invalid clock", window("25:00", "10:00"), day(3, 0), day(3, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextPublishTime(tt.settings, tt.now))
		})
	}
}

func TestNextPublishTimeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// the night clocks spring forward
	now := time.Date(2024, 3, 9, 22, 0, 0, 0, loc)
	got := NextPublishTime(models.Settings{PublishTimeStart: "09:00", PublishTimeEnd: "21:00"}, now)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, loc), got)
	assert.Equal(t, 9, got.Hour())
}
