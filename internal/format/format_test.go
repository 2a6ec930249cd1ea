package format_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charlie0129/timing-notes-sync/internal/format"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0m"},
		{59, "0m"},
		{60, "1m"},
		{2700, "45m"},
		{3600, "1h 0m"},
		{3661, "1h 1m"},
		{9000, "2h 30m"},
		{-5, "0m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, format.Duration(tt.seconds), "Duration(%d)", tt.seconds)
	}
}

func TestDigital(t *testing.T) {
	assert.Equal(t, "0:00", format.Digital(0))
	assert.Equal(t, "1:05", format.Digital(3900))
	assert.Equal(t, "12:30", format.Digital(45000))
}

func TestClockTime(t *testing.T) {
	tests := []struct {
		in     string
		use24h bool
		want   string
	}{
		{"09:05:00", true, "09:05"},
		{"09:05:00", false, "9:05 AM"},
		{"00:15:00", false, "12:15 AM"},
		{"12:00:00", false, "12:00 PM"},
		{"23:59:59", false, "11:59 PM"},
		{"23:59:59", true, "23:59"},
		{"garbage", true, "garbage"},
		{"25:00:00", true, "25:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, format.ClockTime(tt.in, tt.use24h), "ClockTime(%q, %v)", tt.in, tt.use24h)
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, format.Percentage(10, 0))
	assert.Equal(t, 50, format.Percentage(1, 2))
	assert.Equal(t, 33, format.Percentage(1, 3))
	assert.Equal(t, 67, format.Percentage(2, 3))
	assert.Equal(t, 100, format.Percentage(5, 5))
}

func TestHour(t *testing.T) {
	assert.Equal(t, "09:00", format.Hour(9))
	assert.Equal(t, "14:00", format.Hour(14))
}
