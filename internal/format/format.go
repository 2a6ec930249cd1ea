// Package format holds the text formatting helpers used by rendered note sections.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Duration formats seconds as "2h 5m", or "45m" below one hour.
func Duration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// Digital formats seconds as "H:MM".
func Digital(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return strconv.Itoa(seconds/3600) + ":" + padZero((seconds/60)%60)
}

// ClockTime turns an "HH:MM:SS" time of day into "HH:MM" or, with use24h false,
// "h:MM AM". Input that does not look like a time is returned unchanged.
func ClockTime(hms string, use24h bool) string {
	parts := strings.Split(hms, ":")
	if len(parts) < 2 {
		return hms
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return hms
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return hms
	}
	if use24h {
		return padZero(h) + ":" + padZero(m)
	}

	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return strconv.Itoa(h12) + ":" + padZero(m) + " " + suffix
}

// Hour formats an hour of day as a "09:00" label.
func Hour(h int) string {
	return padZero(h) + ":00"
}

// Percentage returns part/total as a whole percentage, 0 when total is not positive.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func padZero(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
