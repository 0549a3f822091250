package database

import (
	"time"

	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// TrimGallery keeps the newest capacity embeddings, evicting from the front.
// It returns the trimmed gallery and the number of evicted entries.
func TrimGallery(gallery []facematch.Vector, capacity int) ([]facematch.Vector, int) {
	if capacity < 1 {
		capacity = 1
	}
	if len(gallery) <= capacity {
		return gallery, 0
	}
	evicted := len(gallery) - capacity
	trimmed := make([]facematch.Vector, capacity)
	copy(trimmed, gallery[evicted:])
	return trimmed, evicted
}

// AttendanceDay truncates t to its calendar day in t's location and returns that
// day as midnight UTC, the representation stores use for attendance days.
func AttendanceDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDay formats an attendance day for storage.
func FormatDay(t time.Time) string {
	return AttendanceDay(t).Format(DayLayout)
}
