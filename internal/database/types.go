package database

import (
	"time"

	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// Identity is an enrolled person together with their embedding gallery and counters.
type Identity struct {
	ID              string
	Seq             int64 // enrollment order, assigned by the store
	Name            string
	Phone           string
	Embeddings      []facematch.Vector // oldest first
	LoyaltyPoints   int
	AttendanceCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GallerySize returns the number of stored embeddings.
func (i *Identity) GallerySize() int {
	return len(i.Embeddings)
}

// Entry converts the identity to the matcher's gallery representation.
func (i *Identity) Entry() facematch.GalleryEntry {
	return facematch.GalleryEntry{
		IdentityID: i.ID,
		Name:       i.Name,
		Embeddings: i.Embeddings,
	}
}

// AttendanceRecord marks that an identity was recognized on a calendar day.
type AttendanceRecord struct {
	IdentityID string
	Day        time.Time // midnight UTC of the calendar day
	CreatedAt  time.Time
}

// RecognitionUpdate describes the effect of a single accepted recognition.
type RecognitionUpdate struct {
	IdentityID         string
	Name               string
	LoyaltyPoints      int
	AttendanceCount    int
	AttendanceRecorded bool // a new attendance record was created by this call
	GallerySize        int
	Evicted            int
}

// Gallery converts identities to matcher entries, keeping their order.
func Gallery(identities []Identity) []facematch.GalleryEntry {
	entries := make([]facematch.GalleryEntry, len(identities))
	for i := range identities {
		entries[i] = identities[i].Entry()
	}
	return entries
}
