// Package recognition runs the check-in pipeline: locate a face, extract its
// embedding, match it against the enrolled galleries and record attendance.
package recognition

import (
	"errors"

	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// Status is the terminal result of one recognition attempt.
type Status string

const (
	StatusNoFaceDetected   Status = "no_face_detected"
	StatusExtractionFailed Status = "extraction_failed"
	StatusInvalidEmbedding Status = "invalid_embedding"
	StatusUnmatched        Status = "unmatched"
	StatusRecognized       Status = "recognized"
)

// Outcome describes what a recognition attempt did.
type Outcome struct {
	Status             Status
	IdentityID         string
	Name               string
	AttendanceCount    int
	LoyaltyPoints      int
	Distance           float64 // nearest distance, also set for threshold rejections
	AttendanceRecorded bool    // this call created today's attendance record
	FaceRect           *facematch.Rect
}

// Recognized reports whether an identity was matched and updated.
func (o Outcome) Recognized() bool {
	return o.Status == StatusRecognized
}

var (
	// ErrStore wraps persistence failures. It is the only error class Recognize returns
	// besides context cancellation.
	ErrStore = errors.New("identity store failure")

	ErrNoFaceDetected   = errors.New("no face detected")
	ErrExtractionFailed = errors.New("face embedding extraction failed")
	ErrInvalidEmbedding = errors.New("face embedding contains invalid values")
	ErrInvalidName      = errors.New("name must not be empty")

	// Store sentinels, re-exported so callers need only this package.
	ErrDuplicateName = database.ErrDuplicateName
	ErrNotFound      = database.ErrNotFound
)

// EnrollRequest is the input of Enroll.
type EnrollRequest struct {
	Name  string
	Phone string
	Image []byte
}

// DetectResult is the selected face of a frame and its crop.
type DetectResult struct {
	Detected bool
	FaceRect facematch.Rect
	Crop     []byte // JPEG
}

// Lookalike is another identity whose gallery is close to the inspected one.
type Lookalike struct {
	IdentityID string  `json:"identity_id"`
	Name       string  `json:"name"`
	Distance   float64 `json:"distance"`
	Suspicious bool    `json:"suspicious"` // closer than the configured lookalike distance
}
