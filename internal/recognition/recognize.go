package recognition

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-checkin/internal/database"
)

// Recognize runs the full pipeline on one frame. Domain results are reported in
// the Outcome; the error is non-nil only for store failures (ErrStore) and
// context cancellation.
func (s *Service) Recognize(ctx context.Context, frame []byte) (Outcome, error) {
	rect, query, err := s.embedFrame(ctx, frame)
	switch {
	case errors.Is(err, ErrNoFaceDetected):
		return Outcome{Status: StatusNoFaceDetected}, nil
	case errors.Is(err, ErrExtractionFailed):
		return Outcome{Status: StatusExtractionFailed, FaceRect: &rect}, nil
	case errors.Is(err, ErrInvalidEmbedding):
		return Outcome{Status: StatusInvalidEmbedding, FaceRect: &rect}, nil
	case err != nil:
		return Outcome{}, err
	}

	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return Outcome{}, storeError("list identities", err)
	}

	match := s.matcher.Match(query, database.Gallery(identities))
	if !match.Found {
		out := Outcome{Status: StatusUnmatched, FaceRect: &rect}
		if match.Rejected {
			out.Distance = match.Distance
			s.log.Info().
				Str("nearest_identity_id", match.IdentityID).
				Float64("distance", match.Distance).
				Float64("max_distance", s.opts.MaxDistance).
				Msg("nearest identity rejected by distance threshold")
		}
		return out, nil
	}

	update, err := s.store.RecordRecognition(
		ctx, match.IdentityID, query, s.today(), s.opts.GalleryCapacity, s.opts.LoyaltyReward,
	)
	if errors.Is(err, database.ErrNotFound) {
		// Deleted between the snapshot and the update.
		s.log.Info().Str("identity_id", match.IdentityID).Msg("matched identity no longer exists")
		return Outcome{Status: StatusUnmatched, FaceRect: &rect}, nil
	}
	if err != nil {
		return Outcome{}, storeError("record recognition", err)
	}
	s.changed()

	s.log.Info().
		Str("identity_id", update.IdentityID).
		Str("name", update.Name).
		Float64("distance", match.Distance).
		Bool("attendance_recorded", update.AttendanceRecorded).
		Int("attendance_count", update.AttendanceCount).
		Int("loyalty_points", update.LoyaltyPoints).
		Int("evicted", update.Evicted).
		Msg("identity recognized")

	return Outcome{
		Status:             StatusRecognized,
		IdentityID:         update.IdentityID,
		Name:               update.Name,
		AttendanceCount:    update.AttendanceCount,
		LoyaltyPoints:      update.LoyaltyPoints,
		Distance:           match.Distance,
		AttendanceRecorded: update.AttendanceRecorded,
		FaceRect:           &rect,
	}, nil
}
