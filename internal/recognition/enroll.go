package recognition

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// Enroll creates an identity from a single image. It returns ErrInvalidName,
// ErrNoFaceDetected, ErrExtractionFailed, ErrInvalidEmbedding or ErrDuplicateName
// for rejected requests and wraps ErrStore for persistence failures.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*database.Identity, error) {
	name := facematch.CleanDisplayName(req.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	_, vec, err := s.embedFrame(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	// The unique name key in the store catches concurrent enrollments this misses.
	_, err = s.store.GetIdentityByName(ctx, name)
	switch {
	case err == nil:
		return nil, ErrDuplicateName
	case !errors.Is(err, database.ErrNotFound):
		return nil, storeError("lookup name", err)
	}

	identity := &database.Identity{
		ID:         uuid.New().String(),
		Name:       name,
		Phone:      strings.TrimSpace(req.Phone),
		Embeddings: []facematch.Vector{vec},
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, database.ErrDuplicateName) {
			return nil, ErrDuplicateName
		}
		return nil, storeError("create identity", err)
	}
	s.changed()

	s.log.Info().
		Str("identity_id", identity.ID).
		Str("name", identity.Name).
		Int("dim", len(vec)).
		Msg("identity enrolled")
	return identity, nil
}
