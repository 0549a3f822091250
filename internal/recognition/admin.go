package recognition

import (
	"context"
	"errors"
	"strings"

	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// passStoreErr keeps the store sentinels comparable and wraps everything else.
func passStoreErr(op string, err error) error {
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrDuplicateName) {
		return err
	}
	return storeError(op, err)
}

// ListIdentities returns all identities in enrollment order.
func (s *Service) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, storeError("list identities", err)
	}
	return identities, nil
}

// GetIdentity returns one identity or ErrNotFound.
func (s *Service) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	identity, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return nil, passStoreErr("get identity", err)
	}
	return identity, nil
}

// FindIdentity resolves an identity by ID, falling back to its name.
func (s *Service) FindIdentity(ctx context.Context, ref string) (*database.Identity, error) {
	identity, err := s.store.GetIdentity(ctx, ref)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, storeError("get identity", err)
	}
	identity, err = s.store.GetIdentityByName(ctx, ref)
	if err != nil {
		return nil, passStoreErr("get identity by name", err)
	}
	return identity, nil
}

// RenameIdentity changes the name and phone of an identity. The new name must be
// unique under the same rules as enrollment.
func (s *Service) RenameIdentity(ctx context.Context, id, name, phone string) (*database.Identity, error) {
	name = facematch.CleanDisplayName(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := s.store.UpdateIdentity(ctx, id, name, strings.TrimSpace(phone)); err != nil {
		return nil, passStoreErr("update identity", err)
	}
	s.changed()
	s.log.Info().Str("identity_id", id).Str("name", name).Msg("identity renamed")
	return s.GetIdentity(ctx, id)
}

// DeleteIdentity removes an identity with its gallery and attendance history.
func (s *Service) DeleteIdentity(ctx context.Context, id string) error {
	if err := s.store.DeleteIdentity(ctx, id); err != nil {
		return passStoreErr("delete identity", err)
	}
	s.changed()
	s.log.Info().Str("identity_id", id).Msg("identity deleted")
	return nil
}

// ListAttendance returns the days an identity was recognized.
func (s *Service) ListAttendance(ctx context.Context, id string) ([]database.AttendanceRecord, error) {
	records, err := s.store.ListAttendance(ctx, id)
	if err != nil {
		return nil, passStoreErr("list attendance", err)
	}
	return records, nil
}
