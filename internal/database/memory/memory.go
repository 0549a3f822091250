// Package memory provides an in-process identity store. It backs `serve --memory`
// and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// Store keeps identities and attendance in memory.
type Store struct {
	mu         sync.RWMutex
	identities map[string]*record
	names      map[string]string // normalized name -> identity ID
	seq        int64
	now        func() time.Time

	// Error injection
	ListError   error
	GetError    error
	CreateError error
	RecordError error
	UpdateError error
	DeleteError error
}

type record struct {
	mu         sync.Mutex // serializes recognitions of one identity
	identity   database.Identity
	attendance map[string]time.Time // day -> created at
	deleted    bool
}

var _ database.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		identities: make(map[string]*record),
		names:      make(map[string]string),
		now:        time.Now,
	}
}

// SetClock overrides the clock used for timestamps. Call it before the store is shared.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func cloneIdentity(src *database.Identity) database.Identity {
	dst := *src
	dst.Embeddings = make([]facematch.Vector, len(src.Embeddings))
	for i, emb := range src.Embeddings {
		dst.Embeddings[i] = emb.Clone()
	}
	return dst
}

// ListIdentities returns copies of all identities in enrollment order.
func (s *Store) ListIdentities(_ context.Context) ([]database.Identity, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	recs := make([]*record, 0, len(s.identities))
	for _, rec := range s.identities {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	result := make([]database.Identity, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		result = append(result, cloneIdentity(&rec.identity))
		rec.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (s *Store) lookup(id string) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.identities[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return rec, nil
}

// GetIdentity returns a copy of one identity.
func (s *Store) GetIdentity(_ context.Context, id string) (*database.Identity, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	identity := cloneIdentity(&rec.identity)
	return &identity, nil
}

// GetIdentityByName finds an identity by normalized name.
func (s *Store) GetIdentityByName(ctx context.Context, name string) (*database.Identity, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	id, ok := s.names[facematch.NormalizePersonName(name)]
	s.mu.RUnlock()
	if !ok {
		return nil, database.ErrNotFound
	}
	return s.GetIdentity(ctx, id)
}

// ListAttendance returns attendance records ordered by day.
func (s *Store) ListAttendance(_ context.Context, id string) ([]database.AttendanceRecord, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	records := make([]database.AttendanceRecord, 0, len(rec.attendance))
	for day, created := range rec.attendance {
		d, _ := time.Parse(database.DayLayout, day)
		records = append(records, database.AttendanceRecord{IdentityID: id, Day: d, CreatedAt: created})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Day.Before(records[j].Day) })
	return records, nil
}

// Count returns the number of identities.
func (s *Store) Count(_ context.Context) (int, error) {
	if s.ListError != nil {
		return 0, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities), nil
}

// CreateIdentity stores a new identity.
func (s *Store) CreateIdentity(_ context.Context, identity *database.Identity) error {
	if s.CreateError != nil {
		return s.CreateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := facematch.NormalizePersonName(identity.Name)
	if _, taken := s.names[key]; taken {
		return database.ErrDuplicateName
	}

	s.seq++
	now := s.now()
	identity.Seq = s.seq
	identity.CreatedAt = now
	identity.UpdatedAt = now

	s.identities[identity.ID] = &record{
		identity:   cloneIdentity(identity),
		attendance: make(map[string]time.Time),
	}
	s.names[key] = identity.ID
	return nil
}

// RecordRecognition appends the embedding and records attendance under the identity's lock.
func (s *Store) RecordRecognition(
	_ context.Context, id string, embedding []float32, day time.Time, capacity, reward int,
) (*database.RecognitionUpdate, error) {
	if s.RecordError != nil {
		return nil, s.RecordError
	}
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Deleted while we waited for the lock.
	if rec.deleted {
		return nil, database.ErrNotFound
	}
	now := s.now()

	identity := &rec.identity
	gallery := append(identity.Embeddings, facematch.Vector(embedding).Clone())
	var evicted int
	identity.Embeddings, evicted = database.TrimGallery(gallery, capacity)

	update := &database.RecognitionUpdate{
		IdentityID:  id,
		Name:        identity.Name,
		GallerySize: len(identity.Embeddings),
		Evicted:     evicted,
	}

	key := database.FormatDay(day)
	if _, present := rec.attendance[key]; !present {
		rec.attendance[key] = now
		identity.LoyaltyPoints += reward
		identity.AttendanceCount++
		update.AttendanceRecorded = true
	}
	identity.UpdatedAt = now

	update.LoyaltyPoints = identity.LoyaltyPoints
	update.AttendanceCount = identity.AttendanceCount
	return update, nil
}

// UpdateIdentity renames an identity and updates its phone.
func (s *Store) UpdateIdentity(_ context.Context, id, name, phone string) error {
	if s.UpdateError != nil {
		return s.UpdateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.identities[id]
	if !ok {
		return database.ErrNotFound
	}
	newKey := facematch.NormalizePersonName(name)
	if owner, taken := s.names[newKey]; taken && owner != id {
		return database.ErrDuplicateName
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	delete(s.names, facematch.NormalizePersonName(rec.identity.Name))
	s.names[newKey] = id
	rec.identity.Name = name
	rec.identity.Phone = phone
	rec.identity.UpdatedAt = s.now()
	return nil
}

// DeleteIdentity removes an identity and its attendance.
func (s *Store) DeleteIdentity(_ context.Context, id string) error {
	if s.DeleteError != nil {
		return s.DeleteError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.identities[id]
	if !ok {
		return database.ErrNotFound
	}
	rec.mu.Lock()
	rec.deleted = true
	rec.mu.Unlock()

	delete(s.names, facematch.NormalizePersonName(rec.identity.Name))
	delete(s.identities, id)
	return nil
}
