package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

func enroll(t *testing.T, s *Store, name string) *database.Identity {
	t.Helper()
	identity := &database.Identity{
		ID:         uuid.New().String(),
		Name:       name,
		Embeddings: []facematch.Vector{{0, 0}},
	}
	if err := s.CreateIdentity(context.Background(), identity); err != nil {
		t.Fatalf("CreateIdentity(%s): %v", name, err)
	}
	return identity
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func TestCreateIdentity_DuplicateName(t *testing.T) {
	s := New()
	enroll(t, s, "Alice Novak")

	err := s.CreateIdentity(context.Background(), &database.Identity{ID: "x", Name: "alice  NOVÁK"})
	if !errors.Is(err, database.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestListIdentities_EnrollmentOrder(t *testing.T) {
	s := New()
	names := []string{"Zed", "Alice", "Mia"}
	for _, n := range names {
		enroll(t, s, n)
	}

	got, err := s.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	for i, n := range names {
		if got[i].Name != n {
			t.Errorf("position %d: got %s, want %s", i, got[i].Name, n)
		}
	}
}

func TestRecordRecognition_OncePerDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := enroll(t, s, "Alice")

	up, err := s.RecordRecognition(ctx, alice.ID, []float32{0.1, 0}, day(2024, 3, 1), 10, 20)
	if err != nil {
		t.Fatalf("RecordRecognition: %v", err)
	}
	if !up.AttendanceRecorded || up.LoyaltyPoints != 20 || up.AttendanceCount != 1 || up.GallerySize != 2 {
		t.Errorf("unexpected first update %+v", up)
	}

	up, err = s.RecordRecognition(ctx, alice.ID, []float32{0.2, 0}, day(2024, 3, 1), 10, 20)
	if err != nil {
		t.Fatalf("RecordRecognition: %v", err)
	}
	if up.AttendanceRecorded || up.LoyaltyPoints != 20 || up.AttendanceCount != 1 || up.GallerySize != 3 {
		t.Errorf("same-day recognition must only grow the gallery, got %+v", up)
	}

	up, err = s.RecordRecognition(ctx, alice.ID, []float32{0.3, 0}, day(2024, 3, 2), 10, 20)
	if err != nil {
		t.Fatalf("RecordRecognition: %v", err)
	}
	if !up.AttendanceRecorded || up.LoyaltyPoints != 40 || up.AttendanceCount != 2 {
		t.Errorf("next day must count, got %+v", up)
	}

	records, err := s.ListAttendance(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListAttendance: %v", err)
	}
	if len(records) != 2 || records[0].Day.Format(database.DayLayout) != "2024-03-01" {
		t.Errorf("unexpected attendance %+v", records)
	}
}

func TestRecordRecognition_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := enroll(t, s, "Alice")

	for i := 1; i <= 10; i++ {
		if _, err := s.RecordRecognition(ctx, alice.ID, []float32{float32(i), 0}, day(2024, 3, 1), 10, 20); err != nil {
			t.Fatalf("RecordRecognition %d: %v", i, err)
		}
	}

	got, err := s.GetIdentity(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if got.GallerySize() != 10 {
		t.Fatalf("expected 10 embeddings, got %d", got.GallerySize())
	}
	if got.Embeddings[0][0] != 1 || got.Embeddings[9][0] != 10 {
		t.Errorf("expected the enrollment embedding evicted, got first=%v last=%v",
			got.Embeddings[0], got.Embeddings[9])
	}
}

func TestRecordRecognition_ConcurrentSameDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := enroll(t, s, "Alice")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.RecordRecognition(ctx, alice.ID, []float32{float32(i), 0}, day(2024, 3, 1), 10, 20); err != nil {
				t.Errorf("RecordRecognition: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetIdentity(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if got.AttendanceCount != 1 || got.LoyaltyPoints != 20 {
		t.Errorf("expected a single attendance, got count=%d points=%d", got.AttendanceCount, got.LoyaltyPoints)
	}
	if got.GallerySize() != 10 {
		t.Errorf("expected gallery at capacity, got %d", got.GallerySize())
	}
}

func TestRecordRecognition_Missing(t *testing.T) {
	s := New()
	_, err := s.RecordRecognition(context.Background(), "nope", []float32{0}, day(2024, 3, 1), 10, 20)
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetIdentity_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := enroll(t, s, "Alice")

	got, _ := s.GetIdentity(ctx, alice.ID)
	got.Embeddings[0][0] = 99
	got.LoyaltyPoints = 1000

	again, _ := s.GetIdentity(ctx, alice.ID)
	if again.Embeddings[0][0] != 0 || again.LoyaltyPoints != 0 {
		t.Errorf("store state leaked through returned identity: %+v", again)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := enroll(t, s, "Alice")
	enroll(t, s, "Bob")

	if err := s.UpdateIdentity(ctx, alice.ID, "bob", ""); !errors.Is(err, database.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	if err := s.UpdateIdentity(ctx, alice.ID, "Alicia", "+420 123"); err != nil {
		t.Fatalf("UpdateIdentity: %v", err)
	}
	if _, err := s.GetIdentityByName(ctx, "alice"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("old name should be free, got %v", err)
	}
	got, err := s.GetIdentityByName(ctx, "ALICIA")
	if err != nil || got.ID != alice.ID || got.Phone != "+420 123" {
		t.Errorf("lookup by new name failed: %+v, %v", got, err)
	}

	if err := s.DeleteIdentity(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if err := s.DeleteIdentity(ctx, alice.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("expected 1 identity left, got %d", n)
	}
}

func TestErrorInjection(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.ListError = boom
	if _, err := s.ListIdentities(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
}
