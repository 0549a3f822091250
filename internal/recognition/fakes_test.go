package recognition

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/database/memory"
	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// fakeVision implements vision.Locator and vision.Extractor.
type fakeVision struct {
	mu         sync.Mutex
	rects      []facematch.Rect
	locateErr  error
	vec        facematch.Vector
	extractErr error
	crops      [][]byte
}

func (f *fakeVision) Locate(ctx context.Context, frame []byte) ([]facematch.Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]facematch.Rect(nil), f.rects...), f.locateErr
}

func (f *fakeVision) Extract(ctx context.Context, face []byte) (facematch.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.crops = append(f.crops, face)
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.vec.Clone(), nil
}

func (f *fakeVision) setVec(v ...float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vec = facematch.Vector(v)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc    *Service
	store  *memory.Store
	vision *fakeVision
	clock  *clock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		vision: &fakeVision{
			rects: []facematch.Rect{{X: 10, Y: 10, W: 40, H: 40}},
			vec:   facematch.Vector{0, 0, 0},
		},
		clock: &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.Now = h.clock.Now
	h.store.SetClock(h.clock.Now)
	h.svc = NewService(h.store, h.vision, h.vision, opts, zerolog.Nop())
	return h
}

// frame returns a decodable JPEG large enough for the default rectangle.
func frame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	for x := range 100 {
		for y := range 80 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return buf.Bytes()
}

func (h *harness) enroll(t *testing.T, name string, vec ...float32) string {
	t.Helper()
	h.vision.setVec(vec...)
	identity, err := h.svc.Enroll(context.Background(), EnrollRequest{Name: name, Image: frame(t)})
	if err != nil {
		t.Fatalf("Enroll(%s): %v", name, err)
	}
	return identity.ID
}

func (h *harness) recognize(t *testing.T, vec ...float32) Outcome {
	t.Helper()
	h.vision.setVec(vec...)
	out, err := h.svc.Recognize(context.Background(), frame(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	return out
}
