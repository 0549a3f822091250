package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/database/memory"
	"github.com/kozaktomas/face-checkin/internal/facematch"
	"github.com/kozaktomas/face-checkin/internal/recognition"
	"github.com/kozaktomas/face-checkin/internal/vision"
)

// stubVision returns a fixed set of rectangles and a settable embedding.
type stubVision struct {
	mu         sync.Mutex
	rects      []facematch.Rect
	vec        facematch.Vector
	extractErr error
}

func (s *stubVision) Locate(_ context.Context, _ []byte) ([]facematch.Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rects, nil
}

func (s *stubVision) Extract(_ context.Context, _ []byte) (facematch.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	return s.vec.Clone(), nil
}

func (s *stubVision) set(v ...float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vec = facematch.Vector(v)
}

type testEnv struct {
	store      *memory.Store
	vision     *stubVision
	service    *recognition.Service
	checkin    *CheckinHandler
	identities *IdentitiesHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: memory.New(),
		vision: &stubVision{
			rects: []facematch.Rect{{X: 8, Y: 8, W: 32, H: 32}},
			vec:   facematch.Vector{0, 0, 0},
		},
	}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	env.service = recognition.NewService(env.store, env.vision, env.vision, recognition.Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}, zerolog.Nop())
	env.checkin = NewCheckinHandler(env.service, zerolog.Nop())
	env.identities = NewIdentitiesHandler(env.service, zerolog.Nop())
	return env
}

// enroll adds an identity directly through the service.
func (e *testEnv) enroll(t *testing.T, name string, vec ...float32) string {
	t.Helper()
	e.vision.set(vec...)
	identity, err := e.service.Enroll(context.Background(), recognition.EnrollRequest{Name: name, Image: testJPEG(t)})
	if err != nil {
		t.Fatalf("enroll %s: %v", name, err)
	}
	return identity.ID
}

// testJPEG returns a small decodable frame.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := range 64 {
		for y := range 64 {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// jsonImageRequest builds a JSON request carrying the image as a data URL.
func jsonImageRequest(t *testing.T, method, path string, fields map[string]string, img []byte) *http.Request {
	t.Helper()
	body := map[string]string{}
	for k, v := range fields {
		body[k] = v
	}
	if img != nil {
		body["img_data"] = vision.EncodeDataURL(img)
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartImageRequest builds a multipart request with the image in the "file" field.
func multipartImageRequest(t *testing.T, path string, fields map[string]string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(img)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
