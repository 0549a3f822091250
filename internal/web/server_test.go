package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/config"
	"github.com/kozaktomas/face-checkin/internal/database/memory"
	"github.com/kozaktomas/face-checkin/internal/facematch"
	"github.com/kozaktomas/face-checkin/internal/recognition"
	"github.com/kozaktomas/face-checkin/internal/vision"
)

type fixedVision struct{}

func (fixedVision) Locate(context.Context, []byte) ([]facematch.Rect, error) {
	return []facematch.Rect{{X: 0, Y: 0, W: 16, H: 16}}, nil
}

func (fixedVision) Extract(context.Context, []byte) (facematch.Vector, error) {
	return facematch.Vector{1, 2, 3}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{Web: config.WebConfig{Host: "127.0.0.1", Port: 0}}
	svc := recognition.NewService(memory.New(), fixedVision{}, fixedVision{}, recognition.Options{
		Location: time.UTC,
	}, zerolog.Nop())

	ts := httptest.NewServer(NewServer(cfg, svc, zerolog.Nop()).Router())
	t.Cleanup(ts.Close)
	return ts
}

func imageBody(t *testing.T, fields map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 32)), nil); err != nil {
		t.Fatal(err)
	}
	body := map[string]string{"img_data": vision.EncodeDataURL(buf.Bytes())}
	for k, v := range fields {
		body[k] = v
	}
	data, _ := json.Marshal(body)
	return bytes.NewReader(data)
}

func TestServer_CheckinFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/identities", "application/json", imageBody(t, map[string]string{"name": "Alice"}))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/v1/recognize", "application/json", imageBody(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "recognized" || out["recognized_name"] != "Alice" || out["loyalty_points"] != float64(20) {
		t.Errorf("unexpected recognition %v", out)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on API responses")
	}
}

func TestServer_Routes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"GET", "/api/v1/health", http.StatusOK, `"ok"`},
		{"GET", "/api/v1/identities", http.StatusOK, "[]"},
		{"GET", "/api/v1/identities/nope", http.StatusNotFound, "identity not found"},
		{"DELETE", "/api/v1/identities/nope", http.StatusNotFound, ""},
		{"GET", "/api/v1/identities/nope/attendance", http.StatusNotFound, ""},
		{"GET", "/", http.StatusOK, "Face Check-in"},
		{"GET", "/some/client/route", http.StatusOK, "Face Check-in"},
		{"GET", "/assets/app.js", http.StatusOK, "/api/v1/recognize"},
		{"GET", "/assets/missing.js", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			var buf bytes.Buffer
			buf.ReadFrom(resp.Body)
			if !strings.Contains(buf.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %q", tt.wantBody, buf.String())
			}
		})
	}
}
