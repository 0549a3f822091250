package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-checkin/internal/constants"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusCreated, map[string]int{"count": 42})

	assertStatusCode(t, recorder, http.StatusCreated)
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
	if got := recorder.Body.String(); got != "{\"count\":42}\n" {
		t.Errorf("unexpected body %q", got)
	}

	recorder = httptest.NewRecorder()
	respondJSON(recorder, http.StatusOK, nil)
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusConflict, "taken")

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, "taken")
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("Alice\r\nINFO forged"); got != "AliceINFO forged" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func TestReadImageRequest(t *testing.T) {
	img := testJPEG(t)

	tests := []struct {
		name      string
		req       func(t *testing.T) *http.Request
		wantErr   string
		wantName  string
		wantBytes int
	}{
		{
			name:      "json data url",
			req:       func(t *testing.T) *http.Request { return jsonImageRequest(t, "POST", "/", map[string]string{"name": "Alice"}, img) },
			wantName:  "Alice",
			wantBytes: len(img),
		},
		{
			name:      "multipart file",
			req:       func(t *testing.T) *http.Request { return multipartImageRequest(t, "/", map[string]string{"name": "Bob"}, img) },
			wantName:  "Bob",
			wantBytes: len(img),
		},
		{
			name:    "json without image",
			req:     func(t *testing.T) *http.Request { return jsonImageRequest(t, "POST", "/", nil, nil) },
			wantErr: errMissingImage,
		},
		{
			name: "malformed json",
			req: func(*testing.T) *http.Request {
				return httptest.NewRequest("POST", "/", strings.NewReader("{"))
			},
			wantErr: errInvalidRequestBody,
		},
		{
			name: "bad base64",
			req: func(t *testing.T) *http.Request {
				return jsonImageRequest(t, "POST", "/", map[string]string{"img_data": "data:image/jpeg;base64,%%%"}, nil)
			},
			wantErr: "invalid img_data",
		},
		{
			name: "multipart over the upload cap",
			req: func(t *testing.T) *http.Request {
				return multipartImageRequest(t, "/", nil, make([]byte, constants.MaxUploadSize+1))
			},
			wantErr: "failed to parse multipart form",
		},
		{
			name:    "multipart without file",
			req:     func(t *testing.T) *http.Request { return multipartImageRequest(t, "/", nil, nil) },
			wantErr: errMissingImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req, data, err := readImageRequest(recorder, tt.req(t))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Name != tt.wantName || len(data) != tt.wantBytes || !bytes.Equal(data, img) {
				t.Errorf("got name %q and %d bytes", req.Name, len(data))
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %v", result)
	}
}
