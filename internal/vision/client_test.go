package vision

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, endpoint string, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != endpoint {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if len(data) == 0 || header.Header.Get("Content-Type") == "" {
			http.Error(w, "empty file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestLocate(t *testing.T) {
	server := newTestServer(t, "/detect/face", http.StatusOK,
		`{"faces":[{"x":10,"y":20,"w":30,"h":40,"det_score":0.98},{"x":1,"y":2,"w":3,"h":4,"det_score":0.5}]}`)
	defer server.Close()

	rects, err := NewClient(server.URL+"/", time.Second).Locate(context.Background(), jpegFixture(t, 50, 50))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(rects) != 2 {
		t.Fatalf("expected 2 rectangles, got %d", len(rects))
	}
	if rects[0].X != 10 || rects[0].Y != 20 || rects[0].W != 30 || rects[0].H != 40 {
		t.Errorf("unexpected first rectangle %+v", rects[0])
	}
}

func TestLocate_NoFaces(t *testing.T) {
	server := newTestServer(t, "/detect/face", http.StatusOK, `{"faces":[]}`)
	defer server.Close()

	rects, err := NewClient(server.URL, time.Second).Locate(context.Background(), jpegFixture(t, 10, 10))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(rects) != 0 {
		t.Errorf("expected no rectangles, got %v", rects)
	}
}

func TestExtract(t *testing.T) {
	server := newTestServer(t, "/embed/face", http.StatusOK,
		`{"dim":3,"embedding":[0.5,-1.25,3],"model":"facenet"}`)
	defer server.Close()

	vec, err := NewClient(server.URL, time.Second).Extract(context.Background(), jpegFixture(t, 10, 10))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[1] != -1.25 || vec[2] != 3 {
		t.Errorf("unexpected embedding %v", vec)
	}
}

func TestExtract_NonFiniteLiterals(t *testing.T) {
	server := newTestServer(t, "/embed/face", http.StatusOK,
		`{"dim":4,"embedding":[0.1,NaN,Infinity,-Infinity],"model":"facenet"}`)
	defer server.Close()

	vec, err := NewClient(server.URL, time.Second).Extract(context.Background(), jpegFixture(t, 10, 10))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !math.IsNaN(float64(vec[1])) || !math.IsInf(float64(vec[2]), 1) || !math.IsInf(float64(vec[3]), -1) {
		t.Errorf("expected non-finite components to survive decoding, got %v", vec)
	}
	if vec.Validate() == nil {
		t.Error("decoded vector should fail validation")
	}
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, nil},
		{"empty embedding", http.StatusOK, `{"dim":0,"embedding":[]}`, ErrEmptyEmbedding},
		{"dim mismatch", http.StatusOK, `{"dim":5,"embedding":[1,2]}`, nil},
		{"garbage", http.StatusOK, `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, "/embed/face", tt.status, tt.body)
			defer server.Close()

			_, err := NewClient(server.URL, time.Second).Extract(context.Background(), jpegFixture(t, 10, 10))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.status != http.StatusOK && !strings.Contains(err.Error(), "500") {
				t.Errorf("expected status in error, got %v", err)
			}
		})
	}
}

func TestExtract_ContextCanceled(t *testing.T) {
	server := newTestServer(t, "/embed/face", http.StatusOK, `{"dim":1,"embedding":[1]}`)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(server.URL, time.Second).Extract(ctx, jpegFixture(t, 10, 10)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
