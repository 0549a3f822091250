package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/kozaktomas/face-checkin/internal/facematch"
)

func jpegFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage(jpegFixture(t, 40, 30))
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}

	if _, err := DecodeImage([]byte("definitely not an image")); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestCropFace(t *testing.T) {
	img, err := DecodeImage(jpegFixture(t, 100, 80))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		rect   facematch.Rect
		size   int
		wantW  int
		wantH  int
		wantOK bool
	}{
		{"scaled square", facematch.Rect{X: 10, Y: 10, W: 40, H: 30}, 160, 160, 160, true},
		{"native size", facematch.Rect{X: 10, Y: 10, W: 40, H: 30}, 0, 40, 30, true},
		{"clamped to bounds", facematch.Rect{X: 90, Y: 70, W: 40, H: 40}, 0, 10, 10, true},
		{"outside", facematch.Rect{X: 200, Y: 200, W: 10, H: 10}, 160, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := CropFace(img, tt.rect, tt.size)
			if (err == nil) != tt.wantOK {
				t.Fatalf("CropFace error = %v, wantOK %v", err, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			crop, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("crop is not JPEG: %v", err)
			}
			if crop.Bounds().Dx() != tt.wantW || crop.Bounds().Dy() != tt.wantH {
				t.Errorf("crop size %v, want %dx%d", crop.Bounds(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	data := jpegFixture(t, 8, 8)
	url := EncodeDataURL(data)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected prefix in %q", url[:30])
	}

	decoded, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("decoded data differs")
	}

	bare, err := DecodeDataURL(strings.TrimPrefix(url, "data:image/jpeg;base64,"))
	if err != nil || !bytes.Equal(bare, data) {
		t.Errorf("bare base64 not accepted: %v", err)
	}
}

func TestDecodeDataURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "data:image/jpeg,abc", "data:image/jpeg;base64", "data:image/png;base64,!!!"} {
		if _, err := DecodeDataURL(in); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("DecodeDataURL(%q) = %v, want ErrInvalidImage", in, err)
		}
	}
}

func TestDetectMIMEType(t *testing.T) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegFixture(t, 4, 4), "image/jpeg"},
		{"png", pngBuf.Bytes(), "image/png"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIMEType(tt.data); got != tt.want {
				t.Errorf("DetectMIMEType = %s, want %s", got, tt.want)
			}
		})
	}
}
