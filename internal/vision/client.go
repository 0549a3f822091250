// Package vision talks to the face detection and embedding service and prepares
// the images sent to it.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-checkin/internal/facematch"
)

const (
	defaultVisionURL = "http://localhost:8000"
	defaultTimeout   = 30 * time.Second

	detectEndpoint = "/detect/face"
	embedEndpoint  = "/embed/face"
)

// ErrEmptyEmbedding is returned when the extractor answers without a vector.
var ErrEmptyEmbedding = errors.New("empty embedding returned")

// Locator finds face rectangles in a frame.
type Locator interface {
	Locate(ctx context.Context, frame []byte) ([]facematch.Rect, error)
}

// Extractor computes the embedding of a cropped face image.
type Extractor interface {
	Extract(ctx context.Context, face []byte) (facematch.Vector, error)
}

// Client calls the vision service over HTTP. It implements Locator and Extractor.
type Client struct {
	baseURL string
	client  *http.Client
}

var (
	_ Locator   = (*Client)(nil)
	_ Extractor = (*Client)(nil)
)

// NewClient creates a new vision client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultVisionURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// detectedFace is one rectangle from the detection endpoint
type detectedFace struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	W        int     `json:"w"`
	H        int     `json:"h"`
	DetScore float64 `json:"det_score"`
}

// detectResponse represents the response from the detection endpoint
type detectResponse struct {
	Faces []detectedFace `json:"faces"`
}

// embeddingResponse represents the response from the face embedding endpoint
type embeddingResponse struct {
	Dim       int         `json:"dim"`
	Embedding []jsonFloat `json:"embedding"`
	Model     string      `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Locate returns the face rectangles the service detected, in detector order.
func (c *Client) Locate(ctx context.Context, frame []byte) ([]facematch.Rect, error) {
	body, err := c.postMultipartImage(ctx, detectEndpoint, frame)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	rects := make([]facematch.Rect, len(resp.Faces))
	for i, f := range resp.Faces {
		rects[i] = facematch.Rect{X: f.X, Y: f.Y, W: f.W, H: f.H}
	}
	return rects, nil
}

// Extract returns the embedding of a face crop. Non-finite components are passed
// through so the caller can classify them.
func (c *Client) Extract(ctx context.Context, face []byte) (facematch.Vector, error) {
	body, err := c.postMultipartImage(ctx, embedEndpoint, face)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(relaxNonFinite(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if resp.Dim != 0 && resp.Dim != len(resp.Embedding) {
		return nil, fmt.Errorf("embedding has %d components, service reported dim %d", len(resp.Embedding), resp.Dim)
	}

	vec := make(facematch.Vector, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
