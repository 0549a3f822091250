package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-checkin/internal/constants"
	"github.com/kozaktomas/face-checkin/internal/vision"
)

const (
	errInvalidRequestBody = "invalid request body"
	errMissingImage       = "image is required (img_data or multipart file)"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondCanceled answers a request whose context ended before the work finished.
func respondCanceled(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	respondError(w, http.StatusServiceUnavailable, "request canceled")
	return true
}

// imageRequest is the JSON form of an image upload, with optional identity fields.
type imageRequest struct {
	ImgData string `json:"img_data"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

// readImageRequest accepts either a JSON body with a base64 data URL in img_data or
// a multipart form with the image in the "file" field and name/phone as form values.
func readImageRequest(w http.ResponseWriter, r *http.Request) (imageRequest, []byte, error) {
	var req imageRequest
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	if isMultipart(r) {
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
			return req, nil, errors.New("failed to parse multipart form")
		}
		req.Name = r.FormValue("name")
		req.Phone = r.FormValue("phone")

		file, _, err := r.FormFile("file")
		if err != nil {
			return req, nil, errors.New(errMissingImage)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return req, nil, errors.New("failed to read uploaded file")
		}
		if len(data) == 0 {
			return req, nil, errors.New(errMissingImage)
		}
		return req, data, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, nil, errors.New(errInvalidRequestBody)
	}
	if req.ImgData == "" {
		return req, nil, errors.New(errMissingImage)
	}
	data, err := vision.DecodeDataURL(req.ImgData)
	if err != nil {
		return req, nil, fmt.Errorf("invalid img_data: %w", err)
	}
	return req, data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
