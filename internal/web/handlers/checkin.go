package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/facematch"
	"github.com/kozaktomas/face-checkin/internal/recognition"
	"github.com/kozaktomas/face-checkin/internal/vision"
)

// Labels shown by the check-in page for outcomes without an identity.
var outcomeLabels = map[recognition.Status]string{
	recognition.StatusNoFaceDetected:   "No Face Detected",
	recognition.StatusExtractionFailed: "Error Processing Face",
	recognition.StatusInvalidEmbedding: "Invalid Face Encoding",
	recognition.StatusUnmatched:        "Unknown",
}

// CheckinHandler serves the recognition endpoints used at the entrance.
type CheckinHandler struct {
	service *recognition.Service
	log     zerolog.Logger
}

// NewCheckinHandler creates a new check-in handler.
func NewCheckinHandler(svc *recognition.Service, log zerolog.Logger) *CheckinHandler {
	return &CheckinHandler{service: svc, log: log}
}

// RecognizeResponse is the result of one recognition attempt.
type RecognizeResponse struct {
	Status             recognition.Status `json:"status"`
	RecognizedName     string             `json:"recognized_name"`
	IdentityID         string             `json:"identity_id,omitempty"`
	AttendanceCount    int                `json:"attendance_count"`
	LoyaltyPoints      int                `json:"loyalty_points"`
	Distance           float64            `json:"distance"`
	AttendanceRecorded bool               `json:"attendance_recorded"`
	FaceRect           *facematch.Rect    `json:"face_rect,omitempty"`
}

func outcomeToResponse(out recognition.Outcome) RecognizeResponse {
	name := out.Name
	if !out.Recognized() {
		name = outcomeLabels[out.Status]
	}
	return RecognizeResponse{
		Status:             out.Status,
		RecognizedName:     name,
		IdentityID:         out.IdentityID,
		AttendanceCount:    out.AttendanceCount,
		LoyaltyPoints:      out.LoyaltyPoints,
		Distance:           out.Distance,
		AttendanceRecorded: out.AttendanceRecorded,
		FaceRect:           out.FaceRect,
	}
}

// Recognize matches the submitted frame and records attendance for a recognized face.
// Every domain outcome is a 200; only store failures are 500.
func (h *CheckinHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	_, frame, err := readImageRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.service.Recognize(r.Context(), frame)
	if err != nil {
		if respondCanceled(w, err) {
			return
		}
		h.log.Error().Err(err).Msg("recognition failed")
		respondError(w, http.StatusInternalServerError, "failed to record recognition")
		return
	}

	respondJSON(w, http.StatusOK, outcomeToResponse(out))
}

// DetectResponse reports the face a recognition would use.
type DetectResponse struct {
	Detected bool            `json:"detected"`
	FaceRect *facematch.Rect `json:"face_rect,omitempty"`
	FaceData string          `json:"face_data,omitempty"`
}

// Detect locates the face in a frame and returns its crop as a data URL, so the
// capture page can preview it before recognizing.
func (h *CheckinHandler) Detect(w http.ResponseWriter, r *http.Request) {
	_, frame, err := readImageRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Detect(r.Context(), frame)
	if err != nil {
		if respondCanceled(w, err) {
			return
		}
		h.log.Error().Err(err).Msg("face detection failed")
		respondError(w, http.StatusInternalServerError, "failed to detect face")
		return
	}

	if !res.Detected {
		respondJSON(w, http.StatusOK, DetectResponse{Detected: false})
		return
	}
	rect := res.FaceRect
	respondJSON(w, http.StatusOK, DetectResponse{
		Detected: true,
		FaceRect: &rect,
		FaceData: vision.EncodeDataURL(res.Crop),
	})
}

// enrollStatus maps enrollment errors to HTTP status codes.
func enrollStatus(err error) (int, string) {
	switch {
	case errors.Is(err, recognition.ErrDuplicateName):
		return http.StatusConflict, "an identity with this name already exists"
	case errors.Is(err, recognition.ErrInvalidName):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, recognition.ErrInvalidEmbedding):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, recognition.ErrExtractionFailed):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, recognition.ErrNotFound):
		return http.StatusNotFound, "identity not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
