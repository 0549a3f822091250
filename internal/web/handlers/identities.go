package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/constants"
	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/recognition"
)

// IdentitiesHandler handles enrollment and identity administration.
type IdentitiesHandler struct {
	service *recognition.Service
	log     zerolog.Logger
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(svc *recognition.Service, log zerolog.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{service: svc, log: log}
}

// IdentityResponse represents an identity in API responses. Embeddings are never exposed.
type IdentityResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	LoyaltyPoints   int       `json:"loyalty_points"`
	AttendanceCount int       `json:"attendance_count"`
	GallerySize     int       `json:"gallery_size"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func identityToResponse(i *database.Identity) IdentityResponse {
	return IdentityResponse{
		ID:              i.ID,
		Name:            i.Name,
		Phone:           i.Phone,
		LoyaltyPoints:   i.LoyaltyPoints,
		AttendanceCount: i.AttendanceCount,
		GallerySize:     i.GallerySize(),
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

// respondServiceError writes the status for an enrollment or administration error.
func (h *IdentitiesHandler) respondServiceError(w http.ResponseWriter, err error, op string) {
	if respondCanceled(w, err) {
		return
	}
	status, message := enrollStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("op", op).Msg("identity request failed")
	}
	respondError(w, status, message)
}

// List returns all identities in enrollment order.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.service.ListIdentities(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "list")
		return
	}

	response := make([]IdentityResponse, len(identities))
	for i := range identities {
		response[i] = identityToResponse(&identities[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// Create enrolls a new identity from {name, phone, img_data} or a multipart form.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, image, err := readImageRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := h.service.Enroll(r.Context(), recognition.EnrollRequest{
		Name:  req.Name,
		Phone: req.Phone,
		Image: image,
	})
	if err != nil {
		h.log.Info().Err(err).Str("name", sanitizeForLog(req.Name)).Msg("enrollment rejected")
		h.respondServiceError(w, err, "enroll")
		return
	}
	respondJSON(w, http.StatusCreated, identityToResponse(identity))
}

// Get returns a single identity by ID.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.GetIdentity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err, "get")
		return
	}
	respondJSON(w, http.StatusOK, identityToResponse(identity))
}

// IdentityUpdateRequest represents the request body for updating an identity.
type IdentityUpdateRequest struct {
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
}

// Update renames an identity. An omitted phone keeps the current one.
func (h *IdentitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req IdentityUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	phone := ""
	if req.Phone != nil {
		phone = *req.Phone
	} else {
		current, err := h.service.GetIdentity(r.Context(), id)
		if err != nil {
			h.respondServiceError(w, err, "get")
			return
		}
		phone = current.Phone
	}

	identity, err := h.service.RenameIdentity(r.Context(), id, req.Name, phone)
	if err != nil {
		h.respondServiceError(w, err, "rename")
		return
	}
	respondJSON(w, http.StatusOK, identityToResponse(identity))
}

// Delete removes an identity with its gallery and attendance history.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteIdentity(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttendanceResponse is one attended day.
type AttendanceResponse struct {
	Day       string    `json:"day"`
	CreatedAt time.Time `json:"created_at"`
}

// Attendance lists the days an identity checked in.
func (h *IdentitiesHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListAttendance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err, "attendance")
		return
	}

	response := make([]AttendanceResponse, len(records))
	for i, rec := range records {
		response[i] = AttendanceResponse{Day: database.FormatDay(rec.Day), CreatedAt: rec.CreatedAt}
	}
	respondJSON(w, http.StatusOK, response)
}

// LookalikeResponse is another identity resembling the inspected one.
type LookalikeResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Distance   float64 `json:"distance"`
	Suspicious bool    `json:"suspicious"`
}

// Lookalikes returns the identities closest to the given one (?k=, default 5).
func (h *IdentitiesHandler) Lookalikes(w http.ResponseWriter, r *http.Request) {
	k := constants.DefaultLookalikes
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}

	found, err := h.service.Lookalikes(r.Context(), chi.URLParam(r, "id"), k)
	if err != nil {
		h.respondServiceError(w, err, "lookalikes")
		return
	}

	response := make([]LookalikeResponse, len(found))
	for i, l := range found {
		response[i] = LookalikeResponse{ID: l.IdentityID, Name: l.Name, Distance: l.Distance, Suspicious: l.Suspicious}
	}
	respondJSON(w, http.StatusOK, response)
}
