package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"promo-attribution-api/internal/models"
	"promo-attribution-api/internal/service"
	"promo-attribution-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// RunBuild handles POST /builds
func (h *Handler) RunBuild(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RunBuild(r.Context())
	if err != nil {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, summary)
}

// GetBuild handles GET /builds/{build_id}
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	buildID := validation.SanitizeString(chi.URLParam(r, "build_id"))
	if buildID == "" {
		h.respondError(w, http.StatusBadRequest, "build_id is required")
		return
	}

	summary, err := h.service.GetBuild(r.Context(), buildID)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// GetSummary handles GET /summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetLatestBuild(r.Context())
	if err != nil {
		h.respondLookupError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// GetUserFeatures handles GET /users/{user_id}/features
func (h *Handler) GetUserFeatures(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	row, err := h.service.GetUserFeatures(r.Context(), userID)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, row)
}

// GetUserOffers handles GET /users/{user_id}/offers
func (h *Handler) GetUserOffers(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	rows, err := h.service.GetUserOffers(r.Context(), userID)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	if rows == nil {
		rows = []models.OfferFeatureRow{}
	}

	h.respondJSON(w, http.StatusOK, rows)
}

// respondLookupError maps a service error to 404 for missing rows and 400
// otherwise.
func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "not found")
		return
	}
	h.respondError(w, http.StatusBadRequest, err.Error())
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
