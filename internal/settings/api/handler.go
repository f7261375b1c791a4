// Package api exposes the admin endpoints for platform settings.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/settings"
	"ms-parcel/internal/utils"
)

type Handler struct {
	Store  *settings.Store
	Logger *logger.Logger
}

func NewHandler(store *settings.Store, log *logger.Logger) *Handler {
	return &Handler{Store: store, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := h.Store.Get(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetSettings: %v", err))
		h.writeJSON(w, errs.HTTPStatus(err), utils.ErrorResponse("Could not load settings", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Settings retrieved", current))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updated models.PlatformSettings
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	if err := h.Store.Update(r.Context(), &updated); err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateSettings: %v", err))
		h.writeJSON(w, errs.HTTPStatus(err), utils.ErrorResponse("Could not update settings", err.Error()))
		return
	}

	h.Logger.Info("ADMIN", fmt.Sprintf(
		"Platform settings updated: split %d/%d/%d, timeout %dh",
		updated.TravelerPercent, updated.PlatformPercent, updated.VatPercent, updated.PaymentTimeoutHours))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Settings updated", updated))
}
