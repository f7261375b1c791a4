package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-parcel/internal/auth"
	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/payout"
	"ms-parcel/internal/utils"
)

type Handler struct {
	Service *payout.Service
	Logger  *logger.Logger
}

func NewHandler(service *payout.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/payouts", h.ListMyPayouts)
	r.Get("/bookings/{bookingId}/payout", h.GetPayoutForBooking)
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/payouts", h.ListAllPayouts)
	r.Post("/bookings/{bookingId}/payout", h.TriggerPayout)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", message, err))
	h.writeJSON(w, errs.HTTPStatus(err), utils.ErrorResponse(message, err.Error()))
}

func (h *Handler) ListMyPayouts(w http.ResponseWriter, r *http.Request) {
	travelerID := auth.UserID(r.Context())

	payouts, err := h.Service.ListPayoutsByTraveler(r.Context(), travelerID)
	if err != nil {
		h.writeError(w, "Could not list payouts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payouts retrieved", payouts))
}

func (h *Handler) GetPayoutForBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	found, err := h.Service.GetPayoutForBooking(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, "Payout not found", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payout retrieved", found))
}

func (h *Handler) ListAllPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.Service.ListAllPayouts(r.Context())
	if err != nil {
		h.writeError(w, "Could not list payouts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payouts retrieved", payouts))
}

// TriggerPayout lets an operator force a settlement attempt, e.g. to retry
// a failed transfer without waiting for the sweep.
func (h *Handler) TriggerPayout(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("ADMIN", fmt.Sprintf("Manual payout trigger for booking %s", bookingID))

	settled, err := h.Service.ProcessPayoutToTraveler(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, "Payout failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payout processed", settled))
}
