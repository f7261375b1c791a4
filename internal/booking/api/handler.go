package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-parcel/internal/auth"
	"ms-parcel/internal/booking"
	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/utils"
)

type Handler struct {
	Service *booking.Service
	Logger  *logger.Logger
}

func NewHandler(service *booking.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings", h.ListMyBookings)
	r.Get("/bookings/{bookingId}", h.GetBooking)
	r.Get("/bookings/{bookingId}/transactions", h.GetTransactions)
	r.Get("/bookings/{bookingId}/refund-preview", h.RefundPreview)

	r.Post("/bookings/{bookingId}/confirm", h.ConfirmBooking)
	r.Post("/bookings/{bookingId}/reject", h.RejectBooking)
	r.Post("/bookings/{bookingId}/pay", h.PayBooking)
	r.Delete("/bookings/{bookingId}", h.CancelBooking)

	r.Post("/bookings/{bookingId}/parcel-received", h.ParcelReceived)
	r.Post("/bookings/{bookingId}/delivered", h.MarkDelivered)
	r.Post("/bookings/{bookingId}/receiver-confirmed", h.ReceiverConfirmed)
	r.Post("/bookings/{bookingId}/picked-up", h.PickedUp)
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

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	shipperID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: flight=%s shipper=%s", req.FlightID, shipperID))

	created, err := h.Service.Create(r.Context(), req, shipperID)
	if err != nil {
		h.writeError(w, "Could not create booking", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", created.ToResponse()))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	found, err := h.Service.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, "Booking not found", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved", found))
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	shipperID := auth.UserID(r.Context())

	bookings, err := h.Service.ListByShipper(r.Context(), shipperID)
	if err != nil {
		h.writeError(w, "Could not list bookings", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Bookings retrieved", bookings))
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	history, err := h.Service.PaymentHistory(bookingID)
	if err != nil {
		h.writeError(w, "Could not load payment history", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment history retrieved", history))
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	travelerID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("ConfirmBooking: bookingId=%s traveler=%s", bookingID, travelerID))

	confirmed, err := h.Service.Confirm(r.Context(), bookingID, travelerID)
	if err != nil {
		h.writeError(w, "Could not confirm booking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking confirmed", confirmed.ToResponse()))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	travelerID := auth.UserID(r.Context())

	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rejected, err := h.Service.Reject(r.Context(), bookingID, travelerID, req.Reason)
	if err != nil {
		h.writeError(w, "Could not reject booking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking rejected", rejected.ToResponse()))
}

func (h *Handler) PayBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	shipperID := auth.UserID(r.Context())

	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PayBooking: bookingId=%s method=%s amount=%d", bookingID, req.Method, req.Amount))

	result, err := h.Service.Pay(r.Context(), bookingID, req, shipperID)
	if err != nil {
		h.writeError(w, "Payment failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment initiated", result))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	shipperID := auth.UserID(r.Context())

	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	cancelled, refund, err := h.Service.CancelByClient(r.Context(), bookingID, shipperID, req.Reason)
	if err != nil {
		h.writeError(w, "Could not cancel booking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", map[string]interface{}{
		"booking": cancelled.ToResponse(),
		"refund":  refund,
	}))
}

func (h *Handler) RefundPreview(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	shipperID := auth.UserID(r.Context())

	preview, err := h.Service.RefundPreview(r.Context(), bookingID, shipperID)
	if err != nil {
		h.writeError(w, "Could not compute refund", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Refund preview", preview))
}

func (h *Handler) ParcelReceived(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	travelerID := auth.UserID(r.Context())

	updated, err := h.Service.ConfirmParcelReceived(r.Context(), bookingID, travelerID)
	if err != nil {
		h.writeError(w, "Could not confirm parcel receipt", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Parcel receipt confirmed", updated))
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	travelerID := auth.UserID(r.Context())

	updated, qrPNG, err := h.Service.MarkDelivered(r.Context(), bookingID, travelerID)
	if err != nil {
		h.writeError(w, "Could not mark booking delivered", err)
		return
	}

	payload := map[string]interface{}{
		"booking":     updated,
		"pickup_code": updated.PickupCode,
	}
	if len(qrPNG) > 0 {
		payload["pickup_qr"] = base64.StdEncoding.EncodeToString(qrPNG)
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking marked delivered", payload))
}

type pickupCodeRequest struct {
	PickupCode string `json:"pickup_code"`
}

func (h *Handler) ReceiverConfirmed(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	travelerID := auth.UserID(r.Context())

	var req pickupCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	updated, err := h.Service.ConfirmDeliveredToReceiver(r.Context(), bookingID, travelerID, req.PickupCode)
	if err != nil {
		h.writeError(w, "Could not confirm receiver hand-off", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Receiver hand-off confirmed", updated))
}

func (h *Handler) PickedUp(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	shipperID := auth.UserID(r.Context())

	updated, err := h.Service.MarkPickedUp(r.Context(), bookingID, shipperID)
	if err != nil {
		h.writeError(w, "Could not mark booking picked up", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking completed", updated))
}
