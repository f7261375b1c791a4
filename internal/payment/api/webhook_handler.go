// Package api exposes the provider callback endpoints. Signature
// verification happens here on the raw body, before anything is parsed or
// touches the ledger.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/payment"
)

// ResultApplier advances bookings from verified provider notifications.
type ResultApplier interface {
	ApplyPaymentResult(ctx context.Context, provider payment.Provider, notification *models.WebhookNotification) error
}

type WebhookHandler struct {
	Providers *payment.Registry
	Applier   ResultApplier
	Logger    *logger.Logger
}

func NewWebhookHandler(providers *payment.Registry, applier ResultApplier, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{Providers: providers, Applier: applier, Logger: log}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{method}", h.HandleWebhook)
}

// HandleWebhook authenticates, parses and applies one provider callback.
// Signature failures are permanent 400s; anything after verification that
// fails returns 5xx so the provider redelivers.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	method := models.PaymentMethod(chi.URLParam(r, "method"))

	provider, err := h.Providers.Get(method)
	if err != nil {
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("Callback for unknown method %q", method))
		http.Error(w, "unknown payment method", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := provider.VerifyWebhookSignature(body, r.Header); err != nil {
		h.Logger.LogSecurity("WEBHOOK", fmt.Sprintf("Rejected %s callback: %v", method, err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	notification, err := provider.ParseWebhook(body)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Unparseable %s callback: %v", method, err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	h.Logger.LogWebhook(string(method), notification.Reference,
		fmt.Sprintf("Status %s, provider txn %s", notification.Status, notification.ProviderTxnID))

	if err := h.Applier.ApplyPaymentResult(r.Context(), provider, notification); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// Reference we never issued. Acknowledge so the provider stops
			// redelivering.
			h.Logger.Warn("WEBHOOK", fmt.Sprintf(
				"Callback for unknown reference %s ignored", notification.Reference))
			w.WriteHeader(http.StatusOK)
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf(
			"Failed to apply %s result for %s: %v", method, notification.Reference, err))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
