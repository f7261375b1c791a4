// Package payment abstracts the platform's payment backends behind one
// provider contract. The booking engine stays provider-agnostic; dispatch by
// payment method happens at this boundary.
package payment

import (
	"context"
	"net/http"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/models"
)

// Provider is the capability set every payment backend implements.
type Provider interface {
	Method() models.PaymentMethod

	// InitiatePayment starts a charge for the recorded attempt and returns
	// the provider's confirmation artifact with a normalized status:
	// COMPLETED for synchronous settlement, PROCESSING when confirmation
	// arrives later through a webhook.
	InitiatePayment(ctx context.Context, txn *models.Transaction, req models.PaymentRequest) (*models.PaymentInitiation, error)

	// CheckPaymentStatus polls the provider for the current state of an
	// attempt.
	CheckPaymentStatus(ctx context.Context, txn *models.Transaction) (models.TransactionStatus, error)

	// VerifyWebhookSignature authenticates a raw webhook payload. A missing
	// or malformed signature fails with ErrInvalidSignature.
	VerifyWebhookSignature(payload []byte, header http.Header) error

	// ParseWebhook normalizes a verified payload into the ledger vocabulary.
	ParseWebhook(payload []byte) (*models.WebhookNotification, error)

	CancelPayment(ctx context.Context, txn *models.Transaction) error
	RefundPayment(ctx context.Context, txn *models.Transaction, amount int64) error
}

// Registry dispatches to the provider registered for a payment method.
type Registry struct {
	providers map[models.PaymentMethod]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.PaymentMethod]Provider)}
	for _, p := range providers {
		r.providers[p.Method()] = p
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Method()] = p
}

func (r *Registry) Get(method models.PaymentMethod) (Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "unsupported payment method %q", method)
	}
	return p, nil
}

func (r *Registry) Methods() []models.PaymentMethod {
	methods := make([]models.PaymentMethod, 0, len(r.providers))
	for m := range r.providers {
		methods = append(methods, m)
	}
	return methods
}
