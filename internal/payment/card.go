package payment

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
)

// CardProvider charges cards through Stripe. A payment intent that succeeds
// immediately settles synchronously; one that requires buyer action resolves
// later through Stripe's signed webhook events.
type CardProvider struct {
	client        *client.API
	webhookSecret string
	log           *logger.Logger
}

func NewCardProvider(secretKey, webhookSecret string, log *logger.Logger) (*CardProvider, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not configured")
		return nil, errs.Wrap(errs.ErrProvider, "stripe secret key not configured")
	}

	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &CardProvider{
		client:        sc,
		webhookSecret: webhookSecret,
		log:           log,
	}, nil
}

func (p *CardProvider) Method() models.PaymentMethod {
	return models.MethodCard
}

func (p *CardProvider) InitiatePayment(ctx context.Context, txn *models.Transaction, req models.PaymentRequest) (*models.PaymentInitiation, error) {
	if req.CardToken == "" {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "card token is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(txn.Amount),
		Currency:           stripe.String("xaf"),
		PaymentMethod:      stripe.String(req.CardToken),
		ConfirmationMethod: stripe.String("manual"),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	params.Context = ctx
	params.SetIdempotencyKey(txn.IdempotencyKey)
	params.AddMetadata("reference", txn.Reference)
	params.AddMetadata("booking_id", txn.BookingID)

	pi, err := p.client.PaymentIntents.New(params)
	if err != nil {
		p.log.Error("STRIPE", "Failed to create payment intent: "+err.Error())
		return nil, errs.Wrap(errs.ErrProvider, "stripe payment intent failed: %v", err)
	}

	initiation := &models.PaymentInitiation{ProviderTxnID: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		initiation.Status = models.TxnCompleted
	case stripe.PaymentIntentStatusRequiresAction:
		initiation.Status = models.TxnProcessing
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			initiation.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
	case stripe.PaymentIntentStatusProcessing:
		initiation.Status = models.TxnProcessing
	default:
		return nil, errs.Wrap(errs.ErrProvider, "unexpected payment intent status %s", pi.Status)
	}

	p.log.LogPayment("INITIATE", txn.Reference,
		"Stripe payment intent "+pi.ID+" status "+string(pi.Status))
	return initiation, nil
}

func (p *CardProvider) CheckPaymentStatus(ctx context.Context, txn *models.Transaction) (models.TransactionStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.client.PaymentIntents.Get(txn.ProviderTxnID, params)
	if err != nil {
		return "", errs.Wrap(errs.ErrProvider, "stripe status check failed: %v", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.TxnCompleted, nil
	case stripe.PaymentIntentStatusCanceled:
		return models.TxnCancelled, nil
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return models.TxnFailed, nil
	default:
		return models.TxnProcessing, nil
	}
}

func (p *CardProvider) VerifyWebhookSignature(payload []byte, header http.Header) error {
	if p.webhookSecret == "" {
		return errs.Wrap(errs.ErrInvalidSignature, "stripe webhook secret not configured")
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	if _, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), p.webhookSecret, opts); err != nil {
		return errs.Wrap(errs.ErrInvalidSignature, "stripe signature verification failed: %v", err)
	}
	return nil
}

func (p *CardProvider) ParseWebhook(payload []byte) (*models.WebhookNotification, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "malformed stripe event: %v", err)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "malformed payment intent payload: %v", err)
	}

	reference, ok := pi.Metadata["reference"]
	if !ok || reference == "" {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "payment intent has no reference in metadata")
	}

	notification := &models.WebhookNotification{
		Reference:     reference,
		ProviderTxnID: pi.ID,
		Amount:        pi.Amount,
	}

	switch event.Type {
	case "payment_intent.succeeded":
		notification.Status = models.TxnCompleted
	case "payment_intent.payment_failed":
		notification.Status = models.TxnFailed
		if pi.LastPaymentError != nil {
			notification.ErrorCode = string(pi.LastPaymentError.Code)
			notification.ErrorMessage = pi.LastPaymentError.Msg
		}
	case "payment_intent.canceled":
		notification.Status = models.TxnCancelled
	default:
		notification.Status = models.TxnProcessing
	}
	return notification, nil
}

func (p *CardProvider) CancelPayment(ctx context.Context, txn *models.Transaction) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := p.client.PaymentIntents.Cancel(txn.ProviderTxnID, params); err != nil {
		return errs.Wrap(errs.ErrProvider, "stripe cancel failed: %v", err)
	}
	p.log.LogPayment("CANCEL", txn.Reference, "Stripe payment intent cancelled")
	return nil
}

func (p *CardProvider) RefundPayment(ctx context.Context, txn *models.Transaction, amount int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(txn.ProviderTxnID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	if _, err := p.client.Refunds.New(params); err != nil {
		return errs.Wrap(errs.ErrProvider, "stripe refund failed: %v", err)
	}
	p.log.LogPayment("REFUND", txn.Reference, "Stripe refund issued")
	return nil
}
