package payment_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/payment"
)

func signedHeader(payload []byte, secret string) http.Header {
	header := http.Header{}
	header.Set(payment.SignatureHeader, payment.SignPayload(payload, secret))
	return header
}

func TestMoMoWebhookSignature(t *testing.T) {
	provider := payment.NewMTNMoMoProvider("https://sandbox", "api-key", "momo-secret", nil, logger.NewLogger())
	payload := []byte(`{"externalId":"PTX-1","transactionId":"momo-1","status":"SUCCESSFUL","amount":5000}`)

	assert.NoError(t, provider.VerifyWebhookSignature(payload, signedHeader(payload, "momo-secret")))

	// Wrong secret
	err := provider.VerifyWebhookSignature(payload, signedHeader(payload, "other-secret"))
	assert.ErrorIs(t, err, errs.ErrInvalidSignature)

	// Tampered body
	err = provider.VerifyWebhookSignature([]byte(`{"amount":999999}`), signedHeader(payload, "momo-secret"))
	assert.ErrorIs(t, err, errs.ErrInvalidSignature)

	// Missing header
	err = provider.VerifyWebhookSignature(payload, http.Header{})
	assert.ErrorIs(t, err, errs.ErrInvalidSignature)
}

func TestMoMoWebhookParsing(t *testing.T) {
	provider := payment.NewMTNMoMoProvider("https://sandbox", "api-key", "momo-secret", nil, logger.NewLogger())

	notification, err := provider.ParseWebhook(
		[]byte(`{"externalId":"PTX-1","transactionId":"momo-1","status":"SUCCESSFUL","amount":5000}`))
	assert.NoError(t, err)
	assert.Equal(t, "PTX-1", notification.Reference)
	assert.Equal(t, models.TxnCompleted, notification.Status)
	assert.Equal(t, int64(5000), notification.Amount)

	failed, err := provider.ParseWebhook(
		[]byte(`{"externalId":"PTX-2","transactionId":"momo-2","status":"FAILED","reason":"payer rejected"}`))
	assert.NoError(t, err)
	assert.Equal(t, models.TxnFailed, failed.Status)
	assert.Equal(t, "payer rejected", failed.ErrorMessage)

	_, err = provider.ParseWebhook([]byte(`{"status":"SUCCESSFUL"}`))
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestRegistryDispatch(t *testing.T) {
	log := logger.NewLogger()
	momo := payment.NewMTNMoMoProvider("https://sandbox", "key", "secret", nil, log)
	orange := payment.NewOrangeMoneyProvider("https://api", "merchant", "secret", "https://return", nil, log)

	registry := payment.NewRegistry(momo, orange)

	got, err := registry.Get(models.MethodMTNMoMo)
	assert.NoError(t, err)
	assert.Equal(t, models.MethodMTNMoMo, got.Method())

	_, err = registry.Get(models.PaymentMethod("carrier_pigeon"))
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	assert.Len(t, registry.Methods(), 2)
}
