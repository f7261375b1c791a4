package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
)

// MTNMoMoProvider integrates MTN Mobile Money collections. Payments are
// asynchronous: initiation pushes a USSD prompt to the payer's handset and
// the final state arrives through a signed webhook.
type MTNMoMoProvider struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
	log           *logger.Logger
}

func NewMTNMoMoProvider(baseURL, apiKey, webhookSecret string, client *http.Client, log *logger.Logger) *MTNMoMoProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &MTNMoMoProvider{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        client,
		log:           log,
	}
}

func (p *MTNMoMoProvider) Method() models.PaymentMethod {
	return models.MethodMTNMoMo
}

type momoCollectionRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ExternalID  string `json:"externalId"`
	PayerNumber string `json:"payerNumber"`
	Message     string `json:"payerMessage"`
}

type momoCollectionResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	USSDCode      string `json:"ussdCode"`
}

func (p *MTNMoMoProvider) InitiatePayment(ctx context.Context, txn *models.Transaction, req models.PaymentRequest) (*models.PaymentInitiation, error) {
	if req.PhoneNumber == "" {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "phone number is required for mobile money")
	}

	body, _ := json.Marshal(momoCollectionRequest{
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		ExternalID:  txn.Reference,
		PayerNumber: req.PhoneNumber,
		Message:     fmt.Sprintf("Parcel booking %s", txn.BookingID),
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/collection/v1_0/requesttopay", bytes.NewBuffer(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrProvider, "mtn momo request build failed: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("X-Reference-Id", txn.Reference)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.ErrProvider, "mtn momo unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errs.Wrap(errs.ErrProvider, "mtn momo rejected initiation: status %d", resp.StatusCode)
	}

	var out momoCollectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.ErrProvider, "mtn momo response decode failed: %v", err)
	}

	p.log.LogPayment("INITIATE", txn.Reference,
		fmt.Sprintf("MTN MoMo collection started, provider txn %s", out.TransactionID))

	return &models.PaymentInitiation{
		Status:        models.TxnProcessing,
		ProviderTxnID: out.TransactionID,
		USSDCode:      out.USSDCode,
	}, nil
}

type momoStatusResponse struct {
	Status string `json:"status"`
}

func (p *MTNMoMoProvider) CheckPaymentStatus(ctx context.Context, txn *models.Transaction) (models.TransactionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/collection/v1_0/requesttopay/%s", p.baseURL, txn.Reference), nil)
	if err != nil {
		return "", errs.Wrap(errs.ErrProvider, "mtn momo request build failed: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", errs.Wrap(errs.ErrProvider, "mtn momo unreachable: %v", err)
	}
	defer resp.Body.Close()

	var out momoStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.Wrap(errs.ErrProvider, "mtn momo response decode failed: %v", err)
	}
	return mapMomoStatus(out.Status), nil
}

func (p *MTNMoMoProvider) VerifyWebhookSignature(payload []byte, header http.Header) error {
	return verifyHMACSignature(payload, header, p.webhookSecret)
}

type momoWebhookPayload struct {
	ExternalID    string `json:"externalId"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

func (p *MTNMoMoProvider) ParseWebhook(payload []byte) (*models.WebhookNotification, error) {
	var body momoWebhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "malformed mtn momo webhook: %v", err)
	}
	if body.ExternalID == "" {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "mtn momo webhook has no externalId")
	}

	notification := &models.WebhookNotification{
		Reference:     body.ExternalID,
		ProviderTxnID: body.TransactionID,
		Status:        mapMomoStatus(body.Status),
		Amount:        body.Amount,
	}
	if notification.Status == models.TxnFailed {
		notification.ErrorCode = body.Status
		notification.ErrorMessage = body.Reason
	}
	return notification, nil
}

func (p *MTNMoMoProvider) CancelPayment(ctx context.Context, txn *models.Transaction) error {
	// MTN collections cannot be cancelled once the prompt is pushed; the
	// request simply expires on the handset.
	p.log.LogPayment("CANCEL", txn.Reference, "MTN MoMo collection left to expire")
	return nil
}

func (p *MTNMoMoProvider) RefundPayment(ctx context.Context, txn *models.Transaction, amount int64) error {
	body, _ := json.Marshal(map[string]interface{}{
		"amount":             amount,
		"currency":           txn.Currency,
		"referenceIdToRefund": txn.ProviderTxnID,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/disbursement/v1_0/refund", bytes.NewBuffer(body))
	if err != nil {
		return errs.Wrap(errs.ErrProvider, "mtn momo refund build failed: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return errs.Wrap(errs.ErrProvider, "mtn momo refund failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errs.Wrap(errs.ErrProvider, "mtn momo refund rejected: status %d", resp.StatusCode)
	}

	p.log.LogPayment("REFUND", txn.Reference, fmt.Sprintf("Refunded %d XAF via MTN MoMo", amount))
	return nil
}

func mapMomoStatus(status string) models.TransactionStatus {
	switch status {
	case "SUCCESSFUL":
		return models.TxnCompleted
	case "PENDING":
		return models.TxnProcessing
	default:
		return models.TxnFailed
	}
}
