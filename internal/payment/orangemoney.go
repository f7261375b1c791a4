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

// OrangeMoneyProvider integrates Orange Money web payments. Initiation
// returns a hosted payment page URL; settlement is webhook-confirmed.
type OrangeMoneyProvider struct {
	baseURL       string
	merchantKey   string
	webhookSecret string
	returnURL     string
	client        *http.Client
	log           *logger.Logger
}

func NewOrangeMoneyProvider(baseURL, merchantKey, webhookSecret, returnURL string, client *http.Client, log *logger.Logger) *OrangeMoneyProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OrangeMoneyProvider{
		baseURL:       baseURL,
		merchantKey:   merchantKey,
		webhookSecret: webhookSecret,
		returnURL:     returnURL,
		client:        client,
		log:           log,
	}
}

func (p *OrangeMoneyProvider) Method() models.PaymentMethod {
	return models.MethodOrangeMoney
}

type orangeWebPaymentRequest struct {
	MerchantKey string `json:"merchant_key"`
	Currency    string `json:"currency"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	ReturnURL   string `json:"return_url"`
	NotifURL    string `json:"notif_url"`
}

type orangeWebPaymentResponse struct {
	PayToken   string `json:"pay_token"`
	PaymentURL string `json:"payment_url"`
	Status     string `json:"status"`
}

func (p *OrangeMoneyProvider) InitiatePayment(ctx context.Context, txn *models.Transaction, req models.PaymentRequest) (*models.PaymentInitiation, error) {
	body, _ := json.Marshal(orangeWebPaymentRequest{
		MerchantKey: p.merchantKey,
		Currency:    txn.Currency,
		OrderID:     txn.Reference,
		Amount:      txn.Amount,
		ReturnURL:   p.returnURL,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/webpayment", bytes.NewBuffer(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrProvider, "orange money request build failed: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.merchantKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.ErrProvider, "orange money unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errs.Wrap(errs.ErrProvider, "orange money rejected initiation: status %d", resp.StatusCode)
	}

	var out orangeWebPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.ErrProvider, "orange money response decode failed: %v", err)
	}

	p.log.LogPayment("INITIATE", txn.Reference,
		fmt.Sprintf("Orange Money web payment started, token %s", out.PayToken))

	return &models.PaymentInitiation{
		Status:        models.TxnProcessing,
		ProviderTxnID: out.PayToken,
		RedirectURL:   out.PaymentURL,
	}, nil
}

func (p *OrangeMoneyProvider) CheckPaymentStatus(ctx context.Context, txn *models.Transaction) (models.TransactionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/webpayment/%s", p.baseURL, txn.ProviderTxnID), nil)
	if err != nil {
		return "", errs.Wrap(errs.ErrProvider, "orange money request build failed: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.merchantKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", errs.Wrap(errs.ErrProvider, "orange money unreachable: %v", err)
	}
	defer resp.Body.Close()

	var out orangeWebPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.Wrap(errs.ErrProvider, "orange money response decode failed: %v", err)
	}
	return mapOrangeStatus(out.Status), nil
}

func (p *OrangeMoneyProvider) VerifyWebhookSignature(payload []byte, header http.Header) error {
	return verifyHMACSignature(payload, header, p.webhookSecret)
}

type orangeWebhookPayload struct {
	OrderID  string `json:"order_id"`
	PayToken string `json:"pay_token"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Message  string `json:"message"`
}

func (p *OrangeMoneyProvider) ParseWebhook(payload []byte) (*models.WebhookNotification, error) {
	var body orangeWebhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "malformed orange money webhook: %v", err)
	}
	if body.OrderID == "" {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "orange money webhook has no order_id")
	}

	notification := &models.WebhookNotification{
		Reference:     body.OrderID,
		ProviderTxnID: body.PayToken,
		Status:        mapOrangeStatus(body.Status),
		Amount:        body.Amount,
	}
	if notification.Status == models.TxnFailed {
		notification.ErrorCode = body.Status
		notification.ErrorMessage = body.Message
	}
	return notification, nil
}

func (p *OrangeMoneyProvider) CancelPayment(ctx context.Context, txn *models.Transaction) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/webpayment/%s", p.baseURL, txn.ProviderTxnID), nil)
	if err != nil {
		return errs.Wrap(errs.ErrProvider, "orange money cancel build failed: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.merchantKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return errs.Wrap(errs.ErrProvider, "orange money cancel failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errs.Wrap(errs.ErrProvider, "orange money cancel rejected: status %d", resp.StatusCode)
	}
	return nil
}

func (p *OrangeMoneyProvider) RefundPayment(ctx context.Context, txn *models.Transaction, amount int64) error {
	body, _ := json.Marshal(map[string]interface{}{
		"pay_token": txn.ProviderTxnID,
		"amount":    amount,
		"currency":  txn.Currency,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/refund", bytes.NewBuffer(body))
	if err != nil {
		return errs.Wrap(errs.ErrProvider, "orange money refund build failed: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.merchantKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return errs.Wrap(errs.ErrProvider, "orange money refund failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errs.Wrap(errs.ErrProvider, "orange money refund rejected: status %d", resp.StatusCode)
	}

	p.log.LogPayment("REFUND", txn.Reference, fmt.Sprintf("Refunded %d XAF via Orange Money", amount))
	return nil
}

func mapOrangeStatus(status string) models.TransactionStatus {
	switch status {
	case "SUCCESS", "PAID":
		return models.TxnCompleted
	case "PENDING", "INITIATED":
		return models.TxnProcessing
	default:
		return models.TxnFailed
	}
}
