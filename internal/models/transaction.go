package models

import "time"

type TransactionStatus string

const (
	TxnPending    TransactionStatus = "PENDING"
	TxnProcessing TransactionStatus = "PROCESSING"
	TxnCompleted  TransactionStatus = "COMPLETED"
	TxnFailed     TransactionStatus = "FAILED"
	TxnCancelled  TransactionStatus = "CANCELLED"
)

type PaymentMethod string

const (
	MethodMTNMoMo     PaymentMethod = "mtn_momo"
	MethodOrangeMoney PaymentMethod = "orange_money"
	MethodCard        PaymentMethod = "card"
	MethodWallet      PaymentMethod = "wallet"
)

// Transaction is one payment attempt against a booking. The reference and
// idempotency key are the only identifiers providers ever echo back.
type Transaction struct {
	ID                string            `json:"id" bun:"id,pk"`
	Reference         string            `json:"reference" bun:"reference,unique"`
	ProviderTxnID     string            `json:"provider_txn_id,omitempty" bun:"provider_txn_id,nullzero"`
	BookingID         string            `json:"booking_id" bun:"booking_id"`
	ShipperID         string            `json:"shipper_id" bun:"shipper_id"`
	Amount            int64             `json:"amount" bun:"amount"`
	Currency          string            `json:"currency" bun:"currency"`
	Method            PaymentMethod     `json:"method" bun:"method"`
	Status            TransactionStatus `json:"status" bun:"status"`
	IdempotencyKey    string            `json:"idempotency_key" bun:"idempotency_key,unique"`
	RetryCount        int               `json:"retry_count" bun:"retry_count"`
	ErrorCode         string            `json:"error_code,omitempty" bun:"error_code,nullzero"`
	ErrorMessage      string            `json:"error_message,omitempty" bun:"error_message,nullzero"`
	CompletedAt       time.Time         `json:"completed_at,omitempty" bun:"completed_at,nullzero"`
	WebhookReceivedAt time.Time         `json:"webhook_received_at,omitempty" bun:"webhook_received_at,nullzero"`
	CreatedAt         time.Time         `json:"created_at" bun:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at,omitempty" bun:"updated_at,nullzero"`
}

// PaymentRequest is what the shipper submits to pay a booking.
type PaymentRequest struct {
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `json:"method"`
	PhoneNumber    string        `json:"phone_number,omitempty"`
	CardToken      string        `json:"card_token,omitempty"`
	IdempotencyKey string        `json:"idempotency_key"`
}

// PaymentInitiation is the normalized artifact a provider returns when a
// payment is started: an immediate status plus whatever the client needs to
// finish the flow (redirect URL, USSD prompt).
type PaymentInitiation struct {
	Status        TransactionStatus `json:"status"`
	ProviderTxnID string            `json:"provider_txn_id,omitempty"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	USSDCode      string            `json:"ussd_code,omitempty"`
}

// WebhookNotification is a provider callback normalized to the ledger's
// vocabulary.
type WebhookNotification struct {
	Reference     string            `json:"reference"`
	ProviderTxnID string            `json:"provider_txn_id"`
	Status        TransactionStatus `json:"status"`
	Amount        int64             `json:"amount"`
	ErrorCode     string            `json:"error_code,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}
