package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
)

// WalletProvider settles against the shipper's platform wallet balance.
// Fully synchronous: the debit either happens or it doesn't, no webhooks.
type WalletProvider struct {
	client *redis.Client
	log    *logger.Logger
}

func NewWalletProvider(client *redis.Client, log *logger.Logger) *WalletProvider {
	return &WalletProvider{client: client, log: log}
}

func (p *WalletProvider) Method() models.PaymentMethod {
	return models.MethodWallet
}

func walletKey(customerID string) string {
	return "wallet_balance:" + customerID
}

// Balance returns the customer's current wallet balance in XAF.
func (p *WalletProvider) Balance(ctx context.Context, customerID string) (int64, error) {
	val, err := p.client.Get(ctx, walletKey(customerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Wrap(errs.ErrProvider, "wallet balance lookup failed: %v", err)
	}
	return val, nil
}

// Credit adds funds to a wallet; used by refunds and top-ups.
func (p *WalletProvider) Credit(ctx context.Context, customerID string, amount int64) error {
	if err := p.client.IncrBy(ctx, walletKey(customerID), amount).Err(); err != nil {
		return errs.Wrap(errs.ErrProvider, "wallet credit failed: %v", err)
	}
	return nil
}

// debitScript decrements only if the balance covers the amount, so two
// concurrent debits cannot overdraw.
var debitScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if balance < amount then
	return -1
end
return redis.call('DECRBY', KEYS[1], amount)
`)

func (p *WalletProvider) InitiatePayment(ctx context.Context, txn *models.Transaction, req models.PaymentRequest) (*models.PaymentInitiation, error) {
	result, err := debitScript.Run(ctx, p.client, []string{walletKey(txn.ShipperID)}, txn.Amount).Int64()
	if err != nil {
		return nil, errs.Wrap(errs.ErrProvider, "wallet debit failed: %v", err)
	}
	if result < 0 {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "insufficient wallet balance for %d XAF", txn.Amount)
	}

	p.log.LogPayment("INITIATE", txn.Reference,
		fmt.Sprintf("Wallet debited %d XAF, remaining balance %d", txn.Amount, result))

	return &models.PaymentInitiation{
		Status:        models.TxnCompleted,
		ProviderTxnID: "wallet-" + txn.Reference,
	}, nil
}

func (p *WalletProvider) CheckPaymentStatus(ctx context.Context, txn *models.Transaction) (models.TransactionStatus, error) {
	// Wallet debits settle at initiation; the ledger already holds the
	// final state.
	return txn.Status, nil
}

func (p *WalletProvider) VerifyWebhookSignature(payload []byte, header http.Header) error {
	return errs.Wrap(errs.ErrInvalidSignature, "wallet provider has no webhooks")
}

func (p *WalletProvider) ParseWebhook(payload []byte) (*models.WebhookNotification, error) {
	return nil, errs.Wrap(errs.ErrInvalidRequest, "wallet provider has no webhooks")
}

func (p *WalletProvider) CancelPayment(ctx context.Context, txn *models.Transaction) error {
	return nil
}

func (p *WalletProvider) RefundPayment(ctx context.Context, txn *models.Transaction, amount int64) error {
	if err := p.Credit(ctx, txn.ShipperID, amount); err != nil {
		return err
	}
	p.log.LogPayment("REFUND", txn.Reference, fmt.Sprintf("Refunded %d XAF to wallet", amount))
	return nil
}
