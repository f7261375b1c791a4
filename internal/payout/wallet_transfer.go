package payout

import (
	"context"
	"fmt"

	"ms-parcel/internal/payment"
)

// WalletTransfer settles traveler payouts by crediting the traveler's
// platform wallet. Travelers withdraw from the wallet through the mobile
// money channels on their own schedule.
type WalletTransfer struct {
	Wallet *payment.WalletProvider
}

func NewWalletTransfer(wallet *payment.WalletProvider) *WalletTransfer {
	return &WalletTransfer{Wallet: wallet}
}

func (t *WalletTransfer) Transfer(ctx context.Context, travelerID string, amount int64, reference string) (string, error) {
	if err := t.Wallet.Credit(ctx, travelerID, amount); err != nil {
		return "", fmt.Errorf("wallet credit for %s failed: %w", reference, err)
	}
	return reference, nil
}
