package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutCompleted PayoutStatus = "COMPLETED"
	PayoutFailed    PayoutStatus = "FAILED"
	PayoutCancelled PayoutStatus = "CANCELLED"
)

// Payout is the traveler's settlement for one completed booking. The split
// amounts and the percentages that produced them are snapshotted at
// computation time and never recomputed, even if platform settings change.
type Payout struct {
	bun.BaseModel `bun:"table:payouts"`

	ID         string `bun:"id,pk" json:"id"`
	BookingID  string `bun:"booking_id,unique,notnull" json:"booking_id"`
	TravelerID string `bun:"traveler_id,notnull" json:"traveler_id"`

	TotalAmount    int64 `bun:"total_amount,notnull" json:"total_amount"`
	TravelerAmount int64 `bun:"traveler_amount,notnull" json:"traveler_amount"`
	PlatformAmount int64 `bun:"platform_amount,notnull" json:"platform_amount"`
	VatAmount      int64 `bun:"vat_amount,notnull" json:"vat_amount"`

	TravelerPercent int `bun:"traveler_percent,notnull" json:"traveler_percent"`
	PlatformPercent int `bun:"platform_percent,notnull" json:"platform_percent"`
	VatPercent      int `bun:"vat_percent,notnull" json:"vat_percent"`

	Status        PayoutStatus `bun:"status,notnull" json:"status"`
	TransactionID string       `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`
	FailureReason string       `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`

	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	CompletedAt time.Time `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
}
