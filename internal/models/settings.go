package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PlatformSettings is the singleton configuration row (id = 1). Mutated only
// by admin action; every settlement computation reads it through a snapshot.
type PlatformSettings struct {
	bun.BaseModel `bun:"table:platform_settings"`

	ID int64 `bun:"id,pk" json:"id"`

	MinPricePerKg int64 `bun:"min_price_per_kg,notnull" json:"min_price_per_kg"`
	MaxPricePerKg int64 `bun:"max_price_per_kg,notnull" json:"max_price_per_kg"`

	// Percentage split of the booking price; must sum to 100.
	TravelerPercent int `bun:"traveler_percent,notnull" json:"traveler_percent"`
	PlatformPercent int `bun:"platform_percent,notnull" json:"platform_percent"`
	VatPercent      int `bun:"vat_percent,notnull" json:"vat_percent"`

	PaymentTimeoutHours       int `bun:"payment_timeout_hours,notnull" json:"payment_timeout_hours"`
	AutoPayoutDelayHours      int `bun:"auto_payout_delay_hours,notnull" json:"auto_payout_delay_hours"`
	CancellationDeadlineHours int `bun:"cancellation_deadline_hours,notnull" json:"cancellation_deadline_hours"`
	CriticalCancellationHours int `bun:"critical_cancellation_hours,notnull" json:"critical_cancellation_hours"`

	RefundRateBeforeDeadline float64 `bun:"refund_rate_before_deadline,notnull" json:"refund_rate_before_deadline"`
	LateCancellationPenalty  float64 `bun:"late_cancellation_penalty,notnull" json:"late_cancellation_penalty"`

	MinimumPayoutAmount int64 `bun:"minimum_payout_amount,notnull" json:"minimum_payout_amount"`
	InsuranceAmount     int64 `bun:"insurance_amount,notnull" json:"insurance_amount"`

	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// SettingsSnapshot is the immutable copy handed to money rules and the
// payout engine so a concurrent admin update cannot shear a computation.
type SettingsSnapshot struct {
	MinPricePerKg int64
	MaxPricePerKg int64

	TravelerPercent int
	PlatformPercent int
	VatPercent      int

	PaymentTimeoutHours       int
	AutoPayoutDelayHours      int
	CancellationDeadlineHours int
	CriticalCancellationHours int

	RefundRateBeforeDeadline float64
	LateCancellationPenalty  float64

	MinimumPayoutAmount int64
	InsuranceAmount     int64
}

func (s *PlatformSettings) Snapshot() SettingsSnapshot {
	return SettingsSnapshot{
		MinPricePerKg:             s.MinPricePerKg,
		MaxPricePerKg:             s.MaxPricePerKg,
		TravelerPercent:           s.TravelerPercent,
		PlatformPercent:           s.PlatformPercent,
		VatPercent:                s.VatPercent,
		PaymentTimeoutHours:       s.PaymentTimeoutHours,
		AutoPayoutDelayHours:      s.AutoPayoutDelayHours,
		CancellationDeadlineHours: s.CancellationDeadlineHours,
		CriticalCancellationHours: s.CriticalCancellationHours,
		RefundRateBeforeDeadline:  s.RefundRateBeforeDeadline,
		LateCancellationPenalty:   s.LateCancellationPenalty,
		MinimumPayoutAmount:       s.MinimumPayoutAmount,
		InsuranceAmount:           s.InsuranceAmount,
	}
}

// PercentSumValid reports whether the commission split covers the whole
// price with nothing left over.
func (s *PlatformSettings) PercentSumValid() bool {
	return s.TravelerPercent+s.PlatformPercent+s.VatPercent == 100
}
