// Package money holds the pure settlement rules: pricing, commission split
// and refund computation. No side effects; every function takes a settings
// snapshot so concurrent admin updates cannot shear a calculation.
package money

import (
	"math"
	"time"

	"ms-parcel/internal/models"
)

// Split is the three-way division of a booking price. The traveler and
// platform shares floor; VAT takes the remainder so the parts always sum to
// the total exactly.
type Split struct {
	TotalAmount    int64
	TravelerAmount int64
	PlatformAmount int64
	VatAmount      int64
}

// ComputeSplit divides a total according to the snapshotted percentages.
func ComputeSplit(total int64, snap models.SettingsSnapshot) Split {
	traveler := total * int64(snap.TravelerPercent) / 100
	platform := total * int64(snap.PlatformPercent) / 100
	vat := total - traveler - platform
	return Split{
		TotalAmount:    total,
		TravelerAmount: traveler,
		PlatformAmount: platform,
		VatAmount:      vat,
	}
}

// Valid reports whether the split still sums to its total. Callers treat a
// false result as fatal to the operation, never as a warning.
func (s Split) Valid() bool {
	return s.TravelerAmount+s.PlatformAmount+s.VatAmount == s.TotalAmount
}

// PriceBounds returns the allowed [min, max] price range for a parcel of the
// given weight.
func PriceBounds(weightKg float64, snap models.SettingsSnapshot) (int64, int64) {
	min := int64(math.Round(float64(snap.MinPricePerKg) * weightKg))
	max := int64(math.Round(float64(snap.MaxPricePerKg) * weightKg))
	return min, max
}

// ComputePrice resolves the booking price. A proposed price is honored only
// when it falls inside the per-kg bounds for the parcel weight; otherwise
// the midpoint rate applies. The insurance amount is added on top either way.
func ComputePrice(weightKg float64, proposed int64, snap models.SettingsSnapshot) int64 {
	min, max := PriceBounds(weightKg, snap)
	if proposed > 0 && proposed >= min && proposed <= max {
		return proposed + snap.InsuranceAmount
	}
	midRate := float64(snap.MinPricePerKg+snap.MaxPricePerKg) / 2
	return int64(math.Round(midRate*weightKg)) + snap.InsuranceAmount
}

// RefundBreakdown explains a refund computation without mutating anything.
type RefundBreakdown struct {
	OriginalAmount  int64   `json:"original_amount"`
	Rate            float64 `json:"rate"`
	PenaltyApplied  bool    `json:"penalty_applied"`
	PenaltyFraction float64 `json:"penalty_fraction,omitempty"`
	RefundAmount    int64   `json:"refund_amount"`
}

// CalculateRefund applies the cancellation policy: full refund when nothing
// was paid; the configured refund rate when cancelled before the
// cancellation deadline; the late-cancellation penalty on top once the
// cancellation lands past the deadline or inside the critical window before
// departure.
func CalculateRefund(total int64, paid bool, departureAt, now time.Time, snap models.SettingsSnapshot) RefundBreakdown {
	if !paid {
		return RefundBreakdown{
			OriginalAmount: total,
			Rate:           1,
			RefundAmount:   total,
		}
	}

	rate := snap.RefundRateBeforeDeadline
	breakdown := RefundBreakdown{
		OriginalAmount: total,
		Rate:           rate,
	}

	hoursToDeparture := departureAt.Sub(now).Hours()
	pastDeadline := hoursToDeparture < float64(snap.CancellationDeadlineHours)
	inCriticalWindow := hoursToDeparture <= float64(snap.CriticalCancellationHours)
	if pastDeadline || inCriticalWindow {
		breakdown.PenaltyApplied = true
		breakdown.PenaltyFraction = snap.LateCancellationPenalty
		breakdown.RefundAmount = int64(math.Round(float64(total) * rate * (1 - snap.LateCancellationPenalty)))
		return breakdown
	}

	breakdown.RefundAmount = int64(math.Round(float64(total) * rate))
	return breakdown
}
