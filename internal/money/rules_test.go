package money_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-parcel/internal/models"
	"ms-parcel/internal/money"
)

func testSnapshot() models.SettingsSnapshot {
	return models.SettingsSnapshot{
		MinPricePerKg:             2000,
		MaxPricePerKg:             10000,
		TravelerPercent:           70,
		PlatformPercent:           25,
		VatPercent:                5,
		PaymentTimeoutHours:       12,
		AutoPayoutDelayHours:      48,
		CancellationDeadlineHours: 24,
		CriticalCancellationHours: 4,
		RefundRateBeforeDeadline:  0.9,
		LateCancellationPenalty:   0.5,
		MinimumPayoutAmount:       1000,
		InsuranceAmount:           500,
	}
}

func TestComputeSplit(t *testing.T) {
	snap := testSnapshot()

	split := money.ComputeSplit(1000, snap)
	assert.Equal(t, int64(700), split.TravelerAmount)
	assert.Equal(t, int64(250), split.PlatformAmount)
	assert.Equal(t, int64(50), split.VatAmount)
	assert.True(t, split.Valid())
}

func TestComputeSplitRemainderGoesToVat(t *testing.T) {
	snap := testSnapshot()

	// 999 does not divide cleanly; the floored shares leave the remainder
	// in the VAT bucket and the parts still sum exactly.
	split := money.ComputeSplit(999, snap)
	assert.Equal(t, int64(699), split.TravelerAmount)
	assert.Equal(t, int64(249), split.PlatformAmount)
	assert.Equal(t, int64(51), split.VatAmount)
	assert.True(t, split.Valid())

	for _, total := range []int64{1, 3, 7, 101, 12345, 999999} {
		split := money.ComputeSplit(total, snap)
		assert.True(t, split.Valid(), "split of %d must sum exactly", total)
	}
}

func TestComputePriceHonorsProposedWithinBounds(t *testing.T) {
	snap := testSnapshot()

	// 2kg parcel: bounds are [4000, 20000]; proposed 5000 is accepted and
	// insurance is added on top.
	price := money.ComputePrice(2, 5000, snap)
	assert.Equal(t, int64(5500), price)
}

func TestComputePriceFallsBackToMidpoint(t *testing.T) {
	snap := testSnapshot()

	// Proposed price below the 2kg minimum: midpoint rate 6000/kg applies.
	price := money.ComputePrice(2, 1000, snap)
	assert.Equal(t, int64(12500), price)

	// No proposed price at all behaves the same way.
	assert.Equal(t, price, money.ComputePrice(2, 0, snap))
}

func TestCalculateRefundUnpaidIsFull(t *testing.T) {
	snap := testSnapshot()
	departure := time.Now().Add(72 * time.Hour)

	refund := money.CalculateRefund(10000, false, departure, time.Now(), snap)
	assert.Equal(t, int64(10000), refund.RefundAmount)
	assert.False(t, refund.PenaltyApplied)
}

func TestCalculateRefundPaidBeforeDeadline(t *testing.T) {
	snap := testSnapshot()
	departure := time.Now().Add(72 * time.Hour)

	refund := money.CalculateRefund(10000, true, departure, time.Now(), snap)
	assert.Equal(t, int64(9000), refund.RefundAmount)
	assert.False(t, refund.PenaltyApplied)
}

func TestCalculateRefundPastDeadlineIsPenalized(t *testing.T) {
	snap := testSnapshot()
	// 10h before departure: past the 24h deadline, outside the 4h critical
	// window. The penalty applies on the deadline alone.
	departure := time.Now().Add(10 * time.Hour)

	refund := money.CalculateRefund(10000, true, departure, time.Now(), snap)
	assert.True(t, refund.PenaltyApplied)
	assert.Equal(t, int64(4500), refund.RefundAmount)
}

func TestCalculateRefundDeadlineIsConfigurable(t *testing.T) {
	snap := testSnapshot()
	snap.CancellationDeadlineHours = 1
	// The same 10h-out cancellation is before a 1h deadline: full rate.
	departure := time.Now().Add(10 * time.Hour)

	refund := money.CalculateRefund(10000, true, departure, time.Now(), snap)
	assert.False(t, refund.PenaltyApplied)
	assert.Equal(t, int64(9000), refund.RefundAmount)
}

func TestCalculateRefundInsideCriticalWindow(t *testing.T) {
	snap := testSnapshot()
	departure := time.Now().Add(2 * time.Hour) // inside the 4h window

	refund := money.CalculateRefund(10000, true, departure, time.Now(), snap)
	assert.True(t, refund.PenaltyApplied)
	// 10000 * 0.9 * (1 - 0.5)
	assert.Equal(t, int64(4500), refund.RefundAmount)
}
