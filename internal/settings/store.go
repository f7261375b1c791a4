package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-parcel/internal/config"
	"ms-parcel/internal/errs"
	"ms-parcel/internal/models"
)

// settingsRowID is the single row every read and write targets.
const settingsRowID = 1

type Store struct {
	Bun *bun.DB
}

func NewStore(bunDB *bun.DB) *Store {
	return &Store{Bun: bunDB}
}

// Seed inserts the platform settings row from config defaults if none
// exists yet. Existing rows are left untouched.
func (s *Store) Seed(ctx context.Context, cfg config.PlatformConfig) error {
	row := &models.PlatformSettings{
		ID:                        settingsRowID,
		MinPricePerKg:             cfg.MinPricePerKg,
		MaxPricePerKg:             cfg.MaxPricePerKg,
		TravelerPercent:           cfg.TravelerPercent,
		PlatformPercent:           cfg.PlatformPercent,
		VatPercent:                cfg.VatPercent,
		PaymentTimeoutHours:       cfg.PaymentTimeoutHours,
		AutoPayoutDelayHours:      cfg.AutoPayoutDelayHours,
		CancellationDeadlineHours: cfg.CancellationDeadlineHours,
		CriticalCancellationHours: cfg.CriticalCancellationHours,
		RefundRateBeforeDeadline:  cfg.RefundRateBeforeDeadline,
		LateCancellationPenalty:   cfg.LateCancellationPenalty,
		MinimumPayoutAmount:       cfg.MinimumPayoutAmount,
		InsuranceAmount:           cfg.InsuranceAmount,
		UpdatedAt:                 time.Now(),
	}
	if !row.PercentSumValid() {
		return errs.Wrap(errs.ErrInvalidRequest, "settings percentages must sum to 100")
	}
	_, err := s.Bun.NewInsert().
		Model(row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

// Get returns the current settings row.
func (s *Store) Get(ctx context.Context) (*models.PlatformSettings, error) {
	var row models.PlatformSettings
	err := s.Bun.NewSelect().
		Model(&row).
		Where("id = ?", settingsRowID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrap(errs.ErrNotFound, "platform settings not seeded")
	}
	if err != nil {
		return nil, fmt.Errorf("load platform settings: %w", err)
	}
	return &row, nil
}

// Snapshot loads the row and returns an immutable copy for a single
// computation. Never cached across calls.
func (s *Store) Snapshot(ctx context.Context) (models.SettingsSnapshot, error) {
	row, err := s.Get(ctx)
	if err != nil {
		return models.SettingsSnapshot{}, err
	}
	return row.Snapshot(), nil
}

// Update replaces the admin-mutable fields after validating the split.
func (s *Store) Update(ctx context.Context, updated *models.PlatformSettings) error {
	if !updated.PercentSumValid() {
		return errs.Wrap(errs.ErrInvalidRequest,
			"percent split %d/%d/%d does not sum to 100",
			updated.TravelerPercent, updated.PlatformPercent, updated.VatPercent)
	}
	if updated.MinPricePerKg <= 0 || updated.MaxPricePerKg < updated.MinPricePerKg {
		return errs.Wrap(errs.ErrInvalidRequest, "invalid price-per-kg bounds")
	}
	updated.ID = settingsRowID
	updated.UpdatedAt = time.Now()
	_, err := s.Bun.NewUpdate().
		Model(updated).
		Column("min_price_per_kg", "max_price_per_kg",
			"traveler_percent", "platform_percent", "vat_percent",
			"payment_timeout_hours", "auto_payout_delay_hours",
			"cancellation_deadline_hours", "critical_cancellation_hours",
			"refund_rate_before_deadline", "late_cancellation_penalty",
			"minimum_payout_amount", "insurance_amount", "updated_at").
		Where("id = ?", settingsRowID).
		Exec(ctx)
	return err
}
