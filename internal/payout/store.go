package payout

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-parcel/internal/models"
)

// Store persists payout rows. The booking_id unique constraint plus the
// exists-check inside the insert transaction guarantee at most one payout
// per booking no matter how the trigger races the sweep.
type Store struct {
	Bun *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{Bun: db}
}

// CreateIfAbsent inserts the payout unless one already exists for the
// booking. Returns the row that ends up in the table and whether this call
// created it.
func (s *Store) CreateIfAbsent(ctx context.Context, payout *models.Payout) (*models.Payout, bool, error) {
	created := false
	var existing models.Payout

	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&existing).
			Where("booking_id = ?", payout.BookingID).
			Limit(1).
			Scan(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		payout.CreatedAt = time.Now()
		if _, err := tx.NewInsert().Model(payout).Exec(ctx); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return payout, true, nil
	}
	return &existing, false, nil
}

func (s *Store) GetByBookingID(ctx context.Context, bookingID string) (*models.Payout, error) {
	var payout models.Payout
	err := s.Bun.NewSelect().
		Model(&payout).
		Where("booking_id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (s *Store) ListByTraveler(ctx context.Context, travelerID string) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.Bun.NewSelect().
		Model(&payouts).
		Where("traveler_id = ?", travelerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (s *Store) ListAll(ctx context.Context) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.Bun.NewSelect().
		Model(&payouts).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// ListPending returns payout rows waiting for a transfer attempt, oldest
// first.
func (s *Store) ListPending(ctx context.Context) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.Bun.NewSelect().
		Model(&payouts).
		Where("status IN (?)", bun.In([]models.PayoutStatus{models.PayoutPending, models.PayoutFailed})).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// ListPickedUpWithoutPayout finds bookings completed before the cutoff that
// never got a payout row. Safety net behind the pickup trigger.
func (s *Store) ListPickedUpWithoutPayout(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.Bun.NewSelect().
		Model(&bookings).
		Where("booking.status = ?", models.StatusPickedUp).
		Where("booking.picked_up_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM payouts p WHERE p.booking_id = booking.id AND p.status = ?)",
			models.PayoutCompleted).
		Order("booking.picked_up_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (s *Store) MarkCompleted(ctx context.Context, payoutID, transactionID string) error {
	_, err := s.Bun.NewUpdate().
		Model((*models.Payout)(nil)).
		Set("status = ?", models.PayoutCompleted).
		Set("transaction_id = ?", transactionID).
		Set("failure_reason = NULL").
		Set("completed_at = ?", time.Now()).
		Where("id = ? AND status IN (?)", payoutID, bun.In([]models.PayoutStatus{models.PayoutPending, models.PayoutFailed})).
		Exec(ctx)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, payoutID, reason string) error {
	_, err := s.Bun.NewUpdate().
		Model((*models.Payout)(nil)).
		Set("status = ?", models.PayoutFailed).
		Set("failure_reason = ?", reason).
		Where("id = ? AND status IN (?)", payoutID, bun.In([]models.PayoutStatus{models.PayoutPending, models.PayoutFailed})).
		Exec(ctx)
	return err
}
