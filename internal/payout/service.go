// Package payout settles completed bookings: it computes the commission
// split from the platform settings snapshot, records one payout per booking
// and pushes the traveler share through the transfer backend.
package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/money"
)

type BookingSource interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetFlightByID(ctx context.Context, id string) (*models.Flight, error)
}

type SettingsSource interface {
	Snapshot(ctx context.Context) (models.SettingsSnapshot, error)
}

// TransferClient moves the traveler share out of the platform. Implemented
// by the wallet credit adapter in production wiring.
type TransferClient interface {
	Transfer(ctx context.Context, travelerID string, amount int64, reference string) (string, error)
}

type Notifier interface {
	PublishPayoutCompleted(bookingID, travelerID string, amount int64) error
}

type Service struct {
	Store    *Store
	Bookings BookingSource
	Settings SettingsSource
	Transfer TransferClient
	Notifier Notifier
	logger   *logger.Logger
}

func NewService(store *Store, bookings BookingSource, settings SettingsSource,
	transfer TransferClient, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		Bookings: bookings,
		Settings: settings,
		Transfer: transfer,
		Notifier: notifier,
		logger:   log,
	}
}

// ProcessPayoutToTraveler settles one booking. Callable any number of times:
// the first call creates the payout row, later calls find it and only retry
// the transfer if it has not completed.
func (s *Service) ProcessPayoutToTraveler(ctx context.Context, bookingID string) (*models.Payout, error) {
	booking, err := s.Bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "booking %s", bookingID)
	}
	if booking.Status != models.StatusPickedUp {
		return nil, errs.Wrap(errs.ErrInvalidState,
			"booking %s is %s, payouts require PICKED_UP", bookingID, booking.Status)
	}

	flight, err := s.Bookings.GetFlightByID(ctx, booking.FlightID)
	if err != nil {
		return nil, fmt.Errorf("flight %s not found: %w", booking.FlightID, err)
	}

	snap, err := s.Settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	split := money.ComputeSplit(booking.TotalPrice, snap)
	if !split.Valid() {
		// Never pay out a split that does not sum to the price.
		return nil, fmt.Errorf("split of %d XAF does not sum for booking %s", booking.TotalPrice, bookingID)
	}

	payout := &models.Payout{
		ID:              uuid.NewString(),
		BookingID:       booking.ID,
		TravelerID:      flight.TravelerID,
		TotalAmount:     split.TotalAmount,
		TravelerAmount:  split.TravelerAmount,
		PlatformAmount:  split.PlatformAmount,
		VatAmount:       split.VatAmount,
		TravelerPercent: snap.TravelerPercent,
		PlatformPercent: snap.PlatformPercent,
		VatPercent:      snap.VatPercent,
		Status:          models.PayoutPending,
	}

	payout, created, err := s.Store.CreateIfAbsent(ctx, payout)
	if err != nil {
		return nil, fmt.Errorf("failed to record payout for booking %s: %w", bookingID, err)
	}
	if !created && payout.Status == models.PayoutCompleted {
		return payout, nil // already settled
	}
	if created {
		s.logger.LogPayout("CREATE", payout.ID, fmt.Sprintf(
			"Booking %s: %d XAF -> traveler %d / platform %d / vat %d",
			bookingID, payout.TotalAmount, payout.TravelerAmount, payout.PlatformAmount, payout.VatAmount))
	}

	if payout.TravelerAmount < snap.MinimumPayoutAmount {
		// Held below the minimum; the sweep retries once settings allow it.
		s.logger.LogPayout("HOLD", payout.ID, fmt.Sprintf(
			"Traveler amount %d below minimum %d, payout held",
			payout.TravelerAmount, snap.MinimumPayoutAmount))
		return payout, nil
	}

	return s.executeTransfer(ctx, payout)
}

func (s *Service) executeTransfer(ctx context.Context, payout *models.Payout) (*models.Payout, error) {
	reference := "PAYOUT-" + payout.ID
	transferID, err := s.Transfer.Transfer(ctx, payout.TravelerID, payout.TravelerAmount, reference)
	if err != nil {
		if markErr := s.Store.MarkFailed(ctx, payout.ID, err.Error()); markErr != nil {
			s.logger.Error("PAYOUT", fmt.Sprintf("Failed to mark payout %s failed: %v", payout.ID, markErr))
		}
		payout.Status = models.PayoutFailed
		payout.FailureReason = err.Error()
		return payout, errs.Wrap(errs.ErrProvider, "transfer failed for payout %s: %v", payout.ID, err)
	}

	if err := s.Store.MarkCompleted(ctx, payout.ID, transferID); err != nil {
		return nil, fmt.Errorf("transfer %s succeeded but payout %s not marked: %w", transferID, payout.ID, err)
	}
	payout.Status = models.PayoutCompleted
	payout.TransactionID = transferID
	payout.CompletedAt = time.Now()

	s.logger.LogPayout("COMPLETE", payout.ID, fmt.Sprintf(
		"Transferred %d XAF to traveler %s (%s)", payout.TravelerAmount, payout.TravelerID, transferID))
	if s.Notifier != nil {
		if err := s.Notifier.PublishPayoutCompleted(payout.BookingID, payout.TravelerID, payout.TravelerAmount); err != nil {
			s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish payout event for %s: %v", payout.ID, err))
		}
	}
	return payout, nil
}

// ProcessAutomaticPayouts is the scheduler entry point: it settles every
// picked-up booking older than the configured delay that still lacks a
// completed payout. One failure never blocks the rest of the batch.
func (s *Service) ProcessAutomaticPayouts(ctx context.Context) (int, error) {
	snap, err := s.Settings.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(snap.AutoPayoutDelayHours) * time.Hour)
	bookings, err := s.Store.ListPickedUpWithoutPayout(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("payout sweep scan failed: %w", err)
	}

	settled := 0
	for _, booking := range bookings {
		payout, err := s.ProcessPayoutToTraveler(ctx, booking.ID)
		if err != nil {
			s.logger.Error("PAYOUT", fmt.Sprintf(
				"Sweep settlement failed for booking %s: %v", booking.ID, err))
			continue
		}
		if payout.Status == models.PayoutCompleted {
			settled++
		}
	}
	return settled, nil
}

// GetPayoutForBooking returns the payout attached to a booking, if any.
func (s *Service) GetPayoutForBooking(ctx context.Context, bookingID string) (*models.Payout, error) {
	payout, err := s.Store.GetByBookingID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrap(errs.ErrNotFound, "no payout for booking %s", bookingID)
		}
		return nil, err
	}
	return payout, nil
}

func (s *Service) ListPayoutsByTraveler(ctx context.Context, travelerID string) ([]models.Payout, error) {
	return s.Store.ListByTraveler(ctx, travelerID)
}

func (s *Service) ListAllPayouts(ctx context.Context) ([]models.Payout, error) {
	return s.Store.ListAll(ctx)
}
