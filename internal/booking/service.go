// Package booking owns the booking state machine. Every transition, whether
// triggered by a request handler, a provider webhook or the scheduler, goes
// through the same entry points here: per-booking redis lock, fresh read,
// precondition checks, compare-and-swap commit.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-parcel/internal/booking/kafka"
	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/money"
	"ms-parcel/internal/payment"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, booking *models.Booking, parcels []models.Parcel) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingCAS(ctx context.Context, booking *models.Booking, fromStatus models.BookingStatus, expectedVersion int64) (bool, error)
	ListExpiredUnpaid(ctx context.Context, now time.Time) ([]models.Booking, error)
	ListBookingsByShipper(ctx context.Context, shipperID string) ([]models.Booking, error)
	GetParcelsByBooking(ctx context.Context, bookingID string) ([]models.Parcel, error)
	GetFlightByID(ctx context.Context, id string) (*models.Flight, error)
	GetCustomerByID(ctx context.Context, id string) (*models.Customer, error)
	ResolveReceiver(ctx context.Context, receiver *models.Receiver) (*models.Receiver, error)
}

type RedisLock interface {
	LockBooking(ctx context.Context, bookingID, token string) (bool, error)
	UnlockBooking(ctx context.Context, bookingID, token string) error
}

type Notifier interface {
	PublishBookingEvent(event kafka.BookingEvent) error
}

type Ledger interface {
	RecordAttempt(bookingID, shipperID string, amount int64, method models.PaymentMethod, idempotencyKey string) (*models.Transaction, error)
	MarkProcessing(reference, providerTxnID string) (*models.Transaction, error)
	MarkCompleted(reference, providerTxnID string) (*models.Transaction, error)
	MarkFailed(reference, errorCode, errorMessage string) (*models.Transaction, error)
	MarkCancelled(reference, reason string) (*models.Transaction, error)
	GetByReference(reference string) (*models.Transaction, error)
	History(bookingID string) ([]*models.Transaction, error)
}

type SettingsSource interface {
	Snapshot(ctx context.Context) (models.SettingsSnapshot, error)
}

type PayoutTrigger interface {
	ProcessPayoutToTraveler(ctx context.Context, bookingID string) (*models.Payout, error)
}

type PickupCoder interface {
	GeneratePickupQR(bookingID, pickupCode string) ([]byte, error)
}

type Service struct {
	DB        DBLayer
	Redis     RedisLock
	Notifier  Notifier
	Ledger    Ledger
	Providers *payment.Registry
	Settings  SettingsSource
	Payouts   PayoutTrigger
	QR        PickupCoder
	logger    *logger.Logger

	generatePickupCode func() string
}

func NewService(db DBLayer, redis RedisLock, notifier Notifier, ledger Ledger,
	providers *payment.Registry, settings SettingsSource, payouts PayoutTrigger,
	qr PickupCoder, log *logger.Logger, generatePickupCode func() string) *Service {
	return &Service{
		DB:                 db,
		Redis:              redis,
		Notifier:           notifier,
		Ledger:             ledger,
		Providers:          providers,
		Settings:           settings,
		Payouts:            payouts,
		QR:                 qr,
		logger:             log,
		generatePickupCode: generatePickupCode,
	}
}

// withLock serializes transitions for one booking across handlers, webhooks
// and scheduler sweeps.
func (s *Service) withLock(ctx context.Context, bookingID string, fn func() error) error {
	token := uuid.NewString()
	ok, err := s.Redis.LockBooking(ctx, bookingID, token)
	if err != nil {
		return fmt.Errorf("redis lock error: %w", err)
	}
	if !ok {
		return errs.Wrap(errs.ErrInvalidState, "booking %s is being modified by another request", bookingID)
	}
	defer func() {
		if err := s.Redis.UnlockBooking(ctx, bookingID, token); err != nil {
			s.logger.Warn("REDIS", fmt.Sprintf("Failed to unlock booking %s: %v", bookingID, err))
		}
	}()
	return fn()
}

// commit writes the mutated booking only if nobody else transitioned it in
// the meantime.
func (s *Service) commit(ctx context.Context, booking *models.Booking, from models.BookingStatus, expectedVersion int64) error {
	ok, err := s.DB.UpdateBookingCAS(ctx, booking, from, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", booking.ID, err)
	}
	if !ok {
		return errs.Wrap(errs.ErrInvalidState, "booking %s was modified concurrently", booking.ID)
	}
	return nil
}

// notify publishes a lifecycle event. Best-effort: failures are logged and
// never fail the transition.
func (s *Service) notify(event kafka.BookingEvent) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.PublishBookingEvent(event); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for booking %s: %v", event.Type, event.BookingID, err))
	}
}

// ---------------- LIFECYCLE ----------------

// Create validates the request, resolves the receiver, prices the parcels
// and persists the booking in PENDING_CONFIRMATION.
func (s *Service) Create(ctx context.Context, req models.CreateBookingRequest, shipperID string) (*models.Booking, error) {
	if len(req.Parcels) == 0 {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "at least one parcel is required")
	}

	var weight float64
	for _, p := range req.Parcels {
		if p.WeightKg <= 0 {
			return nil, errs.Wrap(errs.ErrInvalidRequest, "parcel weight must be positive")
		}
		weight += p.WeightKg
	}

	if _, err := s.DB.GetCustomerByID(ctx, shipperID); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "shipper %s not found", shipperID)
	}

	flight, err := s.DB.GetFlightByID(ctx, req.FlightID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "flight %s not found", req.FlightID)
	}
	if !flight.Open {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "flight %s is not open for bookings", req.FlightID)
	}
	if !flight.DepartureAt.After(time.Now()) {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "flight %s has already departed", req.FlightID)
	}
	if weight > flight.CapacityKg {
		return nil, errs.Wrap(errs.ErrInvalidRequest,
			"parcel weight %.1fkg exceeds flight capacity %.1fkg", weight, flight.CapacityKg)
	}

	if req.ReceiverEmail == "" {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "receiver email is required")
	}
	receiver, err := s.DB.ResolveReceiver(ctx, &models.Receiver{
		ID:       uuid.NewString(),
		Email:    req.ReceiverEmail,
		FullName: req.ReceiverName,
		Phone:    req.ReceiverPhone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receiver: %w", err)
	}

	snap, err := s.Settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:            uuid.NewString(),
		FlightID:      flight.ID,
		ShipperID:     shipperID,
		ReceiverID:    receiver.ID,
		Status:        models.StatusPendingConfirmation,
		TotalPrice:    money.ComputePrice(weight, req.ProposedPrice, snap),
		ProposedPrice: req.ProposedPrice,
		WeightKg:      weight,
		Description:   req.Description,
		CreatedAt:     time.Now(),
	}

	parcels := make([]models.Parcel, len(req.Parcels))
	for i, p := range req.Parcels {
		parcels[i] = models.Parcel{
			ID:            uuid.NewString(),
			BookingID:     booking.ID,
			Description:   p.Description,
			WeightKg:      p.WeightKg,
			DeclaredValue: p.DeclaredValue,
		}
	}

	if err := s.DB.CreateBooking(ctx, booking, parcels); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.LogBooking("CREATE", booking.ID,
		fmt.Sprintf("Booking created on flight %s for %d XAF (%.1fkg)", flight.ID, booking.TotalPrice, weight))
	s.notify(kafka.BookingEvent{
		Type:      kafka.EventBookingCreated,
		BookingID: booking.ID,
		Status:    booking.Status,
		Actor:     shipperID,
		Amount:    booking.TotalPrice,
	})
	return booking, nil
}

// Confirm moves a booking to CONFIRMED_UNPAID and stamps the payment
// deadline. Only the traveler owning the flight may confirm.
func (s *Service) Confirm(ctx context.Context, bookingID, travelerID string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.withLock(ctx, bookingID, func() error {
		var err error
		booking, err = s.loadForTraveler(ctx, bookingID, travelerID)
		if err != nil {
			return err
		}
		if booking.Status != models.StatusPendingConfirmation {
			return errs.Wrap(errs.ErrInvalidState,
				"cannot confirm booking in status %s", booking.Status)
		}

		snap, err := s.Settings.Snapshot(ctx)
		if err != nil {
			return err
		}

		from, version := booking.Status, booking.Version
		now := time.Now()
		booking.Status = models.StatusConfirmedUnpaid
		booking.ConfirmedAt = now
		booking.PaymentDeadline = now.Add(time.Duration(snap.PaymentTimeoutHours) * time.Hour)
		return s.commit(ctx, booking, from, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBooking("CONFIRM", booking.ID,
		fmt.Sprintf("Confirmed by traveler, payment due %s", booking.PaymentDeadline.Format(time.RFC3339)))
	s.notify(kafka.BookingEvent{
		Type:      kafka.EventBookingConfirmed,
		BookingID: booking.ID,
		Status:    booking.Status,
		Actor:     travelerID,
		Amount:    booking.TotalPrice,
	})
	return booking, nil
}

// Reject declines a pending booking; terminal.
func (s *Service) Reject(ctx context.Context, bookingID, travelerID, reason string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.withLock(ctx, bookingID, func() error {
		var err error
		booking, err = s.loadForTraveler(ctx, bookingID, travelerID)
		if err != nil {
			return err
		}
		if booking.Status != models.StatusPendingConfirmation {
			return errs.Wrap(errs.ErrInvalidState,
				"cannot reject booking in status %s", booking.Status)
		}

		from, version := booking.Status, booking.Version
		booking.Status = models.StatusCancelledByTraveler
		booking.CancelledAt = time.Now()
		booking.CancelActor = models.CancelActorTraveler
		booking.CancelReason = reason
		return s.commit(ctx, booking, from, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBooking("REJECT", booking.ID, "Rejected by traveler: "+reason)
	s.notify(kafka.BookingEvent{
		Type:      kafka.EventBookingRejected,
		BookingID: booking.ID,
		Status:    booking.Status,
		Actor:     travelerID,
		Reason:    reason,
	})
	return booking, nil
}

// PayResult bundles the ledger row and the provider artifact returned to the
// shipper.
type PayResult struct {
	Booking     *models.Booking           `json:"booking"`
	Transaction *models.Transaction       `json:"transaction"`
	Initiation  *models.PaymentInitiation `json:"initiation"`
}

// Pay charges the booking price through the requested provider. Synchronous
// providers settle in-line; asynchronous ones leave the booking
// CONFIRMED_UNPAID until their webhook lands.
func (s *Service) Pay(ctx context.Context, bookingID string, req models.PaymentRequest, shipperID string) (*PayResult, error) {
	var result *PayResult
	err := s.withLock(ctx, bookingID, func() error {
		booking, err := s.DB.GetBookingByID(ctx, bookingID)
		if err != nil {
			return errs.Wrap(errs.ErrNotFound, "booking %s", bookingID)
		}
		if booking.ShipperID != shipperID {
			return errs.Wrap(errs.ErrUnauthorized, "booking %s does not belong to caller", bookingID)
		}
		if booking.Status != models.StatusConfirmedUnpaid {
			return errs.Wrap(errs.ErrInvalidState, "cannot pay booking in status %s", booking.Status)
		}
		if time.Now().After(booking.PaymentDeadline) {
			return errs.Wrap(errs.ErrDeadlineExceeded,
				"payment deadline %s has passed", booking.PaymentDeadline.Format(time.RFC3339))
		}
		if req.Amount != booking.TotalPrice {
			return errs.Wrap(errs.ErrAmountMismatch,
				"payment amount %d does not match booking price %d", req.Amount, booking.TotalPrice)
		}

		provider, err := s.Providers.Get(req.Method)
		if err != nil {
			return err
		}

		txn, err := s.Ledger.RecordAttempt(booking.ID, shipperID, req.Amount, req.Method, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if txn.Status == models.TxnCompleted {
			// Retried request whose original attempt already settled.
			result = &PayResult{Booking: booking, Transaction: txn,
				Initiation: &models.PaymentInitiation{Status: models.TxnCompleted, ProviderTxnID: txn.ProviderTxnID}}
			return nil
		}

		initiation, err := provider.InitiatePayment(ctx, txn, req)
		if err != nil {
			if _, ferr := s.Ledger.MarkFailed(txn.Reference, "initiation_failed", err.Error()); ferr != nil {
				s.logger.Error("PAYMENT", fmt.Sprintf("Failed to mark %s failed: %v", txn.Reference, ferr))
			}
			return err
		}

		switch initiation.Status {
		case models.TxnCompleted:
			txn, err = s.Ledger.MarkCompleted(txn.Reference, initiation.ProviderTxnID)
			if err != nil {
				return err
			}
			from, version := booking.Status, booking.Version
			booking.Status = models.StatusConfirmedPaid
			if err := s.commit(ctx, booking, from, version); err != nil {
				return err
			}
			s.notify(kafka.BookingEvent{
				Type:      kafka.EventPaymentReceived,
				BookingID: booking.ID,
				Status:    booking.Status,
				Actor:     shipperID,
				Amount:    txn.Amount,
			})
		default:
			txn, err = s.Ledger.MarkProcessing(txn.Reference, initiation.ProviderTxnID)
			if err != nil {
				return err
			}
		}

		result = &PayResult{Booking: booking, Transaction: txn, Initiation: initiation}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBooking("PAY", bookingID,
		fmt.Sprintf("Payment attempt %s via %s: %s", result.Transaction.Reference, req.Method, result.Transaction.Status))
	return result, nil
}

// ApplyPaymentResult is the single advancement path for asynchronous
// confirmations. The booking status is re-read under the lock right before
// commit: a confirmation landing after the booking auto-cancelled is
// reversed, never applied.
func (s *Service) ApplyPaymentResult(ctx context.Context, provider payment.Provider, notification *models.WebhookNotification) error {
	txn, err := s.Ledger.GetByReference(notification.Reference)
	if err != nil {
		return err
	}

	switch notification.Status {
	case models.TxnFailed:
		switch txn.Status {
		case models.TxnFailed, models.TxnCancelled:
			return nil // redelivered webhook
		case models.TxnCompleted:
			// A failure notice for a settled transaction changes nothing;
			// acknowledge it so the provider stops redelivering.
			s.logger.Warn("WEBHOOK", fmt.Sprintf(
				"Ignoring failure notice for completed transaction %s", txn.Reference))
			return nil
		}
		_, err := s.Ledger.MarkFailed(txn.Reference, notification.ErrorCode, notification.ErrorMessage)
		return err

	case models.TxnCompleted:
		return s.withLock(ctx, txn.BookingID, func() error {
			booking, err := s.DB.GetBookingByID(ctx, txn.BookingID)
			if err != nil {
				return fmt.Errorf("booking %s not found for transaction %s: %w", txn.BookingID, txn.Reference, err)
			}

			if txn.Status == models.TxnCompleted && booking.Status == models.StatusConfirmedPaid {
				return nil // already applied, idempotent no-op
			}

			if booking.Status != models.StatusConfirmedUnpaid || time.Now().After(booking.PaymentDeadline) {
				s.logger.Warn("WEBHOOK", fmt.Sprintf(
					"Late confirmation for %s: booking %s is %s, reversing payment",
					txn.Reference, booking.ID, booking.Status))
				if _, err := s.Ledger.MarkCancelled(txn.Reference, "booking no longer payable"); err != nil {
					return err
				}
				if err := provider.RefundPayment(ctx, txn, notification.Amount); err != nil {
					// The money was taken; reconciliation needs this loud.
					s.logger.Error("WEBHOOK", fmt.Sprintf(
						"Reversal failed for %s (booking %s): %v", txn.Reference, booking.ID, err))
					return err
				}
				return nil
			}

			if _, err := s.Ledger.MarkCompleted(txn.Reference, notification.ProviderTxnID); err != nil {
				return err
			}

			from, version := booking.Status, booking.Version
			booking.Status = models.StatusConfirmedPaid
			if err := s.commit(ctx, booking, from, version); err != nil {
				return err
			}

			s.logger.LogBooking("PAID", booking.ID,
				fmt.Sprintf("Payment confirmed via webhook (%s)", txn.Reference))
			s.notify(kafka.BookingEvent{
				Type:      kafka.EventPaymentReceived,
				BookingID: booking.ID,
				Status:    booking.Status,
				Amount:    txn.Amount,
			})
			return nil
		})

	default:
		// Interim provider states carry no transition.
		return nil
	}
}

// CancelByClient cancels the booking on the shipper's behalf. Paid bookings
// get the refund policy applied before the transition commits.
func (s *Service) CancelByClient(ctx context.Context, bookingID, shipperID, reason string) (*models.Booking, *money.RefundBreakdown, error) {
	var booking *models.Booking
	var breakdown *money.RefundBreakdown

	err := s.withLock(ctx, bookingID, func() error {
		var err error
		booking, err = s.DB.GetBookingByID(ctx, bookingID)
		if err != nil {
			return errs.Wrap(errs.ErrNotFound, "booking %s", bookingID)
		}
		if booking.ShipperID != shipperID {
			return errs.Wrap(errs.ErrUnauthorized, "booking %s does not belong to caller", bookingID)
		}
		if !models.CanTransition(booking.Status, models.StatusCancelledByClient) {
			return errs.Wrap(errs.ErrInvalidState,
				"cannot cancel booking in status %s", booking.Status)
		}

		if booking.Status == models.StatusConfirmedPaid {
			b, err := s.refundForCancellation(ctx, booking)
			if err != nil {
				return err
			}
			breakdown = b
		}

		from, version := booking.Status, booking.Version
		booking.Status = models.StatusCancelledByClient
		booking.CancelledAt = time.Now()
		booking.CancelActor = models.CancelActorClient
		booking.CancelReason = reason
		return s.commit(ctx, booking, from, version)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.LogBooking("CANCEL", booking.ID, "Cancelled by client: "+reason)
	s.notify(kafka.BookingEvent{
		Type:      kafka.EventBookingCancelled,
		BookingID: booking.ID,
		Status:    booking.Status,
		Actor:     shipperID,
		Reason:    reason,
	})
	return booking, breakdown, nil
}

// refundForCancellation computes the policy refund and pushes it through the
// provider that took the payment.
func (s *Service) refundForCancellation(ctx context.Context, booking *models.Booking) (*money.RefundBreakdown, error) {
	flight, err := s.DB.GetFlightByID(ctx, booking.FlightID)
	if err != nil {
		return nil, fmt.Errorf("flight %s not found: %w", booking.FlightID, err)
	}
	snap, err := s.Settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	breakdown := money.CalculateRefund(booking.TotalPrice, true, flight.DepartureAt, time.Now(), snap)

	txn, err := s.completedTransaction(booking.ID)
	if err != nil {
		return nil, err
	}
	provider, err := s.Providers.Get(txn.Method)
	if err != nil {
		return nil, err
	}
	if err := provider.RefundPayment(ctx, txn, breakdown.RefundAmount); err != nil {
		return nil, err
	}

	s.logger.LogBooking("REFUND", booking.ID, fmt.Sprintf(
		"Refunded %d of %d XAF (penalty applied: %t)",
		breakdown.RefundAmount, breakdown.OriginalAmount, breakdown.PenaltyApplied))
	return &breakdown, nil
}

func (s *Service) completedTransaction(bookingID string) (*models.Transaction, error) {
	history, err := s.Ledger.History(bookingID)
	if err != nil {
		return nil, err
	}
	for _, txn := range history {
		if txn.Status == models.TxnCompleted {
			return txn, nil
		}
	}
	return nil, errs.Wrap(errs.ErrInvalidState, "no completed transaction for booking %s", bookingID)
}

// RefundPreview computes the refund the shipper would get right now, without
// mutating anything.
func (s *Service) RefundPreview(ctx context.Context, bookingID, shipperID string) (*money.RefundBreakdown, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "booking %s", bookingID)
	}
	if booking.ShipperID != shipperID {
		return nil, errs.Wrap(errs.ErrUnauthorized, "booking %s does not belong to caller", bookingID)
	}
	flight, err := s.DB.GetFlightByID(ctx, booking.FlightID)
	if err != nil {
		return nil, fmt.Errorf("flight %s not found: %w", booking.FlightID, err)
	}
	snap, err := s.Settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	paid := booking.Status == models.StatusConfirmedPaid
	breakdown := money.CalculateRefund(booking.TotalPrice, paid, flight.DepartureAt, time.Now(), snap)
	return &breakdown, nil
}

// ---------------- HAND-OFF ----------------

// ConfirmParcelReceived: the traveler acknowledges holding the parcel before
// departure. First step of the hand-off trail.
func (s *Service) ConfirmParcelReceived(ctx context.Context, bookingID, travelerID string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.withLock(ctx, bookingID, func() error {
		var err error
		booking, err = s.loadForTraveler(ctx, bookingID, travelerID)
		if err != nil {
			return err
		}
		if booking.Status != models.StatusConfirmedPaid {
			return errs.Wrap(errs.ErrInvalidState,
				"cannot receive parcel for booking in status %s", booking.Status)
		}
		if !booking.ParcelReceivedAt.IsZero() {
			return nil // already acknowledged
		}

		from, version := booking.Status, booking.Version
		booking.ParcelReceivedAt = time.Now()
		return s.commit(ctx, booking, from, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBooking("HANDOFF", booking.ID, "Traveler confirmed parcel receipt")
	return booking, nil
}

// MarkDelivered: the traveler landed and declares the parcel at destination.
// Issues the pickup code the receiver must present.
func (s *Service) MarkDelivered(ctx context.Context, bookingID, travelerID string) (*models.Booking, []byte, error) {
	var booking *models.Booking
	var qrPNG []byte

	err := s.withLock(ctx, bookingID, func() error {
		var err error
		booking, err = s.loadForTraveler(ctx, bookingID, travelerID)
		if err != nil {
			return err
		}
		if booking.Status != models.StatusConfirmedPaid {
			return errs.Wrap(errs.ErrInvalidState,
				"cannot mark delivered from status %s", booking.Status)
		}
		if booking.ParcelReceivedAt.IsZero() {
			return errs.Wrap(errs.ErrInvalidState,
				"parcel receipt must be confirmed before delivery")
		}

		from, version := booking.Status, booking.Version
		booking.Status = models.StatusDelivered
		booking.DeliveredAt = time.Now()
		booking.PickupCode = s.generatePickupCode()
		if err := s.commit(ctx, booking, from, version); err != nil {
			return err
		}

		if s.QR != nil {
			qrPNG, err = s.QR.GeneratePickupQR(booking.ID, booking.PickupCode)
			if err != nil {
				s.logger.Warn("PICKUP", fmt.Sprintf("Failed to render pickup QR for %s: %v", booking.ID, err))
				qrPNG = nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.LogBooking("DELIVERED", booking.ID, "Parcel arrived at destination")
	s.notify(kafka.BookingEvent{
		Type:      kafka.EventBookingDelivered,
		BookingID: booking.ID,
		Status:    booking.Status,
		Actor:     travelerID,
	})
	return booking, qrPNG, nil
}

// ConfirmDeliveredToReceiver: the traveler hands the parcel over against the
// pickup code.
func (s *Service) ConfirmDeliveredToReceiver(ctx context.Context, bookingID, travelerID, pickupCode string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.withLock(ctx, bookingID, func() error {
		var err error
		booking, err = s.loadForTraveler(ctx, bookingID, travelerID)
		if err != nil {
			return err
		}
		if booking.Status != models.StatusDelivered {
			return errs.Wrap(errs.ErrInvalidState,
				"cannot confirm receiver hand-off from status %s", booking.Status)
		}
		if !booking.ReceiverConfirmedAt.IsZero() {
			return nil // already confirmed
		}
		if pickupCode == "" || pickupCode != booking.PickupCode {
			return errs.Wrap(errs.ErrInvalidRequest, "pickup code does not match")
		}

		from, version := booking.Status, booking.Version
		booking.ReceiverConfirmedAt = time.Now()
		return s.commit(ctx, booking, from, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBooking("HANDOFF", booking.ID, "Receiver hand-off confirmed with pickup code")
	return booking, nil
}

// MarkPickedUp: the shipper acknowledges the receiver has the parcel. This
// is the terminal happy-path transition and the sole payout trigger.
func (s *Service) MarkPickedUp(ctx context.Context, bookingID, shipperID string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.withLock(ctx, bookingID, func() error {
		var err error
		booking, err = s.DB.GetBookingByID(ctx, bookingID)
		if err != nil {
			return errs.Wrap(errs.ErrNotFound, "booking %s", bookingID)
		}
		if booking.ShipperID != shipperID {
			return errs.Wrap(errs.ErrUnauthorized, "booking %s does not belong to caller", bookingID)
		}
		if booking.Status != models.StatusDelivered {
			return errs.Wrap(errs.ErrInvalidState,
				"cannot mark picked up from status %s", booking.Status)
		}
		if booking.ReceiverConfirmedAt.IsZero() {
			return errs.Wrap(errs.ErrInvalidState,
				"receiver hand-off must be confirmed before pickup")
		}

		from, version := booking.Status, booking.Version
		booking.Status = models.StatusPickedUp
		booking.PickedUpAt = time.Now()
		return s.commit(ctx, booking, from, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogBooking("PICKED_UP", booking.ID, "Booking completed")
	s.notify(kafka.BookingEvent{
		Type:      kafka.EventBookingPickedUp,
		BookingID: booking.ID,
		Status:    booking.Status,
		Actor:     shipperID,
	})

	if _, err := s.Payouts.ProcessPayoutToTraveler(ctx, booking.ID); err != nil {
		// The transition already committed; the payout sweep retries later.
		s.logger.Error("PAYOUT", fmt.Sprintf("Payout trigger failed for booking %s: %v", booking.ID, err))
	}
	return booking, nil
}

// ---------------- SCHEDULER ENTRY ----------------

// AutoCancelUnpaid sweeps CONFIRMED_UNPAID bookings past their payment
// deadline. Idempotent: rows already cancelled are skipped by the status
// re-check under the lock.
func (s *Service) AutoCancelUnpaid(ctx context.Context) (int, error) {
	expired, err := s.DB.ListExpiredUnpaid(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("expired booking scan failed: %w", err)
	}

	cancelled := 0
	for _, stale := range expired {
		didCancel, err := s.cancelForTimeout(ctx, stale.ID)
		if err != nil {
			s.logger.Error("SCHEDULER", fmt.Sprintf(
				"Auto-cancel failed for booking %s: %v", stale.ID, err))
			continue
		}
		if didCancel {
			cancelled++
		}
	}
	return cancelled, nil
}

// cancelForTimeout reports whether it actually cancelled the booking; a row
// that paid or cancelled since the scan is a skip, not a cancellation.
func (s *Service) cancelForTimeout(ctx context.Context, bookingID string) (bool, error) {
	didCancel := false
	err := s.withLock(ctx, bookingID, func() error {
		booking, err := s.DB.GetBookingByID(ctx, bookingID)
		if err != nil {
			return err
		}
		// Re-check under the lock: a payment webhook may have landed since
		// the scan.
		if booking.Status != models.StatusConfirmedUnpaid {
			return nil
		}
		if time.Now().Before(booking.PaymentDeadline) {
			return nil
		}

		from, version := booking.Status, booking.Version
		booking.Status = models.StatusCancelledPaymentTimeout
		booking.CancelledAt = time.Now()
		booking.CancelActor = models.CancelActorSystem
		booking.CancelReason = "payment deadline exceeded"
		if err := s.commit(ctx, booking, from, version); err != nil {
			return err
		}

		didCancel = true
		s.logger.LogBooking("TIMEOUT", booking.ID, "Auto-cancelled after payment deadline")
		s.notify(kafka.BookingEvent{
			Type:      kafka.EventBookingCancelled,
			BookingID: booking.ID,
			Status:    booking.Status,
			Actor:     string(models.CancelActorSystem),
			Reason:    "payment deadline exceeded",
		})
		return nil
	})
	return didCancel, err
}

// ---------------- QUERIES ----------------

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "booking %s", id)
	}
	return booking, nil
}

func (s *Service) ListByShipper(ctx context.Context, shipperID string) ([]models.Booking, error) {
	return s.DB.ListBookingsByShipper(ctx, shipperID)
}

func (s *Service) PaymentHistory(bookingID string) ([]*models.Transaction, error) {
	return s.Ledger.History(bookingID)
}

// loadForTraveler fetches a booking and checks the caller owns its flight.
func (s *Service) loadForTraveler(ctx context.Context, bookingID, travelerID string) (*models.Booking, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "booking %s", bookingID)
	}
	flight, err := s.DB.GetFlightByID(ctx, booking.FlightID)
	if err != nil {
		return nil, fmt.Errorf("flight %s not found: %w", booking.FlightID, err)
	}
	if flight.TravelerID != travelerID {
		return nil, errs.Wrap(errs.ErrUnauthorized, "caller does not own flight %s", flight.ID)
	}
	return booking, nil
}
