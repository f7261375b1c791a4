// Package ledger records every payment attempt as its own transaction row,
// independent of booking state. The idempotency key gives retried client
// requests at-most-once charge semantics; the completion rules guarantee at
// most one COMPLETED attempt per booking.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/utils"
)

type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// RecordAttempt creates a PENDING transaction for a payment attempt. When a
// transaction with the same idempotency key already exists, the existing row
// is returned with its retry count bumped instead of creating a duplicate.
func (s *Service) RecordAttempt(bookingID, shipperID string, amount int64, method models.PaymentMethod, idempotencyKey string) (*models.Transaction, error) {
	if idempotencyKey == "" {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "idempotency key is required")
	}
	if amount <= 0 {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "amount must be positive, got %d", amount)
	}

	existing, err := s.store.GetByIdempotencyKey(idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if existing != nil {
		existing.RetryCount++
		existing.UpdatedAt = time.Now()
		if err := s.store.UpdateTransaction(existing); err != nil {
			s.log.Warn("LEDGER", fmt.Sprintf("Failed to bump retry count for %s: %v", existing.Reference, err))
		}
		s.log.LogPayment("DEDUP", existing.Reference,
			fmt.Sprintf("Idempotency key already seen, returning existing attempt (retry %d)", existing.RetryCount))
		return existing, nil
	}

	txn := &models.Transaction{
		ID:             uuid.NewString(),
		Reference:      utils.GeneratePaymentReference(),
		BookingID:      bookingID,
		ShipperID:      shipperID,
		Amount:         amount,
		Currency:       "XAF",
		Method:         method,
		Status:         models.TxnPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now(),
	}

	if err := s.store.SaveTransaction(txn); err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	s.log.LogPayment("RECORD", txn.Reference,
		fmt.Sprintf("Recorded %s attempt of %d XAF for booking %s", method, amount, bookingID))
	return txn, nil
}

// MarkProcessing moves a PENDING attempt to PROCESSING once the provider
// acknowledged it, attaching the external transaction id.
func (s *Service) MarkProcessing(reference, providerTxnID string) (*models.Transaction, error) {
	txn, err := s.store.GetByReference(reference)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "transaction %s", reference)
	}
	if txn.Status != models.TxnPending {
		return nil, errs.Wrap(errs.ErrInvalidState,
			"cannot mark %s transaction %s as processing", txn.Status, reference)
	}

	txn.Status = models.TxnProcessing
	txn.ProviderTxnID = providerTxnID
	txn.UpdatedAt = time.Now()
	if err := s.store.UpdateTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// MarkCompleted finalizes an attempt. Only PENDING or PROCESSING attempts can
// complete, and the booking may not already hold a COMPLETED attempt.
// CompletedAt is set exactly once.
func (s *Service) MarkCompleted(reference, providerTxnID string) (*models.Transaction, error) {
	txn, err := s.store.GetByReference(reference)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "transaction %s", reference)
	}
	if txn.Status == models.TxnCompleted {
		// Idempotent webhook redelivery: already done, nothing to apply.
		return txn, nil
	}
	if txn.Status != models.TxnPending && txn.Status != models.TxnProcessing {
		return nil, errs.Wrap(errs.ErrInvalidState,
			"cannot complete %s transaction %s", txn.Status, reference)
	}

	alreadyPaid, err := s.store.HasCompletedForBooking(txn.BookingID)
	if err != nil {
		return nil, fmt.Errorf("completed-transaction check failed: %w", err)
	}
	if alreadyPaid {
		return nil, errs.Wrap(errs.ErrDuplicateOperation,
			"booking %s already has a completed transaction", txn.BookingID)
	}

	now := time.Now()
	txn.Status = models.TxnCompleted
	if providerTxnID != "" {
		txn.ProviderTxnID = providerTxnID
	}
	txn.CompletedAt = now
	txn.UpdatedAt = now
	if err := s.store.UpdateTransaction(txn); err != nil {
		return nil, err
	}

	s.log.LogPayment("COMPLETED", txn.Reference,
		fmt.Sprintf("Transaction completed for booking %s (%d XAF)", txn.BookingID, txn.Amount))
	return txn, nil
}

// MarkFailed records a provider failure against the attempt.
func (s *Service) MarkFailed(reference, errorCode, errorMessage string) (*models.Transaction, error) {
	txn, err := s.store.GetByReference(reference)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "transaction %s", reference)
	}
	if txn.Status != models.TxnPending && txn.Status != models.TxnProcessing {
		return nil, errs.Wrap(errs.ErrInvalidState,
			"cannot fail %s transaction %s", txn.Status, reference)
	}

	txn.Status = models.TxnFailed
	txn.ErrorCode = errorCode
	txn.ErrorMessage = errorMessage
	txn.UpdatedAt = time.Now()
	if err := s.store.UpdateTransaction(txn); err != nil {
		return nil, err
	}

	s.log.LogPayment("FAILED", txn.Reference,
		fmt.Sprintf("Transaction failed for booking %s: %s %s", txn.BookingID, errorCode, errorMessage))
	return txn, nil
}

// MarkCancelled voids an attempt that must not be applied, e.g. a late
// confirmation arriving after the booking timed out.
func (s *Service) MarkCancelled(reference, reason string) (*models.Transaction, error) {
	txn, err := s.store.GetByReference(reference)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "transaction %s", reference)
	}
	if txn.Status == models.TxnCancelled {
		return txn, nil
	}
	if txn.Status == models.TxnCompleted {
		return nil, errs.Wrap(errs.ErrInvalidState,
			"cannot cancel completed transaction %s", reference)
	}

	txn.Status = models.TxnCancelled
	txn.ErrorMessage = reason
	txn.UpdatedAt = time.Now()
	if err := s.store.UpdateTransaction(txn); err != nil {
		return nil, err
	}

	s.log.LogPayment("CANCELLED", txn.Reference, reason)
	return txn, nil
}

// RecordWebhookReceipt stamps when a provider notification arrived.
func (s *Service) RecordWebhookReceipt(txn *models.Transaction) {
	txn.WebhookReceivedAt = time.Now()
	txn.UpdatedAt = txn.WebhookReceivedAt
	if err := s.store.UpdateTransaction(txn); err != nil {
		s.log.Warn("LEDGER", fmt.Sprintf("Failed to stamp webhook receipt on %s: %v", txn.Reference, err))
	}
}

func (s *Service) GetByReference(reference string) (*models.Transaction, error) {
	txn, err := s.store.GetByReference(reference)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "transaction %s", reference)
	}
	return txn, nil
}

func (s *Service) GetByProviderTxnID(providerTxnID string) (*models.Transaction, error) {
	txn, err := s.store.GetByProviderTxnID(providerTxnID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "provider transaction %s", providerTxnID)
	}
	return txn, nil
}

// History returns a booking's payment attempts, newest first.
func (s *Service) History(bookingID string) ([]*models.Transaction, error) {
	return s.store.ListByBooking(bookingID)
}

// HasCompletedForBooking exposes the single-completed-attempt check.
func (s *Service) HasCompletedForBooking(bookingID string) (bool, error) {
	return s.store.HasCompletedForBooking(bookingID)
}
