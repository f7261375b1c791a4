package ledger

import (
	"ms-parcel/internal/models"
)

type Store interface {
	// Transaction operations
	SaveTransaction(txn *models.Transaction) error
	UpdateTransaction(txn *models.Transaction) error
	GetByReference(reference string) (*models.Transaction, error)
	GetByProviderTxnID(providerTxnID string) (*models.Transaction, error)
	GetByIdempotencyKey(key string) (*models.Transaction, error)
	ListByBooking(bookingID string) ([]*models.Transaction, error)
	HasCompletedForBooking(bookingID string) (bool, error)

	// Health and maintenance
	Close() error
	HealthCheck() error
}
