package ledger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/ledger"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveTransaction(txn *models.Transaction) error {
	args := m.Called(txn)
	return args.Error(0)
}

func (m *MockStore) UpdateTransaction(txn *models.Transaction) error {
	args := m.Called(txn)
	return args.Error(0)
}

func (m *MockStore) GetByReference(reference string) (*models.Transaction, error) {
	args := m.Called(reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockStore) GetByProviderTxnID(providerTxnID string) (*models.Transaction, error) {
	args := m.Called(providerTxnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockStore) GetByIdempotencyKey(key string) (*models.Transaction, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockStore) ListByBooking(bookingID string) ([]*models.Transaction, error) {
	args := m.Called(bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockStore) HasCompletedForBooking(bookingID string) (bool, error) {
	args := m.Called(bookingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) HealthCheck() error {
	args := m.Called()
	return args.Error(0)
}

func TestRecordAttemptCreatesPendingTransaction(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	mockStore.On("GetByIdempotencyKey", "key-1").Return(nil, nil)
	mockStore.On("SaveTransaction", mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.BookingID == "booking-1" &&
			txn.Amount == 5000 &&
			txn.Status == models.TxnPending &&
			txn.Currency == "XAF" &&
			txn.Reference != ""
	})).Return(nil)

	txn, err := svc.RecordAttempt("booking-1", "shipper-1", 5000, models.MethodWallet, "key-1")

	assert.NoError(t, err)
	assert.Equal(t, models.TxnPending, txn.Status)
	mockStore.AssertExpectations(t)
}

func TestRecordAttemptDedupesOnIdempotencyKey(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	existing := &models.Transaction{
		ID:             "txn-1",
		Reference:      "PTX-1",
		BookingID:      "booking-1",
		Amount:         5000,
		Status:         models.TxnProcessing,
		IdempotencyKey: "key-1",
	}
	mockStore.On("GetByIdempotencyKey", "key-1").Return(existing, nil)
	mockStore.On("UpdateTransaction", existing).Return(nil)

	txn, err := svc.RecordAttempt("booking-1", "shipper-1", 5000, models.MethodMTNMoMo, "key-1")

	assert.NoError(t, err)
	assert.Equal(t, "PTX-1", txn.Reference)
	assert.Equal(t, 1, txn.RetryCount)
	mockStore.AssertNotCalled(t, "SaveTransaction", mock.Anything)
}

func TestRecordAttemptRejectsMissingKey(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	_, err := svc.RecordAttempt("booking-1", "shipper-1", 5000, models.MethodCard, "")

	assert.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestMarkCompletedSetsCompletedAtOnce(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	txn := &models.Transaction{
		Reference: "PTX-1",
		BookingID: "booking-1",
		Amount:    5000,
		Status:    models.TxnProcessing,
	}
	mockStore.On("GetByReference", "PTX-1").Return(txn, nil)
	mockStore.On("HasCompletedForBooking", "booking-1").Return(false, nil)
	mockStore.On("UpdateTransaction", txn).Return(nil)

	completed, err := svc.MarkCompleted("PTX-1", "prov-1")

	assert.NoError(t, err)
	assert.Equal(t, models.TxnCompleted, completed.Status)
	assert.False(t, completed.CompletedAt.IsZero())

	stamp := completed.CompletedAt

	// Redelivered webhook: idempotent, no further writes, stamp untouched.
	again, err := svc.MarkCompleted("PTX-1", "prov-1")
	assert.NoError(t, err)
	assert.Equal(t, stamp, again.CompletedAt)
	mockStore.AssertNumberOfCalls(t, "UpdateTransaction", 1)
}

func TestMarkCompletedRefusesSecondCompletedForBooking(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	second := &models.Transaction{
		Reference: "PTX-2",
		BookingID: "booking-1",
		Status:    models.TxnProcessing,
	}
	mockStore.On("GetByReference", "PTX-2").Return(second, nil)
	mockStore.On("HasCompletedForBooking", "booking-1").Return(true, nil)

	_, err := svc.MarkCompleted("PTX-2", "prov-2")

	assert.ErrorIs(t, err, errs.ErrDuplicateOperation)
	mockStore.AssertNotCalled(t, "UpdateTransaction", mock.Anything)
}

func TestMarkCompletedRejectsFailedTransaction(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	failed := &models.Transaction{
		Reference: "PTX-3",
		BookingID: "booking-1",
		Status:    models.TxnFailed,
	}
	mockStore.On("GetByReference", "PTX-3").Return(failed, nil)

	_, err := svc.MarkCompleted("PTX-3", "prov-3")

	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestMarkFailedRecordsProviderError(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	txn := &models.Transaction{
		Reference: "PTX-1",
		BookingID: "booking-1",
		Status:    models.TxnPending,
	}
	mockStore.On("GetByReference", "PTX-1").Return(txn, nil)
	mockStore.On("UpdateTransaction", txn).Return(nil)

	failed, err := svc.MarkFailed("PTX-1", "DECLINED", "insufficient funds")

	assert.NoError(t, err)
	assert.Equal(t, models.TxnFailed, failed.Status)
	assert.Equal(t, "DECLINED", failed.ErrorCode)
}

func TestMarkCancelledNeverTouchesCompleted(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	txn := &models.Transaction{
		Reference: "PTX-1",
		Status:    models.TxnCompleted,
	}
	mockStore.On("GetByReference", "PTX-1").Return(txn, nil)

	_, err := svc.MarkCancelled("PTX-1", "late webhook")

	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestGetByReferenceWrapsNotFound(t *testing.T) {
	mockStore := new(MockStore)
	svc := ledger.NewService(mockStore, logger.NewLogger())

	mockStore.On("GetByReference", "missing").Return(nil, errors.New("sql: no rows"))

	_, err := svc.GetByReference("missing")

	assert.ErrorIs(t, err, errs.ErrNotFound)
}
