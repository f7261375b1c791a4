package payout_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-parcel/internal/errs"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/models"
	"ms-parcel/internal/payout"
)

type MockBookingSource struct {
	mock.Mock
}

func (m *MockBookingSource) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingSource) GetFlightByID(ctx context.Context, id string) (*models.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Flight), args.Error(1)
}

type MockSettings struct {
	mock.Mock
}

func (m *MockSettings) Snapshot(ctx context.Context) (models.SettingsSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.SettingsSnapshot), args.Error(1)
}

type MockTransfer struct {
	mock.Mock
}

func (m *MockTransfer) Transfer(ctx context.Context, travelerID string, amount int64, reference string) (string, error) {
	args := m.Called(ctx, travelerID, amount, reference)
	return args.String(0), args.Error(1)
}

func setupStore(t *testing.T) (*payout.Store, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	if _, err := bunDB.NewCreateTable().Model((*models.Payout)(nil)).Exec(ctx); err != nil {
		t.Fatalf("Failed to create payout table: %v", err)
	}
	if _, err := bunDB.NewCreateTable().Model((*models.Booking)(nil)).Exec(ctx); err != nil {
		t.Fatalf("Failed to create booking table: %v", err)
	}

	return payout.NewStore(bunDB), bunDB
}

func testSnapshot() models.SettingsSnapshot {
	return models.SettingsSnapshot{
		MinPricePerKg:            2000,
		MaxPricePerKg:            10000,
		TravelerPercent:          70,
		PlatformPercent:          25,
		VatPercent:               5,
		AutoPayoutDelayHours:     48,
		RefundRateBeforeDeadline: 0.9,
		MinimumPayoutAmount:      1000,
	}
}

func pickedUpBooking() *models.Booking {
	return &models.Booking{
		ID:         uuid.NewString(),
		FlightID:   "flight-1",
		ShipperID:  "shipper-1",
		ReceiverID: "receiver-1",
		Status:     models.StatusPickedUp,
		TotalPrice: 10000,
		WeightKg:   2,
		PickedUpAt: time.Now().Add(-72 * time.Hour),
		CreatedAt:  time.Now().Add(-96 * time.Hour),
	}
}

func TestProcessPayoutSplitsPrice(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()

	bookings := new(MockBookingSource)
	settings := new(MockSettings)
	transfer := new(MockTransfer)
	svc := payout.NewService(store, bookings, settings, transfer, nil, logger.NewLogger())

	b := pickedUpBooking()
	flight := &models.Flight{ID: "flight-1", TravelerID: "traveler-1"}

	bookings.On("GetBookingByID", mock.Anything, b.ID).Return(b, nil)
	bookings.On("GetFlightByID", mock.Anything, "flight-1").Return(flight, nil)
	settings.On("Snapshot", mock.Anything).Return(testSnapshot(), nil)
	transfer.On("Transfer", mock.Anything, "traveler-1", int64(7000), mock.Anything).Return("transfer-1", nil)

	settled, err := svc.ProcessPayoutToTraveler(context.Background(), b.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, settled.Status)
	assert.Equal(t, int64(7000), settled.TravelerAmount)
	assert.Equal(t, int64(2500), settled.PlatformAmount)
	assert.Equal(t, int64(500), settled.VatAmount)
	assert.Equal(t, int64(10000), settled.TotalAmount)
	assert.Equal(t, 70, settled.TravelerPercent)

	// Row persisted with the snapshot values.
	stored, err := store.GetByBookingID(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, stored.Status)
	assert.Equal(t, "transfer-1", stored.TransactionID)
}

func TestProcessPayoutIsIdempotent(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()

	bookings := new(MockBookingSource)
	settings := new(MockSettings)
	transfer := new(MockTransfer)
	svc := payout.NewService(store, bookings, settings, transfer, nil, logger.NewLogger())

	b := pickedUpBooking()
	flight := &models.Flight{ID: "flight-1", TravelerID: "traveler-1"}

	bookings.On("GetBookingByID", mock.Anything, b.ID).Return(b, nil)
	bookings.On("GetFlightByID", mock.Anything, "flight-1").Return(flight, nil)
	settings.On("Snapshot", mock.Anything).Return(testSnapshot(), nil)
	transfer.On("Transfer", mock.Anything, "traveler-1", int64(7000), mock.Anything).Return("transfer-1", nil)

	first, err := svc.ProcessPayoutToTraveler(context.Background(), b.ID)
	assert.NoError(t, err)

	// Trigger racing the sweep: same booking settled again.
	second, err := svc.ProcessPayoutToTraveler(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	transfer.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestProcessPayoutRequiresPickedUp(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()

	bookings := new(MockBookingSource)
	settings := new(MockSettings)
	transfer := new(MockTransfer)
	svc := payout.NewService(store, bookings, settings, transfer, nil, logger.NewLogger())

	b := pickedUpBooking()
	b.Status = models.StatusDelivered

	bookings.On("GetBookingByID", mock.Anything, b.ID).Return(b, nil)

	_, err := svc.ProcessPayoutToTraveler(context.Background(), b.ID)

	assert.ErrorIs(t, err, errs.ErrInvalidState)
	transfer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFailedTransferIsRecordedAndRetryable(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()

	bookings := new(MockBookingSource)
	settings := new(MockSettings)
	transfer := new(MockTransfer)
	svc := payout.NewService(store, bookings, settings, transfer, nil, logger.NewLogger())

	b := pickedUpBooking()
	flight := &models.Flight{ID: "flight-1", TravelerID: "traveler-1"}

	bookings.On("GetBookingByID", mock.Anything, b.ID).Return(b, nil)
	bookings.On("GetFlightByID", mock.Anything, "flight-1").Return(flight, nil)
	settings.On("Snapshot", mock.Anything).Return(testSnapshot(), nil)
	transfer.On("Transfer", mock.Anything, "traveler-1", int64(7000), mock.Anything).
		Return("", errors.New("wallet backend down")).Once()

	_, err := svc.ProcessPayoutToTraveler(context.Background(), b.ID)
	assert.ErrorIs(t, err, errs.ErrProvider)

	stored, err := store.GetByBookingID(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "wallet backend down")

	// Retry succeeds and completes the same row.
	transfer.On("Transfer", mock.Anything, "traveler-1", int64(7000), mock.Anything).
		Return("transfer-2", nil).Once()

	retried, err := svc.ProcessPayoutToTraveler(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, stored.ID, retried.ID)
	assert.Equal(t, models.PayoutCompleted, retried.Status)
}

func TestPayoutBelowMinimumIsHeld(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()

	bookings := new(MockBookingSource)
	settings := new(MockSettings)
	transfer := new(MockTransfer)
	svc := payout.NewService(store, bookings, settings, transfer, nil, logger.NewLogger())

	b := pickedUpBooking()
	b.TotalPrice = 1000 // traveler share 700, below the 1000 minimum
	flight := &models.Flight{ID: "flight-1", TravelerID: "traveler-1"}

	bookings.On("GetBookingByID", mock.Anything, b.ID).Return(b, nil)
	bookings.On("GetFlightByID", mock.Anything, "flight-1").Return(flight, nil)
	settings.On("Snapshot", mock.Anything).Return(testSnapshot(), nil)

	held, err := svc.ProcessPayoutToTraveler(context.Background(), b.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutPending, held.Status)
	transfer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepSettlesAgedBookings(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()

	bookings := new(MockBookingSource)
	settings := new(MockSettings)
	transfer := new(MockTransfer)
	svc := payout.NewService(store, bookings, settings, transfer, nil, logger.NewLogger())

	aged := pickedUpBooking()
	fresh := pickedUpBooking()
	fresh.PickedUpAt = time.Now() // inside the delay window, must be skipped

	ctx := context.Background()
	_, err := bunDB.NewInsert().Model(aged).Exec(ctx)
	assert.NoError(t, err)
	_, err = bunDB.NewInsert().Model(fresh).Exec(ctx)
	assert.NoError(t, err)

	flight := &models.Flight{ID: "flight-1", TravelerID: "traveler-1"}
	bookings.On("GetBookingByID", mock.Anything, aged.ID).Return(aged, nil)
	bookings.On("GetFlightByID", mock.Anything, "flight-1").Return(flight, nil)
	settings.On("Snapshot", mock.Anything).Return(testSnapshot(), nil)
	transfer.On("Transfer", mock.Anything, "traveler-1", int64(7000), mock.Anything).Return("transfer-1", nil)

	settled, err := svc.ProcessAutomaticPayouts(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, settled)
	bookings.AssertNotCalled(t, "GetBookingByID", mock.Anything, fresh.ID)
}
