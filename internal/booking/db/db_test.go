package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-parcel/internal/booking/db"
	"ms-parcel/internal/models"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Booking)(nil), (*models.Parcel)(nil),
		(*models.Flight)(nil), (*models.Receiver)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func testBooking() *models.Booking {
	return &models.Booking{
		ID:         uuid.NewString(),
		FlightID:   "flight-1",
		ShipperID:  "shipper-1",
		ReceiverID: "receiver-1",
		Status:     models.StatusPendingConfirmation,
		TotalPrice: 5000,
		WeightKg:   2,
		Version:    0,
		CreatedAt:  time.Now(),
	}
}

func TestCreateBookingWithParcels(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	b := testBooking()
	parcels := []models.Parcel{
		{ID: uuid.NewString(), BookingID: b.ID, Description: "books", WeightKg: 1.5},
		{ID: uuid.NewString(), BookingID: b.ID, Description: "clothes", WeightKg: 0.5},
	}

	assert.NoError(t, store.CreateBooking(ctx, b, parcels))

	loaded, err := store.GetBookingByID(ctx, b.ID)
	assert.NoError(t, err)
	assert.Equal(t, b.ID, loaded.ID)
	assert.Equal(t, models.StatusPendingConfirmation, loaded.Status)

	stored, err := store.GetParcelsByBooking(ctx, b.ID)
	assert.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestUpdateBookingCAS(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	b := testBooking()
	assert.NoError(t, store.CreateBooking(ctx, b, nil))

	// First writer wins.
	b.Status = models.StatusConfirmedUnpaid
	b.ConfirmedAt = time.Now()
	b.PaymentDeadline = time.Now().Add(12 * time.Hour)
	ok, err := store.UpdateBookingCAS(ctx, b, models.StatusPendingConfirmation, 0)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), b.Version)

	// A stale writer holding the old status and version loses.
	stale := testBooking()
	stale.ID = b.ID
	stale.Status = models.StatusCancelledByTraveler
	ok, err = store.UpdateBookingCAS(ctx, stale, models.StatusPendingConfirmation, 0)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), stale.Version) // reset after the lost race

	// The row carries the first writer's transition.
	loaded, err := store.GetBookingByID(ctx, b.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusConfirmedUnpaid, loaded.Status)
	assert.Equal(t, int64(1), loaded.Version)
}

func TestListExpiredUnpaid(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	expired := testBooking()
	expired.Status = models.StatusConfirmedUnpaid
	expired.PaymentDeadline = time.Now().Add(-time.Hour)

	current := testBooking()
	current.Status = models.StatusConfirmedUnpaid
	current.PaymentDeadline = time.Now().Add(time.Hour)

	pending := testBooking() // no deadline yet

	assert.NoError(t, store.CreateBooking(ctx, expired, nil))
	assert.NoError(t, store.CreateBooking(ctx, current, nil))
	assert.NoError(t, store.CreateBooking(ctx, pending, nil))

	stale, err := store.ListExpiredUnpaid(ctx, time.Now())
	assert.NoError(t, err)
	assert.Len(t, stale, 1)
	assert.Equal(t, expired.ID, stale[0].ID)
}

func TestResolveReceiverFindsExistingByEmail(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	first, err := store.ResolveReceiver(ctx, &models.Receiver{
		ID: uuid.NewString(), Email: "dest@example.com", FullName: "Dest Ination",
	})
	assert.NoError(t, err)

	second, err := store.ResolveReceiver(ctx, &models.Receiver{
		ID: uuid.NewString(), Email: "dest@example.com", FullName: "Someone Else",
	})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
