package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-parcel/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- BOOKINGS ----------------

// CreateBooking → insert a new booking with its parcel rows in one transaction
func (d *DB) CreateBooking(ctx context.Context, booking *models.Booking, parcels []models.Parcel) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(booking).Exec(ctx); err != nil {
			return err
		}
		if len(parcels) > 0 {
			if _, err := tx.NewInsert().Model(&parcels).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBookingByID → fetch one booking by its ID
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBookingCAS → compare-and-swap update of the mutable booking fields.
// The write lands only if the row still carries the status and version the
// caller read; returns false when another writer got there first.
func (d *DB) UpdateBookingCAS(ctx context.Context, booking *models.Booking, fromStatus models.BookingStatus, expectedVersion int64) (bool, error) {
	booking.Version = expectedVersion + 1
	booking.UpdatedAt = time.Now()

	res, err := d.Bun.NewUpdate().
		Model(booking).
		Column("status", "payment_deadline", "confirmed_at",
			"parcel_received_at", "delivered_at", "receiver_confirmed_at",
			"picked_up_at", "cancelled_at", "cancel_actor", "cancel_reason",
			"pickup_code", "version", "updated_at").
		Where("id = ? AND status = ? AND version = ?", booking.ID, fromStatus, expectedVersion).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		booking.Version = expectedVersion
		return false, nil
	}
	return true, nil
}

// ListExpiredUnpaid → all CONFIRMED_UNPAID bookings whose payment deadline passed
func (d *DB) ListExpiredUnpaid(ctx context.Context, now time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.StatusConfirmedUnpaid).
		Where("payment_deadline < ?", now).
		Order("payment_deadline ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListBookingsByShipper → booking history for a shipper, newest first
func (d *DB) ListBookingsByShipper(ctx context.Context, shipperID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("shipper_id = ?", shipperID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListBookingsByFlight → all bookings placed against a flight
func (d *DB) ListBookingsByFlight(ctx context.Context, flightID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("flight_id = ?", flightID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetParcelsByBooking → parcel rows attached to a booking
func (d *DB) GetParcelsByBooking(ctx context.Context, bookingID string) ([]models.Parcel, error) {
	var parcels []models.Parcel
	err := d.Bun.NewSelect().
		Model(&parcels).
		Where("booking_id = ?", bookingID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return parcels, nil
}

// ---------------- COLLABORATOR LOOKUPS ----------------

// GetFlightByID → flight reference data owned by the flight service
func (d *DB) GetFlightByID(ctx context.Context, id string) (*models.Flight, error) {
	var flight models.Flight
	err := d.Bun.NewSelect().
		Model(&flight).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &flight, nil
}

// GetCustomerByID → customer lookup
func (d *DB) GetCustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := d.Bun.NewSelect().
		Model(&customer).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// ResolveReceiver → find a receiver by email, or create one
func (d *DB) ResolveReceiver(ctx context.Context, receiver *models.Receiver) (*models.Receiver, error) {
	var existing models.Receiver
	err := d.Bun.NewSelect().
		Model(&existing).
		Where("email = ?", receiver.Email).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	receiver.CreatedAt = time.Now()
	if _, err := d.Bun.NewInsert().Model(receiver).Exec(ctx); err != nil {
		return nil, err
	}
	return receiver, nil
}
