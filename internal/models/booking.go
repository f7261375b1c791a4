package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	StatusPendingConfirmation     BookingStatus = "PENDING_CONFIRMATION"
	StatusConfirmedUnpaid         BookingStatus = "CONFIRMED_UNPAID"
	StatusConfirmedPaid           BookingStatus = "CONFIRMED_PAID"
	StatusDelivered               BookingStatus = "DELIVERED"
	StatusPickedUp                BookingStatus = "PICKED_UP"
	StatusCancelledByTraveler     BookingStatus = "CANCELLED_BY_TRAVELER"
	StatusCancelledByClient       BookingStatus = "CANCELLED_BY_CLIENT"
	StatusCancelledPaymentTimeout BookingStatus = "CANCELLED_PAYMENT_TIMEOUT"
)

// CancelActor identifies who triggered a cancellation.
type CancelActor string

const (
	CancelActorTraveler CancelActor = "traveler"
	CancelActorClient   CancelActor = "client"
	CancelActorSystem   CancelActor = "system"
)

// allowedTransitions is the single source of truth for the booking state
// machine. Any edge not listed here is an invalid transition.
var allowedTransitions = map[BookingStatus][]BookingStatus{
	StatusPendingConfirmation: {
		StatusConfirmedUnpaid,
		StatusCancelledByTraveler,
		StatusCancelledByClient,
	},
	StatusConfirmedUnpaid: {
		StatusConfirmedPaid,
		StatusCancelledByClient,
		StatusCancelledPaymentTimeout,
	},
	StatusConfirmedPaid: {
		StatusDelivered,
		StatusCancelledByClient,
	},
	StatusDelivered: {
		StatusPickedUp,
	},
}

// CanTransition reports whether moving from one booking status to another
// follows a legal edge of the state machine.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges.
func IsTerminal(status BookingStatus) bool {
	return len(allowedTransitions[status]) == 0
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         string        `bun:"id,pk" json:"id"`
	FlightID   string        `bun:"flight_id,notnull" json:"flight_id"`
	ShipperID  string        `bun:"shipper_id,notnull" json:"shipper_id"`
	ReceiverID string        `bun:"receiver_id,notnull" json:"receiver_id"`
	Status     BookingStatus `bun:"status,notnull" json:"status"`

	// Amounts are XAF minor units.
	TotalPrice    int64   `bun:"total_price,notnull" json:"total_price"`
	ProposedPrice int64   `bun:"proposed_price,nullzero" json:"proposed_price,omitempty"`
	WeightKg      float64 `bun:"weight_kg,notnull" json:"weight_kg"`
	Description   string  `bun:"description,nullzero" json:"description,omitempty"`

	// PaymentDeadline is stamped once when the traveler confirms and never
	// mutated afterwards.
	PaymentDeadline time.Time `bun:"payment_deadline,nullzero" json:"payment_deadline,omitempty"`
	ConfirmedAt     time.Time `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`

	// Hand-off trail between the two parties. Each stamp gates the next step.
	ParcelReceivedAt    time.Time `bun:"parcel_received_at,nullzero" json:"parcel_received_at,omitempty"`
	DeliveredAt         time.Time `bun:"delivered_at,nullzero" json:"delivered_at,omitempty"`
	ReceiverConfirmedAt time.Time `bun:"receiver_confirmed_at,nullzero" json:"receiver_confirmed_at,omitempty"`
	PickedUpAt          time.Time `bun:"picked_up_at,nullzero" json:"picked_up_at,omitempty"`

	CancelledAt  time.Time   `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	CancelActor  CancelActor `bun:"cancel_actor,nullzero" json:"cancel_actor,omitempty"`
	CancelReason string      `bun:"cancel_reason,nullzero" json:"cancel_reason,omitempty"`

	PickupCode string `bun:"pickup_code,nullzero" json:"-"`

	// Version backs the compare-and-swap status update discipline.
	Version   int64     `bun:"version,notnull,default:0" json:"-"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type Parcel struct {
	bun.BaseModel `bun:"table:parcels"`

	ID            string  `bun:"id,pk" json:"id"`
	BookingID     string  `bun:"booking_id,notnull" json:"booking_id"`
	Description   string  `bun:"description,notnull" json:"description"`
	WeightKg      float64 `bun:"weight_kg,notnull" json:"weight_kg"`
	DeclaredValue int64   `bun:"declared_value,nullzero" json:"declared_value,omitempty"`
}

type CreateBookingRequest struct {
	FlightID      string         `json:"flight_id"`
	ReceiverEmail string         `json:"receiver_email"`
	ReceiverName  string         `json:"receiver_name"`
	ReceiverPhone string         `json:"receiver_phone"`
	ProposedPrice int64          `json:"proposed_price,omitempty"`
	Description   string         `json:"description,omitempty"`
	Parcels       []ParcelInput  `json:"parcels"`
}

type ParcelInput struct {
	Description   string  `json:"description"`
	WeightKg      float64 `json:"weight_kg"`
	DeclaredValue int64   `json:"declared_value,omitempty"`
}

type BookingResponse struct {
	ID              string        `json:"id"`
	FlightID        string        `json:"flight_id"`
	ShipperID       string        `json:"shipper_id"`
	Status          BookingStatus `json:"status"`
	TotalPrice      int64         `json:"total_price"`
	Currency        string        `json:"currency"`
	PaymentDeadline *time.Time    `json:"payment_deadline,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (b *Booking) ToResponse() BookingResponse {
	resp := BookingResponse{
		ID:         b.ID,
		FlightID:   b.FlightID,
		ShipperID:  b.ShipperID,
		Status:     b.Status,
		TotalPrice: b.TotalPrice,
		Currency:   "XAF",
		CreatedAt:  b.CreatedAt,
	}
	if !b.PaymentDeadline.IsZero() {
		deadline := b.PaymentDeadline
		resp.PaymentDeadline = &deadline
	}
	return resp
}
