package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Flight, Customer and Receiver live in other services; the engine only
// needs lookups and a handful of fields, so the models here are thin.

type Flight struct {
	bun.BaseModel `bun:"table:flights"`

	ID            string    `bun:"id,pk" json:"id"`
	TravelerID    string    `bun:"traveler_id,notnull" json:"traveler_id"`
	DepartureCity string    `bun:"departure_city,notnull" json:"departure_city"`
	ArrivalCity   string    `bun:"arrival_city,notnull" json:"arrival_city"`
	DepartureAt   time.Time `bun:"departure_at,notnull" json:"departure_at"`
	CapacityKg    float64   `bun:"capacity_kg,notnull" json:"capacity_kg"`
	Open          bool      `bun:"open,notnull" json:"open"`
}

type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID       string `bun:"id,pk" json:"id"`
	Email    string `bun:"email,unique,notnull" json:"email"`
	FullName string `bun:"full_name,notnull" json:"full_name"`
	Phone    string `bun:"phone,nullzero" json:"phone,omitempty"`
}

type Receiver struct {
	bun.BaseModel `bun:"table:receivers"`

	ID       string    `bun:"id,pk" json:"id"`
	Email    string    `bun:"email,notnull" json:"email"`
	FullName string    `bun:"full_name,notnull" json:"full_name"`
	Phone    string    `bun:"phone,nullzero" json:"phone,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
