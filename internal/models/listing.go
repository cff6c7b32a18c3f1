package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Property est un logement mis en location par un hôte
type Property struct {
	ID            gocql.UUID `json:"id" db:"property_id"`
	OwnerID       string     `json:"owner_id" db:"owner_id"`
	Title         string     `json:"title" db:"title"`
	Location      string     `json:"location" db:"location"`
	PricePerNight float64    `json:"price_per_night" db:"price_per_night"`
	Active        bool       `json:"active" db:"active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Car est un véhicule mis en location par un hôte
type Car struct {
	ID          gocql.UUID `json:"id" db:"car_id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	Make        string     `json:"make" db:"make"`
	Model       string     `json:"model" db:"model"`
	PlateNumber string     `json:"plate_number" db:"plate_number"`
	PricePerDay float64    `json:"price_per_day" db:"price_per_day"`
	Active      bool       `json:"active" db:"active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
