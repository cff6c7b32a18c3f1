package models

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Type de ressource réservable
const (
	ResourceProperty = "property"
	ResourceCar      = "car"
)

// BookingStatus est un type fermé : toute mutation passe par CanTransition.
// Convention unifiée : toujours en minuscules.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingPaid      BookingStatus = "paid"
	BookingFailed    BookingStatus = "failed"
	BookingCancelled BookingStatus = "cancelled"
)

// bookingTransitions est la table des transitions autorisées.
// pending → paid|failed|cancelled, paid → cancelled (annulation après paiement,
// le remboursement est géré séparément via RefundStatus).
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingPaid, BookingFailed, BookingCancelled},
	BookingPaid:      {BookingCancelled},
	BookingFailed:    {},
	BookingCancelled: {},
}

// CanTransition vérifie qu'un changement de statut est légal
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition retourne le nouveau statut ou une erreur si la transition est illégale
func (s BookingStatus) Transition(to BookingStatus) (BookingStatus, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("transition de statut illégale: %s → %s", s, to)
	}
	return to, nil
}

// ParseBookingStatus valide un statut brut venant de la base
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(raw) {
	case BookingPending, BookingPaid, BookingFailed, BookingCancelled:
		return BookingStatus(raw), nil
	}
	return "", fmt.Errorf("statut de réservation inconnu: %q", raw)
}

// RefundStatus suit le cycle de vie d'un remboursement au niveau réservation
type RefundStatus string

const (
	RefundNone       RefundStatus = ""
	RefundRequested  RefundStatus = "requested"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
	RefundRejected   RefundStatus = "rejected"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundNone:       {RefundRequested},
	RefundRequested:  {RefundProcessing, RefundRejected},
	RefundProcessing: {RefundCompleted, RefundFailed},
	RefundFailed:     {RefundProcessing}, // un échec B2C peut être relancé par l'admin
}

func (s RefundStatus) CanTransition(to RefundStatus) bool {
	for _, next := range refundTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s RefundStatus) Transition(to RefundStatus) (RefundStatus, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("transition de remboursement illégale: %q → %q", s, to)
	}
	return to, nil
}

type Booking struct {
	ID           gocql.UUID    `json:"id" db:"booking_id"`
	RenterID     string        `json:"renter_id" db:"renter_id"`
	ResourceKind string        `json:"resource_kind" db:"resource_kind"` // property | car
	ResourceID   gocql.UUID    `json:"resource_id" db:"resource_id"`
	OwnerID      string        `json:"owner_id" db:"owner_id"`
	StartDate    time.Time     `json:"start_date" db:"start_date"`
	EndDate      time.Time     `json:"end_date" db:"end_date"`
	Units        int           `json:"units" db:"units"` // nuits (property) ou jours (car)
	UnitPrice    float64       `json:"unit_price" db:"unit_price"`
	TotalPrice   float64       `json:"total_price" db:"total_price"`
	Status       BookingStatus `json:"status" db:"status"`
	MarkupID     *gocql.UUID   `json:"markup_id,omitempty" db:"markup_id"`
	RefundStatus RefundStatus  `json:"refund_status,omitempty" db:"refund_status"`
	RefundAmount float64       `json:"refund_amount,omitempty" db:"refund_amount"`
	RefundedAt   *time.Time    `json:"refunded_at,omitempty" db:"refunded_at"`
	CheckedInAt  *time.Time    `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedOutAt *time.Time    `json:"checked_out_at,omitempty" db:"checked_out_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time    `json:"updated_at,omitempty" db:"updated_at"`
}

// TotalFor calcule le prix total d'une réservation sur une période.
// Arrondi au jour entier supérieur : une voiture rendue à J+2h compte J+1 jours.
func TotalFor(unitPrice float64, start, end time.Time) (units int, total float64) {
	d := end.Sub(start)
	units = int(d.Hours() / 24)
	if d.Hours() > float64(units)*24 {
		units++
	}
	if units < 1 {
		units = 1
	}
	return units, unitPrice * float64(units)
}
