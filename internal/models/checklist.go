package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Phases de checklist
const (
	PhaseCheckIn  = "check_in"
	PhaseCheckOut = "check_out"
)

// ChecklistItem est une étape d'état des lieux attachée à une réservation.
// Le check-in (resp. check-out) ne peut être confirmé que si tous les items
// de la phase sont cochés.
type ChecklistItem struct {
	ID          gocql.UUID `json:"id" db:"item_id"`
	BookingID   gocql.UUID `json:"booking_id" db:"booking_id"`
	Phase       string     `json:"phase" db:"phase"` // check_in | check_out
	Label       string     `json:"label" db:"label"`
	Done        bool       `json:"done" db:"done"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CompletedBy string     `json:"completed_by,omitempty" db:"completed_by"`
}
