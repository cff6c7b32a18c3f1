package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Refund est la demande de remboursement d'un locataire sur une réservation.
// Le montant demandé ne peut jamais dépasser le total de la réservation ;
// un rejet enregistre une raison non vide et remet le montant à zéro.
type Refund struct {
	ID           gocql.UUID   `json:"id" db:"refund_id"`
	BookingID    gocql.UUID   `json:"booking_id" db:"booking_id"`
	ResourceKind string       `json:"resource_kind" db:"resource_kind"`
	UserID       string       `json:"user_id" db:"user_id"`
	Reason       string       `json:"reason" db:"reason"`
	Status       RefundStatus `json:"status" db:"status"`
	RefundAmount float64      `json:"refund_amount" db:"refund_amount"`
	B2CReference string       `json:"b2c_reference,omitempty" db:"b2c_reference"`
	RejectReason string       `json:"reject_reason,omitempty" db:"reject_reason"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time   `json:"updated_at,omitempty" db:"updated_at"`
}
