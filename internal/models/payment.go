package models

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Méthodes de paiement supportées
type PaymentMethod string

const (
	MethodMpesa    PaymentMethod = "mpesa"
	MethodPesapal  PaymentMethod = "pesapal"
	MethodMpesaSTK PaymentMethod = "mpesa_stk"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(raw) {
	case MethodMpesa, MethodPesapal, MethodMpesaSTK:
		return PaymentMethod(raw), nil
	}
	return "", fmt.Errorf("méthode de paiement inconnue: %q", raw)
}

// IntentStatus unifie les modèles STK (push asynchrone) et Pesapal (pull au
// retour) derrière une seule machine à états :
// created → awaiting_confirmation → settled|failed
type IntentStatus string

const (
	IntentCreated  IntentStatus = "created"
	IntentAwaiting IntentStatus = "awaiting_confirmation"
	IntentSettled  IntentStatus = "settled"
	IntentFailed   IntentStatus = "failed"
)

var intentTransitions = map[IntentStatus][]IntentStatus{
	IntentCreated:  {IntentAwaiting, IntentFailed},
	IntentAwaiting: {IntentSettled, IntentFailed},
}

func (s IntentStatus) CanTransition(to IntentStatus) bool {
	for _, next := range intentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s IntentStatus) Transition(to IntentStatus) (IntentStatus, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("transition d'intent illégale: %s → %s", s, to)
	}
	return to, nil
}

// Payment corrélie une réservation à une tentative de paiement.
// Exactement une des références de réservation est renseignée selon le type.
// Reference est générée côté serveur (non devinable) : c'est la SEULE clé de
// corrélation acceptée au callback : les champs fournis par la passerelle ne
// sont jamais utilisés pour retrouver la réservation.
type Payment struct {
	ID                gocql.UUID    `json:"id" db:"payment_id"`
	UserID            string        `json:"user_id" db:"user_id"`
	PropertyBookingID *gocql.UUID   `json:"property_booking_id,omitempty" db:"property_booking_id"`
	CarBookingID      *gocql.UUID   `json:"car_booking_id,omitempty" db:"car_booking_id"`
	Amount            float64       `json:"amount" db:"amount"`
	Method            PaymentMethod `json:"method" db:"method"`
	Status            IntentStatus  `json:"status" db:"status"`
	Reference         string        `json:"reference" db:"reference"`
	CheckoutRequestID string        `json:"checkout_request_id,omitempty" db:"checkout_request_id"`
	MerchantRequestID string        `json:"merchant_request_id,omitempty" db:"merchant_request_id"`
	OrderTrackingID   string        `json:"order_tracking_id,omitempty" db:"order_tracking_id"`
	ReceiptNumber     string        `json:"receipt_number,omitempty" db:"receipt_number"`
	PhoneNumber       string        `json:"phone_number,omitempty" db:"phone_number"`
	FailureReason     string        `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	SettledAt         *time.Time    `json:"settled_at,omitempty" db:"settled_at"`
}

// BookingID retourne la référence de réservation renseignée
func (p *Payment) BookingID() (gocql.UUID, string, error) {
	switch {
	case p.PropertyBookingID != nil:
		return *p.PropertyBookingID, ResourceProperty, nil
	case p.CarBookingID != nil:
		return *p.CarBookingID, ResourceCar, nil
	}
	return gocql.UUID{}, "", fmt.Errorf("paiement %s sans référence de réservation", p.ID)
}
