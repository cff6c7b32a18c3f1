package payement

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/gateway"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/payments"
	"kodisha_back_end/internal/utils"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

var (
	svcOnce sync.Once
	svc     *payments.Service
	mpesa   *gateway.MpesaClient
	pesapal *gateway.PesapalClient
)

// service construit paresseusement le cœur de réconciliation et les clients
// passerelle, partagés par tous les handlers de paiement
func service() (*payments.Service, *gateway.MpesaClient, *gateway.PesapalClient) {
	svcOnce.Do(func() {
		svc = payments.New(payments.NewScyllaStore(), utils.NewDispatcher())
		mpesa = gateway.NewMpesaClient()
		pesapal = gateway.NewPesapalClient()
	})
	return svc, mpesa, pesapal
}

// loadBooking récupère une réservation par type + id, avec validation du type
func loadBooking(ctx context.Context, kind, rawID string) (*models.Booking, error) {
	if kind != models.ResourceProperty && kind != models.ResourceCar {
		return nil, fmt.Errorf("type de réservation invalide: %q", kind)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("ID réservation invalide")
	}
	store := payments.NewScyllaStore()
	return store.GetBooking(ctx, kind, gocql.UUID(id))
}

// publishBookingEvent pousse le changement de statut vers le dashboard de
// l'hôte (websocket via Redis pub/sub). Best-effort.
func publishBookingEvent(booking *models.Booking) {
	if booking == nil || booking.OwnerID == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":          "booking_updated",
		"booking_id":    booking.ID.String(),
		"resource_kind": booking.ResourceKind,
		"status":        booking.Status,
		"refund_status": booking.RefundStatus,
		"total_price":   booking.TotalPrice,
		"at":            time.Now(),
	})
	if err != nil {
		return
	}
	ctx := context.Background()
	if err := database.Redis.Publish(ctx, "host:"+booking.OwnerID+":bookings", payload).Err(); err != nil {
		log.Printf("⚠️ Publication événement dashboard échouée: %v", err)
	}
}

// newPaymentFor construit un enregistrement Payment pour une réservation
func newPaymentFor(booking *models.Booking, userID string, method models.PaymentMethod, phone string) *models.Payment {
	p := &models.Payment{
		ID:          gocql.TimeUUID(),
		UserID:      userID,
		Amount:      booking.TotalPrice,
		Method:      method,
		PhoneNumber: phone,
	}
	id := booking.ID
	switch booking.ResourceKind {
	case models.ResourceProperty:
		p.PropertyBookingID = &id
	case models.ResourceCar:
		p.CarBookingID = &id
	}
	return p
}
