package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Autoriser toutes les origines (à ajuster en production)
		return true
	},
}

// GetHostBookings liste les réservations reçues sur les annonces de l'hôte,
// logements et véhicules confondus
func GetHostBookings(c *gin.Context) {
	hostID := c.GetString("user_id")

	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	ctx := c.Request.Context()
	bookings := []models.Booking{}
	for kind, table := range map[string]string{
		models.ResourceProperty: "property_bookings",
		models.ResourceCar:      "car_bookings",
	} {
		iter := session.Query(fmt.Sprintf(`SELECT booking_id, renter_id, resource_id, owner_id, start_date, end_date, units, unit_price, total_price, status, markup_id, refund_status, refund_amount, refunded_at, checked_in_at, checked_out_at, created_at, updated_at
			FROM %s WHERE owner_id = ? ALLOW FILTERING`, table), hostID).WithContext(ctx).Iter()

		var b models.Booking
		var status, refundStatus string
		for iter.Scan(&b.ID, &b.RenterID, &b.ResourceID, &b.OwnerID, &b.StartDate, &b.EndDate,
			&b.Units, &b.UnitPrice, &b.TotalPrice, &status, &b.MarkupID,
			&refundStatus, &b.RefundAmount, &b.RefundedAt, &b.CheckedInAt, &b.CheckedOutAt,
			&b.CreatedAt, &b.UpdatedAt) {
			b.ResourceKind = kind
			if parsed, err := models.ParseBookingStatus(status); err == nil {
				b.Status = parsed
			}
			b.RefundStatus = models.RefundStatus(refundStatus)
			bookings = append(bookings, b)
			b = models.Booking{}
		}
		if err := iter.Close(); err != nil {
			log.Printf("❌ Erreur lecture réservations hôte (%s): %v", kind, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture réservations"})
			return
		}
	}

	// Agrégats du dashboard
	var paid, pending int
	var revenue float64
	for _, b := range bookings {
		switch b.Status {
		case models.BookingPaid:
			paid++
			revenue += b.TotalPrice
		case models.BookingPending:
			pending++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"stats": gin.H{
			"paid":    paid,
			"pending": pending,
			"revenue": revenue,
		},
	})
}

// DashboardWebSocket pousse en temps réel les changements de statut des
// réservations de l'hôte. Les handlers de paiement publient sur le canal
// Redis host:<id>:bookings à chaque règlement, échec ou remboursement.
func DashboardWebSocket(c *gin.Context) {
	hostID := c.GetString("user_id")
	if hostID == "" {
		c.JSON(401, gin.H{"error": "Non authentifié"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ Erreur upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	ctx := context.Background()

	pubsub := database.Redis.Subscribe(ctx, "host:"+hostID+":bookings")
	defer pubsub.Close()

	ch := pubsub.Channel()

	conn.WriteJSON(map[string]interface{}{
		"type":    "connected",
		"message": "Dashboard temps réel activé",
	})

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("⚠️ Événement dashboard illisible: %v", err)
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("❌ Erreur envoi WebSocket: %v", err)
				return
			}
		case <-time.After(30 * time.Second):
			// Ping pour garder la connexion active
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
