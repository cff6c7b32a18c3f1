package payement

import (
	"log"
	"net/http"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"

	"github.com/gin-gonic/gin"
)

// GetAllPayments liste tous les paiements pour le back-office admin
func GetAllPayments(c *gin.Context) {
	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	iter := session.Query(`SELECT payment_id, user_id, property_booking_id, car_booking_id, amount, method, status, reference, checkout_request_id, merchant_request_id, order_tracking_id, receipt_number, phone_number, failure_reason, created_at, settled_at
		FROM payments`).WithContext(c.Request.Context()).Iter()

	records := []models.Payment{}
	var p models.Payment
	var method, status string
	for iter.Scan(&p.ID, &p.UserID, &p.PropertyBookingID, &p.CarBookingID, &p.Amount,
		&method, &status, &p.Reference, &p.CheckoutRequestID, &p.MerchantRequestID,
		&p.OrderTrackingID, &p.ReceiptNumber, &p.PhoneNumber, &p.FailureReason,
		&p.CreatedAt, &p.SettledAt) {
		p.Method = models.PaymentMethod(method)
		p.Status = models.IntentStatus(status)
		records = append(records, p)
		p = models.Payment{}
	}
	if err := iter.Close(); err != nil {
		log.Printf("❌ Erreur lecture paiements: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture paiements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": records, "count": len(records)})
}
