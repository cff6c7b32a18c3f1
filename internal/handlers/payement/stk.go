package payement

import (
	"log"
	"net/http"

	"kodisha_back_end/internal/gateway"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/payments"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
)

// InitiateSTKPush déclenche un paiement M-Pesa STK push pour une réservation.
// Le succès de cet appel ne vaut que pour l'initiation : le résultat réel
// arrive plus tard sur le callback.
func InitiateSTKPush(c *gin.Context) {
	var req struct {
		BookingKind string `json:"booking_kind" binding:"required"`
		BookingID   string `json:"booking_id" binding:"required"`
		Phone       string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	phone, err := utils.NormalizePhone(req.Phone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Numéro de téléphone invalide"})
		return
	}

	ctx := c.Request.Context()
	booking, err := loadBooking(ctx, req.BookingKind, req.BookingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Réservation introuvable"})
		return
	}
	if booking.RenterID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cette réservation ne vous appartient pas"})
		return
	}
	if booking.Status != models.BookingPending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cette réservation n'attend pas de paiement"})
		return
	}

	svc, mpesaCli, _ := service()

	payment := newPaymentFor(booking, userID, models.MethodMpesaSTK, phone)
	if err := svc.CreateIntent(ctx, payment); err != nil {
		log.Printf("❌ Erreur création intent: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création paiement"})
		return
	}

	resp, err := mpesaCli.STKPush(ctx, gateway.STKPushRequest{
		Phone:            phone,
		Amount:           booking.TotalPrice,
		AccountReference: "KODISHA-" + booking.ID.String()[:8],
		Description:      "Reservation Kodisha",
		PaymentReference: payment.Reference,
	})
	if err != nil {
		log.Printf("❌ Initiation STK échouée: %v", err)
		if ferr := svc.FailIntent(ctx, payment, err.Error()); ferr != nil {
			log.Printf("⚠️ Marquage échec impossible: %v", ferr)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Échec de l'initiation du paiement, réessayez"})
		return
	}

	payment.CheckoutRequestID = resp.CheckoutRequestID
	payment.MerchantRequestID = resp.MerchantRequestID
	if err := svc.MarkAwaiting(ctx, payment); err != nil {
		log.Printf("❌ Erreur passage en awaiting: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour paiement"})
		return
	}

	log.Printf("💳 STK push initié: %s (%.0f KES) pour réservation %s",
		payment.Reference, booking.TotalPrice, booking.ID)

	c.JSON(http.StatusOK, gin.H{
		"message":             resp.CustomerMessage,
		"payment_reference":   payment.Reference,
		"checkout_request_id": resp.CheckoutRequestID,
		"amount":              booking.TotalPrice,
	})
}

// STKCallback reçoit le résultat asynchrone de Daraja.
//
// Contrat : on acquitte TOUJOURS avec ResultCode 0, même en cas d'erreur
// interne, sinon la passerelle retente indéfiniment. Les erreurs internes
// sont loggées, jamais exposées. La corrélation passe exclusivement par la
// référence serveur portée par l'URL : aucun champ du payload ne sert de clé.
func STKCallback(c *gin.Context) {
	reference := c.Param("reference")

	var envelope gateway.STKCallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Printf("❌ Callback STK illisible pour %s: %v", reference, err)
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	cb := envelope.Body.StkCallback
	result := payments.GatewayResult{
		Reference:    reference,
		GatewayTxnID: cb.CheckoutRequestID,
		ResultCode:   cb.ResultCode,
		ResultDesc:   cb.ResultDesc,
		Amount:       cb.Amount(),
		Receipt:      cb.Receipt(),
		Phone:        cb.Phone(),
	}

	svc, _, _ := service()
	outcome, err := svc.Settle(c.Request.Context(), result)
	if err != nil {
		log.Printf("❌ Réconciliation STK %s échouée: %v", reference, err)
	} else if outcome.Settled {
		log.Printf("✅ Paiement %s réglé (reçu %s)", reference, result.Receipt)
		publishBookingEvent(outcome.Booking)
	} else if outcome.Failed {
		log.Printf("❌ Paiement %s échoué: %s", reference, cb.ResultDesc)
		publishBookingEvent(outcome.Booking)
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}
