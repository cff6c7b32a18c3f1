package payement

import (
	"log"
	"net/http"

	"kodisha_back_end/internal/cache"
	"kodisha_back_end/internal/gateway"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/payments"

	"github.com/gin-gonic/gin"
)

// PesapalCheckout soumet une commande au checkout hébergé Pesapal et retourne
// l'URL de redirection où le locataire complète son paiement
func PesapalCheckout(c *gin.Context) {
	var req struct {
		BookingKind string `json:"booking_kind" binding:"required"`
		BookingID   string `json:"booking_id" binding:"required"`
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

	renter, err := cache.GetUserFromCache(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture profil"})
		return
	}

	svc, _, pesapalCli := service()

	payment := newPaymentFor(booking, userID, models.MethodPesapal, renter.Phone)
	if err := svc.CreateIntent(ctx, payment); err != nil {
		log.Printf("❌ Erreur création intent: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création paiement"})
		return
	}

	order, err := pesapalCli.SubmitOrder(ctx, gateway.PesapalOrder{
		Reference:   payment.Reference,
		Amount:      booking.TotalPrice,
		Currency:    "KES",
		Description: "Reservation Kodisha",
		Email:       renter.Email,
		Phone:       renter.Phone,
		FirstName:   renter.Name,
		LastName:    "",
	})
	if err != nil {
		// L'erreur brute de la passerelle remonte à l'appelant
		log.Printf("❌ Commande Pesapal refusée: %v", err)
		if ferr := svc.FailIntent(ctx, payment, err.Error()); ferr != nil {
			log.Printf("⚠️ Marquage échec impossible: %v", ferr)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Échec création commande", "details": err.Error()})
		return
	}

	payment.OrderTrackingID = order.OrderTrackingID
	if err := svc.MarkAwaiting(ctx, payment); err != nil {
		log.Printf("❌ Erreur passage en awaiting: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour paiement"})
		return
	}

	log.Printf("💳 Commande Pesapal créée: %s → %s", payment.Reference, order.OrderTrackingID)

	c.JSON(http.StatusOK, gin.H{
		"redirect_url":      order.RedirectURL,
		"payment_reference": payment.Reference,
		"order_tracking_id": order.OrderTrackingID,
	})
}

// pesapalResult traduit un statut re-demandé en résultat normalisé.
// Un statut PENDING n'est pas réconciliable : le retour du checkout arrive
// couramment avant le règlement réel, et consommer le tracking id à ce
// moment-là ferait jeter en doublon l'IPN qui porte le statut définitif.
// L'intent reste en awaiting_confirmation jusqu'à un état terminal.
func pesapalResult(trackingID string, status *gateway.PesapalTransactionStatus) (payments.GatewayResult, bool) {
	if !status.Terminal() {
		return payments.GatewayResult{}, false
	}
	resultCode := 1
	if status.Completed() {
		resultCode = 0
	}
	return payments.GatewayResult{
		Reference:    status.MerchantReference,
		GatewayTxnID: trackingID,
		ResultCode:   resultCode,
		ResultDesc:   status.PaymentStatusDescription,
		Amount:       status.Amount,
		Receipt:      status.ConfirmationCode,
	}, true
}

// PesapalConfirm est appelé au retour du checkout hébergé (et par l'IPN).
// Modèle pull : on ne croit pas les paramètres de la redirection, on
// re-demande activement le statut à la passerelle et on réconcilie avec la
// merchant_reference qu'ELLE retourne.
func PesapalConfirm(c *gin.Context) {
	trackingID := c.Query("OrderTrackingId")
	if trackingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OrderTrackingId requis"})
		return
	}

	ctx := c.Request.Context()
	svc, _, pesapalCli := service()

	status, err := pesapalCli.GetTransactionStatus(ctx, trackingID)
	if err != nil {
		log.Printf("❌ Re-query Pesapal %s échoué: %v", trackingID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Statut de transaction indisponible"})
		return
	}

	result, terminal := pesapalResult(trackingID, status)
	if !terminal {
		log.Printf("⏳ Transaction Pesapal %s encore en attente, réconciliation différée", trackingID)
		c.JSON(http.StatusOK, gin.H{
			"status":    status.PaymentStatusDescription,
			"reference": status.MerchantReference,
			"pending":   true,
		})
		return
	}

	outcome, err := svc.Settle(ctx, result)
	if err != nil {
		log.Printf("❌ Réconciliation Pesapal %s échouée: %v", trackingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur de réconciliation"})
		return
	}

	if outcome.Settled || outcome.Failed {
		publishBookingEvent(outcome.Booking)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status.PaymentStatusDescription,
		"reference": status.MerchantReference,
		"duplicate": outcome.Duplicate,
	})
}

// PesapalIPN reçoit la notification out-of-band de Pesapal.
// Même logique pull que PesapalConfirm, mais la réponse suit le format
// d'acquittement attendu par la passerelle (status 200 quoi qu'il arrive).
func PesapalIPN(c *gin.Context) {
	trackingID := c.Query("OrderTrackingId")
	notificationType := c.Query("OrderNotificationType")

	if trackingID != "" {
		ctx := c.Request.Context()
		svc, _, pesapalCli := service()

		status, err := pesapalCli.GetTransactionStatus(ctx, trackingID)
		if err != nil {
			log.Printf("❌ Re-query IPN Pesapal %s échoué: %v", trackingID, err)
		} else if result, terminal := pesapalResult(trackingID, status); !terminal {
			log.Printf("⏳ IPN Pesapal %s encore en attente, réconciliation différée", trackingID)
		} else {
			outcome, err := svc.Settle(ctx, result)
			if err != nil {
				log.Printf("❌ Réconciliation IPN %s échouée: %v", trackingID, err)
			} else if outcome.Settled || outcome.Failed {
				publishBookingEvent(outcome.Booking)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"orderNotificationType": notificationType,
		"orderTrackingId":       trackingID,
		"status":                200,
	})
}
