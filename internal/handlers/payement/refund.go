package payement

import (
	"log"
	"net/http"
	"time"

	"kodisha_back_end/internal/cache"
	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/gateway"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/payments"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// RequestRefund ouvre une demande de remboursement sur une réservation payée.
// Une seule demande ouverte à la fois ; le montant demandé est plafonné au
// total de la réservation.
func RequestRefund(c *gin.Context) {
	var req struct {
		BookingKind string  `json:"booking_kind" binding:"required"`
		BookingID   string  `json:"booking_id" binding:"required"`
		Amount      float64 `json:"amount" binding:"required"`
		Reason      string  `json:"reason" binding:"required"`
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
	if booking.Status != models.BookingPaid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Seule une réservation payée peut être remboursée"})
		return
	}
	if req.Amount <= 0 || req.Amount > booking.TotalPrice {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Le montant demandé doit être positif et ne pas dépasser le total de la réservation",
		})
		return
	}
	if !booking.RefundStatus.CanTransition(models.RefundRequested) {
		c.JSON(http.StatusConflict, gin.H{"error": "Une demande de remboursement est déjà en cours"})
		return
	}

	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	refund := models.Refund{
		ID:           gocql.TimeUUID(),
		BookingID:    booking.ID,
		ResourceKind: booking.ResourceKind,
		UserID:       userID,
		Reason:       req.Reason,
		Status:       models.RefundRequested,
		RefundAmount: req.Amount,
		CreatedAt:    time.Now(),
	}

	if err := session.Query(`INSERT INTO refunds (refund_id, booking_id, resource_kind, user_id, reason, status, refund_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		refund.ID, refund.BookingID, refund.ResourceKind, refund.UserID, refund.Reason,
		string(refund.Status), refund.RefundAmount, refund.CreatedAt).WithContext(ctx).Exec(); err != nil {
		log.Printf("❌ Erreur création demande de remboursement: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création demande"})
		return
	}

	store := payments.NewScyllaStore()
	if err := store.UpdateBookingRefund(ctx, booking.ResourceKind, booking.ID, models.RefundRequested, req.Amount, nil); err != nil {
		log.Printf("❌ Erreur mise à jour réservation %s: %v", booking.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour réservation"})
		return
	}

	utils.LogAction(c, "refund_requested", "refund", refund.ID.String(), nil, refund)
	log.Printf("📤 Demande de remboursement %s créée (%.2f KES) pour réservation %s",
		refund.ID, req.Amount, booking.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Demande de remboursement enregistrée",
		"refund":  refund,
	})
}

// ProcessRefund traite une demande côté admin : approve ou reject.
//
// Approve : validation du montant PUIS appel B2C, et seulement en cas de
// succès de l'initiation on écrit processing + la référence de corrélation.
// Scylla n'a pas de transactions : ordonner la passerelle avant toute écriture
// évite d'avoir à annuler quoi que ce soit si le B2C échoue.
// Reject : raison obligatoire, montant remis à zéro.
func ProcessRefund(c *gin.Context) {
	var req struct {
		Action string  `json:"action" binding:"required"` // approve | reject
		Amount float64 `json:"amount"`                    // ajustement admin, optionnel
		Reason string  `json:"reason"`                    // obligatoire pour reject
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de remboursement invalide"})
		return
	}

	ctx := c.Request.Context()
	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	var refund models.Refund
	var status string
	err = session.Query(`SELECT refund_id, booking_id, resource_kind, user_id, reason, status, refund_amount, b2c_reference, created_at
		FROM refunds WHERE refund_id = ?`, gocql.UUID(refundID)).WithContext(ctx).Scan(
		&refund.ID, &refund.BookingID, &refund.ResourceKind, &refund.UserID, &refund.Reason,
		&status, &refund.RefundAmount, &refund.B2CReference, &refund.CreatedAt)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Demande de remboursement introuvable"})
		return
	}
	refund.Status = models.RefundStatus(status)

	store := payments.NewScyllaStore()
	now := time.Now()

	switch req.Action {
	case "reject":
		if req.Reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Une raison de rejet est obligatoire"})
			return
		}
		next, err := refund.Status.Transition(models.RefundRejected)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		refund.Status = next
		refund.RejectReason = req.Reason
		refund.RefundAmount = 0
		refund.UpdatedAt = &now

		if err := store.UpdateRefund(ctx, &refund); err != nil {
			log.Printf("❌ Erreur rejet remboursement %s: %v", refund.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour"})
			return
		}
		if err := store.UpdateBookingRefund(ctx, refund.ResourceKind, refund.BookingID, models.RefundRejected, 0, nil); err != nil {
			log.Printf("❌ Erreur mise à jour réservation %s: %v", refund.BookingID, err)
		}

		utils.LogAction(c, "refund_rejected", "refund", refund.ID.String(), nil, refund)
		c.JSON(http.StatusOK, gin.H{"message": "Demande rejetée", "refund": refund})
		return

	case "approve":
		if !refund.Status.CanTransition(models.RefundProcessing) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Cette demande ne peut pas être approuvée dans son état actuel",
			})
			return
		}

		amount := refund.RefundAmount
		if req.Amount > 0 {
			amount = req.Amount
		}

		booking, err := store.GetBooking(ctx, refund.ResourceKind, refund.BookingID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Réservation introuvable"})
			return
		}
		// Plafond validé AVANT l'appel passerelle
		if amount <= 0 || amount > booking.TotalPrice {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Le montant remboursé ne peut pas dépasser le total de la réservation",
			})
			return
		}

		renter, err := cache.GetUserFromCache(refund.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Profil du locataire introuvable"})
			return
		}
		phone, err := utils.NormalizePhone(renter.Phone)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Numéro du locataire invalide, remboursement impossible"})
			return
		}

		reference := payments.NewReference()

		_, mpesaCli, _ := service()
		if _, err := mpesaCli.B2C(ctx, phone, amount, reference, "Remboursement Kodisha"); err != nil {
			// Rien n'a été écrit : la demande reste en requested, l'admin peut réessayer
			log.Printf("❌ Initiation B2C refusée pour remboursement %s: %v", refund.ID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Échec de l'initiation du remboursement", "details": err.Error()})
			return
		}

		refund.Status = models.RefundProcessing
		refund.RefundAmount = amount
		refund.B2CReference = reference
		refund.UpdatedAt = &now

		batch := session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		batch.Query(`UPDATE refunds SET status = ?, refund_amount = ?, b2c_reference = ?, updated_at = ? WHERE refund_id = ?`,
			string(refund.Status), refund.RefundAmount, refund.B2CReference, refund.UpdatedAt, refund.ID)
		batch.Query(`INSERT INTO refunds_by_reference (b2c_reference, refund_id, booking_id, resource_kind, user_id, reason, status, refund_amount, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			refund.B2CReference, refund.ID, refund.BookingID, refund.ResourceKind, refund.UserID,
			refund.Reason, string(refund.Status), refund.RefundAmount, refund.CreatedAt, refund.UpdatedAt)
		if err := session.ExecuteBatch(batch); err != nil {
			log.Printf("❌ Erreur persistance remboursement %s après B2C: %v", refund.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour remboursement"})
			return
		}
		if err := store.UpdateBookingRefund(ctx, refund.ResourceKind, refund.BookingID, models.RefundProcessing, amount, nil); err != nil {
			log.Printf("❌ Erreur mise à jour réservation %s: %v", refund.BookingID, err)
		}

		utils.LogAction(c, "refund_approved", "refund", refund.ID.String(), nil, refund)
		log.Printf("📤 Remboursement %s initié: %.2f KES → %s (réf %s)", refund.ID, amount, phone, reference)

		c.JSON(http.StatusOK, gin.H{
			"message":   "Remboursement initié, confirmation en attente",
			"refund":    refund,
			"reference": reference,
		})
		return

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action inconnue, attendu approve ou reject"})
	}
}

// RefundCallback reçoit le résultat asynchrone du B2C Daraja.
// Même contrat que le callback STK : acquittement systématique, corrélation
// exclusivement par la référence serveur dans l'URL.
func RefundCallback(c *gin.Context) {
	reference := c.Param("reference")

	var envelope gateway.B2CResultEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Printf("❌ Callback B2C illisible pour %s: %v", reference, err)
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	svc, _, _ := service()
	outcome, err := svc.SettleRefund(c.Request.Context(), reference,
		envelope.Result.TransactionID, envelope.Result.ResultCode, envelope.Result.ResultDesc)
	if err != nil {
		log.Printf("❌ Réconciliation B2C %s échouée: %v", reference, err)
	} else if outcome.Settled {
		log.Printf("✅ Remboursement %s confirmé", reference)
		publishBookingEvent(outcome.Booking)
	} else if outcome.Failed {
		log.Printf("❌ Remboursement %s échoué: %s", reference, envelope.Result.ResultDesc)
		publishBookingEvent(outcome.Booking)
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// RefundTimeout est appelé par Daraja quand la requête B2C expire en file.
// Le remboursement reste en processing : l'admin tranche manuellement.
func RefundTimeout(c *gin.Context) {
	reference := c.Param("reference")
	log.Printf("⚠️ Timeout B2C signalé pour %s, intervention admin requise", reference)
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// GetUserRefunds liste les demandes de remboursement du locataire connecté
func GetUserRefunds(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	iter := session.Query(`SELECT refund_id, booking_id, resource_kind, user_id, reason, status, refund_amount, b2c_reference, reject_reason, created_at, updated_at
		FROM refunds WHERE user_id = ? ALLOW FILTERING`, userID).WithContext(c.Request.Context()).Iter()

	refunds := scanRefunds(iter)
	if err := iter.Close(); err != nil {
		log.Printf("❌ Erreur lecture remboursements de %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture remboursements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunds": refunds, "count": len(refunds)})
}

// GetAllRefunds liste toutes les demandes pour le back-office admin
func GetAllRefunds(c *gin.Context) {
	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	iter := session.Query(`SELECT refund_id, booking_id, resource_kind, user_id, reason, status, refund_amount, b2c_reference, reject_reason, created_at, updated_at
		FROM refunds`).WithContext(c.Request.Context()).Iter()

	refunds := scanRefunds(iter)
	if err := iter.Close(); err != nil {
		log.Printf("❌ Erreur lecture remboursements: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture remboursements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunds": refunds, "count": len(refunds)})
}

func scanRefunds(iter *gocql.Iter) []models.Refund {
	refunds := []models.Refund{}
	var r models.Refund
	var status string
	for iter.Scan(&r.ID, &r.BookingID, &r.ResourceKind, &r.UserID, &r.Reason, &status,
		&r.RefundAmount, &r.B2CReference, &r.RejectReason, &r.CreatedAt, &r.UpdatedAt) {
		r.Status = models.RefundStatus(status)
		refunds = append(refunds, r)
		r = models.Refund{}
	}
	return refunds
}
