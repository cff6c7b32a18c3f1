package booking

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

func validPhase(phase string) bool {
	return phase == models.PhaseCheckIn || phase == models.PhaseCheckOut
}

// canTouchChecklist autorise le locataire, le propriétaire et l'admin
func canTouchChecklist(c *gin.Context, booking *models.Booking) bool {
	userID := c.GetString("user_id")
	return userID == booking.RenterID || userID == booking.OwnerID || c.GetString("role") == "admin"
}

// CreateChecklistItems attache des étapes d'état des lieux à une réservation.
// Seul le propriétaire définit la liste ; elle doit exister avant le check-in.
func CreateChecklistItems(c *gin.Context) {
	var req struct {
		Phase  string   `json:"phase" binding:"required"`
		Labels []string `json:"labels" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}
	if !validPhase(req.Phase) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phase invalide, attendu check_in ou check_out"})
		return
	}
	if len(req.Labels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Au moins une étape est requise"})
		return
	}

	ctx := c.Request.Context()
	booking, err := loadBookingByID(ctx, c.Param("kind"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Réservation introuvable"})
		return
	}
	if booking.OwnerID != c.GetString("user_id") && c.GetString("role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Seul le propriétaire définit la checklist"})
		return
	}

	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	items := make([]models.ChecklistItem, 0, len(req.Labels))
	batch := session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, label := range req.Labels {
		item := models.ChecklistItem{
			ID:        gocql.TimeUUID(),
			BookingID: booking.ID,
			Phase:     req.Phase,
			Label:     label,
		}
		batch.Query(`INSERT INTO checklist_items (booking_id, item_id, phase, label, done) VALUES (?, ?, ?, ?, false)`,
			item.BookingID, item.ID, item.Phase, item.Label)
		items = append(items, item)
	}
	if err := session.ExecuteBatch(batch); err != nil {
		log.Printf("❌ Erreur création checklist pour %s: %v", booking.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création checklist"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"items": items, "count": len(items)})
}

// GetChecklist liste les étapes d'une réservation, toutes phases
func GetChecklist(c *gin.Context) {
	ctx := c.Request.Context()
	booking, err := loadBookingByID(ctx, c.Param("kind"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Réservation introuvable"})
		return
	}
	if !canTouchChecklist(c, booking) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès refusé"})
		return
	}

	items, err := loadChecklist(c, booking.ID, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture checklist"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// CompleteChecklistItem coche une étape
func CompleteChecklistItem(c *gin.Context) {
	ctx := c.Request.Context()
	booking, err := loadBookingByID(ctx, c.Param("kind"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Réservation introuvable"})
		return
	}
	if !canTouchChecklist(c, booking) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès refusé"})
		return
	}

	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID d'étape invalide"})
		return
	}

	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	now := time.Now()
	if err := session.Query(`UPDATE checklist_items SET done = true, completed_at = ?, completed_by = ? WHERE booking_id = ? AND item_id = ?`,
		now, c.GetString("user_id"), booking.ID, gocql.UUID(itemID)).WithContext(ctx).Exec(); err != nil {
		log.Printf("❌ Erreur validation étape %s: %v", itemID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur validation étape"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Étape validée"})
}

// CheckIn confirme l'entrée dans les lieux (ou la prise du véhicule).
// Exige une réservation payée et toutes les étapes check_in cochées.
func CheckIn(c *gin.Context) {
	confirmPhase(c, models.PhaseCheckIn)
}

// CheckOut confirme la sortie. Exige un check-in déjà fait et toutes les
// étapes check_out cochées.
func CheckOut(c *gin.Context) {
	confirmPhase(c, models.PhaseCheckOut)
}

func confirmPhase(c *gin.Context, phase string) {
	ctx := c.Request.Context()
	kind := c.Param("kind")
	booking, err := loadBookingByID(ctx, kind, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Réservation introuvable"})
		return
	}
	if !canTouchChecklist(c, booking) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès refusé"})
		return
	}
	if booking.Status != models.BookingPaid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Seule une réservation payée peut faire l'objet d'un état des lieux"})
		return
	}

	switch phase {
	case models.PhaseCheckIn:
		if booking.CheckedInAt != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Check-in déjà confirmé"})
			return
		}
	case models.PhaseCheckOut:
		if booking.CheckedInAt == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Check-out impossible sans check-in préalable"})
			return
		}
		if booking.CheckedOutAt != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Check-out déjà confirmé"})
			return
		}
	}

	items, err := loadChecklist(c, booking.ID, phase)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture checklist"})
		return
	}
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucune checklist définie pour cette phase"})
		return
	}
	for _, item := range items {
		if !item.Done {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":        "Toutes les étapes doivent être validées avant confirmation",
				"missing_item": item.Label,
			})
			return
		}
	}

	table, _ := bookingTable(kind)
	column := "checked_in_at"
	action := "booking_checked_in"
	if phase == models.PhaseCheckOut {
		column = "checked_out_at"
		action = "booking_checked_out"
	}

	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}
	now := time.Now()
	if err := session.Query(fmt.Sprintf("UPDATE %s SET %s = ?, updated_at = ? WHERE booking_id = ?", table, column),
		now, now, booking.ID).WithContext(ctx).Exec(); err != nil {
		log.Printf("❌ Erreur confirmation %s pour %s: %v", phase, booking.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur confirmation"})
		return
	}

	utils.LogAction(c, action, kind+"_booking", booking.ID.String(), nil, nil)
	log.Printf("✅ %s confirmé pour réservation %s", phase, booking.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Confirmation enregistrée", "at": now})
}

// loadChecklist lit les étapes d'une réservation, filtrées par phase si fournie
func loadChecklist(c *gin.Context, bookingID gocql.UUID, phase string) ([]models.ChecklistItem, error) {
	session, err := database.GetBookingsSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT item_id, booking_id, phase, label, done, completed_at, completed_by
		FROM checklist_items WHERE booking_id = ?`, bookingID).WithContext(c.Request.Context()).Iter()

	items := []models.ChecklistItem{}
	var item models.ChecklistItem
	for iter.Scan(&item.ID, &item.BookingID, &item.Phase, &item.Label, &item.Done,
		&item.CompletedAt, &item.CompletedBy) {
		if phase == "" || item.Phase == phase {
			items = append(items, item)
		}
		item = models.ChecklistItem{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return items, nil
}
