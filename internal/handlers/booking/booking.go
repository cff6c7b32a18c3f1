package booking

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

var (
	dispatcherOnce sync.Once
	dispatcher     *utils.Dispatcher
)

func notify() *utils.Dispatcher {
	dispatcherOnce.Do(func() {
		dispatcher = utils.NewDispatcher()
	})
	return dispatcher
}

const dateLayout = "2006-01-02"

func bookingTable(kind string) (string, error) {
	switch kind {
	case models.ResourceProperty:
		return "property_bookings", nil
	case models.ResourceCar:
		return "car_bookings", nil
	}
	return "", fmt.Errorf("type de ressource inconnu: %q", kind)
}

// listingInfo est le sous-ensemble d'une annonce nécessaire pour réserver
type listingInfo struct {
	OwnerID   string
	UnitPrice float64
	Active    bool
}

// loadListing récupère le propriétaire et le prix unitaire d'une annonce
func loadListing(ctx context.Context, kind string, id gocql.UUID) (*listingInfo, error) {
	session, err := database.GetListingsSession()
	if err != nil {
		return nil, err
	}

	var info listingInfo
	switch kind {
	case models.ResourceProperty:
		err = session.Query(`SELECT owner_id, price_per_night, active FROM properties WHERE property_id = ?`, id).
			WithContext(ctx).Scan(&info.OwnerID, &info.UnitPrice, &info.Active)
	case models.ResourceCar:
		err = session.Query(`SELECT owner_id, price_per_day, active FROM cars WHERE car_id = ?`, id).
			WithContext(ctx).Scan(&info.OwnerID, &info.UnitPrice, &info.Active)
	default:
		return nil, fmt.Errorf("type de ressource inconnu: %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// insertBooking persiste une réservation naissante dans la table de son type
func insertBooking(ctx context.Context, b *models.Booking) error {
	table, err := bookingTable(b.ResourceKind)
	if err != nil {
		return err
	}
	session, err := database.GetBookingsSession()
	if err != nil {
		return err
	}
	return session.Query(fmt.Sprintf(`INSERT INTO %s (booking_id, renter_id, resource_id, owner_id, start_date, end_date, units, unit_price, total_price, status, markup_id, refund_status, refund_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table),
		b.ID, b.RenterID, b.ResourceID, b.OwnerID, b.StartDate, b.EndDate,
		b.Units, b.UnitPrice, b.TotalPrice, string(b.Status), b.MarkupID,
		string(b.RefundStatus), b.RefundAmount, b.CreatedAt).WithContext(ctx).Exec()
}

// CreateBooking crée une réservation en attente de paiement au prix catalogue.
// Le total est figé ici : les callbacks de paiement n'y toucheront jamais.
func CreateBooking(c *gin.Context) {
	var req struct {
		ResourceKind string `json:"resource_kind" binding:"required"`
		ResourceID   string `json:"resource_id" binding:"required"`
		StartDate    string `json:"start_date" binding:"required"` // 2006-01-02
		EndDate      string `json:"end_date" binding:"required"`
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

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Date de début invalide (format attendu: AAAA-MM-JJ)"})
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Date de fin invalide (format attendu: AAAA-MM-JJ)"})
		return
	}
	if !end.After(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La date de fin doit être après la date de début"})
		return
	}

	resourceID, err := uuid.Parse(req.ResourceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de ressource invalide"})
		return
	}

	ctx := c.Request.Context()
	listing, err := loadListing(ctx, req.ResourceKind, gocql.UUID(resourceID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Annonce introuvable"})
		return
	}
	if !listing.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cette annonce n'est plus disponible"})
		return
	}
	if listing.OwnerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vous ne pouvez pas réserver votre propre annonce"})
		return
	}

	units, total := models.TotalFor(listing.UnitPrice, start, end)
	booking := &models.Booking{
		ID:           gocql.TimeUUID(),
		RenterID:     userID,
		ResourceKind: req.ResourceKind,
		ResourceID:   gocql.UUID(resourceID),
		OwnerID:      listing.OwnerID,
		StartDate:    start,
		EndDate:      end,
		Units:        units,
		UnitPrice:    listing.UnitPrice,
		TotalPrice:   total,
		Status:       models.BookingPending,
		CreatedAt:    time.Now(),
	}

	if err := insertBooking(ctx, booking); err != nil {
		log.Printf("❌ Erreur création réservation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création réservation"})
		return
	}

	notify().BookingPending(booking)
	log.Printf("📋 Réservation %s créée: %s × %d = %.2f KES", booking.ID, req.ResourceKind, units, total)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Réservation créée, en attente de paiement",
		"booking": booking,
	})
}

// GetMyBookings liste les réservations du locataire connecté, tous types
func GetMyBookings(c *gin.Context) {
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

	ctx := c.Request.Context()
	bookings := []models.Booking{}
	for _, kind := range []string{models.ResourceProperty, models.ResourceCar} {
		table, _ := bookingTable(kind)
		iter := session.Query(fmt.Sprintf(`SELECT booking_id, renter_id, resource_id, owner_id, start_date, end_date, units, unit_price, total_price, status, markup_id, refund_status, refund_amount, refunded_at, checked_in_at, checked_out_at, created_at, updated_at
			FROM %s WHERE renter_id = ? ALLOW FILTERING`, table), userID).WithContext(ctx).Iter()
		bookings = append(bookings, scanBookings(iter, kind)...)
		if err := iter.Close(); err != nil {
			log.Printf("❌ Erreur lecture réservations %s: %v", kind, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture réservations"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// GetAllBookings liste toutes les réservations, tous types, pour le
// back-office admin
func GetAllBookings(c *gin.Context) {
	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	ctx := c.Request.Context()
	bookings := []models.Booking{}
	for _, kind := range []string{models.ResourceProperty, models.ResourceCar} {
		table, _ := bookingTable(kind)
		iter := session.Query(fmt.Sprintf(`SELECT booking_id, renter_id, resource_id, owner_id, start_date, end_date, units, unit_price, total_price, status, markup_id, refund_status, refund_amount, refunded_at, checked_in_at, checked_out_at, created_at, updated_at
			FROM %s`, table)).WithContext(ctx).Iter()
		bookings = append(bookings, scanBookings(iter, kind)...)
		if err := iter.Close(); err != nil {
			log.Printf("❌ Erreur lecture réservations %s: %v", kind, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture réservations"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// CancelBooking annule une réservation si la transition est légale.
// Une réservation payée annulée garde son statut de remboursement séparé.
func CancelBooking(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	kind := c.Param("kind")
	booking, err := loadBookingByID(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Réservation introuvable"})
		return
	}
	if booking.RenterID != userID && c.GetString("role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cette réservation ne vous appartient pas"})
		return
	}

	next, err := booking.Status.Transition(models.BookingCancelled)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	table, _ := bookingTable(kind)
	session, err := database.GetBookingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}
	if err := session.Query(fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE booking_id = ?", table),
		string(next), time.Now(), booking.ID).WithContext(c.Request.Context()).Exec(); err != nil {
		log.Printf("❌ Erreur annulation réservation %s: %v", booking.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur annulation"})
		return
	}

	booking.Status = next
	notify().BookingCancelled(booking)
	utils.LogAction(c, "booking_cancelled", kind+"_booking", booking.ID.String(), nil, nil)

	c.JSON(http.StatusOK, gin.H{"message": "Réservation annulée", "booking": booking})
}

// loadBookingByID récupère une réservation par type + id brut
func loadBookingByID(ctx context.Context, kind, rawID string) (*models.Booking, error) {
	table, err := bookingTable(kind)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("ID réservation invalide")
	}
	session, err := database.GetBookingsSession()
	if err != nil {
		return nil, err
	}

	var b models.Booking
	var status, refundStatus string
	err = session.Query(fmt.Sprintf(`SELECT booking_id, renter_id, resource_id, owner_id, start_date, end_date, units, unit_price, total_price, status, markup_id, refund_status, refund_amount, refunded_at, checked_in_at, checked_out_at, created_at, updated_at
		FROM %s WHERE booking_id = ?`, table), gocql.UUID(id)).WithContext(ctx).Scan(
		&b.ID, &b.RenterID, &b.ResourceID, &b.OwnerID, &b.StartDate, &b.EndDate,
		&b.Units, &b.UnitPrice, &b.TotalPrice, &status, &b.MarkupID,
		&refundStatus, &b.RefundAmount, &b.RefundedAt, &b.CheckedInAt, &b.CheckedOutAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.ResourceKind = kind
	b.Status, err = models.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	b.RefundStatus = models.RefundStatus(refundStatus)
	return &b, nil
}

func scanBookings(iter *gocql.Iter, kind string) []models.Booking {
	bookings := []models.Booking{}
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
	return bookings
}
