package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"time"

	"kodisha_back_end/internal/cache"
	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/services"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// newLinkToken génère un token de lien non devinable
func newLinkToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return gocql.TimeUUID().String()
	}
	return hex.EncodeToString(b)
}

// uploadMarkupQR génère le QR du lien de réservation et le pousse dans MinIO.
// Best-effort : un markup sans QR reste partageable par URL.
func uploadMarkupQR(token string) string {
	shareURL := os.Getenv("FRONTEND_BASE_URL") + "/book/" + token

	png, err := qrcode.Encode(shareURL, qrcode.Medium, 512)
	if err != nil {
		log.Printf("❌ Erreur génération QR markup: %v", err)
		return ""
	}

	url, err := services.UploadQRCode(context.Background(), "markup-qr/"+token+".png", png)
	if err != nil {
		log.Printf("❌ Erreur upload QR markup: %v", err)
		return ""
	}
	return url
}

// CreateMarkup crée un lien de réservation revendeur sur une ressource de
// l'hôte. Tout markup actif préexistant sur la même ressource est désactivé :
// au plus un actif par (hôte, ressource).
func CreateMarkup(c *gin.Context) {
	var req struct {
		ResourceKind string   `json:"resource_kind" binding:"required"`
		ResourceID   string   `json:"resource_id" binding:"required"`
		Percentage   *float64 `json:"percentage"`
		FlatAmount   *float64 `json:"flat_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	hostID := c.GetString("user_id")
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
	if listing.OwnerID != hostID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cette annonce ne vous appartient pas"})
		return
	}

	final, err := models.ComputeFinal(listing.UnitPrice, req.Percentage, req.FlatAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	// Désactiver les markups actifs existants sur cette ressource
	iter := session.Query(`SELECT markup_id, link_token FROM markups WHERE host_id = ? AND resource_id = ? AND active = true ALLOW FILTERING`,
		hostID, gocql.UUID(resourceID)).WithContext(ctx).Iter()
	var oldID gocql.UUID
	var oldToken string
	for iter.Scan(&oldID, &oldToken) {
		if err := session.Query(`UPDATE markups SET active = false WHERE markup_id = ?`, oldID).WithContext(ctx).Exec(); err != nil {
			log.Printf("⚠️ Désactivation markup %s échouée: %v", oldID, err)
		}
		if oldToken != "" {
			session.Query(`UPDATE markups_by_token SET active = false WHERE link_token = ?`, oldToken).WithContext(ctx).Exec()
			cache.InvalidateMarkupLink(oldToken)
		}
	}
	iter.Close()

	markup := &models.Markup{
		ID:           gocql.TimeUUID(),
		HostID:       hostID,
		ResourceKind: req.ResourceKind,
		ResourceID:   gocql.UUID(resourceID),
		BaseAmount:   listing.UnitPrice,
		Percentage:   req.Percentage,
		FlatAmount:   req.FlatAmount,
		FinalAmount:  final,
		Active:       true,
		LinkToken:    newLinkToken(),
		CreatedAt:    time.Now(),
	}
	markup.QRCodeURL = uploadMarkupQR(markup.LinkToken)

	batch := session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO markups (markup_id, host_id, resource_kind, resource_id, base_amount, percentage, flat_amount, final_amount, active, link_token, qr_code_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		markup.ID, markup.HostID, markup.ResourceKind, markup.ResourceID, markup.BaseAmount,
		markup.Percentage, markup.FlatAmount, markup.FinalAmount, markup.Active,
		markup.LinkToken, markup.QRCodeURL, markup.CreatedAt)
	batch.Query(`INSERT INTO markups_by_token (link_token, markup_id, host_id, resource_kind, resource_id, base_amount, percentage, flat_amount, final_amount, active, qr_code_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		markup.LinkToken, markup.ID, markup.HostID, markup.ResourceKind, markup.ResourceID,
		markup.BaseAmount, markup.Percentage, markup.FlatAmount, markup.FinalAmount,
		markup.Active, markup.QRCodeURL, markup.CreatedAt)
	if err := session.ExecuteBatch(batch); err != nil {
		log.Printf("❌ Erreur création markup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création markup"})
		return
	}

	// Pré-chauffer le cache du lien
	if err := cache.StoreMarkupLink(markup); err != nil {
		log.Printf("⚠️ Mise en cache du lien markup échouée: %v", err)
	}

	utils.LogAction(c, "markup_created", "markup", markup.ID.String(), nil, markup)
	log.Printf("🔗 Markup %s créé: base %.2f → final %.2f KES", markup.ID, markup.BaseAmount, markup.FinalAmount)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Lien de réservation créé",
		"markup":  markup,
		"link":    os.Getenv("FRONTEND_BASE_URL") + "/book/" + markup.LinkToken,
	})
}

// DeactivateMarkup coupe un lien de réservation partagé
func DeactivateMarkup(c *gin.Context) {
	hostID := c.GetString("user_id")
	markupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de markup invalide"})
		return
	}

	ctx := c.Request.Context()
	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	var ownerID, token string
	if err := session.Query(`SELECT host_id, link_token FROM markups WHERE markup_id = ?`, gocql.UUID(markupID)).
		WithContext(ctx).Scan(&ownerID, &token); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Markup introuvable"})
		return
	}
	if ownerID != hostID && c.GetString("role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Ce markup ne vous appartient pas"})
		return
	}

	batch := session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE markups SET active = false WHERE markup_id = ?`, gocql.UUID(markupID))
	batch.Query(`UPDATE markups_by_token SET active = false WHERE link_token = ?`, token)
	if err := session.ExecuteBatch(batch); err != nil {
		log.Printf("❌ Erreur désactivation markup %s: %v", markupID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur désactivation"})
		return
	}
	cache.InvalidateMarkupLink(token)

	utils.LogAction(c, "markup_deactivated", "markup", markupID.String(), nil, nil)
	c.JSON(http.StatusOK, gin.H{"message": "Lien désactivé"})
}

// MarkupQRCode retourne une URL signée à durée limitée vers le QR du lien,
// pour que l'hôte le télécharge sans exposer le bucket publiquement
func MarkupQRCode(c *gin.Context) {
	hostID := c.GetString("user_id")
	markupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de markup invalide"})
		return
	}

	ctx := c.Request.Context()
	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	var ownerID, qrURL string
	if err := session.Query(`SELECT host_id, qr_code_url FROM markups WHERE markup_id = ?`, gocql.UUID(markupID)).
		WithContext(ctx).Scan(&ownerID, &qrURL); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Markup introuvable"})
		return
	}
	if ownerID != hostID && c.GetString("role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Ce markup ne vous appartient pas"})
		return
	}
	if qrURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Aucun QR code généré pour ce markup"})
		return
	}

	signedURL, err := services.GenerateSignedURL(ctx, qrURL, 15*time.Minute)
	if err != nil {
		log.Printf("❌ Erreur signature URL QR markup %s: %v", markupID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur génération du lien de téléchargement"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        signedURL,
		"expires_in": int((15 * time.Minute).Seconds()),
	})
}

// GetMyMarkups liste les markups de l'hôte connecté
func GetMyMarkups(c *gin.Context) {
	hostID := c.GetString("user_id")

	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	iter := session.Query(`SELECT markup_id, host_id, resource_kind, resource_id, base_amount, percentage, flat_amount, final_amount, active, link_token, qr_code_url, created_at
		FROM markups WHERE host_id = ? ALLOW FILTERING`, hostID).WithContext(c.Request.Context()).Iter()

	markups := []models.Markup{}
	var m models.Markup
	for iter.Scan(&m.ID, &m.HostID, &m.ResourceKind, &m.ResourceID, &m.BaseAmount,
		&m.Percentage, &m.FlatAmount, &m.FinalAmount, &m.Active, &m.LinkToken,
		&m.QRCodeURL, &m.CreatedAt) {
		markups = append(markups, m)
		m = models.Markup{}
	}
	if err := iter.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture markups"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"markups": markups, "count": len(markups)})
}

// ResolveMarkupLink résout un token de lien partagé : c'est la page publique
// qu'un acheteur externe voit avant de réserver. Redis d'abord, Scylla en
// cas de miss.
func ResolveMarkupLink(c *gin.Context) {
	token := c.Param("token")

	markup, err := cache.GetMarkupLink(token)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lien de réservation introuvable ou expiré"})
		return
	}
	if !markup.Active {
		c.JSON(http.StatusGone, gin.H{"error": "Ce lien de réservation a été désactivé"})
		return
	}

	// Le prix de base et la décomposition du markup ne sont jamais exposés :
	// l'acheteur du lien ne voit que le prix final
	c.JSON(http.StatusOK, gin.H{
		"resource_kind": markup.ResourceKind,
		"resource_id":   markup.ResourceID.String(),
		"unit_price":    markup.FinalAmount,
	})
}

// BookViaMarkup crée une réservation au prix du lien partagé.
// Le prix unitaire vient du markup, pas du catalogue, et la réservation garde
// la trace du markup pour la comptabilité revendeur de l'hôte.
func BookViaMarkup(c *gin.Context) {
	var req struct {
		StartDate string `json:"start_date" binding:"required"`
		EndDate   string `json:"end_date" binding:"required"`
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

	token := c.Param("token")
	markup, err := cache.GetMarkupLink(token)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lien de réservation introuvable ou expiré"})
		return
	}
	if !markup.Active {
		c.JSON(http.StatusGone, gin.H{"error": "Ce lien de réservation a été désactivé"})
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

	ctx := c.Request.Context()
	listing, err := loadListing(ctx, markup.ResourceKind, markup.ResourceID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Annonce introuvable"})
		return
	}
	if !listing.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cette annonce n'est plus disponible"})
		return
	}

	units, total := models.TotalFor(markup.FinalAmount, start, end)
	markupID := markup.ID
	booking := &models.Booking{
		ID:           gocql.TimeUUID(),
		RenterID:     userID,
		ResourceKind: markup.ResourceKind,
		ResourceID:   markup.ResourceID,
		OwnerID:      listing.OwnerID,
		StartDate:    start,
		EndDate:      end,
		Units:        units,
		UnitPrice:    markup.FinalAmount,
		TotalPrice:   total,
		Status:       models.BookingPending,
		MarkupID:     &markupID,
		CreatedAt:    time.Now(),
	}

	if err := insertBooking(ctx, booking); err != nil {
		log.Printf("❌ Erreur création réservation via markup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création réservation"})
		return
	}

	notify().BookingPending(booking)
	log.Printf("🔗 Réservation %s créée via markup %s (%.2f KES)", booking.ID, markup.ID, total)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Réservation créée, en attente de paiement",
		"booking": booking,
	})
}
