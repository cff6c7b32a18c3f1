package admin

import (
	"fmt"
	"log"
	"net/http"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
)

// audiences acceptées pour les envois en masse
func rolesFor(audience string) ([]string, error) {
	switch audience {
	case "all":
		return []string{"renter", "host"}, nil
	case "renters":
		return []string{"renter"}, nil
	case "hosts":
		return []string{"host"}, nil
	}
	return nil, fmt.Errorf("audience inconnue: %q", audience)
}

type recipient struct {
	Email string
	Phone string
}

// loadAudience liste les destinataires par rôle depuis le keyspace users
func loadAudience(roles []string) ([]recipient, error) {
	session, err := database.GetUsersSession()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}

	iter := session.Query(`SELECT email, phone, role FROM users`).Iter()
	recipients := []recipient{}
	var email, phone, role string
	for iter.Scan(&email, &phone, &role) {
		if wanted[role] {
			recipients = append(recipients, recipient{Email: email, Phone: phone})
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return recipients, nil
}

// BulkSMS envoie un SMS à une audience (all | renters | hosts).
// L'envoi part en tâche de fond : la réponse ne confirme que la mise en file.
func BulkSMS(c *gin.Context) {
	var req struct {
		Audience string `json:"audience" binding:"required"`
		Message  string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	roles, err := rolesFor(req.Audience)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipients, err := loadAudience(roles)
	if err != nil {
		log.Printf("❌ Erreur chargement audience: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur chargement destinataires"})
		return
	}

	phones := []string{}
	for _, r := range recipients {
		if r.Phone != "" {
			phones = append(phones, r.Phone)
		}
	}

	utils.LogAction(c, "bulk_sms_sent", "comms", req.Audience, nil, gin.H{
		"recipients": len(phones),
	})

	go func() {
		sms := utils.NewSMSClient()
		// Le fournisseur accepte jusqu'à 100 destinataires par appel
		for i := 0; i < len(phones); i += 100 {
			end := i + 100
			if end > len(phones) {
				end = len(phones)
			}
			if err := sms.Send(req.Message, phones[i:end]...); err != nil {
				log.Printf("❌ Erreur envoi SMS en masse (lot %d): %v", i/100, err)
			}
		}
		log.Printf("📱 Campagne SMS terminée: %d destinataires (%s)", len(phones), req.Audience)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Envoi SMS en cours",
		"recipients": len(phones),
	})
}

// BulkEmail envoie un e-mail à une audience (all | renters | hosts)
func BulkEmail(c *gin.Context) {
	var req struct {
		Audience string `json:"audience" binding:"required"`
		Subject  string `json:"subject" binding:"required"`
		Body     string `json:"body" binding:"required"` // HTML
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	roles, err := rolesFor(req.Audience)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipients, err := loadAudience(roles)
	if err != nil {
		log.Printf("❌ Erreur chargement audience: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur chargement destinataires"})
		return
	}

	utils.LogAction(c, "bulk_email_sent", "comms", req.Audience, nil, gin.H{
		"recipients": len(recipients),
		"subject":    req.Subject,
	})

	go func() {
		sent := 0
		for _, r := range recipients {
			if r.Email == "" {
				continue
			}
			if err := utils.SendEmail(r.Email, req.Subject, req.Body, nil); err != nil {
				log.Printf("❌ Erreur envoi e-mail à %s: %v", r.Email, err)
				continue
			}
			sent++
		}
		log.Printf("📧 Campagne e-mail terminée: %d/%d envoyés (%s)", sent, len(recipients), req.Audience)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Envoi e-mail en cours",
		"recipients": len(recipients),
	})
}
