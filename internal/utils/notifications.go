package utils

import (
	"fmt"
	"log"

	"kodisha_back_end/internal/cache"
	"kodisha_back_end/internal/models"
)

// Dispatcher envoie les notifications de statut de réservation (email + SMS).
// Best-effort : un échec d'envoi est loggé et n'est jamais remonté, la
// livraison est découplée de la justesse transactionnelle.
type Dispatcher struct {
	SMS *SMSClient
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{SMS: NewSMSClient()}
}

// BookingPending notifie le locataire qu'une réservation attend son paiement
func (d *Dispatcher) BookingPending(booking *models.Booking) {
	go d.notifyRenter(booking, "pending", nil)
}

// BookingConfirmed notifie le locataire ET le propriétaire après paiement
func (d *Dispatcher) BookingConfirmed(booking *models.Booking, payment *models.Payment) {
	go func() {
		d.notifyRenter(booking, "confirmed", payment)

		// Le propriétaire n'est prévenu que sur confirmation
		owner, err := cache.GetUserFromCache(booking.OwnerID)
		if err != nil {
			log.Printf("❌ Propriétaire introuvable pour notification: %v", err)
			return
		}
		subject, body := ownerTemplate(booking, payment)
		if err := SendEmail(owner.Email, subject, body, nil); err != nil {
			log.Printf("❌ Erreur envoi e-mail propriétaire: %v", err)
		}
		if owner.Phone != "" {
			msg := fmt.Sprintf("Kodisha: nouvelle réservation payée (%s, %.0f KES). Réf %s.",
				resourceLabel(booking.ResourceKind), booking.TotalPrice, shortID(booking))
			if err := d.SMS.Send(msg, owner.Phone); err != nil {
				log.Printf("❌ Erreur envoi SMS propriétaire: %v", err)
			}
		}
	}()
}

// BookingFailed notifie le locataire de l'échec du paiement
func (d *Dispatcher) BookingFailed(booking *models.Booking, reason string) {
	go d.notifyRenter(booking, "failed", nil)
}

// RefundCompleted notifie le locataire que son remboursement est arrivé
func (d *Dispatcher) RefundCompleted(booking *models.Booking, refund *models.Refund) {
	go func() {
		renter, err := cache.GetUserFromCache(refund.UserID)
		if err != nil {
			log.Printf("❌ Locataire introuvable pour notification: %v", err)
			return
		}
		subject := "💰 Remboursement effectué - Kodisha"
		body := statusEmailHTML(booking, "refunded",
			fmt.Sprintf("Votre remboursement de %.0f KES a été envoyé sur votre M-Pesa.", refund.RefundAmount))
		if err := SendEmail(renter.Email, subject, body, nil); err != nil {
			log.Printf("❌ Erreur envoi e-mail remboursement: %v", err)
		}
		if renter.Phone != "" {
			msg := fmt.Sprintf("Kodisha: remboursement de %.0f KES envoyé sur votre M-Pesa. Réf %s.",
				refund.RefundAmount, shortID(booking))
			if err := d.SMS.Send(msg, renter.Phone); err != nil {
				log.Printf("❌ Erreur envoi SMS remboursement: %v", err)
			}
		}
	}()
}

// RefundFailed notifie le locataire que le remboursement a échoué
func (d *Dispatcher) RefundFailed(booking *models.Booking, refund *models.Refund) {
	go func() {
		renter, err := cache.GetUserFromCache(refund.UserID)
		if err != nil {
			log.Printf("❌ Locataire introuvable pour notification: %v", err)
			return
		}
		subject := "⚠️ Problème avec votre remboursement - Kodisha"
		body := statusEmailHTML(booking, "refund_failed",
			"Votre remboursement n'a pas pu aboutir. Notre équipe va le relancer sous 24h.")
		if err := SendEmail(renter.Email, subject, body, nil); err != nil {
			log.Printf("❌ Erreur envoi e-mail remboursement: %v", err)
		}
	}()
}

// BookingCancelled notifie l'annulation
func (d *Dispatcher) BookingCancelled(booking *models.Booking) {
	go d.notifyRenter(booking, "cancelled", nil)
}

func (d *Dispatcher) notifyRenter(booking *models.Booking, event string, payment *models.Payment) {
	renter, err := cache.GetUserFromCache(booking.RenterID)
	if err != nil {
		log.Printf("❌ Locataire introuvable pour notification: %v", err)
		return
	}

	subject, message := renterTemplate(booking, event, payment)
	body := statusEmailHTML(booking, event, message)

	// Reçu PDF joint à la confirmation uniquement
	var pdf []byte
	if event == "confirmed" && payment != nil {
		if p, err := GenerateReceiptPDF(booking, payment); err != nil {
			log.Printf("❌ Erreur génération reçu PDF: %v", err)
		} else {
			pdf = p
		}
	}

	if err := SendEmail(renter.Email, subject, body, pdf); err != nil {
		log.Printf("❌ Erreur envoi e-mail %s: %v", event, err)
	} else {
		log.Printf("📧 E-mail %s envoyé à %s", event, renter.Email)
	}

	if renter.Phone != "" {
		if err := d.SMS.Send(message, renter.Phone); err != nil {
			log.Printf("❌ Erreur envoi SMS %s: %v", event, err)
		} else {
			log.Printf("📱 SMS %s envoyé à %s", event, renter.Phone)
		}
	}
}

// renterTemplate choisit le message selon le type de réservation et l'événement
func renterTemplate(booking *models.Booking, event string, payment *models.Payment) (subject, message string) {
	label := resourceLabel(booking.ResourceKind)
	ref := shortID(booking)

	switch event {
	case "pending":
		return "⏳ Réservation en attente de paiement - Kodisha",
			fmt.Sprintf("Kodisha: votre réservation %s (%s) de %.0f KES attend votre paiement.", label, ref, booking.TotalPrice)
	case "confirmed":
		receipt := ""
		if payment != nil && payment.ReceiptNumber != "" {
			receipt = " Reçu " + payment.ReceiptNumber + "."
		}
		return "✅ Paiement confirmé - Kodisha",
			fmt.Sprintf("Kodisha: paiement de %.0f KES confirmé pour votre %s (%s).%s", booking.TotalPrice, label, ref, receipt)
	case "failed":
		return "❌ Échec du paiement - Kodisha",
			fmt.Sprintf("Kodisha: le paiement de votre %s (%s) a échoué. Vous pouvez réessayer depuis votre espace.", label, ref)
	case "cancelled":
		return "❌ Réservation annulée - Kodisha",
			fmt.Sprintf("Kodisha: votre réservation %s (%s) a été annulée.", label, ref)
	}
	return "📋 Mise à jour de votre réservation - Kodisha",
		fmt.Sprintf("Kodisha: mise à jour de votre réservation %s (%s).", label, ref)
}

func ownerTemplate(booking *models.Booking, payment *models.Payment) (subject, body string) {
	subject = "💳 Nouvelle réservation payée - Kodisha"
	message := fmt.Sprintf("Une réservation de %.0f KES vient d'être payée sur votre %s (du %s au %s).",
		booking.TotalPrice, resourceLabel(booking.ResourceKind),
		booking.StartDate.Format("02/01/2006"), booking.EndDate.Format("02/01/2006"))
	return subject, statusEmailHTML(booking, "confirmed", message)
}

func resourceLabel(kind string) string {
	switch kind {
	case models.ResourceProperty:
		return "logement"
	case models.ResourceCar:
		return "véhicule"
	}
	return "réservation"
}

func shortID(booking *models.Booking) string {
	s := booking.ID.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// statusEmailHTML génère le corps HTML d'un e-mail de statut
func statusEmailHTML(booking *models.Booking, event, message string) string {
	color := map[string]string{
		"pending":       "#f0ad4e",
		"confirmed":     "#28a745",
		"failed":        "#dc3545",
		"cancelled":     "#6c757d",
		"refunded":      "#17a2b8",
		"refund_failed": "#dc3545",
	}[event]
	if color == "" {
		color = "#667eea"
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Kodisha</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 30px; border-radius: 10px;">
		<h2 style="color: %s;">Kodisha</h2>
		<p style="color: #333; font-size: 16px; line-height: 1.6;">%s</p>
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0; background-color: #f8f9fa; border-radius: 8px;">
			<tr><td style="padding: 10px;">Référence</td><td style="padding: 10px; font-weight: bold;">%s</td></tr>
			<tr><td style="padding: 10px;">Période</td><td style="padding: 10px;">%s → %s</td></tr>
			<tr><td style="padding: 10px;">Total</td><td style="padding: 10px; font-weight: bold;">%.0f KES</td></tr>
		</table>
		<p style="margin-top: 30px; color: #555;">
			Asante sana,<br>
			<strong>L'équipe Kodisha</strong>
		</p>
	</div>
</body>
</html>`, color, message, shortID(booking),
		booking.StartDate.Format("02/01/2006"), booking.EndDate.Format("02/01/2006"),
		booking.TotalPrice)
}
