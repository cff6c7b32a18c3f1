package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"kodisha_back_end/internal/models"

	"github.com/gocql/gocql"
)

// Store est la surface de persistance du cœur de réconciliation.
// L'implémentation ScyllaDB vit dans store_scylla.go ; les tests utilisent
// des mocks à champs de fonctions.
type Store interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error

	GetBooking(ctx context.Context, kind string, id gocql.UUID) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, kind string, id gocql.UUID, status models.BookingStatus) error

	GetRefundByReference(ctx context.Context, reference string) (*models.Refund, error)
	UpdateRefund(ctx context.Context, r *models.Refund) error
	UpdateBookingRefund(ctx context.Context, kind string, id gocql.UUID, status models.RefundStatus, amount float64, refundedAt *time.Time) error

	// Idempotence des callbacks : réclamer, enregistrer, libérer
	ClaimCallback(gatewayTxnID string) (bool, error)
	RecordCallback(gatewayTxnID, reference string) error
	ReleaseCallback(gatewayTxnID string)
}

// Notifier envoie les messages de confirmation/échec. Best-effort : les
// implémentations loggent leurs erreurs et ne remontent jamais rien.
type Notifier interface {
	BookingConfirmed(booking *models.Booking, payment *models.Payment)
	BookingFailed(booking *models.Booking, reason string)
	RefundCompleted(booking *models.Booking, refund *models.Refund)
	RefundFailed(booking *models.Booking, refund *models.Refund)
}

// GatewayResult est le résultat normalisé d'une notification passerelle,
// quelle que soit son origine (callback STK, re-query Pesapal, résultat B2C).
// ResultCode 0 = succès, toute autre valeur = échec avec description.
type GatewayResult struct {
	Reference    string  // référence serveur, seule clé de corrélation acceptée
	GatewayTxnID string  // identifiant unique de la notification (idempotence)
	ResultCode   int
	ResultDesc   string
	Amount       float64 // montant confirmé par la passerelle (informatif)
	Receipt      string
	Phone        string
	PaidAt       time.Time
}

// SettleOutcome décrit ce que Settle a réellement fait
type SettleOutcome struct {
	Duplicate bool // notification déjà traitée, acquittée sans effet
	Settled   bool
	Failed    bool
	Payment   *models.Payment
	Booking   *models.Booking
}

type Service struct {
	store    Store
	notifier Notifier
}

func New(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// NewReference génère la référence de corrélation serveur : non devinable,
// stockée sur le paiement à l'initiation, exigée au callback.
func NewReference() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// rand.Read ne peut échouer que si l'OS est cassé
		return gocql.TimeUUID().String()
	}
	return "KPY-" + hex.EncodeToString(b)
}

// CreateIntent persiste un paiement naissant en état created
func (s *Service) CreateIntent(ctx context.Context, p *models.Payment) error {
	if p.Reference == "" {
		p.Reference = NewReference()
	}
	p.Status = models.IntentCreated
	p.CreatedAt = time.Now()
	return s.store.CreatePayment(ctx, p)
}

// MarkAwaiting enregistre les identifiants de corrélation passerelle et passe
// l'intent en awaiting_confirmation après une initiation réussie
func (s *Service) MarkAwaiting(ctx context.Context, p *models.Payment) error {
	next, err := p.Status.Transition(models.IntentAwaiting)
	if err != nil {
		return err
	}
	p.Status = next
	return s.store.UpdatePayment(ctx, p)
}

// FailIntent marque l'intent et sa réservation en échec après une erreur
// d'initiation (passerelle injoignable, réponse malformée)
func (s *Service) FailIntent(ctx context.Context, p *models.Payment, reason string) error {
	next, err := p.Status.Transition(models.IntentFailed)
	if err != nil {
		return err
	}
	p.Status = next
	p.FailureReason = reason
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return err
	}

	bookingID, kind, err := p.BookingID()
	if err != nil {
		return err
	}
	booking, err := s.store.GetBooking(ctx, kind, bookingID)
	if err != nil {
		return err
	}
	if booking.Status.CanTransition(models.BookingFailed) {
		return s.store.UpdateBookingStatus(ctx, kind, bookingID, models.BookingFailed)
	}
	return nil
}

// Settle réconcilie un résultat passerelle avec le couple paiement/réservation.
//
// Garanties :
//   - idempotence : une notification relivrée est acquittée sans ré-appliquer
//     les effets (pas de double notification, pas de double écriture)
//   - corrélation stricte par la référence serveur : les montants et champs
//     de réservation fournis par la passerelle ne servent jamais de clé
//   - transitions validées : un paiement déjà réglé n'est jamais écrasé
func (s *Service) Settle(ctx context.Context, res GatewayResult) (*SettleOutcome, error) {
	if res.GatewayTxnID != "" {
		claimed, err := s.store.ClaimCallback(res.GatewayTxnID)
		if err != nil {
			return nil, fmt.Errorf("réclamation callback: %w", err)
		}
		if !claimed {
			log.Printf("🔁 Callback %s déjà traité, acquitté sans effet", res.GatewayTxnID)
			return &SettleOutcome{Duplicate: true}, nil
		}
	}

	payment, err := s.store.GetPaymentByReference(ctx, res.Reference)
	if err != nil {
		s.release(res.GatewayTxnID)
		return nil, fmt.Errorf("paiement introuvable pour la référence %q: %w", res.Reference, err)
	}

	target := models.IntentSettled
	if res.ResultCode != 0 {
		target = models.IntentFailed
	}

	next, err := payment.Status.Transition(target)
	if err != nil {
		// Paiement déjà terminal (callback retardataire ou relivraison) : on
		// acquitte, mais on réaligne d'abord la réservation au cas où une
		// panne aurait laissé le paiement réglé avec la réservation en retard
		log.Printf("🔁 %v, acquitté", err)
		booking := s.reconcileBooking(ctx, payment)
		return &SettleOutcome{Duplicate: true, Payment: payment, Booking: booking}, nil
	}

	bookingID, kind, err := payment.BookingID()
	if err != nil {
		s.release(res.GatewayTxnID)
		return nil, err
	}
	booking, err := s.store.GetBooking(ctx, kind, bookingID)
	if err != nil {
		s.release(res.GatewayTxnID)
		return nil, fmt.Errorf("réservation introuvable: %w", err)
	}

	now := time.Now()
	payment.Status = next

	if res.ResultCode == 0 {
		// Le montant confirmé est informatif : le montant qui fait foi est
		// celui enregistré à l'initiation
		if res.Amount != 0 && res.Amount != payment.Amount {
			log.Printf("⚠️ Montant confirmé (%.2f) ≠ montant initié (%.2f) pour %s",
				res.Amount, payment.Amount, payment.Reference)
		}
		payment.ReceiptNumber = res.Receipt
		if res.Phone != "" {
			payment.PhoneNumber = res.Phone
		}
		payment.SettledAt = &now
	} else {
		payment.FailureReason = res.ResultDesc
	}

	if err := s.store.UpdatePayment(ctx, payment); err != nil {
		s.release(res.GatewayTxnID)
		return nil, fmt.Errorf("mise à jour paiement: %w", err)
	}

	bookingTarget := models.BookingPaid
	if res.ResultCode != 0 {
		bookingTarget = models.BookingFailed
	}
	if booking.Status.CanTransition(bookingTarget) {
		if err := s.store.UpdateBookingStatus(ctx, kind, bookingID, bookingTarget); err != nil {
			// Le paiement est déjà réglé : libérer la réclamation pour que la
			// relivraison du callback puisse réaligner la réservation
			s.release(res.GatewayTxnID)
			return nil, fmt.Errorf("mise à jour réservation: %w", err)
		}
		booking.Status = bookingTarget
	}

	if res.GatewayTxnID != "" {
		if err := s.store.RecordCallback(res.GatewayTxnID, res.Reference); err != nil {
			log.Printf("⚠️ Enregistrement callback %s échoué: %v", res.GatewayTxnID, err)
		}
	}

	// Notifications après le changement d'état, jamais bloquantes
	if res.ResultCode == 0 {
		s.notifier.BookingConfirmed(booking, payment)
		return &SettleOutcome{Settled: true, Payment: payment, Booking: booking}, nil
	}
	s.notifier.BookingFailed(booking, res.ResultDesc)
	return &SettleOutcome{Failed: true, Payment: payment, Booking: booking}, nil
}

// SettleRefund réconcilie le résultat asynchrone d'un remboursement B2C :
// processing → completed|failed
func (s *Service) SettleRefund(ctx context.Context, reference, gatewayTxnID string, resultCode int, resultDesc string) (*SettleOutcome, error) {
	if gatewayTxnID != "" {
		claimed, err := s.store.ClaimCallback(gatewayTxnID)
		if err != nil {
			return nil, fmt.Errorf("réclamation callback: %w", err)
		}
		if !claimed {
			log.Printf("🔁 Callback B2C %s déjà traité, acquitté sans effet", gatewayTxnID)
			return &SettleOutcome{Duplicate: true}, nil
		}
	}

	refund, err := s.store.GetRefundByReference(ctx, reference)
	if err != nil {
		s.release(gatewayTxnID)
		return nil, fmt.Errorf("remboursement introuvable pour %q: %w", reference, err)
	}

	target := models.RefundCompleted
	if resultCode != 0 {
		target = models.RefundFailed
	}
	next, err := refund.Status.Transition(target)
	if err != nil {
		log.Printf("🔁 %v, acquitté sans effet", err)
		return &SettleOutcome{Duplicate: true}, nil
	}

	booking, err := s.store.GetBooking(ctx, refund.ResourceKind, refund.BookingID)
	if err != nil {
		s.release(gatewayTxnID)
		return nil, fmt.Errorf("réservation introuvable: %w", err)
	}

	now := time.Now()
	refund.Status = next
	refund.UpdatedAt = &now
	if resultCode != 0 {
		refund.RejectReason = resultDesc
	}
	if err := s.store.UpdateRefund(ctx, refund); err != nil {
		s.release(gatewayTxnID)
		return nil, fmt.Errorf("mise à jour remboursement: %w", err)
	}

	var refundedAt *time.Time
	if resultCode == 0 {
		refundedAt = &now
	}
	if err := s.store.UpdateBookingRefund(ctx, refund.ResourceKind, refund.BookingID, next, refund.RefundAmount, refundedAt); err != nil {
		s.release(gatewayTxnID)
		return nil, fmt.Errorf("mise à jour réservation: %w", err)
	}
	booking.RefundStatus = next

	if gatewayTxnID != "" {
		if err := s.store.RecordCallback(gatewayTxnID, reference); err != nil {
			log.Printf("⚠️ Enregistrement callback %s échoué: %v", gatewayTxnID, err)
		}
	}

	if resultCode == 0 {
		s.notifier.RefundCompleted(booking, refund)
		return &SettleOutcome{Settled: true, Booking: booking}, nil
	}
	s.notifier.RefundFailed(booking, refund)
	return &SettleOutcome{Failed: true, Booking: booking}, nil
}

// reconcileBooking réaligne la réservation sur un paiement déjà terminal.
// Si la mise à jour de la réservation avait échoué après l'écriture du
// paiement, la relivraison du callback répare l'écart au lieu d'être
// acquittée aveuglément. Best-effort : les erreurs sont loggées.
func (s *Service) reconcileBooking(ctx context.Context, payment *models.Payment) *models.Booking {
	var target models.BookingStatus
	switch payment.Status {
	case models.IntentSettled:
		target = models.BookingPaid
	case models.IntentFailed:
		target = models.BookingFailed
	default:
		return nil
	}

	bookingID, kind, err := payment.BookingID()
	if err != nil {
		log.Printf("⚠️ Réalignement impossible: %v", err)
		return nil
	}
	booking, err := s.store.GetBooking(ctx, kind, bookingID)
	if err != nil {
		log.Printf("⚠️ Réalignement: réservation %s illisible: %v", bookingID, err)
		return nil
	}
	if !booking.Status.CanTransition(target) {
		return booking
	}
	if err := s.store.UpdateBookingStatus(ctx, kind, bookingID, target); err != nil {
		log.Printf("⚠️ Réalignement réservation %s échoué: %v", bookingID, err)
		return booking
	}
	booking.Status = target
	log.Printf("🔁 Réservation %s réalignée sur le paiement %s (%s)", bookingID, payment.Reference, target)

	// La notification n'était jamais partie puisque la mise à jour d'origine
	// avait échoué avant l'envoi
	if target == models.BookingPaid {
		s.notifier.BookingConfirmed(booking, payment)
	} else {
		s.notifier.BookingFailed(booking, payment.FailureReason)
	}
	return booking
}

func (s *Service) release(gatewayTxnID string) {
	if gatewayTxnID != "" {
		s.store.ReleaseCallback(gatewayTxnID)
	}
}
