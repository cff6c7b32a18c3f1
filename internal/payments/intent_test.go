package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"kodisha_back_end/internal/models"

	"github.com/gocql/gocql"
)

// storeMock implémente Store avec des champs de fonctions : chaque test ne
// branche que ce dont il a besoin
type storeMock struct {
	createPaymentFn       func(ctx context.Context, p *models.Payment) error
	getPaymentByRefFn     func(ctx context.Context, reference string) (*models.Payment, error)
	updatePaymentFn       func(ctx context.Context, p *models.Payment) error
	getBookingFn          func(ctx context.Context, kind string, id gocql.UUID) (*models.Booking, error)
	updateBookingStatusFn func(ctx context.Context, kind string, id gocql.UUID, status models.BookingStatus) error
	getRefundByRefFn      func(ctx context.Context, reference string) (*models.Refund, error)
	updateRefundFn        func(ctx context.Context, r *models.Refund) error
	updateBookingRefundFn func(ctx context.Context, kind string, id gocql.UUID, status models.RefundStatus, amount float64, refundedAt *time.Time) error
	claimCallbackFn       func(gatewayTxnID string) (bool, error)
	recordCallbackFn      func(gatewayTxnID, reference string) error
	releasedIDs           []string
}

func (m *storeMock) CreatePayment(ctx context.Context, p *models.Payment) error {
	if m.createPaymentFn != nil {
		return m.createPaymentFn(ctx, p)
	}
	return nil
}
func (m *storeMock) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return m.getPaymentByRefFn(ctx, reference)
}
func (m *storeMock) UpdatePayment(ctx context.Context, p *models.Payment) error {
	if m.updatePaymentFn != nil {
		return m.updatePaymentFn(ctx, p)
	}
	return nil
}
func (m *storeMock) GetBooking(ctx context.Context, kind string, id gocql.UUID) (*models.Booking, error) {
	return m.getBookingFn(ctx, kind, id)
}
func (m *storeMock) UpdateBookingStatus(ctx context.Context, kind string, id gocql.UUID, status models.BookingStatus) error {
	if m.updateBookingStatusFn != nil {
		return m.updateBookingStatusFn(ctx, kind, id, status)
	}
	return nil
}
func (m *storeMock) GetRefundByReference(ctx context.Context, reference string) (*models.Refund, error) {
	return m.getRefundByRefFn(ctx, reference)
}
func (m *storeMock) UpdateRefund(ctx context.Context, r *models.Refund) error {
	if m.updateRefundFn != nil {
		return m.updateRefundFn(ctx, r)
	}
	return nil
}
func (m *storeMock) UpdateBookingRefund(ctx context.Context, kind string, id gocql.UUID, status models.RefundStatus, amount float64, refundedAt *time.Time) error {
	if m.updateBookingRefundFn != nil {
		return m.updateBookingRefundFn(ctx, kind, id, status, amount, refundedAt)
	}
	return nil
}
func (m *storeMock) ClaimCallback(gatewayTxnID string) (bool, error) {
	if m.claimCallbackFn != nil {
		return m.claimCallbackFn(gatewayTxnID)
	}
	return true, nil
}
func (m *storeMock) RecordCallback(gatewayTxnID, reference string) error {
	if m.recordCallbackFn != nil {
		return m.recordCallbackFn(gatewayTxnID, reference)
	}
	return nil
}
func (m *storeMock) ReleaseCallback(gatewayTxnID string) {
	m.releasedIDs = append(m.releasedIDs, gatewayTxnID)
}

// notifierMock compte les notifications envoyées
type notifierMock struct {
	confirmed       int
	failed          int
	refundCompleted int
	refundFailed    int
}

func (n *notifierMock) BookingConfirmed(*models.Booking, *models.Payment) { n.confirmed++ }
func (n *notifierMock) BookingFailed(*models.Booking, string)             { n.failed++ }
func (n *notifierMock) RefundCompleted(*models.Booking, *models.Refund)   { n.refundCompleted++ }
func (n *notifierMock) RefundFailed(*models.Booking, *models.Refund)      { n.refundFailed++ }

func awaitingPayment(reference string, bookingID gocql.UUID) *models.Payment {
	return &models.Payment{
		ID:                gocql.TimeUUID(),
		UserID:            "renter-1",
		PropertyBookingID: &bookingID,
		Amount:            6000,
		Method:            models.MethodMpesaSTK,
		Status:            models.IntentAwaiting,
		Reference:         reference,
	}
}

func pendingBooking(id gocql.UUID) *models.Booking {
	return &models.Booking{
		ID:           id,
		RenterID:     "renter-1",
		ResourceKind: models.ResourceProperty,
		OwnerID:      "host-1",
		TotalPrice:   6000,
		Status:       models.BookingPending,
	}
}

func TestNewReference(t *testing.T) {
	ref := NewReference()
	if !strings.HasPrefix(ref, "KPY-") {
		t.Errorf("référence sans préfixe KPY-: %q", ref)
	}
	if len(ref) != 4+32 {
		t.Errorf("longueur de référence inattendue: %d", len(ref))
	}
	if ref == NewReference() {
		t.Error("deux références consécutives identiques")
	}
}

func TestSettleSuccess(t *testing.T) {
	bookingID := gocql.TimeUUID()
	payment := awaitingPayment("KPY-abc", bookingID)
	booking := pendingBooking(bookingID)

	var savedPayment *models.Payment
	var savedBookingStatus models.BookingStatus
	var recordedTxn string

	store := &storeMock{
		getPaymentByRefFn: func(_ context.Context, ref string) (*models.Payment, error) {
			if ref != "KPY-abc" {
				t.Errorf("lookup avec la mauvaise référence: %q", ref)
			}
			return payment, nil
		},
		updatePaymentFn: func(_ context.Context, p *models.Payment) error {
			savedPayment = p
			return nil
		},
		getBookingFn: func(_ context.Context, kind string, id gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingStatusFn: func(_ context.Context, _ string, _ gocql.UUID, status models.BookingStatus) error {
			savedBookingStatus = status
			return nil
		},
		recordCallbackFn: func(txn, _ string) error {
			recordedTxn = txn
			return nil
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.Settle(context.Background(), GatewayResult{
		Reference:    "KPY-abc",
		GatewayTxnID: "ws_CO_123",
		ResultCode:   0,
		Amount:       6000,
		Receipt:      "SFC8XK91QT",
		Phone:        "254712345678",
	})
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !outcome.Settled {
		t.Fatal("le paiement devrait être réglé")
	}
	if savedPayment.Status != models.IntentSettled {
		t.Errorf("statut paiement = %s, attendu settled", savedPayment.Status)
	}
	if savedPayment.ReceiptNumber != "SFC8XK91QT" {
		t.Errorf("numéro de reçu non enregistré: %q", savedPayment.ReceiptNumber)
	}
	if savedPayment.SettledAt == nil {
		t.Error("settled_at devrait être renseigné")
	}
	if savedBookingStatus != models.BookingPaid {
		t.Errorf("statut réservation = %s, attendu paid", savedBookingStatus)
	}
	if recordedTxn != "ws_CO_123" {
		t.Errorf("callback non enregistré pour idempotence: %q", recordedTxn)
	}
	if notifier.confirmed != 1 {
		t.Errorf("BookingConfirmed appelé %d fois, attendu 1", notifier.confirmed)
	}
	if notifier.failed != 0 {
		t.Error("BookingFailed ne devrait pas être appelé")
	}
}

func TestSettleFailure(t *testing.T) {
	bookingID := gocql.TimeUUID()
	payment := awaitingPayment("KPY-def", bookingID)
	booking := pendingBooking(bookingID)

	var savedPayment *models.Payment
	var savedBookingStatus models.BookingStatus

	store := &storeMock{
		getPaymentByRefFn: func(_ context.Context, _ string) (*models.Payment, error) {
			return payment, nil
		},
		updatePaymentFn: func(_ context.Context, p *models.Payment) error {
			savedPayment = p
			return nil
		},
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingStatusFn: func(_ context.Context, _ string, _ gocql.UUID, status models.BookingStatus) error {
			savedBookingStatus = status
			return nil
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.Settle(context.Background(), GatewayResult{
		Reference:    "KPY-def",
		GatewayTxnID: "ws_CO_456",
		ResultCode:   1032,
		ResultDesc:   "Request cancelled by user",
	})
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !outcome.Failed {
		t.Fatal("le paiement devrait être en échec")
	}
	if savedPayment.Status != models.IntentFailed {
		t.Errorf("statut paiement = %s, attendu failed", savedPayment.Status)
	}
	if savedPayment.FailureReason != "Request cancelled by user" {
		t.Errorf("raison d'échec non conservée: %q", savedPayment.FailureReason)
	}
	if savedBookingStatus != models.BookingFailed {
		t.Errorf("statut réservation = %s, attendu failed", savedBookingStatus)
	}
	if notifier.failed != 1 {
		t.Errorf("BookingFailed appelé %d fois, attendu 1", notifier.failed)
	}
	if notifier.confirmed != 0 {
		t.Error("BookingConfirmed ne devrait pas être appelé")
	}
}

func TestSettleDuplicateCallback(t *testing.T) {
	lookups := 0
	store := &storeMock{
		claimCallbackFn: func(_ string) (bool, error) {
			// Déjà traité
			return false, nil
		},
		getPaymentByRefFn: func(_ context.Context, _ string) (*models.Payment, error) {
			lookups++
			return nil, gocql.ErrNotFound
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.Settle(context.Background(), GatewayResult{
		Reference:    "KPY-abc",
		GatewayTxnID: "ws_CO_123",
		ResultCode:   0,
	})
	if err != nil {
		t.Fatalf("un doublon doit être acquitté sans erreur: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatal("le résultat devrait être marqué doublon")
	}
	if lookups != 0 {
		t.Error("un doublon ne doit déclencher aucune lecture")
	}
	if notifier.confirmed != 0 || notifier.failed != 0 {
		t.Error("un doublon ne doit déclencher aucune notification")
	}
}

func TestSettleLateDuplicateWithoutTxnID(t *testing.T) {
	// Callback retardataire sans identifiant : le paiement est déjà réglé et
	// la réservation déjà payée, on acquitte sans rien réécrire
	bookingID := gocql.TimeUUID()
	payment := awaitingPayment("KPY-abc", bookingID)
	payment.Status = models.IntentSettled
	booking := pendingBooking(bookingID)
	booking.Status = models.BookingPaid

	updates := 0
	store := &storeMock{
		getPaymentByRefFn: func(_ context.Context, _ string) (*models.Payment, error) {
			return payment, nil
		},
		updatePaymentFn: func(_ context.Context, _ *models.Payment) error {
			updates++
			return nil
		},
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingStatusFn: func(_ context.Context, _ string, _ gocql.UUID, _ models.BookingStatus) error {
			t.Error("une réservation déjà payée ne doit pas être réécrite")
			return nil
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.Settle(context.Background(), GatewayResult{
		Reference:  "KPY-abc",
		ResultCode: 0,
	})
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatal("le résultat devrait être marqué doublon")
	}
	if updates != 0 {
		t.Error("un paiement réglé ne doit jamais être réécrit")
	}
	if notifier.confirmed != 0 {
		t.Error("pas de re-notification sur doublon")
	}
}

func TestSettleLateDuplicateReconcilesBooking(t *testing.T) {
	// Une panne a laissé le paiement réglé avec la réservation encore en
	// pending : la relivraison du callback doit réparer l'écart au lieu
	// d'être acquittée aveuglément
	bookingID := gocql.TimeUUID()
	payment := awaitingPayment("KPY-abc", bookingID)
	payment.Status = models.IntentSettled
	booking := pendingBooking(bookingID)

	var savedBookingStatus models.BookingStatus
	store := &storeMock{
		getPaymentByRefFn: func(_ context.Context, _ string) (*models.Payment, error) {
			return payment, nil
		},
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingStatusFn: func(_ context.Context, _ string, _ gocql.UUID, status models.BookingStatus) error {
			savedBookingStatus = status
			return nil
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.Settle(context.Background(), GatewayResult{
		Reference:    "KPY-abc",
		GatewayTxnID: "ws_CO_redeliv",
		ResultCode:   0,
	})
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatal("le résultat devrait être marqué doublon")
	}
	if savedBookingStatus != models.BookingPaid {
		t.Errorf("statut réservation = %q, attendu paid après réalignement", savedBookingStatus)
	}
	if outcome.Booking == nil || outcome.Booking.Status != models.BookingPaid {
		t.Error("la réservation réalignée doit figurer dans le résultat")
	}
	if notifier.confirmed != 1 {
		t.Errorf("BookingConfirmed appelé %d fois, attendu 1 (jamais parti lors de la panne)", notifier.confirmed)
	}
}

func TestSettleBookingUpdateErrorReleasesClaim(t *testing.T) {
	// Si la réservation n'a pas pu être mise à jour après l'écriture du
	// paiement, la réclamation doit être libérée pour que la relivraison de
	// la passerelle puisse réaligner la réservation
	bookingID := gocql.TimeUUID()
	payment := awaitingPayment("KPY-abc", bookingID)
	booking := pendingBooking(bookingID)

	store := &storeMock{
		getPaymentByRefFn: func(_ context.Context, _ string) (*models.Payment, error) {
			return payment, nil
		},
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingStatusFn: func(_ context.Context, _ string, _ gocql.UUID, _ models.BookingStatus) error {
			return gocql.ErrTimeoutNoResponse
		},
	}
	svc := New(store, &notifierMock{})

	_, err := svc.Settle(context.Background(), GatewayResult{
		Reference:    "KPY-abc",
		GatewayTxnID: "ws_CO_999",
		ResultCode:   0,
	})
	if err == nil {
		t.Fatal("l'échec de mise à jour de la réservation doit remonter une erreur")
	}
	if len(store.releasedIDs) != 1 || store.releasedIDs[0] != "ws_CO_999" {
		t.Errorf("la réclamation doit être libérée pour permettre une relivraison: %v", store.releasedIDs)
	}
}

func TestSettleAmountMismatchStillSettles(t *testing.T) {
	// Le montant confirmé par la passerelle est informatif : celui enregistré
	// à l'initiation fait foi
	bookingID := gocql.TimeUUID()
	payment := awaitingPayment("KPY-abc", bookingID)
	booking := pendingBooking(bookingID)

	store := &storeMock{
		getPaymentByRefFn: func(_ context.Context, _ string) (*models.Payment, error) {
			return payment, nil
		},
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := New(store, &notifierMock{})

	outcome, err := svc.Settle(context.Background(), GatewayResult{
		Reference:    "KPY-abc",
		GatewayTxnID: "ws_CO_789",
		ResultCode:   0,
		Amount:       999, // ≠ 6000
	})
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !outcome.Settled {
		t.Fatal("le règlement doit aboutir malgré l'écart de montant")
	}
	if payment.Amount != 6000 {
		t.Errorf("le montant initié ne doit pas être écrasé: %.2f", payment.Amount)
	}
}

func TestSettleUnknownReferenceReleasesClaim(t *testing.T) {
	store := &storeMock{
		getPaymentByRefFn: func(_ context.Context, _ string) (*models.Payment, error) {
			return nil, gocql.ErrNotFound
		},
	}
	svc := New(store, &notifierMock{})

	_, err := svc.Settle(context.Background(), GatewayResult{
		Reference:    "KPY-inconnue",
		GatewayTxnID: "ws_CO_000",
		ResultCode:   0,
	})
	if err == nil {
		t.Fatal("une référence inconnue doit remonter une erreur")
	}
	if len(store.releasedIDs) != 1 || store.releasedIDs[0] != "ws_CO_000" {
		t.Errorf("la réclamation doit être libérée pour permettre une relivraison: %v", store.releasedIDs)
	}
}

func TestFailIntent(t *testing.T) {
	bookingID := gocql.TimeUUID()
	payment := awaitingPayment("KPY-abc", bookingID)
	payment.Status = models.IntentCreated
	booking := pendingBooking(bookingID)

	var savedBookingStatus models.BookingStatus
	store := &storeMock{
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingStatusFn: func(_ context.Context, _ string, _ gocql.UUID, status models.BookingStatus) error {
			savedBookingStatus = status
			return nil
		},
	}
	svc := New(store, &notifierMock{})

	if err := svc.FailIntent(context.Background(), payment, "mpesa: access_token manquant"); err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if payment.Status != models.IntentFailed {
		t.Errorf("statut = %s, attendu failed", payment.Status)
	}
	if payment.FailureReason == "" {
		t.Error("la raison d'échec doit être conservée")
	}
	if savedBookingStatus != models.BookingFailed {
		t.Errorf("statut réservation = %s, attendu failed", savedBookingStatus)
	}
}

func TestSettleRefundCompleted(t *testing.T) {
	bookingID := gocql.TimeUUID()
	refund := &models.Refund{
		ID:           gocql.TimeUUID(),
		BookingID:    bookingID,
		ResourceKind: models.ResourceProperty,
		UserID:       "renter-1",
		Status:       models.RefundProcessing,
		RefundAmount: 4000,
		B2CReference: "KPY-rf1",
	}
	booking := pendingBooking(bookingID)
	booking.Status = models.BookingPaid

	var savedStatus models.RefundStatus
	var savedRefundedAt *time.Time
	store := &storeMock{
		getRefundByRefFn: func(_ context.Context, ref string) (*models.Refund, error) {
			if ref != "KPY-rf1" {
				t.Errorf("lookup avec la mauvaise référence: %q", ref)
			}
			return refund, nil
		},
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingRefundFn: func(_ context.Context, _ string, _ gocql.UUID, status models.RefundStatus, _ float64, refundedAt *time.Time) error {
			savedStatus = status
			savedRefundedAt = refundedAt
			return nil
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.SettleRefund(context.Background(), "KPY-rf1", "TXN123", 0, "Success")
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !outcome.Settled {
		t.Fatal("le remboursement devrait aboutir")
	}
	if refund.Status != models.RefundCompleted {
		t.Errorf("statut = %q, attendu completed", refund.Status)
	}
	if savedStatus != models.RefundCompleted {
		t.Errorf("statut réservation = %q, attendu completed", savedStatus)
	}
	if savedRefundedAt == nil {
		t.Error("refunded_at devrait être renseigné")
	}
	if notifier.refundCompleted != 1 {
		t.Errorf("RefundCompleted appelé %d fois, attendu 1", notifier.refundCompleted)
	}
}

func TestSettleRefundFailed(t *testing.T) {
	bookingID := gocql.TimeUUID()
	refund := &models.Refund{
		ID:           gocql.TimeUUID(),
		BookingID:    bookingID,
		ResourceKind: models.ResourceCar,
		UserID:       "renter-1",
		Status:       models.RefundProcessing,
		RefundAmount: 2500,
		B2CReference: "KPY-rf2",
	}
	booking := pendingBooking(bookingID)

	var savedRefundedAt *time.Time
	store := &storeMock{
		getRefundByRefFn: func(_ context.Context, _ string) (*models.Refund, error) {
			return refund, nil
		},
		getBookingFn: func(_ context.Context, _ string, _ gocql.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateBookingRefundFn: func(_ context.Context, _ string, _ gocql.UUID, _ models.RefundStatus, _ float64, refundedAt *time.Time) error {
			savedRefundedAt = refundedAt
			return nil
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.SettleRefund(context.Background(), "KPY-rf2", "TXN456", 2001, "Insufficient balance")
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !outcome.Failed {
		t.Fatal("le remboursement devrait être en échec")
	}
	if refund.Status != models.RefundFailed {
		t.Errorf("statut = %q, attendu failed", refund.Status)
	}
	if savedRefundedAt != nil {
		t.Error("refunded_at ne doit pas être renseigné sur échec")
	}
	if notifier.refundFailed != 1 {
		t.Errorf("RefundFailed appelé %d fois, attendu 1", notifier.refundFailed)
	}
}

func TestSettleRefundDuplicate(t *testing.T) {
	store := &storeMock{
		claimCallbackFn: func(_ string) (bool, error) {
			return false, nil
		},
	}
	notifier := &notifierMock{}
	svc := New(store, notifier)

	outcome, err := svc.SettleRefund(context.Background(), "KPY-rf1", "TXN123", 0, "Success")
	if err != nil {
		t.Fatalf("un doublon doit être acquitté sans erreur: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatal("le résultat devrait être marqué doublon")
	}
	if notifier.refundCompleted != 0 {
		t.Error("pas de re-notification sur doublon")
	}
}
