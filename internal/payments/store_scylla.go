package payments

import (
	"context"
	"fmt"
	"time"

	"kodisha_back_end/internal/cache"
	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"

	"github.com/gocql/gocql"
)

// ScyllaStore implémente Store sur les keyspaces ScyllaDB.
// Les paiements sont écrits en double : payments (par id) et
// payments_by_reference (par référence serveur), table de corrélation
// interrogée à chaque callback.
type ScyllaStore struct{}

func NewScyllaStore() *ScyllaStore { return &ScyllaStore{} }

func bookingTable(kind string) (string, error) {
	switch kind {
	case models.ResourceProperty:
		return "property_bookings", nil
	case models.ResourceCar:
		return "car_bookings", nil
	}
	return "", fmt.Errorf("type de ressource inconnu: %q", kind)
}

func (s *ScyllaStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	session, err := database.GetBookingsSession()
	if err != nil {
		return err
	}

	// Batch loggé : les deux vues du paiement restent cohérentes
	batch := session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO payments (payment_id, user_id, property_booking_id, car_booking_id, amount, method, status, reference, checkout_request_id, merchant_request_id, order_tracking_id, phone_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.PropertyBookingID, p.CarBookingID, p.Amount, string(p.Method),
		string(p.Status), p.Reference, p.CheckoutRequestID, p.MerchantRequestID,
		p.OrderTrackingID, p.PhoneNumber, p.CreatedAt)
	batch.Query(`INSERT INTO payments_by_reference (reference, payment_id, user_id, property_booking_id, car_booking_id, amount, method, status, phone_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Reference, p.ID, p.UserID, p.PropertyBookingID, p.CarBookingID, p.Amount,
		string(p.Method), string(p.Status), p.PhoneNumber, p.CreatedAt)
	return session.ExecuteBatch(batch)
}

func (s *ScyllaStore) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var p models.Payment
	var method, status string

	// Chemin chaud : prepared statement si disponible
	if q := database.GetPreparedGetPaymentByReference(); q != nil {
		if err := q.Bind(reference).WithContext(ctx).Scan(
			&p.ID, &p.UserID, &p.PropertyBookingID, &p.CarBookingID, &p.Amount,
			&method, &status, &p.PhoneNumber); err != nil {
			return nil, err
		}
		p.Reference = reference
		p.Method = models.PaymentMethod(method)
		p.Status = models.IntentStatus(status)
		return &p, nil
	}

	session, err := database.GetBookingsSession()
	if err != nil {
		return nil, err
	}
	err = session.Query(`SELECT payment_id, user_id, property_booking_id, car_booking_id, amount, method, status, phone_number, created_at
		FROM payments_by_reference WHERE reference = ?`, reference).WithContext(ctx).Scan(
		&p.ID, &p.UserID, &p.PropertyBookingID, &p.CarBookingID, &p.Amount,
		&method, &status, &p.PhoneNumber, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Reference = reference
	p.Method = models.PaymentMethod(method)
	p.Status = models.IntentStatus(status)
	return &p, nil
}

func (s *ScyllaStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	session, err := database.GetBookingsSession()
	if err != nil {
		return err
	}

	batch := session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE payments SET status = ?, checkout_request_id = ?, merchant_request_id = ?, order_tracking_id = ?, receipt_number = ?, phone_number = ?, failure_reason = ?, settled_at = ? WHERE payment_id = ?`,
		string(p.Status), p.CheckoutRequestID, p.MerchantRequestID, p.OrderTrackingID,
		p.ReceiptNumber, p.PhoneNumber, p.FailureReason, p.SettledAt, p.ID)
	batch.Query(`UPDATE payments_by_reference SET status = ?, phone_number = ? WHERE reference = ?`,
		string(p.Status), p.PhoneNumber, p.Reference)
	return session.ExecuteBatch(batch)
}

func (s *ScyllaStore) GetBooking(ctx context.Context, kind string, id gocql.UUID) (*models.Booking, error) {
	table, err := bookingTable(kind)
	if err != nil {
		return nil, err
	}
	session, err := database.GetBookingsSession()
	if err != nil {
		return nil, err
	}

	var b models.Booking
	var status, refundStatus string
	err = session.Query(fmt.Sprintf(`SELECT booking_id, renter_id, resource_id, owner_id, start_date, end_date, units, unit_price, total_price, status, markup_id, refund_status, refund_amount, refunded_at, created_at, updated_at
		FROM %s WHERE booking_id = ?`, table), id).WithContext(ctx).Scan(
		&b.ID, &b.RenterID, &b.ResourceID, &b.OwnerID, &b.StartDate, &b.EndDate,
		&b.Units, &b.UnitPrice, &b.TotalPrice, &status, &b.MarkupID,
		&refundStatus, &b.RefundAmount, &b.RefundedAt, &b.CreatedAt, &b.UpdatedAt)
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

func (s *ScyllaStore) UpdateBookingStatus(ctx context.Context, kind string, id gocql.UUID, status models.BookingStatus) error {
	table, err := bookingTable(kind)
	if err != nil {
		return err
	}
	session, err := database.GetBookingsSession()
	if err != nil {
		return err
	}
	return session.Query(fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE booking_id = ?", table),
		string(status), time.Now(), id).WithContext(ctx).Exec()
}

func (s *ScyllaStore) GetRefundByReference(ctx context.Context, reference string) (*models.Refund, error) {
	session, err := database.GetBookingsSession()
	if err != nil {
		return nil, err
	}

	var r models.Refund
	var status string
	err = session.Query(`SELECT refund_id, booking_id, resource_kind, user_id, reason, status, refund_amount, created_at, updated_at
		FROM refunds_by_reference WHERE b2c_reference = ?`, reference).WithContext(ctx).Scan(
		&r.ID, &r.BookingID, &r.ResourceKind, &r.UserID, &r.Reason, &status,
		&r.RefundAmount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.B2CReference = reference
	r.Status = models.RefundStatus(status)
	return &r, nil
}

func (s *ScyllaStore) UpdateRefund(ctx context.Context, r *models.Refund) error {
	session, err := database.GetBookingsSession()
	if err != nil {
		return err
	}

	batch := session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE refunds SET status = ?, refund_amount = ?, b2c_reference = ?, reject_reason = ?, updated_at = ? WHERE refund_id = ?`,
		string(r.Status), r.RefundAmount, r.B2CReference, r.RejectReason, r.UpdatedAt, r.ID)
	if r.B2CReference != "" {
		batch.Query(`UPDATE refunds_by_reference SET status = ?, updated_at = ? WHERE b2c_reference = ?`,
			string(r.Status), r.UpdatedAt, r.B2CReference)
	}
	return session.ExecuteBatch(batch)
}

func (s *ScyllaStore) UpdateBookingRefund(ctx context.Context, kind string, id gocql.UUID, status models.RefundStatus, amount float64, refundedAt *time.Time) error {
	table, err := bookingTable(kind)
	if err != nil {
		return err
	}
	session, err := database.GetBookingsSession()
	if err != nil {
		return err
	}
	return session.Query(fmt.Sprintf("UPDATE %s SET refund_status = ?, refund_amount = ?, refunded_at = ?, updated_at = ? WHERE booking_id = ?", table),
		string(status), amount, refundedAt, time.Now(), id).WithContext(ctx).Exec()
}

func (s *ScyllaStore) ClaimCallback(gatewayTxnID string) (bool, error) {
	return cache.ClaimCallback(gatewayTxnID)
}

func (s *ScyllaStore) RecordCallback(gatewayTxnID, reference string) error {
	return cache.RecordCallback(gatewayTxnID, reference)
}

func (s *ScyllaStore) ReleaseCallback(gatewayTxnID string) {
	cache.ReleaseCallback(gatewayTxnID)
}
