package models

import (
	"testing"
	"time"
)

func TestBookingStatusTransitions(t *testing.T) {
	cases := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{BookingPending, BookingPaid, true},
		{BookingPending, BookingFailed, true},
		{BookingPending, BookingCancelled, true},
		{BookingPaid, BookingCancelled, true},
		{BookingPaid, BookingPaid, false},
		{BookingPaid, BookingPending, false},
		{BookingFailed, BookingPaid, false},
		{BookingCancelled, BookingPending, false},
		{BookingCancelled, BookingPaid, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s → %s) = %v, attendu %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestBookingStatusTransitionError(t *testing.T) {
	next, err := BookingPaid.Transition(BookingPending)
	if err == nil {
		t.Fatal("transition paid → pending devrait échouer")
	}
	if next != BookingPaid {
		t.Errorf("le statut ne doit pas changer sur transition illégale, obtenu %s", next)
	}
}

func TestParseBookingStatus(t *testing.T) {
	for _, raw := range []string{"pending", "paid", "failed", "cancelled"} {
		if _, err := ParseBookingStatus(raw); err != nil {
			t.Errorf("ParseBookingStatus(%q) devrait passer: %v", raw, err)
		}
	}
	// Convention minuscules : les variantes historiques sont rejetées
	for _, raw := range []string{"Paid", "PENDING", "confirmed", ""} {
		if _, err := ParseBookingStatus(raw); err == nil {
			t.Errorf("ParseBookingStatus(%q) devrait échouer", raw)
		}
	}
}

func TestRefundStatusTransitions(t *testing.T) {
	cases := []struct {
		from    RefundStatus
		to      RefundStatus
		allowed bool
	}{
		{RefundNone, RefundRequested, true},
		{RefundRequested, RefundProcessing, true},
		{RefundRequested, RefundRejected, true},
		{RefundProcessing, RefundCompleted, true},
		{RefundProcessing, RefundFailed, true},
		{RefundFailed, RefundProcessing, true},
		{RefundCompleted, RefundProcessing, false},
		{RefundRejected, RefundProcessing, false},
		{RefundNone, RefundCompleted, false},
		{RefundRequested, RefundCompleted, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%q → %q) = %v, attendu %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestTotalFor(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2025, 6, d, 12, 0, 0, 0, time.UTC)
	}

	cases := []struct {
		name      string
		unitPrice float64
		start     time.Time
		end       time.Time
		units     int
		total     float64
	}{
		{"trois nuits pleines", 2000, day(1), day(4), 3, 6000},
		{"une nuit", 3500, day(1), day(2), 1, 3500},
		{"jour entamé arrondi au supérieur", 1500, day(1), day(3).Add(2 * time.Hour), 3, 4500},
		{"moins d'un jour compte un", 1200, day(1), day(1).Add(5 * time.Hour), 1, 1200},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			units, total := TotalFor(tc.unitPrice, tc.start, tc.end)
			if units != tc.units {
				t.Errorf("units = %d, attendu %d", units, tc.units)
			}
			if total != tc.total {
				t.Errorf("total = %.2f, attendu %.2f", total, tc.total)
			}
		})
	}
}

func TestIntentStatusTransitions(t *testing.T) {
	cases := []struct {
		from    IntentStatus
		to      IntentStatus
		allowed bool
	}{
		{IntentCreated, IntentAwaiting, true},
		{IntentCreated, IntentFailed, true},
		{IntentAwaiting, IntentSettled, true},
		{IntentAwaiting, IntentFailed, true},
		{IntentCreated, IntentSettled, false},
		{IntentSettled, IntentFailed, false},
		{IntentSettled, IntentSettled, false},
		{IntentFailed, IntentSettled, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s → %s) = %v, attendu %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}
