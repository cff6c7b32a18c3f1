package payement

import (
	"testing"

	"kodisha_back_end/internal/gateway"
)

func TestPesapalResultPendingIsNotReconciled(t *testing.T) {
	// Le retour du checkout hébergé arrive souvent avant le règlement réel :
	// un statut PENDING ne doit ni régler ni faire échouer l'intent, et ne
	// doit surtout pas consommer le tracking id, sinon l'IPN qui porte le
	// COMPLETED définitif serait jeté en doublon
	status := &gateway.PesapalTransactionStatus{
		PaymentStatusDescription: "PENDING",
		MerchantReference:        "KPY-abc",
		StatusCode:               0,
	}
	if _, terminal := pesapalResult("otk-123", status); terminal {
		t.Fatal("un statut PENDING ne doit pas être réconcilié")
	}
}

func TestPesapalResultCompleted(t *testing.T) {
	status := &gateway.PesapalTransactionStatus{
		PaymentStatusDescription: "Completed",
		MerchantReference:        "KPY-abc",
		ConfirmationCode:         "SFC8XK91QT",
		Amount:                   6000,
		StatusCode:               1,
	}
	result, terminal := pesapalResult("otk-123", status)
	if !terminal {
		t.Fatal("COMPLETED est un état terminal")
	}
	if result.ResultCode != 0 {
		t.Errorf("ResultCode = %d, attendu 0", result.ResultCode)
	}
	if result.Reference != "KPY-abc" {
		t.Errorf("Reference = %q, attendu la merchant_reference", result.Reference)
	}
	if result.GatewayTxnID != "otk-123" {
		t.Errorf("GatewayTxnID = %q", result.GatewayTxnID)
	}
	if result.Receipt != "SFC8XK91QT" {
		t.Errorf("Receipt = %q", result.Receipt)
	}
}

func TestPesapalResultFailed(t *testing.T) {
	status := &gateway.PesapalTransactionStatus{
		PaymentStatusDescription: "Failed",
		MerchantReference:        "KPY-def",
		StatusCode:               2,
	}
	result, terminal := pesapalResult("otk-456", status)
	if !terminal {
		t.Fatal("FAILED est un état terminal")
	}
	if result.ResultCode == 0 {
		t.Error("un échec ne doit pas porter le code succès")
	}
	if result.ResultDesc != "Failed" {
		t.Errorf("ResultDesc = %q", result.ResultDesc)
	}
}
