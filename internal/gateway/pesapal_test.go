package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testPesapalClient(baseURL string) *PesapalClient {
	return &PesapalClient{
		ConsumerKey:     "ck",
		ConsumerSecret:  "cs",
		BaseURL:         baseURL,
		CallbackBaseURL: "https://api.kodisha.example",
		HTTP:            &http.Client{Timeout: 5 * time.Second},
	}
}

func TestRequestTokenMissingTokenIsHardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"expiryDate": "2026-01-01"})
	}))
	defer srv.Close()

	client := testPesapalClient(srv.URL)
	if _, err := client.RequestToken(context.Background()); err == nil {
		t.Fatal("un token absent doit être une erreur dure")
	}
}

func TestRequestTokenGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "invalid_consumer_key_or_secret_provided",
				"message": "Invalid Access Token",
			},
		})
	}))
	defer srv.Close()

	client := testPesapalClient(srv.URL)
	if _, err := client.RequestToken(context.Background()); err == nil {
		t.Fatal("une erreur passerelle doit être remontée")
	}
}

func TestSubmitOrder(t *testing.T) {
	var gotOrder map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-pesapal"})
	})
	mux.HandleFunc("/api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["url"] != "https://api.kodisha.example/api/payments/pesapal/ipn" {
			t.Errorf("URL IPN inattendue: %q", body["url"])
		}
		json.NewEncoder(w).Encode(map[string]string{"ipn_id": "ipn-1"})
	})
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotOrder)
		json.NewEncoder(w).Encode(map[string]string{
			"order_tracking_id": "otk-123",
			"redirect_url":      "https://pay.pesapal.test/iframe/otk-123",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testPesapalClient(srv.URL)
	resp, err := client.SubmitOrder(context.Background(), PesapalOrder{
		Reference:   "KPY-abc",
		Amount:      6000,
		Currency:    "KES",
		Description: "Reservation Kodisha",
		Email:       "renter@example.com",
		Phone:       "254712345678",
		FirstName:   "Wanjiku",
	})
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if resp.OrderTrackingID != "otk-123" {
		t.Errorf("OrderTrackingID = %q", resp.OrderTrackingID)
	}
	if resp.RedirectURL == "" {
		t.Error("redirect_url manquant")
	}

	// La référence serveur est l'identifiant marchand de la commande
	if gotOrder["id"] != "KPY-abc" {
		t.Errorf("id commande = %v, attendu KPY-abc", gotOrder["id"])
	}
	if gotOrder["notification_id"] != "ipn-1" {
		t.Errorf("notification_id = %v", gotOrder["notification_id"])
	}
	if gotOrder["callback_url"] != "https://api.kodisha.example/api/payments/pesapal/confirm" {
		t.Errorf("callback_url = %v", gotOrder["callback_url"])
	}
}

func TestGetTransactionStatusCompleted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("orderTrackingId") != "otk-123" {
			t.Errorf("orderTrackingId = %q", r.URL.Query().Get("orderTrackingId"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"payment_method":             "MpesaKE",
			"amount":                     6000,
			"confirmation_code":          "SFC8XK91QT",
			"payment_status_description": "Completed",
			"merchant_reference":         "KPY-abc",
			"status_code":                1,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testPesapalClient(srv.URL)
	status, err := client.GetTransactionStatus(context.Background(), "otk-123")
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if !status.Completed() {
		t.Error("status_code 1 devrait être Completed")
	}
	if status.MerchantReference != "KPY-abc" {
		t.Errorf("MerchantReference = %q", status.MerchantReference)
	}
}

func TestGetTransactionStatusPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"payment_status_description": "PENDING",
			"merchant_reference":         "KPY-abc",
			"status_code":                0,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testPesapalClient(srv.URL)
	status, err := client.GetTransactionStatus(context.Background(), "otk-456")
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if status.Completed() {
		t.Error("PENDING ne doit pas être Completed")
	}
	if !status.Pending() || status.Terminal() {
		t.Error("PENDING doit être non terminal")
	}
}

func TestTransactionStatusClassification(t *testing.T) {
	cases := []struct {
		desc       string
		statusCode int
		completed  bool
		terminal   bool
	}{
		{"Completed", 1, true, true},
		{"Failed", 2, false, true},
		{"Reversed", 3, false, true},
		{"Invalid", 0, false, true},
		{"Pending", 0, false, false},
		{"PENDING", 0, false, false},
		{"pending", 0, false, false},
	}
	for _, tc := range cases {
		s := &PesapalTransactionStatus{PaymentStatusDescription: tc.desc, StatusCode: tc.statusCode}
		if s.Completed() != tc.completed {
			t.Errorf("%s (code %d): Completed() = %v", tc.desc, tc.statusCode, s.Completed())
		}
		if s.Terminal() != tc.terminal {
			t.Errorf("%s (code %d): Terminal() = %v", tc.desc, tc.statusCode, s.Terminal())
		}
	}
}
