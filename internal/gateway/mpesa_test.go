package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testMpesaClient(baseURL string) *MpesaClient {
	return &MpesaClient{
		ConsumerKey:     "key",
		ConsumerSecret:  "secret",
		ShortCode:       "174379",
		Passkey:         "passkey",
		InitiatorName:   "testapi",
		BaseURL:         baseURL,
		CallbackBaseURL: "https://api.kodisha.example",
		HTTP:            &http.Client{Timeout: 5 * time.Second},
	}
}

func TestSTKPushMissingTokenIsHardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Réponse 200 mais sans access_token
		json.NewEncoder(w).Encode(map[string]string{"expires_in": "3599"})
	}))
	defer srv.Close()

	client := testMpesaClient(srv.URL)
	_, err := client.STKPush(context.Background(), STKPushRequest{
		Phone:            "254712345678",
		Amount:           6000,
		PaymentReference: "KPY-abc",
	})
	if err == nil {
		t.Fatal("un token absent doit annuler tout le flux")
	}
}

func TestSTKPushCarriesReferenceInCallbackURL(t *testing.T) {
	var gotCallbackURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Error("basic auth attendu sur la requête token")
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			t.Errorf("bearer token manquant: %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotCallbackURL, _ = body["CallBackURL"].(string)
		json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID": "mr-1",
			"CheckoutRequestID": "ws_CO_123",
			"ResponseCode":      "0",
			"CustomerMessage":   "Success. Request accepted for processing",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testMpesaClient(srv.URL)
	resp, err := client.STKPush(context.Background(), STKPushRequest{
		Phone:            "254712345678",
		Amount:           6000,
		PaymentReference: "KPY-abc123",
	})
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if resp.CheckoutRequestID != "ws_CO_123" {
		t.Errorf("CheckoutRequestID = %q", resp.CheckoutRequestID)
	}

	want := "https://api.kodisha.example/api/payments/stk/callback/KPY-abc123"
	if gotCallbackURL != want {
		t.Errorf("CallBackURL = %q, attendu %q", gotCallbackURL, want)
	}
}

func TestSTKPushRejectedInitiation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "1",
			"ResponseDescription": "Invalid PhoneNumber",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testMpesaClient(srv.URL)
	if _, err := client.STKPush(context.Background(), STKPushRequest{Phone: "bad"}); err == nil {
		t.Fatal("un ResponseCode non nul doit être une erreur")
	}
}

func TestB2CCarriesReferenceInResultURL(t *testing.T) {
	var gotResultURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("/mpesa/b2c/v1/paymentrequest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotResultURL, _ = body["ResultURL"].(string)
		json.NewEncoder(w).Encode(map[string]string{
			"ConversationID": "conv-1",
			"ResponseCode":   "0",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testMpesaClient(srv.URL)
	if _, err := client.B2C(context.Background(), "254712345678", 4000, "KPY-rf1", "Remboursement"); err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}

	want := "https://api.kodisha.example/api/payments/refunds/callback/KPY-rf1"
	if gotResultURL != want {
		t.Errorf("ResultURL = %q, attendu %q", gotResultURL, want)
	}
}

func TestSTKCallbackMetadataHelpers(t *testing.T) {
	raw := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": "ws_CO_123",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 6000},
						{"Name": "MpesaReceiptNumber", "Value": "SFC8XK91QT"},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`

	var env STKCallbackEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("décodage callback: %v", err)
	}

	cb := env.Body.StkCallback
	if cb.Amount() != 6000 {
		t.Errorf("Amount() = %.2f", cb.Amount())
	}
	if cb.Receipt() != "SFC8XK91QT" {
		t.Errorf("Receipt() = %q", cb.Receipt())
	}
	// Daraja envoie le numéro en nombre JSON
	if cb.Phone() != "254712345678" {
		t.Errorf("Phone() = %q", cb.Phone())
	}
}

func TestSTKCallbackFailureHasNoMetadata(t *testing.T) {
	raw := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": "ws_CO_456",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`

	var env STKCallbackEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("décodage callback: %v", err)
	}

	cb := env.Body.StkCallback
	if cb.ResultCode != 1032 {
		t.Errorf("ResultCode = %d", cb.ResultCode)
	}
	if cb.Amount() != 0 || cb.Receipt() != "" || cb.Phone() != "" {
		t.Error("les métadonnées doivent rester vides sur un échec")
	}
}
