package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// MpesaClient encapsule l'API Daraja de Safaricom : STK push pour encaisser,
// B2C pour rembourser. L'initiation est synchrone mais le résultat réel du
// paiement arrive toujours plus tard par callback.
type MpesaClient struct {
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
	BaseURL            string
	CallbackBaseURL    string
	HTTP               *http.Client
}

// NewMpesaClient construit le client depuis .env
func NewMpesaClient() *MpesaClient {
	baseURL := os.Getenv("MPESA_BASE_URL")
	if baseURL == "" {
		baseURL = "https://sandbox.safaricom.co.ke"
	}
	return &MpesaClient{
		ConsumerKey:        os.Getenv("MPESA_CONSUMER_KEY"),
		ConsumerSecret:     os.Getenv("MPESA_CONSUMER_SECRET"),
		ShortCode:          os.Getenv("MPESA_SHORTCODE"),
		Passkey:            os.Getenv("MPESA_PASSKEY"),
		InitiatorName:      os.Getenv("MPESA_INITIATOR_NAME"),
		SecurityCredential: os.Getenv("MPESA_SECURITY_CREDENTIAL"),
		BaseURL:            baseURL,
		CallbackBaseURL:    os.Getenv("CALLBACK_BASE_URL"),
		HTTP:               &http.Client{Timeout: 30 * time.Second},
	}
}

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// fetchToken récupère un bearer token Daraja (client credentials).
// Un token absent ou vide est une erreur dure : on annule tout le flux.
func (m *MpesaClient) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.ConsumerKey, m.ConsumerSecret)

	resp, err := m.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa: échec requête token: %v", err)
	}
	defer resp.Body.Close()

	var out mpesaTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mpesa: réponse token illisible: %v", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("mpesa: access_token manquant dans la réponse")
	}
	return out.AccessToken, nil
}

// --- STK Push ---

type STKPushRequest struct {
	Phone            string  // format 2547XXXXXXXX
	Amount           float64 // arrondi au shilling entier par Daraja
	AccountReference string
	Description      string
	PaymentReference string // référence serveur, portée par l'URL de callback
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKPush déclenche le prompt de paiement sur le téléphone du payeur.
// Le succès ici ne vaut que pour l'INITIATION, le résultat arrive au callback.
// L'URL de callback ne porte que la référence serveur : aucune donnée de
// réservation ne transite par la passerelle.
func (m *MpesaClient) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	token, err := m.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(m.ShortCode + m.Passkey + timestamp))

	body := map[string]any{
		"BusinessShortCode": m.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            int64(req.Amount),
		"PartyA":            req.Phone,
		"PartyB":            m.ShortCode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       m.CallbackBaseURL + "/api/payments/stk/callback/" + req.PaymentReference,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	var out STKPushResponse
	if err := m.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, body, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("mpesa: initiation STK refusée: %s", out.ResponseDescription)
	}
	return &out, nil
}

// --- B2C (remboursements) ---

type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// B2C envoie un paiement inverse (remboursement) vers le téléphone du locataire.
// La référence de remboursement est portée par l'URL de résultat.
func (m *MpesaClient) B2C(ctx context.Context, phone string, amount float64, reference, remarks string) (*B2CResponse, error) {
	token, err := m.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"InitiatorName":      m.InitiatorName,
		"SecurityCredential": m.SecurityCredential,
		"CommandID":          "BusinessPayment",
		"Amount":             int64(amount),
		"PartyA":             m.ShortCode,
		"PartyB":             phone,
		"Remarks":            remarks,
		"QueueTimeOutURL":    m.CallbackBaseURL + "/api/payments/refunds/timeout/" + reference,
		"ResultURL":          m.CallbackBaseURL + "/api/payments/refunds/callback/" + reference,
		"Occasion":           reference,
	}

	var out B2CResponse
	if err := m.postJSON(ctx, "/mpesa/b2c/v1/paymentrequest", token, body, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("mpesa: initiation B2C refusée: %s", out.ResponseDescription)
	}
	return &out, nil
}

func (m *MpesaClient) postJSON(ctx context.Context, path, token string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("mpesa: appel %s échoué: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var gwErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&gwErr)
		return fmt.Errorf("mpesa: %s → %s (%s: %s)", path, resp.Status, gwErr.ErrorCode, gwErr.ErrorMessage)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// --- Payloads de callback ---

// STKCallbackEnvelope est le corps JSON envoyé par Daraja au callback STK
type STKCallbackEnvelope struct {
	Body struct {
		StkCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// Metadata aplatit la liste d'items en map exploitable
func (c *STKCallback) Metadata() map[string]any {
	meta := make(map[string]any, len(c.CallbackMetadata.Item))
	for _, item := range c.CallbackMetadata.Item {
		meta[item.Name] = item.Value
	}
	return meta
}

// Amount extrait le montant confirmé des métadonnées
func (c *STKCallback) Amount() float64 {
	if v, ok := c.Metadata()["Amount"].(float64); ok {
		return v
	}
	return 0
}

// Receipt extrait le numéro de reçu M-Pesa
func (c *STKCallback) Receipt() string {
	if v, ok := c.Metadata()["MpesaReceiptNumber"].(string); ok {
		return v
	}
	return ""
}

// Phone extrait le numéro confirmé (Daraja l'envoie en nombre)
func (c *STKCallback) Phone() string {
	switch v := c.Metadata()["PhoneNumber"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

// B2CResultEnvelope est le corps JSON du callback de résultat B2C
type B2CResultEnvelope struct {
	Result struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               int    `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
	} `json:"Result"`
}
