package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// PesapalClient encapsule l'API v3 de Pesapal (checkout hébergé) : le client
// obtient une URL de redirection, paie sur la page de la passerelle, et le
// statut final est re-demandé activement (modèle pull, pas push).
type PesapalClient struct {
	ConsumerKey     string
	ConsumerSecret  string
	BaseURL         string
	CallbackBaseURL string
	HTTP            *http.Client
}

func NewPesapalClient() *PesapalClient {
	baseURL := os.Getenv("PESAPAL_BASE_URL")
	if baseURL == "" {
		baseURL = "https://cybqa.pesapal.com/pesapalv3"
	}
	return &PesapalClient{
		ConsumerKey:     os.Getenv("PESAPAL_CONSUMER_KEY"),
		ConsumerSecret:  os.Getenv("PESAPAL_CONSUMER_SECRET"),
		BaseURL:         baseURL,
		CallbackBaseURL: os.Getenv("CALLBACK_BASE_URL"),
		HTTP:            &http.Client{Timeout: 30 * time.Second},
	}
}

type pesapalError struct {
	Type    string `json:"error_type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *pesapalError) empty() bool {
	return e == nil || (e.Code == "" && e.Message == "")
}

// RequestToken échange les identifiants client contre un bearer token.
// Token re-demandé à chaque appel (jamais mis en cache) ; un token absent
// dans la réponse est une erreur dure.
func (p *PesapalClient) RequestToken(ctx context.Context) (string, error) {
	body := map[string]string{
		"consumer_key":    p.ConsumerKey,
		"consumer_secret": p.ConsumerSecret,
	}

	var out struct {
		Token      string        `json:"token"`
		ExpiryDate string        `json:"expiryDate"`
		Error      *pesapalError `json:"error"`
	}
	if err := p.postJSON(ctx, "/api/Auth/RequestToken", "", body, &out); err != nil {
		return "", err
	}
	if !out.Error.empty() {
		return "", fmt.Errorf("pesapal: erreur token: %s (%s)", out.Error.Message, out.Error.Code)
	}
	if out.Token == "" {
		return "", errors.New("pesapal: token manquant dans la réponse")
	}
	return out.Token, nil
}

// RegisterIPN enregistre l'URL de notification et retourne son identifiant
func (p *PesapalClient) RegisterIPN(ctx context.Context) (string, error) {
	token, err := p.RequestToken(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]string{
		"url":                   p.CallbackBaseURL + "/api/payments/pesapal/ipn",
		"ipn_notification_type": "GET",
	}

	var out struct {
		IPNID string        `json:"ipn_id"`
		Error *pesapalError `json:"error"`
	}
	if err := p.postJSON(ctx, "/api/URLSetup/RegisterIPN", token, body, &out); err != nil {
		return "", err
	}
	if !out.Error.empty() {
		return "", fmt.Errorf("pesapal: erreur IPN: %s (%s)", out.Error.Message, out.Error.Code)
	}
	if out.IPNID == "" {
		return "", errors.New("pesapal: ipn_id manquant dans la réponse")
	}
	return out.IPNID, nil
}

type PesapalOrder struct {
	Reference   string  // référence serveur, ID marchand de la commande
	Amount      float64
	Currency    string
	Description string
	Email       string
	Phone       string
	FirstName   string
	LastName    string
}

type PesapalOrderResponse struct {
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
}

// SubmitOrder enregistre l'IPN puis soumet la commande ; retourne l'URL de
// redirection vers la page de paiement hébergée. Une erreur passerelle est
// remontée telle quelle à l'appelant.
func (p *PesapalClient) SubmitOrder(ctx context.Context, order PesapalOrder) (*PesapalOrderResponse, error) {
	token, err := p.RequestToken(ctx)
	if err != nil {
		return nil, err
	}

	ipnID, err := p.RegisterIPN(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"id":              order.Reference,
		"currency":        order.Currency,
		"amount":          order.Amount,
		"description":     order.Description,
		"callback_url":    p.CallbackBaseURL + "/api/payments/pesapal/confirm",
		"notification_id": ipnID,
		"billing_address": map[string]string{
			"email_address": order.Email,
			"phone_number":  order.Phone,
			"first_name":    order.FirstName,
			"last_name":     order.LastName,
		},
	}

	var out struct {
		PesapalOrderResponse
		Error *pesapalError `json:"error"`
	}
	if err := p.postJSON(ctx, "/api/Transactions/SubmitOrderRequest", token, body, &out); err != nil {
		return nil, err
	}
	if !out.Error.empty() {
		return nil, fmt.Errorf("pesapal: commande refusée: %s (%s)", out.Error.Message, out.Error.Code)
	}
	if out.RedirectURL == "" {
		return nil, errors.New("pesapal: redirect_url manquant dans la réponse")
	}
	return &out.PesapalOrderResponse, nil
}

// PesapalTransactionStatus est la réponse du re-query de statut (modèle pull)
type PesapalTransactionStatus struct {
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	ConfirmationCode         string  `json:"confirmation_code"`
	PaymentStatusDescription string  `json:"payment_status_description"` // Completed, Failed, Pending
	MerchantReference        string  `json:"merchant_reference"`
	StatusCode               int     `json:"status_code"` // 1 = completed
	Description              string  `json:"description"`
}

// Completed indique un paiement abouti
func (s *PesapalTransactionStatus) Completed() bool {
	return s.StatusCode == 1
}

// Pending indique une transaction pas encore tranchée par la passerelle.
// Le retour du checkout hébergé arrive couramment avant le règlement réel :
// un statut PENDING n'est ni un succès ni un échec.
func (s *PesapalTransactionStatus) Pending() bool {
	return strings.EqualFold(s.PaymentStatusDescription, "pending")
}

// Terminal indique un état définitif (COMPLETED, FAILED, INVALID, REVERSED)
func (s *PesapalTransactionStatus) Terminal() bool {
	return !s.Pending()
}

// GetTransactionStatus re-demande activement le statut d'une transaction
func (p *PesapalClient) GetTransactionStatus(ctx context.Context, orderTrackingID string) (*PesapalTransactionStatus, error) {
	token, err := p.RequestToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.BaseURL+"/api/Transactions/GetTransactionStatus?orderTrackingId="+orderTrackingID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pesapal: échec requête statut: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		PesapalTransactionStatus
		Error *pesapalError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pesapal: réponse statut illisible: %v", err)
	}
	if !out.Error.empty() {
		return nil, fmt.Errorf("pesapal: erreur statut: %s (%s)", out.Error.Message, out.Error.Code)
	}
	return &out.PesapalTransactionStatus, nil
}

func (p *PesapalClient) postJSON(ctx context.Context, path, token string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("pesapal: appel %s échoué: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("pesapal: %s → %s", path, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
