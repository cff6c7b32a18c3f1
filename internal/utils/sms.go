package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// SMSClient enveloppe l'API REST du fournisseur de SMS en masse.
// Même modèle que les clients passerelle : requêtes construites à la main,
// timeout par appel.
type SMSClient struct {
	APIKey   string
	Username string
	SenderID string
	BaseURL  string
	HTTP     *http.Client
}

func NewSMSClient() *SMSClient {
	baseURL := os.Getenv("SMS_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.africastalking.com/version1"
	}
	return &SMSClient{
		APIKey:   os.Getenv("SMS_API_KEY"),
		Username: os.Getenv("SMS_USERNAME"),
		SenderID: os.Getenv("SMS_SENDER_ID"),
		BaseURL:  baseURL,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Send envoie un SMS à un ou plusieurs destinataires (numéros au format 2547…)
func (s *SMSClient) Send(message string, phones ...string) error {
	if len(phones) == 0 {
		return nil
	}

	form := url.Values{}
	form.Set("username", s.Username)
	form.Set("to", strings.Join(phones, ","))
	form.Set("message", message)
	if s.SenderID != "" {
		form.Set("from", s.SenderID)
	}

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", s.APIKey)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("sms: envoi échoué: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms: fournisseur → %s", resp.Status)
	}

	var out struct {
		SMSMessageData struct {
			Recipients []struct {
				Number     string `json:"number"`
				StatusCode int    `json:"statusCode"`
				Status     string `json:"status"`
			} `json:"Recipients"`
		} `json:"SMSMessageData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("sms: réponse illisible: %v", err)
	}

	for _, r := range out.SMSMessageData.Recipients {
		// 100/101/102 = accepté/envoyé/mis en file
		if r.StatusCode > 102 {
			return fmt.Errorf("sms: rejeté pour %s: %s", r.Number, r.Status)
		}
	}
	return nil
}
