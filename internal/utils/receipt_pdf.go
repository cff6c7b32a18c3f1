package utils

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"time"

	"kodisha_back_end/internal/models"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/skip2/go-qrcode"
)

// GenerateReceiptQR génère le QR du reçu (lien de vérification) en base64
// prêt à mettre dans <img src="...">
func GenerateReceiptQR(reference string) (string, error) {
	verifyURL := GetFrontendReceiptBaseURL() + "/verify/" + reference

	png, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// GenerateReceiptPDF charge la page reçu du front côté serveur et l'imprime
// en PDF pour la joindre à l'e-mail de confirmation
func GenerateReceiptPDF(booking *models.Booking, payment *models.Payment) ([]byte, error) {
	qrBase64, err := GenerateReceiptQR(payment.Reference)
	if err != nil {
		return nil, fmt.Errorf("erreur génération QR: %v", err)
	}

	q := url.Values{}
	q.Set("booking", booking.ID.String())
	q.Set("receipt", payment.ReceiptNumber)
	q.Set("qr", qrBase64)

	fullURL := fmt.Sprintf("%s?%s", GetFrontendReceiptBaseURL(), q.Encode())

	ctx, cancel := chromedp.NewContext(context.Background())
	defer cancel()

	// timeout pour éviter de bloquer
	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pdfBuf []byte

	err = chromedp.Run(ctx,
		chromedp.Navigate(fullURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return pdfBuf, nil
}

// Helper: récupère l'URL de la page reçu du front depuis l'env
func GetFrontendReceiptBaseURL() string {
	u := os.Getenv("FRONTEND_RECEIPT_URL")
	if u == "" {
		// fallback local dev
		return "http://localhost:3000/receipt"
	}
	return u
}
