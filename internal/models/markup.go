package models

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Markup est une surcouche de prix revendeur : un hôte fixe un pourcentage OU
// un montant fixe au-dessus du prix de base, et obtient un lien de réservation
// partageable. Au plus un markup actif par (hôte, ressource), les précédents
// sont désactivés avant insertion.
type Markup struct {
	ID           gocql.UUID `json:"id" db:"markup_id"`
	HostID       string     `json:"host_id" db:"host_id"`
	ResourceKind string     `json:"resource_kind" db:"resource_kind"` // property | car
	ResourceID   gocql.UUID `json:"resource_id" db:"resource_id"`
	BaseAmount   float64    `json:"base_amount" db:"base_amount"`
	Percentage   *float64   `json:"percentage,omitempty" db:"percentage"`
	FlatAmount   *float64   `json:"flat_amount,omitempty" db:"flat_amount"`
	FinalAmount  float64    `json:"final_amount" db:"final_amount"`
	Active       bool       `json:"active" db:"active"`
	LinkToken    string     `json:"link_token" db:"link_token"`
	QRCodeURL    string     `json:"qr_code_url,omitempty" db:"qr_code_url"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// ComputeFinal calcule le montant final : base + base*p/100 (pourcentage) ou
// base + m (montant fixe). Exactement un des deux doit être renseigné.
func ComputeFinal(base float64, percentage, flat *float64) (float64, error) {
	switch {
	case percentage != nil && flat != nil:
		return 0, fmt.Errorf("markup: pourcentage et montant fixe sont exclusifs")
	case percentage != nil:
		if *percentage < 0 {
			return 0, fmt.Errorf("markup: pourcentage négatif")
		}
		return base + base*(*percentage)/100, nil
	case flat != nil:
		if *flat < 0 {
			return 0, fmt.Errorf("markup: montant fixe négatif")
		}
		return base + *flat, nil
	}
	return 0, fmt.Errorf("markup: pourcentage ou montant fixe requis")
}
