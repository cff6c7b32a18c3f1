package utils

import (
	"fmt"
	"strings"
)

// NormalizePhone met un numéro kényan au format attendu par les passerelles :
// 2547XXXXXXXX (pas de +, pas de 0 initial).
// Formats acceptés : 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX, 2547XXXXXXXX
// (et leurs équivalents en 01/11 pour les numéros Airtel/Telkom récents).
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")
	p = strings.TrimPrefix(p, "+")

	switch {
	case strings.HasPrefix(p, "254"):
		// déjà au bon format
	case strings.HasPrefix(p, "0"):
		p = "254" + p[1:]
	case strings.HasPrefix(p, "7") || strings.HasPrefix(p, "1"):
		p = "254" + p
	default:
		return "", fmt.Errorf("numéro de téléphone invalide: %q", raw)
	}

	if len(p) != 12 {
		return "", fmt.Errorf("numéro de téléphone invalide: %q", raw)
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("numéro de téléphone invalide: %q", raw)
		}
	}
	return p, nil
}
