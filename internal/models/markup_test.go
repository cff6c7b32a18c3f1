package models

import "testing"

func f(v float64) *float64 { return &v }

func TestComputeFinalPercentage(t *testing.T) {
	final, err := ComputeFinal(5000, f(10), nil)
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if final != 5500 {
		t.Errorf("final = %.2f, attendu 5500", final)
	}
}

func TestComputeFinalFlat(t *testing.T) {
	final, err := ComputeFinal(5000, nil, f(750))
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if final != 5750 {
		t.Errorf("final = %.2f, attendu 5750", final)
	}
}

func TestComputeFinalExclusive(t *testing.T) {
	if _, err := ComputeFinal(5000, f(10), f(500)); err == nil {
		t.Error("pourcentage + montant fixe devrait échouer")
	}
	if _, err := ComputeFinal(5000, nil, nil); err == nil {
		t.Error("aucun des deux devrait échouer")
	}
}

func TestComputeFinalNegative(t *testing.T) {
	if _, err := ComputeFinal(5000, f(-5), nil); err == nil {
		t.Error("pourcentage négatif devrait échouer")
	}
	if _, err := ComputeFinal(5000, nil, f(-100)); err == nil {
		t.Error("montant fixe négatif devrait échouer")
	}
}

func TestComputeFinalZeroMarkup(t *testing.T) {
	// Un markup à 0 est valide : le lien vend au prix de base
	final, err := ComputeFinal(5000, f(0), nil)
	if err != nil {
		t.Fatalf("erreur inattendue: %v", err)
	}
	if final != 5000 {
		t.Errorf("final = %.2f, attendu 5000", final)
	}
}
