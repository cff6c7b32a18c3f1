package utils

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("siri-ya-kodisha-2025")
	if err != nil {
		t.Fatalf("erreur hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("format de hash inattendu: %q", hash)
	}

	ok, err := VerifyPassword("siri-ya-kodisha-2025", hash)
	if err != nil || !ok {
		t.Errorf("le bon mot de passe devrait passer (ok=%v, err=%v)", ok, err)
	}

	ok, err = VerifyPassword("mauvais-mot-de-passe", hash)
	if err != nil {
		t.Errorf("erreur inattendue: %v", err)
	}
	if ok {
		t.Error("un mauvais mot de passe ne doit pas passer")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	if _, err := VerifyPassword("x", "pas-un-hash"); err == nil {
		t.Error("un hash malformé doit être une erreur")
	}
}
