package utils

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"0712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
		{"0110123456", "254110123456"},
		{"110123456", "254110123456"},
	}

	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if err != nil {
			t.Errorf("NormalizePhone(%q) erreur inattendue: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, attendu %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhoneInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "06123", "25471234567890", "07123456ab", "2547"} {
		if got, err := NormalizePhone(in); err == nil {
			t.Errorf("NormalizePhone(%q) devrait échouer, obtenu %q", in, got)
		}
	}
}
