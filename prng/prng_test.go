package prng

import (
	"testing"

	"github.com/iota-mam/mamcore/trinary"
)

func testSecretKey(t *testing.T) []trinary.Trit {
	t.Helper()
	trits, err := trinary.TrytesToTrits(
		"NOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLM")
	if err != nil {
		t.Fatalf("TrytesToTrits: %v", err)
	}
	return trits
}

func TestGenerateDomainSeparation(t *testing.T) {
	p, err := New(testSecretKey(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	nonce := make([]trinary.Trit, 18)

	a := p.Generate(SecretKey, nonce, 504)
	b := p.Generate(WotsKey, nonce, 504)

	equal := true
	for i := range a {
		if a[i] != b[i] {
			equal = false
			break
		}
	}
	if equal {
		t.Fatalf("SecretKey and WotsKey streams collided for the same nonce")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	p, err := New(testSecretKey(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	nonce := make([]trinary.Trit, 18)
	a := p.Generate(WotsKey, nonce, 13122)
	b := p.Generate(WotsKey, nonce, 13122)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Generate is not deterministic at %d", i)
		}
	}
}

func TestNewRejectsWrongKeyLength(t *testing.T) {
	if _, err := New(make([]trinary.Trit, 10)); err == nil {
		t.Fatalf("expected InputShape error for short secret key")
	}
}

func TestDestTagString(t *testing.T) {
	if SecretKey.String() != "SecretKey" || WotsKey.String() != "WotsKey" || NtruKey.String() != "NtruKey" {
		t.Fatalf("DestTag.String() mismatch")
	}
}
