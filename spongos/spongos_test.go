package spongos

import (
	"testing"

	"github.com/iota-mam/mamcore/sponge"
	"github.com/iota-mam/mamcore/trinary"
)

func TestHashDeterministic(t *testing.T) {
	trits, err := trinary.TrytesToTrits("NOPQRSTUVWXYZ9ABCDEFGHIJKLM")
	if err != nil {
		t.Fatalf("TrytesToTrits: %v", err)
	}
	a := New().Hash(trits, 243)
	b := New().Hash(trits, 243)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Hash not deterministic at %d", i)
		}
	}
}

func TestForkDoesNotDisturbOriginal(t *testing.T) {
	s := New()
	if err := s.Absorb(sponge.CtrlKey, []trinary.Trit{1, 0, -1}); err != nil {
		t.Fatalf("Absorb: %v", err)
	}
	before := s.Squeeze(sponge.CtrlPrn, 9)

	s2 := New()
	if err := s2.Absorb(sponge.CtrlKey, []trinary.Trit{1, 0, -1}); err != nil {
		t.Fatalf("Absorb: %v", err)
	}
	fork := s2.Fork()
	_ = fork.Squeeze(sponge.CtrlPrn, 500) // disturb the fork heavily
	after := s2.Squeeze(sponge.CtrlPrn, 9)

	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("forking disturbed the original at %d", i)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plain := make([]trinary.Trit, 1111)
	for i := range plain {
		plain[i] = trinary.Trit((i % 3) - 1)
	}

	enc := New()
	if err := enc.Absorb(sponge.CtrlKey, []trinary.Trit{1, 1, 1}); err != nil {
		t.Fatalf("Absorb: %v", err)
	}
	cipher := enc.Encrypt(plain)

	dec := New()
	if err := dec.Absorb(sponge.CtrlKey, []trinary.Trit{1, 1, 1}); err != nil {
		t.Fatalf("Absorb: %v", err)
	}
	got := dec.Decrypt(cipher)

	for i := range plain {
		if plain[i] != got[i] {
			t.Fatalf("decrypt(encrypt(x)) != x at %d", i)
		}
	}
}

func TestCommitIsIdempotentAtZero(t *testing.T) {
	s := New()
	s.Commit()
	s.Commit()
}
