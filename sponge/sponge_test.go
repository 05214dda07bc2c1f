package sponge

import (
	"testing"

	"github.com/iota-mam/mamcore/trinary"
)

func tritsFromTrytes(t *testing.T, s string) []trinary.Trit {
	t.Helper()
	trits, err := trinary.TrytesToTrits(s)
	if err != nil {
		t.Fatalf("TrytesToTrits: %v", err)
	}
	return trits
}

const testTrytes = "NOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLM"

func TestAbsorbSqueezeLength(t *testing.T) {
	trits := tritsFromTrytes(t, testTrytes)
	s := New()
	if err := s.Absorb(CtrlKey, trits); err != nil {
		t.Fatalf("Absorb: %v", err)
	}
	out := s.Squeeze(CtrlPrn, 81*3)
	if len(out) != len(trits) {
		t.Fatalf("squeeze length %d != input length %d", len(out), len(trits))
	}
}

func TestAbsorbRejectsNonDataKeyControl(t *testing.T) {
	s := New()
	if err := s.Absorb(CtrlText, []trinary.Trit{1}); err == nil {
		t.Fatalf("expected ControlInvalid error")
	}
}

func TestHashDeterministic(t *testing.T) {
	trits := tritsFromTrytes(t, testTrytes)
	a := New().Hash(trits, 243)
	b := New().Hash(trits, 243)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Hash is not deterministic at index %d", i)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 2, 3, 4, 5, 6, 242, 243, 244, 485, 486, 487, 972, 1110, 1111}

	keyTrits := tritsFromTrytes(t, testTrytes)
	seed := New()
	if err := seed.Absorb(CtrlKey, keyTrits); err != nil {
		t.Fatalf("Absorb: %v", err)
	}
	k := seed.Squeeze(CtrlPrn, len(keyTrits))

	for _, sz := range sizes {
		x := make([]trinary.Trit, sz)

		s := New()
		if err := s.Absorb(CtrlKey, k); err != nil {
			t.Fatalf("Absorb: %v", err)
		}
		y := s.Encrypt(x) // Y = E(X)

		s.Reset()
		if err := s.Absorb(CtrlKey, k); err != nil {
			t.Fatalf("Absorb: %v", err)
		}
		z := s.Decrypt(y) // Z = D(E(X))
		if !equalTrits(x, z) {
			t.Fatalf("size %d: D(E(X)) != X", sz)
		}

		s.Reset()
		if err := s.Absorb(CtrlKey, k); err != nil {
			t.Fatalf("Absorb: %v", err)
		}
		z = s.Encrypt(z) // Z = E(Z = X)
		if !equalTrits(y, z) {
			t.Fatalf("size %d: E(X) != E(D(E(X)))", sz)
		}

		s.Reset()
		if err := s.Absorb(CtrlKey, k); err != nil {
			t.Fatalf("Absorb: %v", err)
		}
		z = s.Decrypt(z) // Z = D(Z = E(X))
		if !equalTrits(x, z) {
			t.Fatalf("size %d: D(E(X)) != X on second pass", sz)
		}
	}
}

func equalTrits(a, b []trinary.Trit) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
