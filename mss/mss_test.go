package mss

import (
	"testing"

	"github.com/iota-mam/mamcore/internal/mamerr"
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

func testMessage(t *testing.T) []trinary.Trit {
	t.Helper()
	seed := tritsFromTrytes(t, "NOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJK")
	return seed[:77*3]
}

// TestSignExhaustion is Scenario D from spec.md §8: h=2, L=2 (H=4, 16
// leaves). All 16 signatures must verify against the key's initial
// public key; the 17th Sign call must fail with KeyExhausted, and the
// public key must never change as signatures are consumed.
func TestSignExhaustion(t *testing.T) {
	seed := tritsFromTrytes(t, "NNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNNN")
	nonce := make([]trinary.Trit, 18)
	message := testMessage(t)

	sk, err := Generate(seed, nonce, 2, 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pk := sk.PublicKey()

	for i := 0; i < 16; i++ {
		if sk.SigsUsed() != uint64(i) {
			t.Fatalf("before sign %d: SigsUsed=%d, want %d", i, sk.SigsUsed(), i)
		}
		if sk.SigsRemaining() != uint64(16-i) {
			t.Fatalf("before sign %d: SigsRemaining=%d, want %d", i, sk.SigsRemaining(), 16-i)
		}
		sig, err := sk.Sign(message)
		if err != nil {
			t.Fatalf("Sign #%d: %v", i, err)
		}
		if sig.SigsUsed != uint64(i) {
			t.Fatalf("signature #%d carries SigsUsed=%d, want %d", i, sig.SigsUsed, i)
		}
		if !pk.Verify(message, sig) {
			t.Fatalf("signature #%d (leaf %d) failed to verify", i, i)
		}
	}

	if sk.SigsUsed() != 16 {
		t.Fatalf("SigsUsed=%d after 16 signatures, want 16", sk.SigsUsed())
	}
	if sk.SigsRemaining() != 0 {
		t.Fatalf("SigsRemaining=%d after exhaustion, want 0", sk.SigsRemaining())
	}

	if _, err := sk.Sign(message); err == nil {
		t.Fatalf("17th Sign call succeeded, expected KeyExhausted")
	} else if err.Kind() != mamerr.KeyExhausted {
		t.Fatalf("17th Sign call failed with kind %v, want KeyExhausted", err.Kind())
	}

	after := sk.PublicKey()
	if *after != *pk {
		t.Fatalf("public key changed after signing")
	}
}

// TestVerifyRejectsTamperedAuthPath is Scenario E: flipping a single
// trit in the authentication path of an otherwise genuine signature
// must make Verify return false.
func TestVerifyRejectsTamperedAuthPath(t *testing.T) {
	seed := tritsFromTrytes(t, "OPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMN")
	nonce := make([]trinary.Trit, 18)
	message := testMessage(t)

	sk, err := Generate(seed, nonce, 2, 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pk := sk.PublicKey()

	sig, err := sk.Sign(message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig.AuthPath) == 0 {
		t.Fatalf("authentication path is empty")
	}
	sig.AuthPath[0] ^= 1
	if sig.AuthPath[0] > 1 {
		sig.AuthPath[0] = -1
	}
	if pk.Verify(message, sig) {
		t.Fatalf("Verify accepted a signature with a tampered authentication path")
	}
}

// TestVerifyRejectsTamperedSigsUsed is Scenario F: tampering the
// sigs_used header field (which selects which side of each
// authentication-path hash the leaf falls on) must make Verify return
// false for a signature that was otherwise genuine.
func TestVerifyRejectsTamperedSigsUsed(t *testing.T) {
	seed := tritsFromTrytes(t, "PQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNO")
	nonce := make([]trinary.Trit, 18)
	message := testMessage(t)

	sk, err := Generate(seed, nonce, 2, 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pk := sk.PublicKey()

	// Consume a couple of leaves so sigs_used isn't already 0.
	if _, err := sk.Sign(message); err != nil {
		t.Fatalf("Sign #0: %v", err)
	}
	sig, err := sk.Sign(message)
	if err != nil {
		t.Fatalf("Sign #1: %v", err)
	}
	if !pk.Verify(message, sig) {
		t.Fatalf("genuine signature failed to verify before tampering")
	}

	sig.SigsUsed ^= 1
	if pk.Verify(message, sig) {
		t.Fatalf("Verify accepted a signature with a tampered sigs_used field")
	}
}

func TestWireRoundTrip(t *testing.T) {
	seed := tritsFromTrytes(t, "QRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOP")
	nonce := make([]trinary.Trit, 18)
	message := testMessage(t)

	sk, err := Generate(seed, nonce, 2, 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pk := sk.PublicKey()

	sig, err := sk.Sign(message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	wire := sig.Bytes()
	wantLen := 18 + 13122 + int(sig.H)*NodeSize
	if len(wire) != wantLen {
		t.Fatalf("wire length %d, want %d", len(wire), wantLen)
	}

	decoded, ok := SignatureFromTrits(wire)
	if !ok {
		t.Fatalf("SignatureFromTrits rejected a genuine signature")
	}
	if !pk.Verify(message, decoded) {
		t.Fatalf("round-tripped signature failed to verify")
	}

	pkWire := pk.Bytes()
	pk2, err := PublicKeyFromTrits(pkWire)
	if err != nil {
		t.Fatalf("PublicKeyFromTrits: %v", err)
	}
	if !pk2.Verify(message, decoded) {
		t.Fatalf("round-tripped public key failed to verify a genuine signature")
	}
}

func TestSignatureFromTritsRejectsMalformed(t *testing.T) {
	cases := [][]trinary.Trit{
		nil,
		make([]trinary.Trit, 17),
		make([]trinary.Trit, 18+13122+243-1),
	}
	for i, trits := range cases {
		if _, ok := SignatureFromTrits(trits); ok {
			t.Fatalf("case %d: SignatureFromTrits accepted malformed input of length %d", i, len(trits))
		}
	}
}

func TestGenerateRejectsBadParams(t *testing.T) {
	seed := make([]trinary.Trit, 243)
	nonce := make([]trinary.Trit, 18)

	if _, err := Generate(seed, nonce, 0, 2); err == nil {
		t.Fatalf("expected error for h=0")
	}
	if _, err := Generate(seed, nonce, 2, 1); err == nil {
		t.Fatalf("expected error for l=1")
	}
	if _, err := Generate(seed, nonce, 7, 3); err == nil {
		t.Fatalf("expected error for h*l=21 exceeding the 20-level limit")
	}
}

func TestDifferentNoncesGiveDifferentRoots(t *testing.T) {
	seed := tritsFromTrytes(t, "RSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQ")
	nonceA := make([]trinary.Trit, 18)
	nonceB := make([]trinary.Trit, 18)
	nonceB[0] = 1

	skA, err := Generate(seed, nonceA, 2, 2)
	if err != nil {
		t.Fatalf("Generate A: %v", err)
	}
	skB, err := Generate(seed, nonceB, 2, 2)
	if err != nil {
		t.Fatalf("Generate B: %v", err)
	}
	if *skA.PublicKey() == *skB.PublicKey() {
		t.Fatalf("distinct nonces produced identical MSS roots")
	}
}
