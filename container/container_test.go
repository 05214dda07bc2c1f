package container

import (
	"os"
	"testing"

	"github.com/iota-mam/mamcore/mss"
	"github.com/iota-mam/mamcore/trinary"
)

func testMessage(t *testing.T) []trinary.Trit {
	t.Helper()
	trits, err := trinary.TrytesToTrits(
		"NOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJKLMNOPQRSTUVWXYZ9ABCDEFGHIJK")
	if err != nil {
		t.Fatalf("TrytesToTrits: %v", err)
	}
	return trits[:77*3]
}

func TestFSContainerRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "mamcore-container-tests")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	ctr, cerr := OpenFSPrivateKeyContainer(dir + "/key")
	if cerr != nil {
		t.Fatalf("OpenFSPrivateKeyContainer: %v", cerr)
	}
	if ctr.Initialized() != nil {
		t.Fatalf("fresh container should not be initialized")
	}

	seed := make([]trinary.Trit, 243)
	for i := range seed {
		seed[i] = trinary.Trit(i%3) - 1
	}
	nonce := make([]trinary.Trit, 18)

	sk, merr := mss.Generate(seed, nonce, 2, 3)
	if merr != nil {
		t.Fatalf("mss.Generate: %v", merr)
	}
	pk := sk.PublicKey()

	if cerr = ctr.Reset(sk); cerr != nil {
		t.Fatalf("Reset: %v", cerr)
	}
	if ctr.Initialized() == nil {
		t.Fatalf("container should report initialized after Reset")
	}
	if !ctr.CacheInitialized() {
		t.Fatalf("cache should be initialized after Reset")
	}

	message := testMessage(t)

	sig, merr := sk.Sign(message)
	if merr != nil {
		t.Fatalf("Sign: %v", merr)
	}
	if !pk.Verify(message, sig) {
		t.Fatalf("signature produced before Save should verify")
	}
	if cerr = ctr.Save(sk); cerr != nil {
		t.Fatalf("Save: %v", cerr)
	}

	sig2, merr := sk.Sign(message)
	if merr != nil {
		t.Fatalf("second Sign: %v", merr)
	}
	if cerr = ctr.Save(sk); cerr != nil {
		t.Fatalf("second Save: %v", cerr)
	}

	sigsUsed, lost, cerr := ctr.GetSigsUsed()
	if cerr != nil {
		t.Fatalf("GetSigsUsed: %v", cerr)
	}
	if sigsUsed != 2 {
		t.Fatalf("GetSigsUsed=%d, want 2", sigsUsed)
	}
	if lost != 0 {
		t.Fatalf("GetSigsUsed reported %d lost signatures, want 0", lost)
	}

	if cerr = ctr.Close(); cerr != nil {
		t.Fatalf("Close: %v", cerr)
	}

	ctr, cerr = OpenFSPrivateKeyContainer(dir + "/key")
	if cerr != nil {
		t.Fatalf("reopen OpenFSPrivateKeyContainer: %v", cerr)
	}
	if ctr.Initialized() == nil {
		t.Fatalf("reopened container should report initialized")
	}
	if !ctr.CacheInitialized() {
		t.Fatalf("reopened container should have its cache initialized")
	}

	restored, merr := ctr.Load()
	if merr != nil {
		t.Fatalf("Load: %v", merr)
	}
	if restored.SigsUsed() != 2 {
		t.Fatalf("restored key SigsUsed=%d, want 2", restored.SigsUsed())
	}
	if *restored.PublicKey() != *pk {
		t.Fatalf("restored key has a different public key")
	}

	if !pk.Verify(message, sig) || !pk.Verify(message, sig2) {
		t.Fatalf("signatures produced before persistence should still verify")
	}

	sig3, merr := restored.Sign(message)
	if merr != nil {
		t.Fatalf("Sign after restore: %v", merr)
	}
	if sig3.SigsUsed != 2 {
		t.Fatalf("first signature after restore carries SigsUsed=%d, want 2", sig3.SigsUsed)
	}
	if !pk.Verify(message, sig3) {
		t.Fatalf("signature produced after restore failed to verify")
	}

	if cerr = ctr.Close(); cerr != nil {
		t.Fatalf("final Close: %v", cerr)
	}
}

func TestFSContainerBorrowSigs(t *testing.T) {
	dir, err := os.MkdirTemp("", "mamcore-container-tests")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	ctr, cerr := OpenFSPrivateKeyContainer(dir + "/key")
	if cerr != nil {
		t.Fatalf("OpenFSPrivateKeyContainer: %v", cerr)
	}

	seed := make([]trinary.Trit, 243)
	nonce := make([]trinary.Trit, 18)
	sk, merr := mss.Generate(seed, nonce, 2, 2)
	if merr != nil {
		t.Fatalf("mss.Generate: %v", merr)
	}
	if cerr = ctr.Reset(sk); cerr != nil {
		t.Fatalf("Reset: %v", cerr)
	}

	first, cerr := ctr.BorrowSigs(3)
	if cerr != nil {
		t.Fatalf("BorrowSigs: %v", cerr)
	}
	if first != 0 {
		t.Fatalf("BorrowSigs returned %d, want 0", first)
	}

	sigsUsed, lost, cerr := ctr.GetSigsUsed()
	if cerr != nil {
		t.Fatalf("GetSigsUsed: %v", cerr)
	}
	if sigsUsed != 3 || lost != 3 {
		t.Fatalf("GetSigsUsed=(%d,%d), want (3,3) before a confirming Save", sigsUsed, lost)
	}

	if cerr = ctr.Close(); cerr != nil {
		t.Fatalf("Close: %v", cerr)
	}
}
