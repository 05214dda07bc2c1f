// Package wots implements Winternitz One-Time Signatures over the
// ternary spongos hash (spec.md §4.5): a private key signs exactly one
// message; the public key is derived once from the private key.
package wots

import (
	"github.com/iota-mam/mamcore/internal/mamerr"
	"github.com/iota-mam/mamcore/prng"
	"github.com/iota-mam/mamcore/spongos"
	"github.com/iota-mam/mamcore/trinary"
)

const (
	// PartSize is the length, in trits, of one WOTS private-key part.
	PartSize = 162
	// MessagePartCount is the number of parts carrying message trytes.
	MessagePartCount = 77
	// ChecksumPartCount is the number of parts carrying the checksum.
	// See DESIGN.md / SPEC_FULL.md §6 for why this is 4, not 3.
	ChecksumPartCount = 4
	// PartCount is the total number of parts in a private key.
	PartCount = MessagePartCount + ChecksumPartCount // 81
	// PrivateKeySize is the total size, in trits, of a private key.
	PrivateKeySize = PartSize * PartCount // 13122
	// PublicKeySize is the size, in trits, of a public key.
	PublicKeySize = 243
	// MessageSize is the size, in trits, of the message hash WOTS signs.
	MessageSize = MessagePartCount * 3 // 231
	// chainLen is the number of hash iterations applied during public
	// key derivation: the full chain length every signature must be
	// able to walk up to.
	chainLen = 26
	// checksumModulus/checksumRadix drive the base-27 checksum digit
	// extraction (trinary.Mods/Divs), one digit per checksum part.
	checksumModulus = 19683 // 27^3
	checksumRadix   = 27
)

// PrivateKey is an 81-part, 13122-trit WOTS private key.
type PrivateKey struct {
	state [PrivateKeySize]trinary.Trit
}

// PublicKey is a 243-trit WOTS public key.
type PublicKey struct {
	state [PublicKeySize]trinary.Trit
}

// Signature is a 13122-trit WOTS signature, no framing.
type Signature struct {
	state [PrivateKeySize]trinary.Trit
}

// GeneratePrivateKey derives a WOTS private key from a PRNG seeded
// with seed, domain-separated by nonce (typically the leaf's encoded
// index, per spec.md §4.6 step 1).
func GeneratePrivateKey(seed []trinary.Trit, nonce []trinary.Trit) (*PrivateKey, mamerr.Error) {
	p, err := prng.New(seed)
	if err != nil {
		return nil, err
	}
	state := p.Generate(prng.WotsKey, nonce, PrivateKeySize)
	sk := &PrivateKey{}
	copy(sk.state[:], state)
	return sk, nil
}

// PublicKey derives the public key: 26 spongos hashes per 162-trit
// part, concatenated and hashed once more to 243 trits.
func (sk *PrivateKey) PublicKey() *PublicKey {
	sp := spongos.New()
	pkTmp := make([]trinary.Trit, 0, PrivateKeySize)
	for part := 0; part < PartCount; part++ {
		chunk := sk.state[part*PartSize : (part+1)*PartSize]
		pkTmp = append(pkTmp, chainHash(sp, chunk, chainLen)...)
	}
	var pk PublicKey
	copy(pk.state[:], sp.Hash(pkTmp, PublicKeySize))
	return &pk
}

// chainHash walks the hash chain starting at start for n iterations,
// returning the final value. start is never mutated.
func chainHash(sp *spongos.Spongos, start []trinary.Trit, n int) []trinary.Trit {
	cur := append([]trinary.Trit(nil), start...)
	for i := 0; i < n; i++ {
		cur = sp.Hash(cur, PartSize)
	}
	return cur
}

// Sign signs a MessageSize (231-trit, 77 tryte values) message hash;
// any other length, a 234-trit hash included, is rejected with
// InputShape. The first 77 parts reveal the chain value after (h_i+13) iterations for each
// message tryte h_i; a checksum t = -sum(h_i) is encoded as 4 base-27
// digits (trinary.Mods/Divs) and applied the same way to the remaining
// 4 parts.
func (sk *PrivateKey) Sign(message []trinary.Trit) (*Signature, mamerr.Error) {
	if len(message) != MessagePartCount*3 {
		return nil, mamerr.Errorf(mamerr.InputShape, "wots: message must be %d trits, got %d", MessagePartCount*3, len(message))
	}

	var sig Signature
	sp := spongos.New()
	var t int64

	for part := 0; part < MessagePartCount; part++ {
		h := trinary.TritsToValue(message[part*3 : part*3+3])
		t += h
		chunk := sk.state[part*PartSize : (part+1)*PartSize]
		out := chainHash(sp, chunk, int(h+13))
		copy(sig.state[part*PartSize:(part+1)*PartSize], out)
	}

	t = -t
	for i := 0; i < ChecksumPartCount; i++ {
		h := trinary.Mods(t, checksumModulus, checksumRadix)
		t = trinary.Divs(t, checksumModulus, checksumRadix)
		part := MessagePartCount + i
		chunk := sk.state[part*PartSize : (part+1)*PartSize]
		out := chainHash(sp, chunk, int(h+13))
		copy(sig.state[part*PartSize:(part+1)*PartSize], out)
	}

	return &sig, nil
}

// RecoverPublicKey recovers the public key a signature was produced
// with for message: the dual of Sign, applying (13-h_i) further chain
// iterations from the revealed signature values.
func (sig *Signature) RecoverPublicKey(message []trinary.Trit) (*PublicKey, mamerr.Error) {
	if len(message) != MessagePartCount*3 {
		return nil, mamerr.Errorf(mamerr.InputShape, "wots: message must be %d trits, got %d", MessagePartCount*3, len(message))
	}

	sp := spongos.New()
	var t int64
	buf := make([]trinary.Trit, PrivateKeySize)
	copy(buf, sig.state[:])

	for part := 0; part < MessagePartCount; part++ {
		hRaw := trinary.TritsToValue(message[part*3 : part*3+3])
		t += hRaw
		h := -hRaw
		chunk := buf[part*PartSize : (part+1)*PartSize]
		out := chainHash(sp, chunk, int(h+13))
		copy(chunk, out)
	}

	t = -t
	for i := 0; i < ChecksumPartCount; i++ {
		hRaw := trinary.Mods(t, checksumModulus, checksumRadix)
		t = trinary.Divs(t, checksumModulus, checksumRadix)
		h := -hRaw
		part := MessagePartCount + i
		chunk := buf[part*PartSize : (part+1)*PartSize]
		out := chainHash(sp, chunk, int(h+13))
		copy(chunk, out)
	}

	var pk PublicKey
	copy(pk.state[:], sp.Hash(buf, PublicKeySize))
	return &pk, nil
}

// Verify reports whether sig is a valid signature for message under pk.
func (pk *PublicKey) Verify(message []trinary.Trit, sig *Signature) bool {
	recovered, err := sig.RecoverPublicKey(message)
	if err != nil {
		return false
	}
	var diff trinary.Trit
	for i := range pk.state {
		diff |= pk.state[i] ^ recovered.state[i]
	}
	return diff == 0
}

// Bytes returns the raw trits of a public key.
func (pk *PublicKey) Bytes() []trinary.Trit { return pk.state[:] }

// PublicKeyFromTrits reconstructs a PublicKey from its 243-trit wire form.
func PublicKeyFromTrits(trits []trinary.Trit) (*PublicKey, mamerr.Error) {
	if len(trits) != PublicKeySize {
		return nil, mamerr.Errorf(mamerr.InputShape, "wots: public key must be %d trits, got %d", PublicKeySize, len(trits))
	}
	var pk PublicKey
	copy(pk.state[:], trits)
	return &pk, nil
}

// Bytes returns the raw trits of a signature.
func (sig *Signature) Bytes() []trinary.Trit { return sig.state[:] }

// SignatureFromTrits reconstructs a Signature from its 13122-trit wire form.
func SignatureFromTrits(trits []trinary.Trit) (*Signature, mamerr.Error) {
	if len(trits) != PrivateKeySize {
		return nil, mamerr.Errorf(mamerr.InputShape, "wots: signature must be %d trits, got %d", PrivateKeySize, len(trits))
	}
	var sig Signature
	copy(sig.state[:], trits)
	return &sig, nil
}
