// Package prng implements the domain-separated PRNG (spec.md §4.4):
// deterministic expansion of (secret_key, destination tag, nonce) into
// an arbitrary-length trit stream via spongos.
package prng

//go:generate enumer -type DestTag

import (
	"github.com/iota-mam/mamcore/internal/mamerr"
	"github.com/iota-mam/mamcore/sponge"
	"github.com/iota-mam/mamcore/spongos"
	"github.com/iota-mam/mamcore/trinary"
)

// SecretKeySize is the required length, in trits, of a PRNG secret key.
const SecretKeySize = 243

// DestTag distinguishes use cases so that identical nonces never
// collide across WOTS keys and NTRU keys (spec.md §3, §6).
type DestTag int

const (
	SecretKey DestTag = iota
	WotsKey
	NtruKey
)

// trits returns the three-trit encoding of d: SecretKey=(0,0,0),
// WotsKey=(+1,0,0), NtruKey=(-1,+1,0).
func (d DestTag) trits() [3]trinary.Trit {
	switch d {
	case SecretKey:
		return [3]trinary.Trit{0, 0, 0}
	case WotsKey:
		return [3]trinary.Trit{1, 0, 0}
	case NtruKey:
		return [3]trinary.Trit{-1, 1, 0}
	default:
		panic("prng: unknown destination tag")
	}
}

// Prng deterministically expands a 243-trit secret key.
type Prng struct {
	secretKey [SecretKeySize]trinary.Trit
}

// New constructs a Prng from a 243-trit secret key.
func New(secretKey []trinary.Trit) (*Prng, mamerr.Error) {
	if len(secretKey) != SecretKeySize {
		return nil, mamerr.Errorf(mamerr.InputShape, "prng: secret key must be %d trits, got %d", SecretKeySize, len(secretKey))
	}
	p := &Prng{}
	copy(p.secretKey[:], secretKey)
	return p, nil
}

// Generate deterministically expands the secret key, dest tag and
// nonce into n trits of pseudorandom output.
func (p *Prng) Generate(dest DestTag, nonce []trinary.Trit, n int) []trinary.Trit {
	tag := dest.trits()
	buf := make([]trinary.Trit, 0, SecretKeySize+3+len(nonce))
	buf = append(buf, p.secretKey[:]...)
	buf = append(buf, tag[:]...)
	buf = append(buf, nonce...)

	sp := spongos.New()
	// CtrlKey is always valid for Absorb; the error return exists only
	// for the ControlInvalid case, which cannot occur here.
	_ = sp.Absorb(sponge.CtrlKey, buf)
	return sp.Squeeze(sponge.CtrlPrn, n)
}
