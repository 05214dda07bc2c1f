// Package spongos implements the cursor-tracked streaming wrapper over
// the ternary sponge (spec.md §4.3): commit, fork, hash, absorb,
// squeeze, encrypt and decrypt, with an automatic transform whenever
// the rate cursor fills.
//
// fork() is the sanctioned way to branch a Spongos without disturbing
// the original's state; a live cursor must never be shared across
// operations (spec.md §5). The mss package does not fork: it uses a
// fresh Spongos per operation.
package spongos

import (
	"github.com/iota-mam/mamcore/internal/mamerr"
	"github.com/iota-mam/mamcore/sponge"
	"github.com/iota-mam/mamcore/trinary"
)

// Spongos wraps a sponge.Sponge with a rate-position cursor.
type Spongos struct {
	inner *sponge.Sponge
	pos   int
}

// New returns a freshly reset Spongos.
func New() *Spongos {
	return &Spongos{inner: sponge.New()}
}

// Reset zeroises the state and cursor.
func (s *Spongos) Reset() {
	s.inner.Reset()
	s.pos = 0
}

// Fork returns an independent copy of s. The sanctioned way to branch
// a Spongos without disturbing the caller's own cursor.
func (s *Spongos) Fork() *Spongos {
	return &Spongos{inner: s.inner.Clone(), pos: s.pos}
}

// Commit forces an early transform if pos != 0.
func (s *Spongos) Commit() {
	if s.pos != 0 {
		s.inner.Transform()
		s.pos = 0
	}
}

// Absorb absorbs data under the given control tag. Delegates framing
// to the underlying duplex sponge and leaves the cursor at 0,
// matching the "pos == 0 immediately after commit" invariant.
func (s *Spongos) Absorb(c sponge.Ctrl, data []trinary.Trit) mamerr.Error {
	if err := s.inner.Absorb(c, data); err != nil {
		return err
	}
	s.pos = 0
	return nil
}

// Squeeze squeezes n trits under the given control tag.
func (s *Spongos) Squeeze(c sponge.Ctrl, n int) []trinary.Trit {
	out := s.inner.Squeeze(c, n)
	s.pos = 0
	return out
}

// Hash absorbs data under CtrlData then squeezes hashLen trits under
// CtrlHash, on a freshly reset state.
func (s *Spongos) Hash(data []trinary.Trit, hashLen int) []trinary.Trit {
	s.Reset()
	out := s.inner.Hash(data, hashLen)
	s.pos = 0
	return out
}

// Encrypt streams plain through the duplex rate one trit at a time:
// each output trit is (plain + state[pos]) mod 3 (balanced), after
// which state[pos] is overwritten with the plaintext trit (duplex
// re-injection) and pos advances, transforming whenever pos reaches
// the rate.
func (s *Spongos) Encrypt(plain []trinary.Trit) []trinary.Trit {
	out := make([]trinary.Trit, len(plain))
	for i, p := range plain {
		if s.pos == sponge.Rate {
			s.inner.Transform()
			s.pos = 0
		}
		c := trinary.AddMod3(p, s.inner.StateAt(s.pos))
		s.inner.SetStateAt(s.pos, p)
		out[i] = c
		s.pos++
	}
	return out
}

// Decrypt is the dual of Encrypt: each output (plaintext) trit is
// (cipher - state[pos]) mod 3, then state[pos] is overwritten with
// the recovered plaintext trit (the same duplex re-injection Encrypt
// performs) before pos advances.
func (s *Spongos) Decrypt(cipher []trinary.Trit) []trinary.Trit {
	out := make([]trinary.Trit, len(cipher))
	for i, c := range cipher {
		if s.pos == sponge.Rate {
			s.inner.Transform()
			s.pos = 0
		}
		p := trinary.SubMod3(c, s.inner.StateAt(s.pos))
		s.inner.SetStateAt(s.pos, p)
		out[i] = p
		s.pos++
	}
	return out
}
