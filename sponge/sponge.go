// Package sponge implements the ternary MAM cryptographic sponge in
// duplex mode: rate/capacity/control partitioning, control-trit domain
// separation, and absorb/squeeze/encrypt/decrypt/hash built on the
// Ftroika permutation.
//
// Grounded on the Sponge implementation in this module's reference
// corpus (the pure, non-FFI version): see DESIGN.md.
package sponge

import (
	"github.com/iota-mam/mamcore/internal/mamerr"
	"github.com/iota-mam/mamcore/trinary"
	"github.com/iota-mam/mamcore/ternary/troika"
)

const (
	// Rate is the number of trits absorbed/squeezed per transform.
	Rate = 486
	// Control is the number of domain-separation trits in the state.
	Control = 6
	// Capacity is never directly written by callers.
	Capacity = 237
	// Width is the full sponge state size in trits.
	Width = Rate + Control + Capacity

	// KeySize, HashSize and MacSize are the three fixed output/input
	// sizes this core works with; all equal 243 trits.
	KeySize  = 243
	HashSize = 243
	MacSize  = 243
)

// Ctrl is a control-trit domain separator.
type Ctrl int

const (
	CtrlData Ctrl = iota
	CtrlHash
	CtrlKey
	CtrlPrn
	CtrlText
	CtrlMac
)

// trit returns the control-trit value written into the state for c.
func (c Ctrl) trit() trinary.Trit {
	switch c {
	case CtrlData, CtrlHash:
		return 0
	case CtrlKey, CtrlPrn:
		return 1
	case CtrlText, CtrlMac:
		return -1
	default:
		panic("sponge: unknown control tag")
	}
}

// Sponge is a 729-trit MAM sponge state.
type Sponge struct {
	state [Width]trinary.Trit
}

// New returns a freshly reset Sponge.
func New() *Sponge {
	return &Sponge{}
}

// Reset zeroises the sponge state.
func (s *Sponge) Reset() {
	for i := range s.state {
		s.state[i] = 0
	}
}

// transform lifts each balanced trit t to t+1, runs the Ftroika
// permutation over the lifted state and lowers the result via v-1.
func (s *Sponge) transform() {
	var buf [Width]int8
	for i, t := range s.state {
		buf[i] = t + 1
	}
	troika.Permute729(&buf)
	for i, v := range buf {
		s.state[i] = v - 1
	}
}

// Transform runs the Ftroika permutation once over the raw state.
// Exposed for spongos, which drives the rate cursor directly.
func (s *Sponge) Transform() { s.transform() }

// StateAt reads trit i of the raw state (0..Width).
func (s *Sponge) StateAt(i int) trinary.Trit { return s.state[i] }

// SetStateAt writes trit i of the raw state (0..Width).
func (s *Sponge) SetStateAt(i int, v trinary.Trit) { s.state[i] = v }

// Clone returns an independent copy of the sponge state.
func (s *Sponge) Clone() *Sponge {
	c := *s
	return &c
}

// Absorb absorbs data under the given control tag, which must be
// CtrlData or CtrlKey.
func (s *Sponge) Absorb(c Ctrl, data []trinary.Trit) mamerr.Error {
	if c != CtrlData && c != CtrlKey {
		return mamerr.Errorf(mamerr.ControlInvalid, "sponge: absorb requires Data or Key control, got %d", c)
	}

	rData := data
	if len(rData) == 0 {
		rData = []trinary.Trit{0}
	}

	n := (len(rData) + Rate - 1) / Rate
	ctrl := c.trit()
	for idx := 0; idx < n; idx++ {
		start := idx * Rate
		end := start + Rate
		if end > len(rData) {
			end = len(rData)
		}
		chunk := rData[start:end]

		c0 := trinary.Trit(0)
		if len(chunk) == Rate {
			c0 = 1
		}
		c1 := trinary.Trit(1)
		if idx == n-1 {
			c1 = -1
		}

		if s.state[Rate+1] != 0 {
			s.state[489] = c0
			s.state[490] = c1
			s.state[491] = ctrl
			s.transform()
		}

		var padr [Rate + 1]trinary.Trit
		copy(padr[:], chunk)
		padr[len(chunk)] = 1
		copy(s.state[:Rate+1], padr[:])
		s.state[Rate+1] = c1
		s.state[Rate+2] = ctrl
	}
	return nil
}

// Squeeze squeezes n trits under the given control tag.
func (s *Sponge) Squeeze(c Ctrl, n int) []trinary.Trit {
	out := make([]trinary.Trit, n)
	total := (n + Rate - 1) / Rate
	ctrl := c.trit()
	produced := 0
	for idx := 0; idx < total; idx++ {
		remaining := n - produced
		chunkLen := Rate
		if remaining < Rate {
			chunkLen = remaining
		}

		t1 := trinary.Trit(1)
		if idx == total-1 {
			t1 = -1
		}
		s.state[489] = -1
		s.state[490] = t1
		s.state[491] = ctrl

		s.transform()

		copy(out[produced:produced+chunkLen], s.state[:chunkLen])

		if chunkLen == Rate {
			for i := 0; i < Rate; i++ {
				s.state[i] = 0
			}
		} else {
			var padr [Rate]trinary.Trit
			padr[chunkLen-1] = 1
			copy(s.state[:Rate], padr[:])
		}
		s.state[Rate] = -1
		s.state[Rate+1] = t1
		s.state[Rate+2] = ctrl

		produced += chunkLen
	}
	return out
}

// Hash resets the sponge, absorbs plain under CtrlData and squeezes
// hashLen trits under CtrlHash.
func (s *Sponge) Hash(plain []trinary.Trit, hashLen int) []trinary.Trit {
	s.Reset()
	// Data and Key are the only valid absorb controls; absorb never
	// fails for CtrlData.
	_ = s.Absorb(CtrlData, plain)
	return s.Squeeze(CtrlHash, hashLen)
}

// Encrypt runs duplex-mode encryption: ciphertext[i] = plain[i] +
// state[i] (balanced mod 3), then the plaintext itself is re-injected
// as the new rate state.
func (s *Sponge) Encrypt(plain []trinary.Trit) []trinary.Trit {
	cipher := make([]trinary.Trit, len(plain))
	n := (len(plain) + Rate - 1) / Rate
	if n == 0 {
		n = 1
	}
	for idx := 0; idx < n; idx++ {
		start := idx * Rate
		end := start + Rate
		if end > len(plain) {
			end = len(plain)
		}
		chunk := plain[start:end]

		t0 := trinary.Trit(0)
		if len(chunk) == Rate {
			t0 = 1
		}
		t1 := trinary.Trit(1)
		if idx == n-1 {
			t1 = -1
		}

		s.state[489] = t0
		s.state[490] = t1
		s.state[491] = -1
		s.transform()

		for i, p := range chunk {
			cipher[start+i] = trinary.AddMod3(p, s.state[i])
		}

		var padr [Rate + 1]trinary.Trit
		copy(padr[:], chunk)
		padr[len(chunk)] = 1
		copy(s.state[:Rate+1], padr[:])
		s.state[Rate+1] = t1
		s.state[Rate+2] = -1
	}
	return cipher
}

// Decrypt is the dual of Encrypt.
func (s *Sponge) Decrypt(cipher []trinary.Trit) []trinary.Trit {
	plain := make([]trinary.Trit, len(cipher))
	n := (len(cipher) + Rate - 1) / Rate
	if n == 0 {
		n = 1
	}
	for idx := 0; idx < n; idx++ {
		start := idx * Rate
		end := start + Rate
		if end > len(cipher) {
			end = len(cipher)
		}
		chunk := cipher[start:end]

		t0 := trinary.Trit(0)
		if len(chunk) == Rate {
			t0 = 1
		}
		t1 := trinary.Trit(1)
		if idx == n-1 {
			t1 = -1
		}

		s.state[489] = t0
		s.state[490] = t1
		s.state[491] = -1
		s.transform()

		chunkPt := make([]trinary.Trit, len(chunk))
		for i, c := range chunk {
			chunkPt[i] = trinary.SubMod3(c, s.state[i])
		}
		copy(plain[start:], chunkPt)

		var padr [Rate + 1]trinary.Trit
		copy(padr[:], chunkPt)
		padr[len(chunkPt)] = 1
		copy(s.state[:Rate+1], padr[:])
		s.state[Rate+1] = t1
		s.state[Rate+2] = -1
	}
	return plain
}
