// Package trinary implements balanced-trit and tryte arithmetic: the
// primitives every other package in this module is built from.
//
// A Trit is an integer in {-1, 0, +1}. A Tryte packs three trits into a
// balanced integer in [-13, +13]. Buffers of trits are ordered
// least-significant trit first when interpreted numerically.
package trinary

import (
	"fmt"
	"strings"
)

// Trit is a balanced ternary digit: -1, 0, or +1.
type Trit = int8

// TryteAlphabet maps alphabet index 0..26 to its canonical character.
// Index i holds the character for the balanced tryte value i (for
// i <= 13) or i-27 (for i >= 14); see TrytesToTrits/TritsToTrytes.
var TryteAlphabet = [27]byte{
	'9', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M',
	'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z',
}

// TrytesTritsLUT[i] gives the three trits (least-significant first)
// represented by TryteAlphabet[i].
var TrytesTritsLUT = [27][3]Trit{
	{0, 0, 0}, {1, 0, 0}, {-1, 1, 0}, {0, 1, 0}, {1, 1, 0}, {-1, -1, 1},
	{0, -1, 1}, {1, -1, 1}, {-1, 0, 1}, {0, 0, 1}, {1, 0, 1}, {-1, 1, 1},
	{0, 1, 1}, {1, 1, 1}, {-1, -1, -1}, {0, -1, -1}, {1, -1, -1},
	{-1, 0, -1}, {0, 0, -1}, {1, 0, -1}, {-1, 1, -1}, {0, 1, -1},
	{1, 1, -1}, {-1, -1, 0}, {0, -1, 0}, {1, -1, 0}, {-1, 0, 0},
}

var alphabetIndexLUT = buildAlphabetIndexLUT()

func buildAlphabetIndexLUT() map[byte]int {
	m := make(map[byte]int, 27)
	for i, c := range TryteAlphabet {
		m[c] = i
	}
	return m
}

// IsValid reports whether t is a legal trit value.
func IsValid(t Trit) bool { return t >= -1 && t <= 1 }

// Add computes (a+b) as a balanced trit plus a carry trit, folding any
// out-of-range sum back into {-1,0,1}: a sum of 2 folds to -1 with
// carry +1, a sum of -2 folds to +1 with carry -1.
func Add(a, b Trit) (sum, carry Trit) {
	s := a + b
	switch {
	case s > 1:
		return s - 3, 1
	case s < -1:
		return s + 3, -1
	default:
		return s, 0
	}
}

// AddMod3 folds a+b into {-1,0,1} without a separate carry output,
// matching the sponge duplex's encrypt/decrypt overflow folding
// ({-2 -> 1, 2 -> -1}).
func AddMod3(a, b Trit) Trit {
	s := a + b
	switch {
	case s == 2:
		return -1
	case s == -2:
		return 1
	default:
		return s
	}
}

// SubMod3 folds a-b into {-1,0,1}, the dual of AddMod3 used by decrypt.
func SubMod3(a, b Trit) Trit {
	return AddMod3(a, -b)
}

// TritsFromValue converts an integer into its balanced-ternary
// representation, least-significant trit first, extending to length
// trits (padded with zero trits, or truncated — callers must choose a
// length wide enough for the value).
func TritsFromValue(value int64, length int) []Trit {
	out := make([]Trit, length)
	v := value
	for i := 0; i < length; i++ {
		rem := v % 3
		if rem > 1 {
			rem -= 3
		} else if rem < -1 {
			rem += 3
		}
		out[i] = Trit(rem)
		v = (v - rem) / 3
	}
	return out
}

// TritsToValue interprets trits (least-significant first) as a signed
// integer using Horner's method.
func TritsToValue(trits []Trit) int64 {
	var ret int64
	for i := len(trits) - 1; i >= 0; i-- {
		ret = ret*3 + int64(trits[i])
	}
	return ret
}

// Mods extracts one balanced base-radix digit from value after first
// reducing value into a balanced representative modulo modulus.
// Generalises the repeated balanced-ternary digit extraction in
// TritsFromValue to an arbitrary odd radix; used by the WOTS checksum
// encoding (radix 27, modulus 19683 = 27^3).
func Mods(value, modulus, radix int64) int64 {
	v := balancedMod(value, modulus)
	return balancedMod(v, radix)
}

// Divs returns the quotient left after Mods(value, modulus, radix) has
// removed the least significant digit.
func Divs(value, modulus, radix int64) int64 {
	v := balancedMod(value, modulus)
	d := balancedMod(v, radix)
	return (v - d) / radix
}

func balancedMod(value, modulus int64) int64 {
	v := value % modulus
	half := modulus / 2
	if v > half {
		v -= modulus
	} else if v < -half {
		v += modulus
	}
	return v
}

// TrytesToTrits decodes a string over the 27-character tryte alphabet
// into its trit sequence (3 trits per character, least-significant
// first within each tryte).
func TrytesToTrits(trytes string) ([]Trit, error) {
	out := make([]Trit, 0, len(trytes)*3)
	for i := 0; i < len(trytes); i++ {
		idx, ok := alphabetIndexLUT[trytes[i]]
		if !ok {
			return nil, fmt.Errorf("trinary: invalid tryte character %q at offset %d", trytes[i], i)
		}
		out = append(out, TrytesTritsLUT[idx][:]...)
	}
	return out, nil
}

// TritsToTrytes encodes a trit sequence (length a multiple of 3) into
// the tryte alphabet.
func TritsToTrytes(trits []Trit) (string, error) {
	if len(trits)%3 != 0 {
		return "", fmt.Errorf("trinary: trit sequence length %d is not a multiple of 3", len(trits))
	}
	var b strings.Builder
	b.Grow(len(trits) / 3)
	for i := 0; i < len(trits); i += 3 {
		v := trits[i] + trits[i+1]*3 + trits[i+2]*9
		idx := v
		if idx < 0 {
			idx += 27
		}
		if idx < 0 || idx > 26 {
			return "", fmt.Errorf("trinary: trit triple at offset %d is out of tryte range", i)
		}
		b.WriteByte(TryteAlphabet[idx])
	}
	return b.String(), nil
}
