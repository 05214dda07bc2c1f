package trinary

// Encode4, Encode6, Encode14 and Encode18 are the fixed-width signed
// trit encodings spec.md names explicitly: Encode6 for a leaf index
// appended to a WOTS nonce, Encode4/Encode14 for the MSS signature
// header (H and sigs_used). Encode18 is the 18-trit width of the whole
// header; the header itself is written as Encode4 followed by Encode14.
func Encode4(value int64) []Trit  { return TritsFromValue(value, 4) }
func Encode6(value int64) []Trit  { return TritsFromValue(value, 6) }
func Encode14(value int64) []Trit { return TritsFromValue(value, 14) }
func Encode18(value int64) []Trit { return TritsFromValue(value, 18) }

// Decode is the dual of the Encode* family: interpret trits as a
// signed integer.
func Decode(trits []Trit) int64 { return TritsToValue(trits) }
