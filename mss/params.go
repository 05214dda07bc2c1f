//go:generate enumer -type Params

package mss

import (
	"fmt"
	"math"
	"math/bits"
)

// Params names the two integers the MSS fractal scheme is configured
// with (spec.md §3): SubtreeHeight (h, the height of each exist/desired
// subtree) and Levels (L, the number of stacked subtrees). The total
// tree height H = SubtreeHeight*Levels must not exceed 20.
type Params struct {
	SubtreeHeight uint32 // h
	Levels        uint32 // L
}

// H returns the total tree height h*L.
func (p Params) H() uint32 { return p.SubtreeHeight * p.Levels }

// SigCount returns the number of signatures 2^H this configuration
// supports.
func (p Params) SigCount() uint64 { return uint64(1) << p.H() }

func (p Params) String() string {
	return fmt.Sprintf("MSS%d/%d", p.SubtreeHeight, p.Levels)
}

// regEntry is an entry in the named-configuration registry, mirroring
// the teacher's params.go regEntry shape (name/oid/params).
type regEntry struct {
	name   string
	oid    uint32
	params Params
}

// registry lists configurations small enough to exercise in tests
// (H <= 8) alongside a couple of the larger, more realistic depths a
// deployment would actually choose.
var registry = []regEntry{
	{"MSS2/2", 0x01, Params{2, 2}},
	{"MSS2/3", 0x02, Params{2, 3}},
	{"MSS4/2", 0x03, Params{4, 2}},
	{"MSS5/4", 0x04, Params{5, 4}},
	{"MSS10/2", 0x05, Params{10, 2}},
	{"MSS4/5", 0x06, Params{4, 5}},
}

var (
	registryNameLut map[string]regEntry
	registryOidLut  map[uint32]regEntry
)

func init() {
	registryNameLut = make(map[string]regEntry, len(registry))
	registryOidLut = make(map[uint32]regEntry, len(registry))
	for _, e := range registry {
		registryNameLut[e.name] = e
		registryOidLut[e.oid] = e
	}
}

// ParamsFromName returns the named configuration, or nil if name is
// not registered.
func ParamsFromName(name string) *Params {
	e, ok := registryNameLut[name]
	if !ok {
		return nil
	}
	p := e.params
	return &p
}

// ListNames returns the names of every registered configuration.
func ListNames() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.name
	}
	return names
}

// MarshalBinary encodes p as a compact 4-byte OID: 0xed magic, then
// the registry OID if p is registered, or 0 followed by h/L as raw
// bytes otherwise. Mirrors the teacher's Params.MarshalBinary magic-
// prefixed packing (params.go).
func (p Params) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	buf[0] = 0xed
	if e, ok := registryNameLut[p.String()]; ok {
		buf[1] = byte(e.oid)
		return buf, nil
	}
	if p.SubtreeHeight > 255 || p.Levels > 255 {
		return nil, fmt.Errorf("mss: h=%d or l=%d too large to encode", p.SubtreeHeight, p.Levels)
	}
	buf[1] = 0
	buf[2] = byte(p.SubtreeHeight)
	buf[3] = byte(p.Levels)
	return buf, nil
}

// UnmarshalBinary decodes p as encoded by MarshalBinary.
func (p *Params) UnmarshalBinary(buf []byte) error {
	if len(buf) != 4 {
		return fmt.Errorf("mss: params OID must be 4 bytes, got %d", len(buf))
	}
	if buf[0] != 0xed {
		return fmt.Errorf("mss: params OID has the wrong magic byte")
	}
	if buf[1] == 0 {
		p.SubtreeHeight = uint32(buf[2])
		p.Levels = uint32(buf[3])
		return nil
	}
	e, ok := registryOidLut[uint32(buf[1])]
	if !ok {
		return fmt.Errorf("mss: unknown registry OID %d", buf[1])
	}
	*p = e.params
	return nil
}

// FromDepth is the collaborator-facing convenience named in spec.md
// §6: given a target total height H, it chooses a subtree height
// h=floor(log2(H)) and level count L=round(H/h). The resulting h*L is
// not guaranteed to equal H exactly — this is an approximate
// convenience constructor, not an exact-height solver.
func FromDepth(H uint32) Params {
	if H == 0 {
		return Params{1, 2}
	}
	h := uint32(bits.Len32(H)) - 1
	if h == 0 {
		h = 1
	}
	l := uint32(math.Round(float64(H) / float64(h)))
	if l < 2 {
		l = 2
	}
	return Params{SubtreeHeight: h, Levels: l}
}
