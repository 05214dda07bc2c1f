package mss

import "github.com/iota-mam/mamcore/trinary"

// NodeSize is the width, in trits, of one stored tree node (a WOTS
// public key at the leaf level, or a spongos hash above it).
const NodeSize = 243

// subtreeSlots returns the number of NodeSize-wide slots a single
// height-h subtree buffer needs: the canonical geometry this
// repository resolved §9's open question with (2^(h+1) - 2), covering
// local levels 0..h-1 (exlev h..1) of one subtree instance. See
// DESIGN.md.
func subtreeSlots(h uint32) int {
	return (1<<(h+1) - 2)
}

// slotFor returns the slot index within a height-h subtree buffer for
// a node at local level (0 = the subtree's own leaf level) and
// position pos (interpreted modulo the number of positions at that
// level, so any global node lands in the slot of its local subtree
// instance).
func slotFor(h uint32, localLevel uint32, pos uint64) int {
	exlev := h - localLevel
	mask := uint64(1)<<exlev - 1
	posInSubtree := pos & mask
	return int(posInSubtree) + (1 << exlev) - 2
}

// nodeAt reads the NodeSize trits stored at the given local level/pos
// in a subtree buffer (exist[ell] or desired[ell]).
func nodeAt(buf []trinary.Trit, h uint32, localLevel uint32, pos uint64) []trinary.Trit {
	slot := slotFor(h, localLevel, pos)
	return buf[slot*NodeSize : (slot+1)*NodeSize]
}

// setNodeAt writes hash into the slot for local level/pos in buf.
func setNodeAt(buf []trinary.Trit, h uint32, localLevel uint32, pos uint64, hash []trinary.Trit) {
	slot := slotFor(h, localLevel, pos)
	copy(buf[slot*NodeSize:(slot+1)*NodeSize], hash)
}

// stackItem is one pending node of the global (Generate) or per-level
// (desired-subtree Treehash) folding stack: spec.md §4.6 describes
// both constructions as "push a leaf, then repeatedly fold the top two
// equal-level entries" — the same mechanic, generalized to store into
// whichever subtree buffer the combined node's window covers.
type stackItem struct {
	level uint32
	pos   uint64
	hash  [NodeSize]trinary.Trit
}
