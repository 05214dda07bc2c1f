package mss

import (
	"fmt"

	"github.com/iota-mam/mamcore/trinary"
)

// State is the complete, serialisable snapshot of a PrivateKey: every
// field a container needs to persist to resume signing without
// re-deriving any already-computed subtree. Container implementations
// live outside this package (see the container package) and round-trip
// PrivateKey through Export/Restore rather than touching its private
// fields directly.
type State struct {
	H, L uint32

	Seed  []trinary.Trit
	Nonce []trinary.Trit

	SigsUsed uint64

	Exist           [][]trinary.Trit
	Desired         [][]trinary.Trit
	DesiredStack    [][]stackItem
	DesiredProgress []uint64
	DesiredDone     []bool

	Root [NodeSize]trinary.Trit
}

// Export snapshots sk's full internal state.
func (sk *PrivateKey) Export() State {
	return State{
		H:               sk.h,
		L:               sk.l,
		Seed:            append([]trinary.Trit(nil), sk.seed...),
		Nonce:           append([]trinary.Trit(nil), sk.nonce...),
		SigsUsed:        sk.sigsUsed,
		Exist:           copySubtrees(sk.exist),
		Desired:         copySubtrees(sk.desired),
		DesiredStack:    copyStacks(sk.desiredStack),
		DesiredProgress: append([]uint64(nil), sk.desiredProgress...),
		DesiredDone:     append([]bool(nil), sk.desiredDone...),
		Root:            sk.root,
	}
}

// Restore reconstructs a PrivateKey from a State previously produced
// by Export, without re-deriving any leaf. If DesiredStack is nil
// (it holds only the not-yet-combined nodes of an in-progress
// desired-subtree Treehash), Restore starts every level with an empty
// stack; desiredProgress is kept as stored, so a level that had
// pending stack items continues its Treehash without them and its
// desired subtree no longer matches the one an unbroken key builds.
func Restore(s State) *PrivateKey {
	return RestoreWithStacks(s, s.DesiredStack)
}

// RestoreWithStacks is Restore, but takes the desired-subtree Treehash
// stacks separately: a container that persists them via
// MarshalDesiredStacks/UnmarshalDesiredStacks (instead of round-tripping
// a State value, whose DesiredStack field it cannot construct outside
// this package) decodes them and passes the result here.
func RestoreWithStacks(s State, stacks [][]stackItem) *PrivateKey {
	desiredStack := stacks
	if desiredStack == nil && s.L > 0 {
		desiredStack = make([][]stackItem, s.L-1)
	}
	sk := &PrivateKey{
		h:               s.H,
		l:               s.L,
		seed:            append([]trinary.Trit(nil), s.Seed...),
		nonce:           append([]trinary.Trit(nil), s.Nonce...),
		sigsUsed:        s.SigsUsed,
		exist:           copySubtrees(s.Exist),
		desired:         copySubtrees(s.Desired),
		desiredStack:    copyStacks(desiredStack),
		desiredProgress: append([]uint64(nil), s.DesiredProgress...),
		desiredDone:     append([]bool(nil), s.DesiredDone...),
		root:            s.Root,
	}
	return sk
}

func copySubtrees(in [][]trinary.Trit) [][]trinary.Trit {
	out := make([][]trinary.Trit, len(in))
	for i, buf := range in {
		out[i] = append([]trinary.Trit(nil), buf...)
	}
	return out
}

func copyStacks(in [][]stackItem) [][]stackItem {
	out := make([][]stackItem, len(in))
	for i, st := range in {
		out[i] = append([]stackItem(nil), st...)
	}
	return out
}

// MarshalDesiredStacks encodes DesiredStack as a flat trit slice a
// container can store alongside the key file's other small fields:
// per level, a 4-trit count followed by (level, pos, hash) triples.
// This is small (at most (ell+1)*h pending items at level ell) and worth
// persisting exactly, unlike the bulk exist/desired buffers, since
// losing it mid-build would desynchronize a level's incremental
// Treehash from its recorded progress counter.
func (s State) MarshalDesiredStacks() []trinary.Trit {
	var out []trinary.Trit
	for _, st := range s.DesiredStack {
		out = append(out, trinary.Encode4(int64(len(st)))...)
		for _, item := range st {
			out = append(out, trinary.Encode4(int64(item.level))...)
			out = append(out, trinary.Encode14(int64(item.pos))...)
			out = append(out, item.hash[:]...)
		}
	}
	return out
}

// stackItemWireSize is the width, in trits, of one encoded stack item.
const stackItemWireSize = 4 + 14 + NodeSize

// UnmarshalDesiredStacks parses a trit slice produced by
// MarshalDesiredStacks back into l-1 per-level stacks.
func UnmarshalDesiredStacks(trits []trinary.Trit, l uint32) ([][]stackItem, error) {
	out := make([][]stackItem, l-1)
	pos := 0
	for ell := range out {
		if pos+4 > len(trits) {
			return nil, fmt.Errorf("mss: truncated desired-stack count at level %d", ell)
		}
		count := trinary.Decode(trits[pos : pos+4])
		pos += 4
		if count < 0 {
			return nil, fmt.Errorf("mss: negative desired-stack count at level %d", ell)
		}
		items := make([]stackItem, 0, count)
		for i := int64(0); i < count; i++ {
			if pos+stackItemWireSize > len(trits) {
				return nil, fmt.Errorf("mss: truncated desired-stack item at level %d", ell)
			}
			var item stackItem
			item.level = uint32(trinary.Decode(trits[pos : pos+4]))
			pos += 4
			item.pos = uint64(trinary.Decode(trits[pos : pos+14]))
			pos += 14
			copy(item.hash[:], trits[pos:pos+NodeSize])
			pos += NodeSize
			items = append(items, item)
		}
		out[ell] = items
	}
	return out, nil
}
