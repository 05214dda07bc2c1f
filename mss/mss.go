// Package mss implements the Merkle Signature Scheme with fractal
// (FMTseq-style) traversal over WOTS leaves (spec.md §4.6): the core
// of this module. A single flat binary tree of height H = h*L is
// built once at key generation; signing amortises the cost of
// producing each signature's authentication path to O(h) hashes by
// keeping L "exist" subtree buffers live and incrementally building
// the next ("desired") subtree at each level as signatures are
// consumed, swapping it in once it is needed.
package mss

import (
	"runtime"
	"sync"

	"github.com/iota-mam/mamcore/internal/mamerr"
	"github.com/iota-mam/mamcore/spongos"
	"github.com/iota-mam/mamcore/trinary"
	"github.com/iota-mam/mamcore/wots"
)

// PrivateKey is the fractal MSS private key: the seed/nonce needed to
// re-derive any leaf, the consumed-signature counter, and the
// exist/desired subtree caches that make signing O(h) instead of
// O(2^H).
type PrivateKey struct {
	h, l uint32 // subtree height, level count; H = h*l

	seed  []trinary.Trit
	nonce []trinary.Trit

	sigsUsed uint64

	exist           [][]trinary.Trit  // L buffers, each subtreeSlots(h)*NodeSize trits
	desired         [][]trinary.Trit  // L-1 buffers, nil once that level is retired
	desiredStack    [][]stackItem     // L-1 transient Treehash stacks
	desiredProgress []uint64          // L-1 counters, up to 2^((ell+1)*h)
	desiredDone     []bool            // L-1 flags: no further subtree needed at/above this level

	root [NodeSize]trinary.Trit
}

// H returns the total tree height h*l.
func (sk *PrivateKey) H() uint32 { return sk.h * sk.l }

// SigsUsed returns the number of signatures already produced.
func (sk *PrivateKey) SigsUsed() uint64 { return sk.sigsUsed }

// SigsRemaining returns the number of signatures this key can still
// produce before KeyExhausted.
func (sk *PrivateKey) SigsRemaining() uint64 {
	return (uint64(1) << sk.H()) - sk.sigsUsed
}

// PublicKey returns the 243-trit MSS public key (the tree root).
func (sk *PrivateKey) PublicKey() *PublicKey {
	var pk PublicKey
	copy(pk.root[:], sk.root[:])
	return &pk
}

func leafNonce(nonce []trinary.Trit, index uint64) []trinary.Trit {
	out := make([]trinary.Trit, 0, len(nonce)+6)
	out = append(out, nonce...)
	out = append(out, trinary.Encode6(int64(index))...)
	return out
}

func deriveLeafPublicKey(seed, nonce []trinary.Trit, index uint64) (*wots.PublicKey, mamerr.Error) {
	sk, err := wots.GeneratePrivateKey(seed, leafNonce(nonce, index))
	if err != nil {
		return nil, err
	}
	return sk.PublicKey(), nil
}

func hashPair(sp *spongos.Spongos, left, right []trinary.Trit) [NodeSize]trinary.Trit {
	buf := make([]trinary.Trit, 0, 2*NodeSize)
	buf = append(buf, left...)
	buf = append(buf, right...)
	var out [NodeSize]trinary.Trit
	copy(out[:], sp.Hash(buf, NodeSize))
	return out
}

// Generate builds a fresh MSS private key of subtree height h and l
// stacked levels (H = h*l signatures capacity 2^H) from seed and
// nonce. h must be positive and l must be at least 2 (spec.md §3);
// H must not exceed 20.
func Generate(seed, nonce []trinary.Trit, h, l uint32) (*PrivateKey, mamerr.Error) {
	if h == 0 {
		return nil, mamerr.Errorf(mamerr.InputShape, "mss: subtree height h must be positive")
	}
	if l < 2 {
		return nil, mamerr.Errorf(mamerr.InputShape, "mss: level count l must be at least 2")
	}
	H := h * l
	if H > 20 {
		return nil, mamerr.Errorf(mamerr.InputShape, "mss: total height h*l=%d exceeds the 20-level limit", H)
	}

	numLeaves := uint64(1) << H

	leafPKs := make([][NodeSize]trinary.Trit, numLeaves)
	if err := deriveAllLeaves(seed, nonce, numLeaves, leafPKs); err != nil {
		return nil, err
	}

	exist := make([][]trinary.Trit, l)
	for ell := uint32(0); ell < l; ell++ {
		exist[ell] = make([]trinary.Trit, subtreeSlots(h)*NodeSize)
	}

	sp := spongos.New()
	stack := make([]stackItem, 0, H+1)
	for i := uint64(0); i < numLeaves; i++ {
		var item stackItem
		item.level = 0
		item.pos = i
		copy(item.hash[:], leafPKs[i][:])
		storeGlobal(exist, h, l, item)
		stack = append(stack, item)

		for len(stack) >= 2 && stack[len(stack)-1].level == stack[len(stack)-2].level {
			right := stack[len(stack)-1]
			left := stack[len(stack)-2]
			stack = stack[:len(stack)-2]

			var combined stackItem
			combined.level = left.level + 1
			combined.pos = left.pos / 2
			combined.hash = hashPair(sp, left.hash[:], right.hash[:])
			storeGlobal(exist, h, l, combined)
			stack = append(stack, combined)
		}
	}
	if len(stack) != 1 {
		return nil, mamerr.Errorf(mamerr.StateCorrupt, "mss: key generation left %d nodes on the fold stack, expected 1", len(stack))
	}

	sk := &PrivateKey{
		h: h, l: l,
		seed:  append([]trinary.Trit(nil), seed...),
		nonce: append([]trinary.Trit(nil), nonce...),
		exist: exist,
		root:  stack[0].hash,
	}

	sk.desired = make([][]trinary.Trit, l-1)
	sk.desiredStack = make([][]stackItem, l-1)
	sk.desiredProgress = make([]uint64, l-1)
	sk.desiredDone = make([]bool, l-1)
	for ell := uint32(0); ell < l-1; ell++ {
		sk.desired[ell] = make([]trinary.Trit, subtreeSlots(h)*NodeSize)
	}

	return sk, nil
}

// storeGlobal stores item into exist[level/h] if level/h < l (spec.md
// §4.6's keygen storage rule), using level%h as the local level within
// that bucket.
//
// exist[ell] is only ever the *currently active* subtree instance at
// that level (the one a fresh key's sigsUsed=0 addresses); later
// instances are built on demand by advance()'s desired-subtree
// Treehash and promoted in. Since a single Generate pass walks every
// leaf and would otherwise overwrite exist[ell]'s slots once per
// instance, only the first instance (the one whose position at this
// node's local level is below 2^exlev, i.e. pos>>exlev == 0) is kept;
// later instances are silently skipped here. For ell == l-1 (the
// level that never rotates) every node already has instance 0, so
// this filter is a no-op there.
func storeGlobal(exist [][]trinary.Trit, h, l uint32, item stackItem) {
	ell := item.level / h
	if ell >= l {
		return // the tree root itself; kept separately as PrivateKey.root
	}
	local := item.level % h
	exlev := h - local
	if item.pos>>exlev != 0 {
		return
	}
	setNodeAt(exist[ell], h, local, item.pos, item.hash[:])
}

func deriveAllLeaves(seed, nonce []trinary.Trit, numLeaves uint64, out [][NodeSize]trinary.Trit) mamerr.Error {
	workers := runtime.GOMAXPROCS(0)
	if uint64(workers) > numLeaves {
		workers = int(numLeaves)
	}
	if workers < 1 {
		workers = 1
	}

	chunk := (numLeaves + uint64(workers) - 1) / uint64(workers)

	var wg sync.WaitGroup
	errs := make([]mamerr.Error, workers)
	for w := 0; w < workers; w++ {
		start := uint64(w) * chunk
		end := start + chunk
		if end > numLeaves {
			end = numLeaves
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w int, start, end uint64) {
			defer wg.Done()
			for i := start; i < end; i++ {
				pk, err := deriveLeafPublicKey(seed, nonce, i)
				if err != nil {
					errs[w] = err
					return
				}
				copy(out[i][:], pk.Bytes())
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Sign produces a signature over message (any length accepted by
// wots.PrivateKey.Sign, i.e. exactly 231 trits — see wots.MessageSize)
// using the next unused leaf, then advances the fractal traversal
// state. Fails with KeyExhausted once all 2^H leaves are consumed.
func (sk *PrivateKey) Sign(message []trinary.Trit) (*Signature, mamerr.Error) {
	H := sk.H()
	if sk.sigsUsed >= uint64(1)<<H {
		return nil, mamerr.Errorf(mamerr.KeyExhausted, "mss: key has produced all %d signatures", uint64(1)<<H)
	}
	for ell := uint32(0); ell < sk.l; ell++ {
		if len(sk.exist[ell]) != subtreeSlots(sk.h)*NodeSize {
			return nil, mamerr.Errorf(mamerr.StateCorrupt, "mss: exist[%d] has the wrong size", ell)
		}
	}

	skn := sk.sigsUsed

	wotsSK, err := wots.GeneratePrivateKey(sk.seed, leafNonce(sk.nonce, skn))
	if err != nil {
		return nil, err
	}
	wotsSig, err := wotsSK.Sign(message)
	if err != nil {
		return nil, err
	}

	authPath := make([]trinary.Trit, 0, int(H)*NodeSize)
	for it := uint32(0); it < H; it++ {
		exid := it / sk.h
		exlev := sk.h - (it % sk.h)
		shift := skn >> it
		mask := uint64(1)<<exlev - 1
		expos := (shift ^ 1) & mask
		if exid >= sk.l {
			return nil, mamerr.Errorf(mamerr.StateCorrupt, "mss: authentication path step %d addresses out-of-range level %d", it, exid)
		}
		node := nodeAt(sk.exist[exid], sk.h, sk.h-exlev, expos)
		authPath = append(authPath, node...)
	}

	if err := sk.advance(); err != nil {
		return nil, err
	}

	return &Signature{
		H:        H,
		SigsUsed: skn,
		WotsSig:  wotsSig.Bytes(),
		AuthPath: authPath,
	}, nil
}

// advance runs one step of the desired-subtree Treehash for every
// still-building level, then promotes/retires subtrees whose window
// the next signature crosses (spec.md §4.6, "Desired-subtree
// advancement"), and finally increments sigsUsed.
func (sk *PrivateKey) advance() mamerr.Error {
	h, l := sk.h, sk.l
	sp := spongos.New()

	for ell := uint32(0); ell < l-1; ell++ {
		if sk.desiredDone[ell] {
			continue
		}
		target := uint64(1) << ((uint64(ell) + 1) * uint64(h))
		if sk.desiredProgress[ell] >= target {
			continue
		}

		shiftAmt := (uint64(ell) + 1) * uint64(h)
		leafID := ((1 + (sk.sigsUsed >> shiftAmt)) << shiftAmt) + sk.desiredProgress[ell]

		pk, err := deriveLeafPublicKey(sk.seed, sk.nonce, leafID)
		if err != nil {
			return err
		}

		var item stackItem
		item.level = 0
		item.pos = leafID
		copy(item.hash[:], pk.Bytes())
		sk.storeIntoLevel(ell, item)

		st := sk.desiredStack[ell]
		st = append(st, item)
		for len(st) >= 2 && st[len(st)-1].level == st[len(st)-2].level {
			right := st[len(st)-1]
			left := st[len(st)-2]
			st = st[:len(st)-2]

			var combined stackItem
			combined.level = left.level + 1
			combined.pos = left.pos / 2
			combined.hash = hashPair(sp, left.hash[:], right.hash[:])
			sk.storeIntoLevel(ell, combined)
			st = append(st, combined)
		}
		sk.desiredStack[ell] = st
		sk.desiredProgress[ell]++
	}

	subtreeChanges := sk.sigsUsed ^ (sk.sigsUsed + 1)
	mask := uint64(1)<<h - 1
	for i := uint32(0); i < l-1; i++ {
		ell := l - 2 - i
		if sk.desiredDone[ell] {
			continue
		}
		if (subtreeChanges>>(h*(ell+1)))&mask != 0 {
			copy(sk.exist[ell], sk.desired[ell])
			sk.desiredStack[ell] = nil
			sk.desiredProgress[ell] = 0
		}

		shiftAmt := (uint64(ell) + 1) * uint64(h)
		if (1+((sk.sigsUsed+1)>>shiftAmt))<<shiftAmt >= uint64(1)<<sk.H() {
			for j := ell; j < l-1; j++ {
				sk.desired[j] = nil
				sk.desiredStack[j] = nil
				sk.desiredDone[j] = true
			}
		}
	}

	sk.sigsUsed++
	return nil
}

// storeIntoLevel stores item into desired[ell] if item's absolute
// level falls within that level's window [ell*h, (ell+1)*h) — the
// generalisation of spec.md's "store into desired[ℓ] at the canonical
// slot for level 0" to every level the incremental Treehash produces.
// For ell > 0 the leaves and the nodes below level ell*h belong to the
// lower levels' subtrees, and the node at level (ell+1)*h is a node of
// level ell+1, so only the window is stored here.
func (sk *PrivateKey) storeIntoLevel(ell uint32, item stackItem) {
	if item.level/sk.h != ell {
		return
	}
	setNodeAt(sk.desired[ell], sk.h, item.level%sk.h, item.pos, item.hash[:])
}

// PublicKey is the 243-trit MSS public key: the root of the tree.
type PublicKey struct {
	root [NodeSize]trinary.Trit
}

// Bytes returns the raw trits of the public key.
func (pk *PublicKey) Bytes() []trinary.Trit { return pk.root[:] }

// PublicKeyFromTrits reconstructs a PublicKey from its 243-trit wire form.
func PublicKeyFromTrits(trits []trinary.Trit) (*PublicKey, mamerr.Error) {
	if len(trits) != NodeSize {
		return nil, mamerr.Errorf(mamerr.InputShape, "mss: public key must be %d trits, got %d", NodeSize, len(trits))
	}
	var pk PublicKey
	copy(pk.root[:], trits)
	return &pk, nil
}

// Signature is an MSS signature: an 18-trit header (H, sigs_used)
// followed by the WOTS signature and the H-node authentication path.
type Signature struct {
	H        uint32
	SigsUsed uint64
	WotsSig  []trinary.Trit
	AuthPath []trinary.Trit
}

// Bytes serialises sig to its on-wire trit form: 18 header trits,
// then the 13122-trit WOTS signature, then 243*H authentication-path
// trits.
func (sig *Signature) Bytes() []trinary.Trit {
	out := make([]trinary.Trit, 0, 18+wots.PrivateKeySize+int(sig.H)*NodeSize)
	out = append(out, trinary.Encode4(int64(sig.H))...)
	out = append(out, trinary.Encode14(int64(sig.SigsUsed))...)
	out = append(out, sig.WotsSig...)
	out = append(out, sig.AuthPath...)
	return out
}

// SignatureFromTrits decodes a signature from its on-wire trit form,
// per spec.md §4.6's "Verification": it rejects malformed headers
// directly rather than constructing a partially-valid Signature,
// since a malformed signature must make Verify return false rather
// than panic.
func SignatureFromTrits(trits []trinary.Trit) (*Signature, bool) {
	if len(trits) < 18 {
		return nil, false
	}
	H := trinary.Decode(trits[0:4])
	sigsUsed := trinary.Decode(trits[4:18])
	if H < 0 || H > 20 || sigsUsed < 0 {
		return nil, false
	}
	expected := 18 + wots.PrivateKeySize + int(H)*NodeSize
	if len(trits) != expected {
		return nil, false
	}
	if sigsUsed >= int64(1)<<uint(H) {
		return nil, false
	}

	sig := &Signature{
		H:        uint32(H),
		SigsUsed: uint64(sigsUsed),
		WotsSig:  append([]trinary.Trit(nil), trits[18:18+wots.PrivateKeySize]...),
		AuthPath: append([]trinary.Trit(nil), trits[18+wots.PrivateKeySize:]...),
	}
	return sig, true
}

// Verify reports whether sig is a valid MSS signature of message
// under pk. Never panics on malformed input; spec.md §4.6/§7 specify
// returning false directly rather than surfacing SignatureMalformed
// as an error or constructing a sentinel public key.
func (pk *PublicKey) Verify(message []trinary.Trit, sig *Signature) bool {
	if int(sig.H) > 20 || sig.SigsUsed >= uint64(1)<<sig.H {
		return false
	}
	if len(sig.WotsSig) != wots.PrivateKeySize {
		return false
	}
	if len(sig.AuthPath) != int(sig.H)*NodeSize {
		return false
	}
	for _, tr := range sig.WotsSig {
		if !trinary.IsValid(tr) {
			return false
		}
	}
	for _, tr := range sig.AuthPath {
		if !trinary.IsValid(tr) {
			return false
		}
	}

	wotsSig, err := wots.SignatureFromTrits(sig.WotsSig)
	if err != nil {
		return false
	}
	recovered, err := wotsSig.RecoverPublicKey(message)
	if err != nil {
		return false
	}

	sp := spongos.New()
	t := append([]trinary.Trit(nil), recovered.Bytes()...)
	skn := sig.SigsUsed
	for j := uint32(0); j < sig.H; j++ {
		p := sig.AuthPath[int(j)*NodeSize : int(j+1)*NodeSize]
		buf := make([]trinary.Trit, 0, 2*NodeSize)
		if skn%2 == 0 {
			buf = append(buf, t...)
			buf = append(buf, p...)
		} else {
			buf = append(buf, p...)
			buf = append(buf, t...)
		}
		t = sp.Hash(buf, NodeSize)
		skn >>= 1
	}

	var diff trinary.Trit
	for i := range t {
		diff |= t[i] ^ pk.root[i]
	}
	return diff == 0
}
