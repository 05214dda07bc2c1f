// Package container persists an MSS private key to disk between
// signing sessions: the seed, nonce and consumed-signature counter in
// a small key file, and the (potentially large) exist/desired subtree
// buffers in a separately mmapped cache file, so that restarting a
// signer does not have to re-derive every WOTS leaf from scratch.
package container

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/bwesterb/byteswriter"
	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
	"github.com/iota-mam/mamcore/internal/mamerr"
	"github.com/iota-mam/mamcore/mss"
	"github.com/iota-mam/mamcore/trinary"
	"github.com/nightlyone/lockfile"
)

// PrivateKeyContainer stores an MSS private key and caches its
// exist/desired subtree buffers so repeated process restarts do not
// have to rebuild them from the seed.
//
// A PrivateKeyContainer does not have to be thread safe.
type PrivateKeyContainer interface {
	// Reset (re)initializes the container with sk, discarding any
	// previously stored key.
	Reset(sk *mss.PrivateKey) mamerr.Error

	// ResetCache (re)initializes the mmapped subtree cache from sk's
	// current exist/desired buffers. Reset calls this already; it is
	// exposed separately so a caller can rebuild the cache without
	// rewriting the key file.
	ResetCache(sk *mss.PrivateKey) mamerr.Error

	// Load reconstructs the stored PrivateKey, or returns a
	// StateCorrupt error if the container has never been initialized.
	Load() (*mss.PrivateKey, mamerr.Error)

	// Save persists sk's current sigs-used counter and subtree
	// buffers. Call this after every successful Sign.
	Save(sk *mss.PrivateKey) mamerr.Error

	// BorrowSigs reserves amount signature indices ahead of actually
	// signing, writing the reservation to disk immediately so a crash
	// between BorrowSigs and the matching Save cannot cause a leaf to
	// be reused. The caller may freely use the signatures in the
	// returned range but should call Save promptly afterwards.
	BorrowSigs(amount uint64) (uint64, mamerr.Error)

	// GetSigsUsed returns the recorded sigs-used counter, and the
	// number of signatures that may have been lost to an unclean
	// shutdown after a BorrowSigs call that was never followed by a
	// matching Save.
	GetSigsUsed() (sigsUsed uint64, lostSigs uint64, err mamerr.Error)

	// Initialized reports the stored key's parameters, or nil if the
	// container has never been initialized.
	Initialized() *mss.Params

	// CacheInitialized reports whether the subtree cache is ready.
	CacheInitialized() bool

	// Close releases the file lock and any mmapped cache.
	Close() mamerr.Error
}

// fsContainer is a PrivateKeyContainer backed by three files:
//
//	path/to/key        seed, nonce, params and the sigs-used counter
//	path/to/key.lock   a lockfile
//	path/to/key.cache  mmapped exist/desired subtree buffers
type fsContainer struct {
	flock lockfile.Lockfile
	path  string

	initialized      bool
	cacheInitialized bool
	closed           bool

	params   mss.Params
	seed     []trinary.Trit
	nonce    []trinary.Trit
	sigsUsed uint64
	borrowed uint64
	root     [mss.NodeSize]trinary.Trit

	desiredProgress []uint64
	desiredDone     []bool
	desiredStack    []trinary.Trit // encoded via mss.State.MarshalDesiredStacks

	cacheFile *os.File
	cacheBuf  mmap.MMap
}

const (
	// keyMagic is the first 8 bytes (in hex) of the key file.
	keyMagic = "6d616d6b65796669"
	// cacheMagic is the first 8 bytes (in hex) of the cache file.
	cacheMagic = "6d616d636163686e"
)

// OpenFSPrivateKeyContainer opens (or prepares to create) a
// PrivateKeyContainer backed by the files at path.
func OpenFSPrivateKeyContainer(path string) (PrivateKeyContainer, mamerr.Error) {
	var ctr fsContainer
	var err error

	ctr.path, err = filepath.Abs(path)
	if err != nil {
		return nil, mamerr.WrapErrorf(mamerr.InputShape, err, "container: could not resolve %s to an absolute path", path)
	}

	lockFilePath := ctr.path + ".lock"
	ctr.flock, err = lockfile.New(lockFilePath)
	if err != nil {
		return nil, mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to create lockfile %s", lockFilePath)
	}

	if err = ctr.flock.TryLock(); err != nil {
		if _, ok := err.(interface{ Temporary() bool }); ok {
			return nil, mamerr.Errorf(mamerr.StateCorrupt, "container: %s is locked by another process", path)
		}
		return nil, mamerr.WrapErrorf(mamerr.StateCorrupt, err, "container: failed to lock %s", path)
	}

	if _, err = os.Stat(ctr.path); os.IsNotExist(err) {
		return &ctr, nil
	}

	file, err := os.Open(ctr.path)
	if err != nil {
		return &ctr, mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to open key file %s", path)
	}
	defer file.Close()

	if err := ctr.readKeyFile(file); err != nil {
		return &ctr, err
	}
	ctr.initialized = true

	return &ctr, ctr.openCache()
}

func (ctr *fsContainer) readKeyFile(file *os.File) mamerr.Error {
	var magic [8]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read key file magic")
	}
	if hex.EncodeToString(magic[:]) != keyMagic {
		return mamerr.Errorf(mamerr.InputShape, "container: key file has the wrong magic")
	}

	var dims [2]uint32
	if err := binary.Read(file, binary.BigEndian, &dims); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read key file params")
	}
	ctr.params = mss.Params{SubtreeHeight: dims[0], Levels: dims[1]}

	var counters [2]uint64
	if err := binary.Read(file, binary.BigEndian, &counters); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read key file counters")
	}
	ctr.sigsUsed, ctr.borrowed = counters[0], counters[1]

	rootBytes := make([]byte, mss.NodeSize)
	if _, err := io.ReadFull(file, rootBytes); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read stored tree root")
	}
	copy(ctr.root[:], bytesToTrits(rootBytes))

	seedLen := make([]byte, 4)
	if _, err := io.ReadFull(file, seedLen); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read seed length")
	}
	n := binary.BigEndian.Uint32(seedLen)
	seedBytes := make([]byte, n)
	if _, err := io.ReadFull(file, seedBytes); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read seed")
	}
	ctr.seed = bytesToTrits(seedBytes)

	nonceLen := make([]byte, 4)
	if _, err := io.ReadFull(file, nonceLen); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read nonce length")
	}
	n = binary.BigEndian.Uint32(nonceLen)
	nonceBytes := make([]byte, n)
	if _, err := io.ReadFull(file, nonceBytes); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read nonce")
	}
	ctr.nonce = bytesToTrits(nonceBytes)

	l := ctr.params.Levels
	ctr.desiredProgress = make([]uint64, l-1)
	if err := binary.Read(file, binary.BigEndian, &ctr.desiredProgress); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read desired-subtree progress")
	}
	doneBytes := make([]byte, l-1)
	if _, err := io.ReadFull(file, doneBytes); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read desired-subtree done flags")
	}
	ctr.desiredDone = make([]bool, l-1)
	for i, b := range doneBytes {
		ctr.desiredDone[i] = b != 0
	}

	stackLen := make([]byte, 4)
	if _, err := io.ReadFull(file, stackLen); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read desired-stack length")
	}
	n = binary.BigEndian.Uint32(stackLen)
	stackBytes := make([]byte, n)
	if _, err := io.ReadFull(file, stackBytes); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read desired-stack state")
	}
	ctr.desiredStack = bytesToTrits(stackBytes)

	return nil
}

// trit<->byte conversion stores each balanced trit as one byte
// (trit+1, so 0/1/2) rather than packing three trits per byte: the
// key and cache files favour simplicity over density, since the
// mmapped cache is what actually needs to be large.
func tritsToBytes(trits []trinary.Trit) []byte {
	out := make([]byte, len(trits))
	for i, tr := range trits {
		out[i] = byte(tr + 1)
	}
	return out
}

func bytesToTrits(buf []byte) []trinary.Trit {
	out := make([]trinary.Trit, len(buf))
	for i, b := range buf {
		out[i] = trinary.Trit(b) - 1
	}
	return out
}

func (ctr *fsContainer) openCache() mamerr.Error {
	cachePath := ctr.path + ".cache"
	file, err := os.OpenFile(cachePath, os.O_RDWR, 0)
	if err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to open cache file")
	}
	ctr.cacheFile = file

	var magic [8]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to read cache file magic")
	}
	if hex.EncodeToString(magic[:]) != cacheMagic {
		return mamerr.Errorf(mamerr.InputShape, "container: cache file has the wrong magic")
	}

	info, err := file.Stat()
	if err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to stat cache file")
	}
	size := info.Size() - 8
	if size <= 0 {
		return mamerr.Errorf(mamerr.InputShape, "container: cache file is too small")
	}

	m, err := mmap.MapRegion(file, int(size), mmap.RDWR, 0, 8)
	if err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to mmap cache file")
	}
	ctr.cacheBuf = m
	ctr.cacheInitialized = true
	return nil
}

// subtreeBytesLen mirrors mss's subtreeSlots*NodeSize geometry without
// importing the unexported helper: it recomputes the slot count from
// the public subtree height. One trit maps to one byte in the cache
// file (see tritsToBytes), so this is also the on-disk byte length.
func subtreeBytesLen(h uint32) int {
	slots := (1 << (h + 1)) - 2
	return slots * mss.NodeSize
}

func (ctr *fsContainer) cacheLayout() (existOff, desiredOff []int, total int) {
	h, l := ctr.params.SubtreeHeight, ctr.params.Levels
	oneSize := subtreeBytesLen(h)
	existOff = make([]int, l)
	for i := range existOff {
		existOff[i] = total
		total += oneSize
	}
	desiredOff = make([]int, l-1)
	for i := range desiredOff {
		desiredOff[i] = total
		total += oneSize
	}
	return
}

func (ctr *fsContainer) ResetCache(sk *mss.PrivateKey) mamerr.Error {
	if ctr.cacheInitialized {
		if err := ctr.closeCache(); err != nil {
			return mamerr.WrapErrorf(mamerr.StateCorrupt, err, "container: failed to close old cache")
		}
	}

	state := sk.Export()
	ctr.params = mss.Params{SubtreeHeight: state.H, Levels: state.L}
	existOff, desiredOff, total := ctr.cacheLayout()

	cachePath := ctr.path + ".cache"
	file, err := os.OpenFile(cachePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to create cache file")
	}
	if err := file.Truncate(int64(8 + total)); err != nil {
		file.Close()
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to size cache file")
	}

	magic, _ := hex.DecodeString(cacheMagic)
	if _, err := file.WriteAt(magic, 0); err != nil {
		file.Close()
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to write cache file magic")
	}

	m, err := mmap.MapRegion(file, total, mmap.RDWR, 0, 8)
	if err != nil {
		file.Close()
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to mmap new cache file")
	}

	for i, off := range existOff {
		bw := byteswriter.NewWriter(m[off : off+subtreeBytesLen(ctr.params.SubtreeHeight)])
		if _, err := bw.Write(tritsToBytes(state.Exist[i])); err != nil {
			m.Unmap()
			file.Close()
			return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to write exist[%d] into cache", i)
		}
	}
	for i, off := range desiredOff {
		bw := byteswriter.NewWriter(m[off : off+subtreeBytesLen(ctr.params.SubtreeHeight)])
		if _, err := bw.Write(tritsToBytes(state.Desired[i])); err != nil {
			m.Unmap()
			file.Close()
			return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to write desired[%d] into cache", i)
		}
	}

	ctr.cacheFile = file
	ctr.cacheBuf = m
	ctr.cacheInitialized = true
	ctr.desiredProgress = append([]uint64(nil), state.DesiredProgress...)
	ctr.desiredDone = append([]bool(nil), state.DesiredDone...)
	return nil
}

func (ctr *fsContainer) Reset(sk *mss.PrivateKey) mamerr.Error {
	if ctr.closed {
		return mamerr.Errorf(mamerr.StateCorrupt, "container: container is closed")
	}

	state := sk.Export()
	ctr.params = mss.Params{SubtreeHeight: state.H, Levels: state.L}
	ctr.seed = state.Seed
	ctr.nonce = state.Nonce
	ctr.sigsUsed = state.SigsUsed
	ctr.borrowed = 0
	ctr.root = state.Root
	ctr.desiredProgress = append([]uint64(nil), state.DesiredProgress...)
	ctr.desiredDone = append([]bool(nil), state.DesiredDone...)
	ctr.desiredStack = state.MarshalDesiredStacks()

	if err := ctr.writeKeyFile(); err != nil {
		return err
	}
	ctr.initialized = true

	return ctr.ResetCache(sk)
}

func (ctr *fsContainer) writeKeyFile() mamerr.Error {
	tmpPath := ctr.path + ".tmp"
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to create temporary key file")
	}

	magic, _ := hex.DecodeString(keyMagic)
	writeErr := func() error {
		if _, err := tmpFile.Write(magic); err != nil {
			return err
		}
		if err := binary.Write(tmpFile, binary.BigEndian, [2]uint32{ctr.params.SubtreeHeight, ctr.params.Levels}); err != nil {
			return err
		}
		if err := binary.Write(tmpFile, binary.BigEndian, [2]uint64{ctr.sigsUsed, ctr.borrowed}); err != nil {
			return err
		}
		if _, err := tmpFile.Write(tritsToBytes(ctr.root[:])); err != nil {
			return err
		}
		seedBytes := tritsToBytes(ctr.seed)
		if err := binary.Write(tmpFile, binary.BigEndian, uint32(len(seedBytes))); err != nil {
			return err
		}
		if _, err := tmpFile.Write(seedBytes); err != nil {
			return err
		}
		nonceBytes := tritsToBytes(ctr.nonce)
		if err := binary.Write(tmpFile, binary.BigEndian, uint32(len(nonceBytes))); err != nil {
			return err
		}
		if _, err := tmpFile.Write(nonceBytes); err != nil {
			return err
		}
		if err := binary.Write(tmpFile, binary.BigEndian, ctr.desiredProgress); err != nil {
			return err
		}
		doneBytes := make([]byte, len(ctr.desiredDone))
		for i, d := range ctr.desiredDone {
			if d {
				doneBytes[i] = 1
			}
		}
		if _, err := tmpFile.Write(doneBytes); err != nil {
			return err
		}
		stackBytes := tritsToBytes(ctr.desiredStack)
		if err := binary.Write(tmpFile, binary.BigEndian, uint32(len(stackBytes))); err != nil {
			return err
		}
		if _, err := tmpFile.Write(stackBytes); err != nil {
			return err
		}
		return nil
	}()
	if writeErr != nil {
		tmpFile.Close()
		return mamerr.WrapErrorf(mamerr.InputShape, writeErr, "container: failed to write temporary key file")
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to sync temporary key file")
	}
	if err := tmpFile.Close(); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to close temporary key file")
	}
	if err := os.Rename(tmpPath, ctr.path); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to replace key file")
	}

	dirName := filepath.Dir(ctr.path)
	dirFd, err := syscall.Open(dirName, syscall.O_DIRECTORY, syscall.O_RDONLY)
	if err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to sync key file: open(%s)", dirName)
	}
	if err := syscall.Fsync(dirFd); err != nil {
		syscall.Close(dirFd)
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to sync key file directory")
	}
	if err := syscall.Close(dirFd); err != nil {
		return mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to close key file directory")
	}
	return nil
}

func (ctr *fsContainer) Save(sk *mss.PrivateKey) mamerr.Error {
	if !ctr.initialized {
		return mamerr.Errorf(mamerr.StateCorrupt, "container: container is not initialized")
	}
	state := sk.Export()
	if state.H != ctr.params.SubtreeHeight || state.L != ctr.params.Levels {
		return mamerr.Errorf(mamerr.InputShape, "container: key parameters do not match this container")
	}

	ctr.sigsUsed = state.SigsUsed
	ctr.borrowed = 0
	ctr.root = state.Root
	ctr.desiredProgress = append([]uint64(nil), state.DesiredProgress...)
	ctr.desiredDone = append([]bool(nil), state.DesiredDone...)
	ctr.desiredStack = state.MarshalDesiredStacks()

	if err := ctr.writeKeyFile(); err != nil {
		return err
	}

	if !ctr.cacheInitialized {
		return mamerr.Errorf(mamerr.StateCorrupt, "container: cache is not initialized")
	}
	existOff, desiredOff, _ := ctr.cacheLayout()
	oneSize := subtreeBytesLen(ctr.params.SubtreeHeight)
	for i, off := range existOff {
		copy(ctr.cacheBuf[off:off+oneSize], tritsToBytes(state.Exist[i]))
	}
	for i, off := range desiredOff {
		copy(ctr.cacheBuf[off:off+oneSize], tritsToBytes(state.Desired[i]))
	}
	return nil
}

func (ctr *fsContainer) Load() (*mss.PrivateKey, mamerr.Error) {
	if !ctr.initialized {
		return nil, mamerr.Errorf(mamerr.StateCorrupt, "container: container is not initialized")
	}
	if !ctr.cacheInitialized {
		return nil, mamerr.Errorf(mamerr.StateCorrupt, "container: cache is not initialized")
	}

	h, l := ctr.params.SubtreeHeight, ctr.params.Levels
	oneSize := subtreeBytesLen(h)
	existOff, desiredOff, _ := ctr.cacheLayout()

	exist := make([][]trinary.Trit, l)
	for i, off := range existOff {
		exist[i] = bytesToTrits(ctr.cacheBuf[off : off+oneSize])
	}
	desired := make([][]trinary.Trit, l-1)
	for i, off := range desiredOff {
		desired[i] = bytesToTrits(ctr.cacheBuf[off : off+oneSize])
	}
	state := mss.State{
		H:               h,
		L:               l,
		Seed:            ctr.seed,
		Nonce:           ctr.nonce,
		SigsUsed:        ctr.sigsUsed,
		Exist:           exist,
		Desired:         desired,
		DesiredProgress: ctr.desiredProgress,
		DesiredDone:     ctr.desiredDone,
		Root:            ctr.root,
	}

	if len(ctr.desiredStack) > 0 {
		stacks, err := mss.UnmarshalDesiredStacks(ctr.desiredStack, l)
		if err != nil {
			return nil, mamerr.WrapErrorf(mamerr.InputShape, err, "container: failed to decode stored desired-subtree stacks")
		}
		return mss.RestoreWithStacks(state, stacks), nil
	}

	return mss.Restore(state), nil
}

func (ctr *fsContainer) BorrowSigs(amount uint64) (uint64, mamerr.Error) {
	if !ctr.initialized {
		return 0, mamerr.Errorf(mamerr.StateCorrupt, "container: container is not initialized")
	}
	old := ctr.sigsUsed
	ctr.borrowed += amount
	ctr.sigsUsed += amount
	if err := ctr.writeKeyFile(); err != nil {
		ctr.borrowed -= amount
		ctr.sigsUsed = old
		return 0, err
	}
	return old, nil
}

func (ctr *fsContainer) GetSigsUsed() (uint64, uint64, mamerr.Error) {
	if !ctr.initialized {
		return 0, 0, mamerr.Errorf(mamerr.StateCorrupt, "container: container is not initialized")
	}
	return ctr.sigsUsed, ctr.borrowed, nil
}

func (ctr *fsContainer) Initialized() *mss.Params {
	if !ctr.initialized {
		return nil
	}
	p := ctr.params
	return &p
}

func (ctr *fsContainer) CacheInitialized() bool { return ctr.cacheInitialized }

func (ctr *fsContainer) closeCache() error {
	ctr.cacheInitialized = false
	var result error
	if ctr.cacheBuf != nil {
		if err := ctr.cacheBuf.Unmap(); err != nil {
			result = multierror.Append(result, err)
		}
		ctr.cacheBuf = nil
	}
	if ctr.cacheFile != nil {
		if err := ctr.cacheFile.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		ctr.cacheFile = nil
	}
	return result
}

func (ctr *fsContainer) Close() mamerr.Error {
	var result error
	if err := ctr.closeCache(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := ctr.flock.Unlock(); err != nil {
		result = multierror.Append(result, err)
	}
	ctr.closed = true
	ctr.initialized = false

	if result != nil {
		return mamerr.WrapErrorf(mamerr.StateCorrupt, result, "container: errors while closing")
	}
	return nil
}
