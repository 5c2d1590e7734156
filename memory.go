package stablemem

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// PageSize is the size of a stable-memory page in bytes (64 KiB).
// The store grows only in whole pages.
const PageSize uint64 = 65536

// maxPages is the largest page count whose byte length fits in a uint64.
const maxPages = math.MaxUint64 / PageSize

// Memory is the contract every backing store implements.
//
// A Memory is a logical contiguous byte array whose length is always
// Size() * PageSize. Newly grown pages read as zero. Read and Write on a
// range past the current end are contract violations and panic; use
// SafeWrite to grow on demand.
//
// Implementations need not be safe for concurrent use: the package assumes
// a single thread of control.
type Memory interface {
	// Size returns the current size of the memory in pages.
	Size() uint64

	// Grow tries to extend the memory by delta zero-filled pages.
	// On success it returns the previous size in pages; on refusal it
	// returns -1 and the memory is unchanged. Grow(0) always succeeds.
	Grow(delta uint64) int64

	// Read copies len(dst) bytes starting at offset into dst.
	Read(offset uint64, dst []byte)

	// Write copies src into the memory starting at offset.
	Write(offset uint64, src []byte)
}

// GrowFailed reports that a backing refused to grow. It is the only
// recoverable error the substrate itself produces; growth refusal is a
// terminal signal from the host and retrying within the same call will not
// help.
type GrowFailed struct {
	// CurrentSize is the size of the memory, in pages, at the time of the
	// refused request.
	CurrentSize uint64

	// Delta is the number of pages that were requested.
	Delta uint64
}

func (e *GrowFailed) Error() string {
	return fmt.Sprintf("stablemem: failed to grow memory: current size=%d pages, delta=%d pages", e.CurrentSize, e.Delta)
}

// SafeWrite writes src at offset, first growing the memory so the whole
// range is addressable. If the backing refuses to grow, a *GrowFailed is
// returned and nothing is written. Overflow of the 64-bit address space is
// a programming error and panics.
func SafeWrite(m Memory, offset uint64, src []byte) error {
	last := offset + uint64(len(src))
	if last < offset {
		panic(fmt.Sprintf("stablemem: address overflow: %d + %d", offset, len(src)))
	}

	sizePages := m.Size()
	if sizePages > maxPages {
		panic(fmt.Sprintf("stablemem: page count %d overflows the address space", sizePages))
	}
	sizeBytes := sizePages * PageSize

	if sizeBytes < last {
		diffBytes := last - sizeBytes
		diffPages := (diffBytes + PageSize - 1) / PageSize
		if m.Grow(diffPages) == -1 {
			return &GrowFailed{CurrentSize: sizePages, Delta: diffPages}
		}
	}
	m.Write(offset, src)
	return nil
}

// Write is like SafeWrite but panics if the backing refuses to grow.
// It is the write path for structural micro-updates where partial progress
// would leave a container header inconsistent; callers that can recover use
// SafeWrite directly.
func Write(m Memory, offset uint64, src []byte) {
	if err := SafeWrite(m, offset, src); err != nil {
		gf := err.(*GrowFailed)
		panic(fmt.Sprintf("stablemem: failed to grow memory from %d pages to %d pages (delta = %d pages)",
			gf.CurrentSize, gf.CurrentSize+gf.Delta, gf.Delta))
	}
}

// readU32 reads a little-endian uint32 at addr. Little-endian is the
// canonical on-store encoding for structural metadata (magic numbers, slot
// counts, offsets); Storable handles user payloads.
func readU32(m Memory, a address) uint32 {
	var buf [4]byte
	m.Read(a.get(), buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// readU64 reads a little-endian uint64 at addr.
func readU64(m Memory, a address) uint64 {
	var buf [8]byte
	m.Read(a.get(), buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// writeU32 writes a little-endian uint32 at addr, growing if needed.
func writeU32(m Memory, a address, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	Write(m, a.get(), buf[:])
}

// writeU64 writes a little-endian uint64 at addr, growing if needed.
func writeU64(m Memory, a address, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	Write(m, a.get(), buf[:])
}

// memCopy moves count chunks of chunkSize bytes from src to dst within the
// same memory. The iteration direction is chosen from the address
// relationship so that overlapping ranges copy correctly, like memmove:
// forward when dst <= src, reverse otherwise. Containers use this to shift
// element arrays during insert and delete.
func memCopy(m Memory, src, dst address, count uint64, chunkSize int) {
	tmp := make([]byte, chunkSize)
	if dst <= src {
		for i := uint64(0); i < count; i++ {
			index := byteCount(i * uint64(chunkSize))
			m.Read(src.add(index).get(), tmp)
			m.Write(dst.add(index).get(), tmp)
		}
	} else {
		for i := uint64(0); i < count; i++ {
			index := byteCount((count - i - 1) * uint64(chunkSize))
			m.Read(src.add(index).get(), tmp)
			m.Write(dst.add(index).get(), tmp)
		}
	}
}

// putU32LE and putU64LE encode structural metadata into an in-RAM buffer
// with the same little-endian convention as the store helpers.
func putU32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

func putU64LE(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

// readStruct fills a zeroed T from the raw bytes at addr.
//
// This bypasses field-wise decoding on purpose: container headers are plain
// old data whose in-memory representation is the on-store representation.
// Only headers internal to this package may use it; anything that must
// survive an endianness boundary is encoded with the integer helpers
// instead.
func readStruct[T any](m Memory, a address) T {
	var t T
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&t)), unsafe.Sizeof(t))
	m.Read(a.get(), buf)
	return t
}

// writeStruct writes the raw bytes of *t at addr, growing if needed.
func writeStruct[T any](m Memory, a address, t *T) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(t)), unsafe.Sizeof(*t))
	Write(m, a.get(), buf)
}
