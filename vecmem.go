package stablemem

import (
	"fmt"
	"math"
)

// VectorMemory is an in-process Memory backed by a growable slice of
// pages. It is the default backing outside a hosted runtime and the
// backing of choice for tests.
//
// The zero value is not usable; call NewVectorMemory.
type VectorMemory struct {
	pages [][]byte
}

// NewVectorMemory returns an empty in-process memory of zero pages.
func NewVectorMemory() *VectorMemory {
	return &VectorMemory{}
}

// Size returns the current page count.
func (m *VectorMemory) Size() uint64 {
	return uint64(len(m.pages))
}

// Grow appends delta zero-filled pages and returns the previous page
// count. It refuses only a delta that would take the byte length past the
// 64-bit address space.
func (m *VectorMemory) Grow(delta uint64) int64 {
	prev := uint64(len(m.pages))
	if delta > math.MaxUint64-prev || prev+delta > maxPages {
		return -1
	}
	for i := uint64(0); i < delta; i++ {
		m.pages = append(m.pages, make([]byte, PageSize))
	}
	return int64(prev)
}

// Read copies len(dst) bytes at offset into dst. The range may span any
// number of pages. Reading past the end is a contract violation.
func (m *VectorMemory) Read(offset uint64, dst []byte) {
	m.check(offset, len(dst))
	for n := 0; n < len(dst); {
		page := (offset + uint64(n)) / PageSize
		pos := (offset + uint64(n)) % PageSize
		n += copy(dst[n:], m.pages[page][pos:])
	}
}

// Write copies src into the memory at offset. The range may span any
// number of pages. Writing past the end is a contract violation.
func (m *VectorMemory) Write(offset uint64, src []byte) {
	m.check(offset, len(src))
	for n := 0; n < len(src); {
		page := (offset + uint64(n)) / PageSize
		pos := (offset + uint64(n)) % PageSize
		n += copy(m.pages[page][pos:], src[n:])
	}
}

func (m *VectorMemory) check(offset uint64, length int) {
	last := offset + uint64(length)
	if last < offset || last > uint64(len(m.pages))*PageSize {
		panic(fmt.Sprintf("stablemem: access [%d, %d) is out of bounds for a memory of %d pages",
			offset, last, len(m.pages)))
	}
}
