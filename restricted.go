package stablemem

import "fmt"

// RestrictedMemory is a bounded view of another memory. It exposes the
// page range [startPage, endPage) of the inner memory as a standalone
// Memory, which lets one backing be divided into non-intersecting regions
// with an independent layout in each.
//
// The view never grows the inner memory past endPage. Regions over the
// same inner memory may overlap physically; doing so is a caller error and
// is not policed.
type RestrictedMemory struct {
	inner     Memory
	startPage uint64
	endPage   uint64
}

// NewRestrictedMemory creates a view of the page range [startPage, endPage)
// of inner. It panics if endPage is so large that a byte offset into the
// region could overflow a uint64.
func NewRestrictedMemory(inner Memory, startPage, endPage uint64) *RestrictedMemory {
	if endPage >= maxPages {
		panic(fmt.Sprintf("stablemem: restricted memory end page %d overflows the address space", endPage))
	}
	if startPage > endPage {
		panic(fmt.Sprintf("stablemem: restricted memory page range [%d, %d) is inverted", startPage, endPage))
	}
	return &RestrictedMemory{inner: inner, startPage: startPage, endPage: endPage}
}

// Size returns the number of region pages currently backed by the inner
// memory, capped at the region length.
func (r *RestrictedMemory) Size() uint64 {
	base := r.inner.Size()
	switch {
	case base < r.startPage:
		return 0
	case base > r.endPage:
		return r.endPage - r.startPage
	default:
		return base - r.startPage
	}
}

// Grow extends the region by delta pages, growing the inner memory as
// needed. Three regimes:
//
//   - The inner memory has not reached the region start: the gap up to
//     startPage is grown along with delta, and on success the previous
//     region size is reported as 0.
//   - The inner memory is at or past the region end: only delta 0
//     succeeds; the region is full.
//   - Otherwise growth is delegated when it fits, and the inner result is
//     translated from an inner page index to a region page index.
func (r *RestrictedMemory) Grow(delta uint64) int64 {
	base := r.inner.Size()
	switch {
	case base < r.startPage:
		prev := r.inner.Grow(r.startPage - base + delta)
		if prev > 0 {
			prev = 0
		}
		return prev
	case base >= r.endPage:
		if delta == 0 {
			return int64(r.endPage - r.startPage)
		}
		return -1
	default:
		if r.endPage-base < delta {
			return -1
		}
		prev := r.inner.Grow(delta)
		if prev < 0 {
			return prev
		}
		return prev - int64(r.startPage)
	}
}

// Read forwards to the inner memory at the region's byte base plus offset.
func (r *RestrictedMemory) Read(offset uint64, dst []byte) {
	r.inner.Read(address(bytesFromPages(r.startPage)).add(byteCount(offset)).get(), dst)
}

// Write forwards to the inner memory at the region's byte base plus offset.
func (r *RestrictedMemory) Write(offset uint64, src []byte) {
	r.inner.Write(address(bytesFromPages(r.startPage)).add(byteCount(offset)).get(), src)
}
