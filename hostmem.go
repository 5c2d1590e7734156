package stablemem

// HostPager is the raw paged-memory surface of a hosting runtime: query
// the page count, request more pages, read bytes, write bytes. All four
// calls are assumed to be safe to invoke at any time from the program's
// single thread of control.
type HostPager interface {
	StableSize() uint64
	StableGrow(pages uint64) int64
	StableRead(offset uint64, dst []byte)
	StableWrite(offset uint64, src []byte)
}

// HostMemory adapts a HostPager to the Memory contract. It holds no state
// of its own, so copies of a HostMemory all view the same host pages.
type HostMemory struct {
	pager HostPager
}

// NewHostMemory returns a Memory backed by the host's stable pages.
func NewHostMemory(pager HostPager) *HostMemory {
	return &HostMemory{pager: pager}
}

// Size returns the host's current page count.
func (m *HostMemory) Size() uint64 {
	return m.pager.StableSize()
}

// Grow requests delta pages from the host; the host may refuse.
func (m *HostMemory) Grow(delta uint64) int64 {
	return m.pager.StableGrow(delta)
}

// Read copies bytes out of the host pages.
func (m *HostMemory) Read(offset uint64, dst []byte) {
	m.pager.StableRead(offset, dst)
}

// Write copies bytes into the host pages.
func (m *HostMemory) Write(offset uint64, src []byte) {
	m.pager.StableWrite(offset, src)
}
