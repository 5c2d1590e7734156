package stablemem

import "fmt"

// MemoryManager layout. The manager carves one backing into up to 255
// virtual memories by handing out fixed-size buckets of pages in
// allocation order; a virtual memory's pages are the concatenation of its
// buckets. Buckets are never returned.
//
// Header (page 0 of the backing):
//
//	Offset  Size    Field
//	0       3       magic "MGR"
//	3       1       version
//	4       2       allocated bucket count (LE)
//	6       2       bucket size in pages (LE)
//	8       32      reserved
//	40      8×255   per-memory size in pages (LE)
//	2080    1×N     bucket ownership table: owning memory id, 0xFF if free
//
// Buckets start at page 1.
const (
	mgrMaxMemories      = 255
	mgrFreeBucketMarker = 0xFF
	mgrMaxBuckets       = 32768
	mgrLayoutVersion    = 1

	// DefaultBucketSizePages is the bucket granularity of a manager: the
	// number of backing pages handed to a virtual memory at a time.
	DefaultBucketSizePages = 128

	mgrBucketCountOffset = 4
	mgrBucketSizeOffset  = 6
	mgrSizesOffset       = 40
	mgrBucketTableOffset = mgrSizesOffset + 8*mgrMaxMemories
	mgrBucketStartPage   = 1
)

var mgrMagic = [3]byte{'M', 'G', 'R'}

// MemoryID selects one of a manager's virtual memories.
type MemoryID uint8

// MemoryManager multiplexes one backing into up to 255 independently
// growable virtual memories. Unlike RestrictedMemory, the split is not
// fixed up front: backing pages are assigned to whichever virtual memory
// grows next, one bucket at a time.
type MemoryManager struct {
	mem        Memory
	bucketSize uint16
	allocated  uint16
	sizes      [mgrMaxMemories]uint64
	// buckets[id] lists the backing bucket indices owned by id, in
	// virtual-address order (which is allocation order).
	buckets [mgrMaxMemories][]uint16
}

// NewMemoryManager initializes a manager over mem, or loads the one
// already stored there.
func NewMemoryManager(mem Memory) (*MemoryManager, error) {
	if mem.Size() == 0 {
		m := &MemoryManager{mem: mem, bucketSize: DefaultBucketSizePages}
		if err := m.writeHeader(); err != nil {
			return nil, err
		}
		return m, nil
	}

	var header [8]byte
	mem.Read(0, header[:])
	if [3]byte(header[:3]) != mgrMagic {
		return nil, fmt.Errorf("stablemem: memory does not hold a memory manager (magic %q)", header[:3])
	}
	if header[3] != mgrLayoutVersion {
		return nil, fmt.Errorf("stablemem: unsupported memory manager layout version %d", header[3])
	}

	m := &MemoryManager{
		mem:        mem,
		allocated:  uint16(readU32(mem, mgrBucketCountOffset) & 0xFFFF),
		bucketSize: uint16(readU32(mem, mgrBucketSizeOffset) & 0xFFFF),
	}
	for id := 0; id < mgrMaxMemories; id++ {
		m.sizes[id] = readU64(mem, address(mgrSizesOffset).add(byteCount(id*8)))
	}

	table := make([]byte, m.allocated)
	mem.Read(mgrBucketTableOffset, table)
	for bucket, owner := range table {
		if owner == mgrFreeBucketMarker {
			continue
		}
		if owner >= mgrMaxMemories {
			return nil, fmt.Errorf("stablemem: bucket %d owned by invalid memory id %d", bucket, owner)
		}
		m.buckets[owner] = append(m.buckets[owner], uint16(bucket))
	}
	return m, nil
}

// Get returns the virtual memory with the given id. The result shares the
// manager; all copies for one id view the same pages.
func (m *MemoryManager) Get(id MemoryID) Memory {
	return &virtualMemory{mgr: m, id: id}
}

func (m *MemoryManager) writeHeader() error {
	var header [8]byte
	copy(header[:], mgrMagic[:])
	header[3] = mgrLayoutVersion
	putU32LE(header[4:], uint32(m.allocated)|uint32(m.bucketSize)<<16)
	// Reserve the header page up front so later header updates are plain
	// writes.
	if err := SafeWrite(m.mem, (mgrBucketStartPage*PageSize)-1, []byte{0}); err != nil {
		return err
	}
	m.mem.Write(0, header[:])
	return nil
}

// persistCounts rewrites the allocated bucket count and bucket size.
func (m *MemoryManager) persistCounts() {
	var buf [4]byte
	putU32LE(buf[:], uint32(m.allocated)|uint32(m.bucketSize)<<16)
	m.mem.Write(mgrBucketCountOffset, buf[:])
}

func (m *MemoryManager) bucketBytes() uint64 {
	return uint64(m.bucketSize) * PageSize
}

// bucketBase returns the backing byte offset of a bucket's first page.
func (m *MemoryManager) bucketBase(bucket uint16) uint64 {
	return (mgrBucketStartPage + uint64(bucket)*uint64(m.bucketSize)) * PageSize
}

// virtualMemory is one multiplexed view handed out by Get.
type virtualMemory struct {
	mgr *MemoryManager
	id  MemoryID
}

// Size returns the virtual memory's page count.
func (v *virtualMemory) Size() uint64 {
	return v.mgr.sizes[v.id]
}

// Grow extends the virtual memory by delta pages, allocating buckets from
// the backing as needed. It returns the previous virtual size in pages,
// or -1 if the bucket budget is exhausted or the backing refuses to grow.
func (v *virtualMemory) Grow(delta uint64) int64 {
	m := v.mgr
	prev := m.sizes[v.id]
	newSize := prev + delta
	if newSize < prev {
		return -1
	}

	bucketPages := uint64(m.bucketSize)
	have := uint64(len(m.buckets[v.id]))
	need := (newSize + bucketPages - 1) / bucketPages
	if need > have {
		fresh := need - have
		if uint64(m.allocated)+fresh > mgrMaxBuckets {
			return -1
		}

		// Back the new buckets before assigning them.
		requiredPages := mgrBucketStartPage + (uint64(m.allocated)+fresh)*bucketPages
		if base := m.mem.Size(); base < requiredPages {
			if m.mem.Grow(requiredPages-base) == -1 {
				return -1
			}
		}

		owners := make([]byte, fresh)
		for i := range owners {
			owners[i] = byte(v.id)
		}
		m.mem.Write(mgrBucketTableOffset+uint64(m.allocated), owners)
		for i := uint64(0); i < fresh; i++ {
			m.buckets[v.id] = append(m.buckets[v.id], m.allocated)
			m.allocated++
		}
		m.persistCounts()
	}

	m.sizes[v.id] = newSize
	writeU64(m.mem, address(mgrSizesOffset).add(byteCount(uint64(v.id)*8)), newSize)
	return int64(prev)
}

// Read copies len(dst) bytes at the virtual offset into dst, splitting
// the range across buckets.
func (v *virtualMemory) Read(offset uint64, dst []byte) {
	v.check(offset, len(dst))
	m := v.mgr
	for n := 0; n < len(dst); {
		off := offset + uint64(n)
		bucket := m.buckets[v.id][off/m.bucketBytes()]
		within := off % m.bucketBytes()
		chunk := m.bucketBytes() - within
		if chunk > uint64(len(dst)-n) {
			chunk = uint64(len(dst) - n)
		}
		m.mem.Read(m.bucketBase(bucket)+within, dst[n:n+int(chunk)])
		n += int(chunk)
	}
}

// Write copies src to the virtual offset, splitting the range across
// buckets.
func (v *virtualMemory) Write(offset uint64, src []byte) {
	v.check(offset, len(src))
	m := v.mgr
	for n := 0; n < len(src); {
		off := offset + uint64(n)
		bucket := m.buckets[v.id][off/m.bucketBytes()]
		within := off % m.bucketBytes()
		chunk := m.bucketBytes() - within
		if chunk > uint64(len(src)-n) {
			chunk = uint64(len(src) - n)
		}
		m.mem.Write(m.bucketBase(bucket)+within, src[n:n+int(chunk)])
		n += int(chunk)
	}
}

func (v *virtualMemory) check(offset uint64, length int) {
	last := offset + uint64(length)
	if last < offset || last > v.mgr.sizes[v.id]*PageSize {
		panic(fmt.Sprintf("stablemem: access [%d, %d) is out of bounds for virtual memory %d of %d pages",
			offset, last, v.id, v.mgr.sizes[v.id]))
	}
}
