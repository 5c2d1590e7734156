package stablemem

import "fmt"

// Slot-table layout, shared by Vec and MinHeap:
//
//	Offset  Size  Field
//	0       3     magic
//	3       1     version
//	4       4     slot payload capacity (LE)
//	8       8     element count (LE)
//	16      ...   slots, each: value length u32 + payload capacity bytes
const (
	slotHeaderSize    = 16
	slotCapOffset     = 4
	slotLenOffset     = 8
	slotLayoutVersion = 1
)

var vecMagic = [3]byte{'S', 'V', 'C'}

// slotTable is the fixed-width element array underneath Vec and MinHeap.
type slotTable struct {
	mem     Memory
	maxSize uint32
}

func (s slotTable) slotWidth() uint64 {
	return 4 + uint64(s.maxSize)
}

func (s slotTable) slotAddr(i uint64) address {
	return address(slotHeaderSize).add(byteCount(i * s.slotWidth()))
}

// readEnc returns the encoded value stored in slot i.
func (s slotTable) readEnc(i uint64) []byte {
	a := s.slotAddr(i)
	length := readU32(s.mem, a)
	if length > s.maxSize {
		panic(fmt.Sprintf("stablemem: slot %d claims %d bytes, capacity is %d", i, length, s.maxSize))
	}
	buf := make([]byte, length)
	s.mem.Read(a.add(4).get(), buf)
	return buf
}

// encodeSlot builds the raw slot image for an encoded value.
func (s slotTable) encodeSlot(enc []byte) []byte {
	if uint32(len(enc)) > s.maxSize {
		panic(fmt.Sprintf("stablemem: encoded value is %d bytes, bound is %d", len(enc), s.maxSize))
	}
	buf := make([]byte, s.slotWidth())
	putU32LE(buf, uint32(len(enc)))
	copy(buf[4:], enc)
	return buf
}

// writeSlot overwrites slot i. The slot must already be allocated.
func (s slotTable) writeSlot(i uint64, enc []byte) {
	Write(s.mem, s.slotAddr(i).get(), s.encodeSlot(enc))
}

// appendSlot writes slot i through the safe-grow path.
func (s slotTable) appendSlot(i uint64, enc []byte) error {
	return SafeWrite(s.mem, s.slotAddr(i).get(), s.encodeSlot(enc))
}

// initSlotTable writes a fresh header or validates an existing one.
func initSlotTable(mem Memory, magic [3]byte, maxSize uint32) (length uint64, err error) {
	if mem.Size() == 0 {
		var header [slotHeaderSize]byte
		copy(header[:], magic[:])
		header[3] = slotLayoutVersion
		putU32LE(header[slotCapOffset:], maxSize)
		if err := SafeWrite(mem, 0, header[:]); err != nil {
			return 0, err
		}
		return 0, nil
	}

	var header [slotHeaderSize]byte
	mem.Read(0, header[:])
	if [3]byte(header[:3]) != magic {
		return 0, fmt.Errorf("stablemem: memory does not hold a %q structure (magic %q)", magic[:], header[:3])
	}
	if header[3] != slotLayoutVersion {
		return 0, fmt.Errorf("stablemem: unsupported layout version %d", header[3])
	}
	if stored := readU32(mem, slotCapOffset); stored != maxSize {
		return 0, fmt.Errorf("stablemem: stored slot capacity %d does not match element bound %d", stored, maxSize)
	}
	return readU64(mem, slotLenOffset), nil
}

// Vec is a growable array of bounded values with fixed-width slots.
type Vec[T BoundedStorable[T]] struct {
	slots  slotTable
	length uint64
}

// InitVec creates a vector over mem, or loads the one already stored
// there.
func InitVec[T BoundedStorable[T]](mem Memory) (*Vec[T], error) {
	var zero T
	length, err := initSlotTable(mem, vecMagic, zero.MaxSize())
	if err != nil {
		return nil, err
	}
	return &Vec[T]{
		slots:  slotTable{mem: mem, maxSize: zero.MaxSize()},
		length: length,
	}, nil
}

// Len returns the number of elements.
func (v *Vec[T]) Len() uint64 {
	return v.length
}

// Get returns element i. Indexing past the end is a contract violation.
func (v *Vec[T]) Get(i uint64) T {
	v.checkIndex(i)
	var zero T
	return zero.FromBytes(v.slots.readEnc(i))
}

// Set replaces element i. Indexing past the end is a contract violation.
func (v *Vec[T]) Set(i uint64, value T) {
	v.checkIndex(i)
	v.slots.writeSlot(i, value.ToBytes())
}

// Push appends an element. On a refused growth the vector is unchanged
// and a *GrowFailed is returned.
func (v *Vec[T]) Push(value T) error {
	if err := v.slots.appendSlot(v.length, value.ToBytes()); err != nil {
		return err
	}
	v.length++
	writeU64(v.slots.mem, slotLenOffset, v.length)
	return nil
}

// Pop removes and returns the last element. It reports false on an empty
// vector.
func (v *Vec[T]) Pop() (T, bool) {
	var zero T
	if v.length == 0 {
		return zero, false
	}
	value := zero.FromBytes(v.slots.readEnc(v.length - 1))
	v.length--
	writeU64(v.slots.mem, slotLenOffset, v.length)
	return value, true
}

// Iterate calls fn for each element in index order until fn returns false.
func (v *Vec[T]) Iterate(fn func(i uint64, value T) bool) {
	var zero T
	for i := uint64(0); i < v.length; i++ {
		if !fn(i, zero.FromBytes(v.slots.readEnc(i))) {
			return
		}
	}
}

func (v *Vec[T]) checkIndex(i uint64) {
	if i >= v.length {
		panic(fmt.Sprintf("stablemem: index %d out of range for a vector of %d elements", i, v.length))
	}
}
