package stablemem

import "fmt"

// Cell layout:
//
//	Offset  Size  Field
//	0       3     magic "SCE"
//	3       1     version
//	4       4     value length (LE)
//	8       ...   encoded value
const (
	cellHeaderSize    = 8
	cellLenOffset     = 4
	cellLayoutVersion = 1
)

var cellMagic = [3]byte{'S', 'C', 'E'}

// Cell holds a single value in stable memory. The decoded value is cached
// in the handle; Set keeps store and cache in step.
type Cell[T Storable[T]] struct {
	mem   Memory
	value T
}

// InitCell creates a cell over mem, writing defaultValue if the memory is
// empty and loading the stored value otherwise. A memory holding something
// other than a cell is rejected.
func InitCell[T Storable[T]](mem Memory, defaultValue T) (*Cell[T], error) {
	if mem.Size() == 0 {
		c := &Cell[T]{mem: mem, value: defaultValue}
		if err := c.store(defaultValue); err != nil {
			return nil, err
		}
		return c, nil
	}

	var header [cellHeaderSize]byte
	mem.Read(0, header[:])
	if [3]byte(header[:3]) != cellMagic {
		return nil, fmt.Errorf("stablemem: memory does not hold a cell (magic %q)", header[:3])
	}
	if header[3] != cellLayoutVersion {
		return nil, fmt.Errorf("stablemem: unsupported cell layout version %d", header[3])
	}

	c := &Cell[T]{mem: mem}
	length := readU32(mem, cellLenOffset)
	buf := make([]byte, length)
	mem.Read(cellHeaderSize, buf)
	c.value = c.value.FromBytes(buf)
	return c, nil
}

// Get returns the stored value.
func (c *Cell[T]) Get() T {
	return c.value
}

// Set replaces the stored value. On a refused growth the cell is
// unchanged and a *GrowFailed is returned.
func (c *Cell[T]) Set(value T) error {
	if err := c.store(value); err != nil {
		return err
	}
	c.value = value
	return nil
}

func (c *Cell[T]) store(value T) error {
	enc := value.ToBytes()

	buf := make([]byte, cellHeaderSize+len(enc))
	copy(buf, cellMagic[:])
	buf[3] = cellLayoutVersion
	putU32LE(buf[cellLenOffset:], uint32(len(enc)))
	copy(buf[cellHeaderSize:], enc)
	return SafeWrite(c.mem, 0, buf)
}
