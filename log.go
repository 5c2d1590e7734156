package stablemem

import (
	"encoding/binary"
	"fmt"
)

// Log layout. The log spans two memories so that entry data and the entry
// index can grow independently (typically two regions of one backing).
//
// Index memory:
//
//	Offset  Size  Field
//	0       3     magic "GLI"
//	3       1     version
//	4       4     reserved
//	8       8     entry count (LE)
//	16      8×n   cumulative end offset of each entry in the data memory
//
// Data memory:
//
//	Offset  Size  Field
//	0       3     magic "GLD"
//	3       1     version
//	4       4     reserved
//	8       ...   concatenated entry encodings
const (
	logCountOffset    = 8
	logIndexStart     = 16
	logDataStart      = 8
	logLayoutVersion  = 1
	logHeaderReserved = 8
)

var (
	logIndexMagic = [3]byte{'G', 'L', 'I'}
	logDataMagic  = [3]byte{'G', 'L', 'D'}
)

// Log is an append-only list of variable-width values.
type Log[T Storable[T]] struct {
	index Memory
	data  Memory
	count uint64
}

// InitLog creates a log over an index memory and a data memory, or loads
// the one already stored there.
func InitLog[T Storable[T]](index, data Memory) (*Log[T], error) {
	if err := initLogHeader(index, logIndexMagic); err != nil {
		return nil, err
	}
	if err := initLogHeader(data, logDataMagic); err != nil {
		return nil, err
	}
	return &Log[T]{index: index, data: data, count: readU64(index, logCountOffset)}, nil
}

func initLogHeader(mem Memory, magic [3]byte) error {
	if mem.Size() == 0 {
		var header [logHeaderReserved]byte
		copy(header[:], magic[:])
		header[3] = logLayoutVersion
		return SafeWrite(mem, 0, header[:])
	}

	var header [logHeaderReserved]byte
	mem.Read(0, header[:])
	if [3]byte(header[:3]) != magic {
		return fmt.Errorf("stablemem: memory does not hold a log %q section (magic %q)", magic[:], header[:3])
	}
	if header[3] != logLayoutVersion {
		return fmt.Errorf("stablemem: unsupported log layout version %d", header[3])
	}
	return nil
}

// Len returns the number of entries.
func (l *Log[T]) Len() uint64 {
	return l.count
}

// Append adds an entry and returns its index. On a refused growth of
// either memory the log is unchanged and a *GrowFailed is returned.
func (l *Log[T]) Append(value T) (uint64, error) {
	enc := value.ToBytes()

	prevEnd := l.end(l.count)
	if err := SafeWrite(l.data, logDataStart+prevEnd, enc); err != nil {
		return 0, err
	}
	var endBuf [8]byte
	binary.LittleEndian.PutUint64(endBuf[:], prevEnd+uint64(len(enc)))
	if err := SafeWrite(l.index, logIndexStart+l.count*8, endBuf[:]); err != nil {
		return 0, err
	}
	l.count++
	writeU64(l.index, logCountOffset, l.count)
	return l.count - 1, nil
}

// Get returns entry i. It reports false for an index past the end.
func (l *Log[T]) Get(i uint64) (T, bool) {
	var zero T
	if i >= l.count {
		return zero, false
	}

	start := l.end(i)
	end := l.end(i + 1)
	buf := make([]byte, end-start)
	l.data.Read(logDataStart+start, buf)
	return zero.FromBytes(buf), true
}

// Iterate calls fn for each entry in append order until fn returns false.
func (l *Log[T]) Iterate(fn func(i uint64, value T) bool) {
	for i := uint64(0); i < l.count; i++ {
		value, _ := l.Get(i)
		if !fn(i, value) {
			return
		}
	}
}

// end returns the data offset one past entry i-1, i.e. where entry i
// begins; end(count) is the current data length.
func (l *Log[T]) end(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	return readU64(l.index, address(logIndexStart).add(byteCount((i-1)*8)))
}
