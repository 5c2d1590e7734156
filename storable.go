package stablemem

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Storable is implemented by values that containers can persist.
//
// ToBytes may return a view into the value or a fresh slice; callers must
// not hold it across a mutation of the value. FromBytes takes ownership of
// its argument and reconstructs the value.
//
// Decoding cannot fail: the bytes either came from a matching ToBytes or
// from uncorrupted persisted state. Malformed input means a library bug or
// storage corruption, both unrecoverable, so FromBytes panics rather than
// taxing every container operation with an error it could never handle.
type Storable[T any] interface {
	ToBytes() []byte
	FromBytes(b []byte) T
}

// BoundedStorable is a Storable whose encoding never exceeds a known size.
// Containers with fixed-width slot layouts (BTreeMap, Vec, MinHeap)
// require it; the variable-width Log does not.
type BoundedStorable[T any] interface {
	Storable[T]

	// MaxSize returns the maximum encoded size in bytes.
	MaxSize() uint32
}

// The integer storables encode big-endian so that byte-wise lexicographic
// comparison matches numeric order, a property BTreeMap and MinHeap rely
// on for ordering.

// Unit is the zero-byte storable.
type Unit struct{}

func (Unit) ToBytes() []byte { return []byte{} }

func (Unit) FromBytes(b []byte) Unit {
	if len(b) != 0 {
		panic(fmt.Sprintf("stablemem: unit value decoded from %d bytes", len(b)))
	}
	return Unit{}
}

func (Unit) MaxSize() uint32 { return 0 }

// Blob is a raw byte sequence storable. It is unbounded.
type Blob []byte

func (b Blob) ToBytes() []byte { return b }

func (Blob) FromBytes(b []byte) Blob { return b }

// Text is a UTF-8 string storable. It is unbounded.
type Text string

func (t Text) ToBytes() []byte { return []byte(t) }

func (Text) FromBytes(b []byte) Text {
	if !utf8.Valid(b) {
		panic("stablemem: text value decoded from invalid UTF-8")
	}
	return Text(b)
}

// U8 is a big-endian fixed-width uint8 storable.
type U8 uint8

func (v U8) ToBytes() []byte { return []byte{byte(v)} }

func (U8) FromBytes(b []byte) U8 {
	if len(b) != 1 {
		panic(fmt.Sprintf("stablemem: u8 decoded from %d bytes", len(b)))
	}
	return U8(b[0])
}

func (U8) MaxSize() uint32 { return 1 }

// U16 is a big-endian fixed-width uint16 storable.
type U16 uint16

func (v U16) ToBytes() []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	return buf[:]
}

func (U16) FromBytes(b []byte) U16 {
	if len(b) != 2 {
		panic(fmt.Sprintf("stablemem: u16 decoded from %d bytes", len(b)))
	}
	return U16(binary.BigEndian.Uint16(b))
}

func (U16) MaxSize() uint32 { return 2 }

// U32 is a big-endian fixed-width uint32 storable.
type U32 uint32

func (v U32) ToBytes() []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return buf[:]
}

func (U32) FromBytes(b []byte) U32 {
	if len(b) != 4 {
		panic(fmt.Sprintf("stablemem: u32 decoded from %d bytes", len(b)))
	}
	return U32(binary.BigEndian.Uint32(b))
}

func (U32) MaxSize() uint32 { return 4 }

// U64 is a big-endian fixed-width uint64 storable.
type U64 uint64

func (v U64) ToBytes() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func (U64) FromBytes(b []byte) U64 {
	if len(b) != 8 {
		panic(fmt.Sprintf("stablemem: u64 decoded from %d bytes", len(b)))
	}
	return U64(binary.BigEndian.Uint64(b))
}

func (U64) MaxSize() uint32 { return 8 }

// U128 is a big-endian fixed-width 128-bit unsigned integer storable.
type U128 struct {
	Hi, Lo uint64
}

func (v U128) ToBytes() []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], v.Hi)
	binary.BigEndian.PutUint64(buf[8:], v.Lo)
	return buf[:]
}

func (U128) FromBytes(b []byte) U128 {
	if len(b) != 16 {
		panic(fmt.Sprintf("stablemem: u128 decoded from %d bytes", len(b)))
	}
	return U128{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}
}

func (U128) MaxSize() uint32 { return 16 }
