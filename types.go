package stablemem

import "fmt"

// address is a byte offset into a Memory.
type address uint64

// byteCount is a count of bytes. It is a distinct type from address so that
// offsets and lengths cannot be mixed up in address arithmetic.
type byteCount uint64

// bytesFromPages converts a page count into a byte count.
func bytesFromPages(pages uint64) byteCount {
	if pages > maxPages {
		panic(fmt.Sprintf("stablemem: page count %d overflows the address space", pages))
	}
	return byteCount(pages * PageSize)
}

// add returns the address advanced by n bytes.
// Overflowing the 64-bit address space is a programming error.
func (a address) add(n byteCount) address {
	sum := uint64(a) + uint64(n)
	if sum < uint64(a) {
		panic(fmt.Sprintf("stablemem: address overflow: %d + %d", uint64(a), uint64(n)))
	}
	return address(sum)
}

// get returns the raw byte offset.
func (a address) get() uint64 {
	return uint64(a)
}
