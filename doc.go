// Package stablemem is a collection of data structures that live directly
// on top of a flat, page-granular byte store ("stable memory").
//
// The store survives process restarts while the Go heap does not, so the
// structures never serialize or deserialize around an upgrade: their state
// in the store is their state in use. Everything is built on the four-way
// Memory contract (size in pages, grow, read, write) and a 64 KiB page.
//
// Key pieces:
//   - Memory: the store contract, with VectorMemory (in-process pages),
//     FileMemory (memory-mapped file) and HostMemory (host runtime pages)
//     backings
//   - RestrictedMemory: a page-aligned sub-range of a store presented as a
//     standalone store
//   - MemoryManager: interleaved multiplexing of one store into up to 255
//     virtual memories
//   - BTreeMap, Vec, Log, Cell, MinHeap: persistent containers
//   - Reader, Writer: io.Reader/io.Writer over a store
//
// Basic usage:
//
//	mem := stablemem.NewDefaultMemory()
//	m, err := stablemem.InitBTreeMap[stablemem.U64, stablemem.U64](mem)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, _, err := m.Insert(42, 7); err != nil {
//	    log.Fatal(err)
//	}
//
// All structures assume a single thread of control; the package offers no
// synchronization of its own.
package stablemem
