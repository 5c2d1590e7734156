package stablemem

import (
	"fmt"
	"math"
	"os"

	"github.com/Giulio2002/stablemem/mmap"
)

// maxFilePages caps a file memory so its byte length fits in the int64
// used by file offsets and mappings.
const maxFilePages = math.MaxInt64 / int64(PageSize)

// FileMemory is a Memory stored in a file, mapped into the address space.
// Grow extends the file and remaps; a failed extension (for example a full
// disk) is reported as a growth refusal, never a panic.
//
// The file is mapped lazily: an empty memory holds no mapping until the
// first successful Grow.
type FileMemory struct {
	file  *os.File
	mm    *mmap.Map
	pages uint64
}

// OpenFileMemory opens or creates a file-backed memory at path. An
// existing file must be an exact multiple of the page size.
func OpenFileMemory(path string) (*FileMemory, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size%int64(PageSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("stablemem: file %q length %d is not a multiple of the page size", path, size)
	}

	m := &FileMemory{file: f, pages: uint64(size) / PageSize}
	if size > 0 {
		mm, err := mmap.New(int(f.Fd()), int(size))
		if err != nil {
			f.Close()
			return nil, err
		}
		m.mm = mm
	}
	return m, nil
}

// Size returns the current page count.
func (m *FileMemory) Size() uint64 {
	return m.pages
}

// Grow extends the file by delta zero-filled pages and remaps it. It
// returns the previous page count, or -1 if the file cannot be extended
// or mapped at the new length; on refusal the memory is unchanged.
func (m *FileMemory) Grow(delta uint64) int64 {
	prev := m.pages
	if delta == 0 {
		return int64(prev)
	}
	if delta > uint64(maxFilePages) || prev+delta > uint64(maxFilePages) {
		return -1
	}

	newPages := prev + delta
	newSize := int64(newPages) * int64(PageSize)
	if err := m.file.Truncate(newSize); err != nil {
		return -1
	}

	if m.mm == nil {
		mm, err := mmap.New(int(m.file.Fd()), int(newSize))
		if err != nil {
			m.file.Truncate(int64(prev) * int64(PageSize))
			return -1
		}
		m.mm = mm
	} else if err := m.mm.Remap(newSize); err != nil {
		m.file.Truncate(int64(prev) * int64(PageSize))
		return -1
	}

	m.pages = newPages
	return int64(prev)
}

// Read copies len(dst) bytes at offset into dst.
func (m *FileMemory) Read(offset uint64, dst []byte) {
	m.check(offset, len(dst))
	if len(dst) == 0 {
		return
	}
	copy(dst, m.mm.Data()[offset:])
}

// Write copies src into the memory at offset.
func (m *FileMemory) Write(offset uint64, src []byte) {
	m.check(offset, len(src))
	if len(src) == 0 {
		return
	}
	copy(m.mm.Data()[offset:], src)
}

// Sync flushes the mapped bytes to disk.
func (m *FileMemory) Sync() error {
	if m.mm == nil {
		return nil
	}
	return m.mm.Sync()
}

// Close flushes and unmaps the memory and closes the file.
func (m *FileMemory) Close() error {
	if m.mm != nil {
		if err := m.mm.Sync(); err != nil {
			m.file.Close()
			return err
		}
		if err := m.mm.Close(); err != nil {
			m.file.Close()
			return err
		}
		m.mm = nil
	}
	return m.file.Close()
}

func (m *FileMemory) check(offset uint64, length int) {
	last := offset + uint64(length)
	if last < offset || last > m.pages*PageSize {
		panic(fmt.Sprintf("stablemem: access [%d, %d) is out of bounds for a memory of %d pages",
			offset, last, m.pages))
	}
}
