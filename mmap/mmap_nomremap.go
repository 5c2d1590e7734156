//go:build unix && !linux

package mmap

// tryMremap is unavailable outside Linux; the caller falls back to
// munmap+mmap.
func (m *Map) tryMremap(newSize int) ([]byte, error) {
	return nil, ErrNotMapped
}
