//go:build !wasm

package stablemem

// NewDefaultMemory returns the default backing for this build target: an
// in-process VectorMemory. Hosted (wasm) builds use the host's stable
// pages instead.
func NewDefaultMemory() Memory {
	return NewVectorMemory()
}
