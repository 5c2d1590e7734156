package stablemem

import (
	"bytes"
	"errors"
	"testing"
)

// cappedMemory refuses to grow beyond a fixed page budget, standing in
// for a host that runs out of quota.
type cappedMemory struct {
	*VectorMemory
	maxPages uint64
}

func (m *cappedMemory) Grow(delta uint64) int64 {
	if m.Size()+delta > m.maxPages {
		return -1
	}
	return m.VectorMemory.Grow(delta)
}

func TestSafeWriteAutoGrow(t *testing.T) {
	mem := NewVectorMemory()

	if err := SafeWrite(mem, 100, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("SafeWrite failed: %v", err)
	}
	if mem.Size() != 1 {
		t.Fatalf("size after write: got %d pages, want 1", mem.Size())
	}

	page := make([]byte, PageSize)
	mem.Read(0, page)
	if page[100] != 0xAA || page[101] != 0xBB {
		t.Errorf("written bytes: got %x %x, want aa bb", page[100], page[101])
	}
	for i, b := range page {
		if i == 100 || i == 101 {
			continue
		}
		if b != 0 {
			t.Fatalf("byte %d is %x, want 0", i, b)
		}
	}
}

func TestSafeWriteCrossPage(t *testing.T) {
	mem := NewVectorMemory()
	if mem.Grow(1) != 0 {
		t.Fatal("initial grow failed")
	}

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if err := SafeWrite(mem, 65530, data); err != nil {
		t.Fatalf("SafeWrite failed: %v", err)
	}
	if mem.Size() != 2 {
		t.Fatalf("size: got %d pages, want 2", mem.Size())
	}

	got := make([]byte, len(data))
	mem.Read(65530, got)
	if !bytes.Equal(got, data) {
		t.Errorf("read back %v, want %v", got, data)
	}
}

func TestSafeWriteGrowFailed(t *testing.T) {
	mem := &cappedMemory{VectorMemory: NewVectorMemory(), maxPages: 2}

	err := SafeWrite(mem, 3*PageSize, []byte{0})
	if err == nil {
		t.Fatal("expected growth refusal")
	}
	var gf *GrowFailed
	if !errors.As(err, &gf) {
		t.Fatalf("error is %T, want *GrowFailed", err)
	}
	if gf.CurrentSize != 0 || gf.Delta != 4 {
		t.Errorf("GrowFailed{%d, %d}, want {0, 4}", gf.CurrentSize, gf.Delta)
	}
	if mem.Size() != 0 {
		t.Errorf("size changed to %d after refused growth", mem.Size())
	}
}

func TestWritePanicsOnRefusedGrowth(t *testing.T) {
	mem := &cappedMemory{VectorMemory: NewVectorMemory(), maxPages: 1}

	defer func() {
		if recover() == nil {
			t.Fatal("Write should panic when growth is refused")
		}
	}()
	Write(mem, 5*PageSize, []byte{1})
}

func TestGrowZeroExtension(t *testing.T) {
	mem := NewVectorMemory()
	mem.Grow(1)
	mem.Write(0, bytes.Repeat([]byte{0xFF}, int(PageSize)))

	if prev := mem.Grow(2); prev != 1 {
		t.Fatalf("Grow returned %d, want 1", prev)
	}
	tail := make([]byte, 2*PageSize)
	mem.Read(PageSize, tail)
	for i, b := range tail {
		if b != 0 {
			t.Fatalf("grown byte %d is %x, want 0", i, b)
		}
	}
}

func TestIntegerHelpersRoundTrip(t *testing.T) {
	mem := NewVectorMemory()

	for _, v := range []uint32{0, 1, 0xDEADBEEF, 0xFFFFFFFF} {
		writeU32(mem, 16, v)
		if got := readU32(mem, 16); got != v {
			t.Errorf("u32 round trip: got %d, want %d", got, v)
		}
	}
	for _, v := range []uint64{0, 1, 1 << 40, 0xFFFFFFFFFFFFFFFF} {
		writeU64(mem, 1000, v)
		if got := readU64(mem, 1000); got != v {
			t.Errorf("u64 round trip: got %d, want %d", got, v)
		}
	}
}

func TestStructHelpersRoundTrip(t *testing.T) {
	type header struct {
		Magic   [3]byte
		Version uint8
		Count   uint32
		Root    uint64
	}

	mem := NewVectorMemory()
	want := header{Magic: [3]byte{'H', 'D', 'R'}, Version: 2, Count: 77, Root: 1 << 33}
	writeStruct(mem, 128, &want)

	if got := readStruct[header](mem, 128); got != want {
		t.Errorf("struct round trip: got %+v, want %+v", got, want)
	}
}

func TestCopyForwardOverlap(t *testing.T) {
	mem := NewVectorMemory()
	Write(mem, 0, []byte{1, 2, 3, 4, 5})

	memCopy(mem, 0, 2, 5, 1)

	got := make([]byte, 7)
	mem.Read(0, got)
	want := []byte{1, 2, 1, 2, 3, 4, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("after copy: got %v, want %v", got, want)
	}
}

func TestCopyBackwardOverlap(t *testing.T) {
	mem := NewVectorMemory()
	Write(mem, 0, []byte{0, 0, 1, 2, 3, 4, 5})

	memCopy(mem, 2, 0, 5, 1)

	got := make([]byte, 7)
	mem.Read(0, got)
	want := []byte{1, 2, 3, 4, 5, 4, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("after copy: got %v, want %v", got, want)
	}
}

func TestCopyChunked(t *testing.T) {
	mem := NewVectorMemory()
	src := []byte{1, 1, 1, 2, 2, 2, 3, 3, 3}
	Write(mem, 0, src)

	memCopy(mem, 0, 100, 3, 3)

	got := make([]byte, len(src))
	mem.Read(100, got)
	if !bytes.Equal(got, src) {
		t.Errorf("chunked copy: got %v, want %v", got, src)
	}
}

// fakePager backs HostMemory with a VectorMemory standing in for the
// host runtime.
type fakePager struct {
	mem *VectorMemory
}

func (p *fakePager) StableSize() uint64                    { return p.mem.Size() }
func (p *fakePager) StableGrow(pages uint64) int64         { return p.mem.Grow(pages) }
func (p *fakePager) StableRead(offset uint64, dst []byte)  { p.mem.Read(offset, dst) }
func (p *fakePager) StableWrite(offset uint64, src []byte) { p.mem.Write(offset, src) }

func TestHostMemoryForwards(t *testing.T) {
	backing := NewVectorMemory()
	mem := NewHostMemory(&fakePager{mem: backing})

	if err := SafeWrite(mem, 10, []byte("through the host")); err != nil {
		t.Fatalf("SafeWrite failed: %v", err)
	}
	if mem.Size() != 1 || backing.Size() != 1 {
		t.Fatalf("sizes: view %d, backing %d, want 1 and 1", mem.Size(), backing.Size())
	}

	got := make([]byte, 16)
	backing.Read(10, got)
	if string(got) != "through the host" {
		t.Errorf("backing content: got %q", got)
	}
}

func TestDefaultMemory(t *testing.T) {
	mem := NewDefaultMemory()
	if mem.Size() != 0 {
		t.Fatalf("fresh default memory has %d pages, want 0", mem.Size())
	}
	if err := SafeWrite(mem, 0, []byte{1}); err != nil {
		t.Fatalf("SafeWrite failed: %v", err)
	}
}
