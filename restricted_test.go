package stablemem

import (
	"bytes"
	"testing"
)

func TestRestrictedSizeRegimes(t *testing.T) {
	inner := NewVectorMemory()
	r := NewRestrictedMemory(inner, 2, 5)

	// Inner below the region start.
	if got := r.Size(); got != 0 {
		t.Fatalf("size with empty inner: got %d, want 0", got)
	}

	// Inner inside the region.
	inner.Grow(3)
	if got := r.Size(); got != 1 {
		t.Fatalf("size with 3 inner pages: got %d, want 1", got)
	}

	// Inner past the region end.
	inner.Grow(10)
	if got := r.Size(); got != 3 {
		t.Fatalf("size with 13 inner pages: got %d, want 3 (capped)", got)
	}
}

func TestRestrictedGrowFillsGap(t *testing.T) {
	inner := NewVectorMemory()
	r := NewRestrictedMemory(inner, 2, 5)

	if prev := r.Grow(1); prev != 0 {
		t.Fatalf("Grow(1) returned %d, want 0", prev)
	}
	if r.Size() != 1 {
		t.Errorf("region size: got %d, want 1", r.Size())
	}
	if inner.Size() != 3 {
		t.Errorf("inner size: got %d, want 3", inner.Size())
	}

	if got := r.Grow(5); got != -1 {
		t.Fatalf("Grow(5) past the region end returned %d, want -1", got)
	}
	if r.Size() != 1 {
		t.Errorf("region size after refused grow: got %d, want 1", r.Size())
	}
}

func TestRestrictedGrowInsideRegion(t *testing.T) {
	inner := NewVectorMemory()
	inner.Grow(3)
	r := NewRestrictedMemory(inner, 2, 5)

	if prev := r.Grow(2); prev != 1 {
		t.Fatalf("Grow(2) returned %d, want 1 (region page index)", prev)
	}
	if r.Size() != 3 || inner.Size() != 5 {
		t.Errorf("sizes: region %d, inner %d, want 3 and 5", r.Size(), inner.Size())
	}
}

func TestRestrictedGrowWhenFull(t *testing.T) {
	inner := NewVectorMemory()
	inner.Grow(5)
	r := NewRestrictedMemory(inner, 2, 5)

	if got := r.Grow(0); got != 3 {
		t.Fatalf("Grow(0) on a full region returned %d, want 3", got)
	}
	if got := r.Grow(1); got != -1 {
		t.Fatalf("Grow(1) on a full region returned %d, want -1", got)
	}
	if inner.Size() != 5 {
		t.Errorf("inner size changed to %d", inner.Size())
	}
}

func TestRestrictedGrowRefusalLeavesInnerAlone(t *testing.T) {
	inner := &cappedMemory{VectorMemory: NewVectorMemory(), maxPages: 3}
	inner.Grow(3)
	r := NewRestrictedMemory(inner, 2, 8)

	// delta exceeds the region room left by the cap-refusing inner.
	if got := r.Grow(7); got != -1 {
		t.Fatalf("Grow(7) returned %d, want -1", got)
	}
	if inner.Size() != 3 {
		t.Errorf("inner size changed to %d after refused grow", inner.Size())
	}
}

func TestRestrictedReadWriteTranslate(t *testing.T) {
	inner := NewVectorMemory()
	inner.Grow(6)
	r := NewRestrictedMemory(inner, 2, 5)

	data := []byte("region payload")
	r.Write(123, data)

	got := make([]byte, len(data))
	inner.Read(2*PageSize+123, got)
	if !bytes.Equal(got, data) {
		t.Errorf("inner bytes: got %q, want %q", got, data)
	}

	back := make([]byte, len(data))
	r.Read(123, back)
	if !bytes.Equal(back, data) {
		t.Errorf("region read back: got %q, want %q", back, data)
	}
}

func TestRestrictedConstructorValidation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an end page past the address space")
		}
	}()
	NewRestrictedMemory(NewVectorMemory(), 0, maxPages)
}

func TestRestrictedRegionsShareBacking(t *testing.T) {
	inner := NewVectorMemory()
	index := NewRestrictedMemory(inner, 0, 4)
	data := NewRestrictedMemory(inner, 4, 8)

	if err := SafeWrite(index, 0, []byte("index region")); err != nil {
		t.Fatal(err)
	}
	if err := SafeWrite(data, 0, []byte("data region")); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 12)
	index.Read(0, got)
	if string(got) != "index region" {
		t.Errorf("index region holds %q", got)
	}
	got = make([]byte, 11)
	data.Read(0, got)
	if string(got) != "data region" {
		t.Errorf("data region holds %q", got)
	}
}
