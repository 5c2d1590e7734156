package stablemem

import "bytes"

var heapMagic = [3]byte{'S', 'B', 'H'}

// MinHeap is a binary min-heap of bounded values, ordered by lexicographic
// comparison of their encodings. For the big-endian integer storables this
// is numeric order. It reuses the Vec slot layout under its own magic.
type MinHeap[T BoundedStorable[T]] struct {
	slots  slotTable
	length uint64
}

// InitMinHeap creates a heap over mem, or loads the one already stored
// there.
func InitMinHeap[T BoundedStorable[T]](mem Memory) (*MinHeap[T], error) {
	var zero T
	length, err := initSlotTable(mem, heapMagic, zero.MaxSize())
	if err != nil {
		return nil, err
	}
	return &MinHeap[T]{
		slots:  slotTable{mem: mem, maxSize: zero.MaxSize()},
		length: length,
	}, nil
}

// Len returns the number of elements.
func (h *MinHeap[T]) Len() uint64 {
	return h.length
}

// Peek returns the smallest element without removing it. It reports false
// on an empty heap.
func (h *MinHeap[T]) Peek() (T, bool) {
	var zero T
	if h.length == 0 {
		return zero, false
	}
	return zero.FromBytes(h.slots.readEnc(0)), true
}

// Push adds an element. On a refused growth the heap is unchanged and a
// *GrowFailed is returned.
func (h *MinHeap[T]) Push(value T) error {
	if err := h.slots.appendSlot(h.length, value.ToBytes()); err != nil {
		return err
	}
	h.length++
	writeU64(h.slots.mem, slotLenOffset, h.length)
	h.siftUp(h.length - 1)
	return nil
}

// Pop removes and returns the smallest element. It reports false on an
// empty heap.
func (h *MinHeap[T]) Pop() (T, bool) {
	var zero T
	if h.length == 0 {
		return zero, false
	}

	root := h.slots.readEnc(0)
	last := h.slots.readEnc(h.length - 1)
	h.length--
	writeU64(h.slots.mem, slotLenOffset, h.length)
	if h.length > 0 {
		h.slots.writeSlot(0, last)
		h.siftDown(0)
	}
	return zero.FromBytes(root), true
}

func (h *MinHeap[T]) siftUp(i uint64) {
	for i > 0 {
		parent := (i - 1) / 2
		if bytes.Compare(h.slots.readEnc(i), h.slots.readEnc(parent)) >= 0 {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *MinHeap[T]) siftDown(i uint64) {
	for {
		smallest := i
		enc := h.slots.readEnc(smallest)
		if left := 2*i + 1; left < h.length {
			if leftEnc := h.slots.readEnc(left); bytes.Compare(leftEnc, enc) < 0 {
				smallest, enc = left, leftEnc
			}
		}
		if right := 2*i + 2; right < h.length {
			if rightEnc := h.slots.readEnc(right); bytes.Compare(rightEnc, enc) < 0 {
				smallest, enc = right, rightEnc
			}
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *MinHeap[T]) swap(i, j uint64) {
	a := h.slots.readEnc(i)
	b := h.slots.readEnc(j)
	h.slots.writeSlot(i, b)
	h.slots.writeSlot(j, a)
}
