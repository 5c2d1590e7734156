package stablemem

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Node helpers and the rebalancing half of BTreeMap. All writes here go to
// space the allocator has already grown, so they use the raw Memory
// contract; only allocNode crosses the current end of the memory.

// allocNode returns a zeroed node of the given type, reusing the free
// list when possible.
func (m *BTreeMap[K, V]) allocNode(typ byte) address {
	var a address
	if m.freeHead != 0 {
		a = m.freeHead
		m.freeHead = address(readU64(m.mem, a))
		m.setFreeHead(m.freeHead)
	} else {
		a = m.watermark
		m.watermark = m.watermark.add(byteCount(m.nodeSize))
		m.setWatermark(m.watermark)
	}

	// Zeroing the whole record both grows the memory over fresh space and
	// clears stale free-list state; count ends up 0.
	Write(m.mem, a.get(), make([]byte, m.nodeSize))
	m.mem.Write(a.get(), []byte{typ})
	return a
}

// freeNode pushes a node onto the free list.
func (m *BTreeMap[K, V]) freeNode(a address) {
	writeU64(m.mem, a, m.freeHead.get())
	m.freeHead = a
	m.setFreeHead(a)
}

func (m *BTreeMap[K, V]) setFreeHead(a address) {
	writeU64(m.mem, btreeFreeOffset, a.get())
}

func (m *BTreeMap[K, V]) setWatermark(a address) {
	writeU64(m.mem, btreeWatermarkOffset, a.get())
}

func (m *BTreeMap[K, V]) nodeType(a address) byte {
	var b [1]byte
	m.mem.Read(a.get(), b[:])
	return b[0]
}

func (m *BTreeMap[K, V]) nodeCount(a address) int {
	var b [2]byte
	m.mem.Read(a.add(1).get(), b[:])
	return int(binary.LittleEndian.Uint16(b[:]))
}

func (m *BTreeMap[K, V]) setNodeCount(a address, n int) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(n))
	m.mem.Write(a.add(1).get(), b[:])
}

func (m *BTreeMap[K, V]) entryAddr(node address, i int) address {
	return node.add(byteCount(4 + uint64(i)*m.entrySize))
}

func (m *BTreeMap[K, V]) childSlot(node address, i int) address {
	return node.add(byteCount(m.childrenOff + uint64(i)*8))
}

func (m *BTreeMap[K, V]) child(node address, i int) address {
	return address(readU64(m.mem, m.childSlot(node, i)))
}

func (m *BTreeMap[K, V]) setChild(node address, i int, c address) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], c.get())
	m.mem.Write(m.childSlot(node, i).get(), b[:])
}

func (m *BTreeMap[K, V]) readKeyEnc(node address, i int) []byte {
	a := m.entryAddr(node, i)
	length := readU32(m.mem, a)
	if length > m.maxKey {
		panic(fmt.Sprintf("stablemem: entry %d claims a %d-byte key, bound is %d", i, length, m.maxKey))
	}
	buf := make([]byte, length)
	m.mem.Read(a.add(4).get(), buf)
	return buf
}

func (m *BTreeMap[K, V]) readValEnc(node address, i int) []byte {
	a := m.entryAddr(node, i).add(byteCount(4 + uint64(m.maxKey)))
	length := readU32(m.mem, a)
	if length > m.maxVal {
		panic(fmt.Sprintf("stablemem: entry %d claims a %d-byte value, bound is %d", i, length, m.maxVal))
	}
	buf := make([]byte, length)
	m.mem.Read(a.add(4).get(), buf)
	return buf
}

func (m *BTreeMap[K, V]) writeEntry(node address, i int, kEnc, vEnc []byte) {
	buf := make([]byte, m.entrySize)
	putU32LE(buf, uint32(len(kEnc)))
	copy(buf[4:], kEnc)
	putU32LE(buf[4+m.maxKey:], uint32(len(vEnc)))
	copy(buf[8+m.maxKey:], vEnc)
	m.mem.Write(m.entryAddr(node, i).get(), buf)
}

func (m *BTreeMap[K, V]) writeValEnc(node address, i int, vEnc []byte) {
	buf := make([]byte, 4+m.maxVal)
	putU32LE(buf, uint32(len(vEnc)))
	copy(buf[4:], vEnc)
	m.mem.Write(m.entryAddr(node, i).add(byteCount(4+uint64(m.maxKey))).get(), buf)
}

func (m *BTreeMap[K, V]) readEntryRaw(node address, i int) []byte {
	buf := make([]byte, m.entrySize)
	m.mem.Read(m.entryAddr(node, i).get(), buf)
	return buf
}

func (m *BTreeMap[K, V]) writeEntryRaw(node address, i int, raw []byte) {
	m.mem.Write(m.entryAddr(node, i).get(), raw)
}

// shiftEntriesRight opens a hole at index i, moving entries [i, count)
// one slot right. Children are not touched.
func (m *BTreeMap[K, V]) shiftEntriesRight(node address, i int) {
	count := m.nodeCount(node)
	if count > i {
		memCopy(m.mem, m.entryAddr(node, i), m.entryAddr(node, i+1), uint64(count-i), int(m.entrySize))
	}
}

// shiftEntriesLeft closes the hole at index i, moving entries (i, count)
// one slot left.
func (m *BTreeMap[K, V]) shiftEntriesLeft(node address, i int) {
	count := m.nodeCount(node)
	if count > i+1 {
		memCopy(m.mem, m.entryAddr(node, i+1), m.entryAddr(node, i), uint64(count-i-1), int(m.entrySize))
	}
}

func (m *BTreeMap[K, V]) shiftChildrenRight(node address, i int) {
	count := m.nodeCount(node)
	if count+1 > i {
		memCopy(m.mem, m.childSlot(node, i), m.childSlot(node, i+1), uint64(count+1-i), 8)
	}
}

func (m *BTreeMap[K, V]) shiftChildrenLeft(node address, i int) {
	count := m.nodeCount(node)
	if count+1 > i+1 {
		memCopy(m.mem, m.childSlot(node, i+1), m.childSlot(node, i), uint64(count-i), 8)
	}
}

// moveEntries and moveChildren copy consecutive slots between two
// distinct nodes, so plain copies suffice.
func (m *BTreeMap[K, V]) moveEntries(src address, srcIdx int, dst address, dstIdx, n int) {
	buf := make([]byte, uint64(n)*m.entrySize)
	m.mem.Read(m.entryAddr(src, srcIdx).get(), buf)
	m.mem.Write(m.entryAddr(dst, dstIdx).get(), buf)
}

func (m *BTreeMap[K, V]) moveChildren(src address, srcIdx int, dst address, dstIdx, n int) {
	buf := make([]byte, n*8)
	m.mem.Read(m.childSlot(src, srcIdx).get(), buf)
	m.mem.Write(m.childSlot(dst, dstIdx).get(), buf)
}

// search returns the position of kEnc in the node, or the child index to
// descend into when the key is absent.
func (m *BTreeMap[K, V]) search(node address, kEnc []byte) (int, bool) {
	count := m.nodeCount(node)
	for i := 0; i < count; i++ {
		switch cmp := bytes.Compare(kEnc, m.readKeyEnc(node, i)); {
		case cmp == 0:
			return i, true
		case cmp < 0:
			return i, false
		}
	}
	return count, false
}

// splitChild splits the full child at index i of parent, promoting the
// median entry into the parent. The parent must not be full.
func (m *BTreeMap[K, V]) splitChild(parent address, i int) {
	child := m.child(parent, i)
	typ := m.nodeType(child)
	sibling := m.allocNode(typ)

	// Upper half moves to the new sibling.
	m.moveEntries(child, btreeB, sibling, 0, btreeCapacity-btreeB)
	if typ == nodeInternal {
		m.moveChildren(child, btreeB, sibling, 0, btreeCapacity-btreeB+1)
	}
	m.setNodeCount(sibling, btreeCapacity-btreeB)
	m.setNodeCount(child, btreeB-1)

	// Median moves up into the parent.
	m.shiftEntriesRight(parent, i)
	m.shiftChildrenRight(parent, i+1)
	m.writeEntryRaw(parent, i, m.readEntryRaw(child, btreeB-1))
	m.setChild(parent, i+1, sibling)
	m.setNodeCount(parent, m.nodeCount(parent)+1)
}

// removeFrom deletes kEnc from the subtree rooted at node, which is
// guaranteed to hold more than the minimum entry count unless it is the
// root.
func (m *BTreeMap[K, V]) removeFrom(node address, kEnc []byte) (V, bool) {
	var zeroV V
	idx, found := m.search(node, kEnc)

	if m.nodeType(node) == nodeLeaf {
		if !found {
			return zeroV, false
		}
		value := zeroV.FromBytes(m.readValEnc(node, idx))
		m.shiftEntriesLeft(node, idx)
		m.setNodeCount(node, m.nodeCount(node)-1)
		return value, true
	}

	if found {
		value := zeroV.FromBytes(m.readValEnc(node, idx))
		left := m.child(node, idx)
		right := m.child(node, idx+1)
		switch {
		case m.nodeCount(left) >= btreeB:
			// Replace with the in-order predecessor, then delete it from
			// the left subtree.
			raw, predKey := m.maxEntry(left)
			m.writeEntryRaw(node, idx, raw)
			m.removeFrom(left, predKey)
		case m.nodeCount(right) >= btreeB:
			raw, succKey := m.minEntry(right)
			m.writeEntryRaw(node, idx, raw)
			m.removeFrom(right, succKey)
		default:
			m.merge(node, idx)
			m.removeFrom(left, kEnc)
		}
		return value, true
	}

	child := m.child(node, idx)
	if m.nodeCount(child) < btreeB {
		child = m.fill(node, idx)
	}
	return m.removeFrom(child, kEnc)
}

// maxEntry returns the raw entry and encoded key of the largest entry in
// the subtree.
func (m *BTreeMap[K, V]) maxEntry(node address) ([]byte, []byte) {
	for m.nodeType(node) == nodeInternal {
		node = m.child(node, m.nodeCount(node))
	}
	i := m.nodeCount(node) - 1
	return m.readEntryRaw(node, i), m.readKeyEnc(node, i)
}

// minEntry returns the raw entry and encoded key of the smallest entry in
// the subtree.
func (m *BTreeMap[K, V]) minEntry(node address) ([]byte, []byte) {
	for m.nodeType(node) == nodeInternal {
		node = m.child(node, 0)
	}
	return m.readEntryRaw(node, 0), m.readKeyEnc(node, 0)
}

// fill brings the child at index i of parent up to at least btreeB
// entries by borrowing from a sibling or merging with one, and returns
// the node to descend into.
func (m *BTreeMap[K, V]) fill(parent address, i int) address {
	child := m.child(parent, i)

	if i > 0 {
		left := m.child(parent, i-1)
		if m.nodeCount(left) >= btreeB {
			m.borrowFromLeft(parent, i, child, left)
			return child
		}
	}
	if i < m.nodeCount(parent) {
		right := m.child(parent, i+1)
		if m.nodeCount(right) >= btreeB {
			m.borrowFromRight(parent, i, child, right)
			return child
		}
	}

	if i < m.nodeCount(parent) {
		m.merge(parent, i)
		return child
	}
	m.merge(parent, i-1)
	return m.child(parent, i-1)
}

// borrowFromLeft rotates the largest entry of the left sibling through
// the parent separator into the child.
func (m *BTreeMap[K, V]) borrowFromLeft(parent address, i int, child, left address) {
	leftCount := m.nodeCount(left)

	m.shiftEntriesRight(child, 0)
	if m.nodeType(child) == nodeInternal {
		m.shiftChildrenRight(child, 0)
		m.setChild(child, 0, m.child(left, leftCount))
	}
	m.writeEntryRaw(child, 0, m.readEntryRaw(parent, i-1))
	m.setNodeCount(child, m.nodeCount(child)+1)

	m.writeEntryRaw(parent, i-1, m.readEntryRaw(left, leftCount-1))
	m.setNodeCount(left, leftCount-1)
}

// borrowFromRight rotates the smallest entry of the right sibling through
// the parent separator into the child.
func (m *BTreeMap[K, V]) borrowFromRight(parent address, i int, child, right address) {
	childCount := m.nodeCount(child)

	m.writeEntryRaw(child, childCount, m.readEntryRaw(parent, i))
	if m.nodeType(child) == nodeInternal {
		m.setChild(child, childCount+1, m.child(right, 0))
	}
	m.setNodeCount(child, childCount+1)

	m.writeEntryRaw(parent, i, m.readEntryRaw(right, 0))
	m.shiftEntriesLeft(right, 0)
	if m.nodeType(right) == nodeInternal {
		m.shiftChildrenLeft(right, 0)
	}
	m.setNodeCount(right, m.nodeCount(right)-1)
}

// merge folds the separator at index i and the right sibling into the
// left child, freeing the right sibling. Both children hold btreeB-1
// entries on entry, so the merged node is exactly full.
func (m *BTreeMap[K, V]) merge(parent address, i int) {
	left := m.child(parent, i)
	right := m.child(parent, i+1)
	leftCount := m.nodeCount(left)
	rightCount := m.nodeCount(right)

	m.writeEntryRaw(left, leftCount, m.readEntryRaw(parent, i))
	m.moveEntries(right, 0, left, leftCount+1, rightCount)
	if m.nodeType(left) == nodeInternal {
		m.moveChildren(right, 0, left, leftCount+1, rightCount+1)
	}
	m.setNodeCount(left, leftCount+1+rightCount)

	m.shiftEntriesLeft(parent, i)
	m.shiftChildrenLeft(parent, i+1)
	m.setNodeCount(parent, m.nodeCount(parent)-1)
	m.freeNode(right)
}

// visit walks the subtree in order, restricted to encoded keys in
// [fromEnc, toEnc); a nil bound is unbounded. It returns false once fn
// stops the walk.
func (m *BTreeMap[K, V]) visit(node address, fromEnc, toEnc []byte, fn func(K, V) bool) bool {
	var zeroK K
	var zeroV V
	count := m.nodeCount(node)
	internal := m.nodeType(node) == nodeInternal

	for i := 0; i <= count; i++ {
		if internal {
			// Subtree i holds keys below key i and above key i-1; skip it
			// when that window cannot intersect the bounds.
			lowOK := i == 0 || toEnc == nil || bytes.Compare(m.readKeyEnc(node, i-1), toEnc) < 0
			highOK := i == count || fromEnc == nil || bytes.Compare(m.readKeyEnc(node, i), fromEnc) > 0
			if lowOK && highOK {
				if !m.visit(m.child(node, i), fromEnc, toEnc, fn) {
					return false
				}
			}
		}
		if i == count {
			break
		}

		kEnc := m.readKeyEnc(node, i)
		if toEnc != nil && bytes.Compare(kEnc, toEnc) >= 0 {
			return false
		}
		if fromEnc == nil || bytes.Compare(kEnc, fromEnc) >= 0 {
			if !fn(zeroK.FromBytes(kEnc), zeroV.FromBytes(m.readValEnc(node, i))) {
				return false
			}
		}
	}
	return true
}
