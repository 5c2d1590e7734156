package stablemem

import (
	"bytes"
	"errors"
	"fmt"
)

// BTreeMap layout. Keys are ordered by lexicographic comparison of their
// encodings, which is why the integer storables encode big-endian.
//
// Header:
//
//	Offset  Size  Field
//	0       3     magic "BTR"
//	3       1     version
//	4       4     max key size (LE)
//	8       4     max value size (LE)
//	12      8     root node address, 0 if empty
//	20      8     entry count (LE)
//	28      8     free list head, 0 if empty
//	36      8     allocation watermark
//
// Nodes are fixed-width records allocated from the same memory, starting
// at byte 64; a freed node stores the next free address in its first 8
// bytes. Node layout:
//
//	Offset  Size  Field
//	0       1     node type (1 leaf, 2 internal)
//	1       2     entry count (LE)
//	3       1     reserved
//	4       ...   entries: key length u32 + key capacity + value length u32 + value capacity
//	...     8×n   child addresses (internal nodes), after the entry area
const (
	btreeMagicVersionLen = 4
	btreeMaxKeyOffset    = 4
	btreeMaxValOffset    = 8
	btreeRootOffset      = 12
	btreeLenOffset       = 20
	btreeFreeOffset      = 28
	btreeWatermarkOffset = 36
	btreeAllocStart      = 64
	btreeLayoutVersion   = 1

	// btreeB is the minimum degree: every node except the root holds at
	// least btreeB-1 entries, and a full node holds btreeCapacity.
	btreeB        = 6
	btreeCapacity = 2*btreeB - 1

	nodeLeaf     = 1
	nodeInternal = 2
)

var btreeMagic = [3]byte{'B', 'T', 'R'}

// Input errors of Insert. Oversized keys or values are the only
// recoverable insert failures; a refused growth during a structural
// update panics, because partial progress would leave the tree
// inconsistent.
var (
	ErrKeyTooLarge   = errors.New("stablemem: key exceeds the declared bound")
	ErrValueTooLarge = errors.New("stablemem: value exceeds the declared bound")
)

// BTreeMap is an ordered map of bounded keys and values.
type BTreeMap[K BoundedStorable[K], V BoundedStorable[V]] struct {
	mem       Memory
	maxKey    uint32
	maxVal    uint32
	root      address
	length    uint64
	freeHead  address
	watermark address

	entrySize   uint64
	childrenOff uint64
	nodeSize    uint64
}

// InitBTreeMap creates a map over mem, or loads the one already stored
// there. A stored map must have been created with the same key and value
// bounds.
func InitBTreeMap[K BoundedStorable[K], V BoundedStorable[V]](mem Memory) (*BTreeMap[K, V], error) {
	var zeroK K
	var zeroV V
	m := &BTreeMap[K, V]{
		mem:    mem,
		maxKey: zeroK.MaxSize(),
		maxVal: zeroV.MaxSize(),
	}
	m.entrySize = 8 + uint64(m.maxKey) + uint64(m.maxVal)
	m.childrenOff = 4 + btreeCapacity*m.entrySize
	m.nodeSize = m.childrenOff + (btreeCapacity+1)*8

	if mem.Size() == 0 {
		m.watermark = btreeAllocStart
		var header [btreeAllocStart]byte
		copy(header[:], btreeMagic[:])
		header[3] = btreeLayoutVersion
		putU32LE(header[btreeMaxKeyOffset:], m.maxKey)
		putU32LE(header[btreeMaxValOffset:], m.maxVal)
		putU64LE(header[btreeWatermarkOffset:], uint64(m.watermark))
		if err := SafeWrite(mem, 0, header[:]); err != nil {
			return nil, err
		}
		return m, nil
	}

	var header [btreeMagicVersionLen]byte
	mem.Read(0, header[:])
	if [3]byte(header[:3]) != btreeMagic {
		return nil, fmt.Errorf("stablemem: memory does not hold a btree map (magic %q)", header[:3])
	}
	if header[3] != btreeLayoutVersion {
		return nil, fmt.Errorf("stablemem: unsupported btree map layout version %d", header[3])
	}
	if stored := readU32(mem, btreeMaxKeyOffset); stored != m.maxKey {
		return nil, fmt.Errorf("stablemem: stored max key size %d does not match key bound %d", stored, m.maxKey)
	}
	if stored := readU32(mem, btreeMaxValOffset); stored != m.maxVal {
		return nil, fmt.Errorf("stablemem: stored max value size %d does not match value bound %d", stored, m.maxVal)
	}
	m.root = address(readU64(mem, btreeRootOffset))
	m.length = readU64(mem, btreeLenOffset)
	m.freeHead = address(readU64(mem, btreeFreeOffset))
	m.watermark = address(readU64(mem, btreeWatermarkOffset))
	return m, nil
}

// Len returns the number of entries.
func (m *BTreeMap[K, V]) Len() uint64 {
	return m.length
}

// Get returns the value stored under key.
func (m *BTreeMap[K, V]) Get(key K) (V, bool) {
	var zeroV V
	if m.root == 0 {
		return zeroV, false
	}

	kEnc := key.ToBytes()
	node := m.root
	for {
		idx, found := m.search(node, kEnc)
		if found {
			return zeroV.FromBytes(m.readValEnc(node, idx)), true
		}
		if m.nodeType(node) == nodeLeaf {
			return zeroV, false
		}
		node = m.child(node, idx)
	}
}

// Contains reports whether key is present.
func (m *BTreeMap[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Insert stores value under key, returning the previous value if the key
// was present. Oversized keys or values are rejected with ErrKeyTooLarge
// or ErrValueTooLarge and leave the map unchanged.
func (m *BTreeMap[K, V]) Insert(key K, value V) (previous V, replaced bool, err error) {
	var zeroV V
	kEnc := key.ToBytes()
	vEnc := value.ToBytes()
	if uint32(len(kEnc)) > m.maxKey {
		return zeroV, false, ErrKeyTooLarge
	}
	if uint32(len(vEnc)) > m.maxVal {
		return zeroV, false, ErrValueTooLarge
	}

	if m.root == 0 {
		m.root = m.allocNode(nodeLeaf)
		m.setRoot(m.root)
	}
	if m.nodeCount(m.root) == btreeCapacity {
		newRoot := m.allocNode(nodeInternal)
		m.setChild(newRoot, 0, m.root)
		m.splitChild(newRoot, 0)
		m.root = newRoot
		m.setRoot(newRoot)
	}

	node := m.root
	for {
		idx, found := m.search(node, kEnc)
		if found {
			previous = zeroV.FromBytes(m.readValEnc(node, idx))
			m.writeValEnc(node, idx, vEnc)
			return previous, true, nil
		}
		if m.nodeType(node) == nodeLeaf {
			m.shiftEntriesRight(node, idx)
			m.writeEntry(node, idx, kEnc, vEnc)
			m.setNodeCount(node, m.nodeCount(node)+1)
			m.length++
			m.setLength(m.length)
			return zeroV, false, nil
		}

		child := m.child(node, idx)
		if m.nodeCount(child) == btreeCapacity {
			m.splitChild(node, idx)
			switch cmp := bytes.Compare(kEnc, m.readKeyEnc(node, idx)); {
			case cmp == 0:
				previous = zeroV.FromBytes(m.readValEnc(node, idx))
				m.writeValEnc(node, idx, vEnc)
				return previous, true, nil
			case cmp > 0:
				idx++
			}
			child = m.child(node, idx)
		}
		node = child
	}
}

// Remove deletes key, returning the value that was stored under it.
func (m *BTreeMap[K, V]) Remove(key K) (V, bool) {
	var zeroV V
	if m.root == 0 {
		return zeroV, false
	}

	value, ok := m.removeFrom(m.root, key.ToBytes())
	if ok {
		m.length--
		m.setLength(m.length)
	}

	if m.nodeCount(m.root) == 0 {
		old := m.root
		if m.nodeType(old) == nodeInternal {
			m.root = m.child(old, 0)
		} else {
			m.root = 0
		}
		m.setRoot(m.root)
		m.freeNode(old)
	}
	return value, ok
}

// Min returns the smallest key and its value.
func (m *BTreeMap[K, V]) Min() (K, V, bool) {
	var zeroK K
	var zeroV V
	if m.root == 0 {
		return zeroK, zeroV, false
	}
	node := m.root
	for m.nodeType(node) == nodeInternal {
		node = m.child(node, 0)
	}
	return zeroK.FromBytes(m.readKeyEnc(node, 0)), zeroV.FromBytes(m.readValEnc(node, 0)), true
}

// Max returns the largest key and its value.
func (m *BTreeMap[K, V]) Max() (K, V, bool) {
	var zeroK K
	var zeroV V
	if m.root == 0 {
		return zeroK, zeroV, false
	}
	node := m.root
	for m.nodeType(node) == nodeInternal {
		node = m.child(node, m.nodeCount(node))
	}
	i := m.nodeCount(node) - 1
	return zeroK.FromBytes(m.readKeyEnc(node, i)), zeroV.FromBytes(m.readValEnc(node, i)), true
}

// Iterate calls fn for each entry in ascending key order until fn returns
// false.
func (m *BTreeMap[K, V]) Iterate(fn func(key K, value V) bool) {
	if m.root == 0 {
		return
	}
	m.visit(m.root, nil, nil, fn)
}

// Range calls fn for each entry whose encoded key lies in [from, to), in
// ascending order, until fn returns false.
func (m *BTreeMap[K, V]) Range(from, to K, fn func(key K, value V) bool) {
	if m.root == 0 {
		return
	}
	m.visit(m.root, from.ToBytes(), to.ToBytes(), fn)
}

func (m *BTreeMap[K, V]) setRoot(a address) {
	writeU64(m.mem, btreeRootOffset, a.get())
}

func (m *BTreeMap[K, V]) setLength(n uint64) {
	writeU64(m.mem, btreeLenOffset, n)
}
