package btree

import (
	"github.com/pkg/errors"
)

// headerSize is the size of the header shared by internal nodes and leaves.
// Layout: [Parent: 8][Next: 8][Prev: 8][N: 8]
const headerSize = 32

// header holds the fields common to both block kinds. Parent, next and prev
// are back-references used for maintenance only.
type header struct {
	parent int64
	next   int64
	prev   int64
	n      int
}

// index is one internal node entry. For every slot but the last, key is the
// exclusive upper bound of the subtree at offset.
type index struct {
	key    []byte
	offset int64
}

type record struct {
	key   []byte
	value []byte
}

// internalNode always holds order slots; only the first n are live.
type internalNode struct {
	header
	children []index
}

// leafNode always holds order slots; only the first n are live.
type leafNode struct {
	header
	children []record
}

// layout is the fixed block geometry of a tree.
//
// Internal block: [Header: 32][Key: keySize | Offset: 8] x order
// Leaf block:     [Header: 32][Key: keySize | Value: valueSize] x order
type layout struct {
	order     int
	keySize   int
	valueSize int
}

func (l layout) internalSize() int {
	return headerSize + l.order*(l.keySize+8)
}

func (l layout) leafSize() int {
	return headerSize + l.order*(l.keySize+l.valueSize)
}

func (l layout) newInternal() *internalNode {
	node := &internalNode{children: make([]index, l.order)}
	for i := range node.children {
		node.children[i].key = make([]byte, l.keySize)
	}
	return node
}

func (l layout) newLeaf() *leafNode {
	leaf := &leafNode{children: make([]record, l.order)}
	for i := range leaf.children {
		leaf.children[i] = record{key: make([]byte, l.keySize), value: make([]byte, l.valueSize)}
	}
	return leaf
}

func encodeHeader(buf []byte, h *header) {
	bin.PutUint64(buf[0:], uint64(h.parent))
	bin.PutUint64(buf[8:], uint64(h.next))
	bin.PutUint64(buf[16:], uint64(h.prev))
	bin.PutUint64(buf[24:], uint64(h.n))
}

func decodeHeader(buf []byte, order int) (header, error) {
	n := bin.Uint64(buf[24:])
	if n > uint64(order) {
		return header{}, errors.Wrapf(ErrCorrupt, "entry count %d exceeds order %d", n, order)
	}
	return header{
		parent: int64(bin.Uint64(buf[0:])),
		next:   int64(bin.Uint64(buf[8:])),
		prev:   int64(bin.Uint64(buf[16:])),
		n:      int(n),
	}, nil
}

func (l layout) encodeInternal(node *internalNode) []byte {
	buf := make([]byte, l.internalSize())
	encodeHeader(buf, &node.header)
	entry := l.keySize + 8
	for i, c := range node.children {
		e := buf[headerSize+i*entry:]
		copy(e[:l.keySize], c.key)
		bin.PutUint64(e[l.keySize:], uint64(c.offset))
	}
	return buf
}

func (l layout) decodeInternal(buf []byte) (*internalNode, error) {
	h, err := decodeHeader(buf, l.order)
	if err != nil {
		return nil, err
	}
	node := &internalNode{header: h, children: make([]index, l.order)}
	entry := l.keySize + 8
	for i := range node.children {
		e := buf[headerSize+i*entry:]
		node.children[i] = index{
			key:    append([]byte(nil), e[:l.keySize]...),
			offset: int64(bin.Uint64(e[l.keySize:])),
		}
	}
	return node, nil
}

func (l layout) encodeLeaf(leaf *leafNode) []byte {
	buf := make([]byte, l.leafSize())
	encodeHeader(buf, &leaf.header)
	entry := l.keySize + l.valueSize
	for i, r := range leaf.children {
		e := buf[headerSize+i*entry:]
		copy(e[:l.keySize], r.key)
		copy(e[l.keySize:entry], r.value)
	}
	return buf
}

func (l layout) decodeLeaf(buf []byte) (*leafNode, error) {
	h, err := decodeHeader(buf, l.order)
	if err != nil {
		return nil, err
	}
	leaf := &leafNode{header: h, children: make([]record, l.order)}
	entry := l.keySize + l.valueSize
	for i := range leaf.children {
		e := buf[headerSize+i*entry:]
		leaf.children[i] = record{
			key:   append([]byte(nil), e[:l.keySize]...),
			value: append([]byte(nil), e[l.keySize:entry]...),
		}
	}
	return leaf, nil
}

// insertRecord places r at its sorted position. The leaf must not be full.
func (leaf *leafNode) insertRecord(key, value []byte) {
	i := leaf.upperBound(key)
	copy(leaf.children[i+1:leaf.n+1], leaf.children[i:leaf.n])
	leaf.children[i] = record{key: key, value: value}
	leaf.n++
}

func (leaf *leafNode) removeRecord(i int) {
	copy(leaf.children[i:leaf.n-1], leaf.children[i+1:leaf.n])
	leaf.n--
}

// insertIndex adds a separator for a child that split off to the right of an
// existing child. The new key takes over the offset the slot used to address
// and the new offset goes one slot to its right. The node must not be full.
func (node *internalNode) insertIndex(key []byte, offset int64) {
	i := node.upperBound(key)
	copy(node.children[i+1:node.n+1], node.children[i:node.n])
	node.children[i].key = key
	node.children[i].offset = node.children[i+1].offset
	node.children[i+1].offset = offset
	node.n++
}

func (node *internalNode) removeIndex(i int) {
	copy(node.children[i:node.n-1], node.children[i+1:node.n])
	node.n--
}

// mergeIndex folds the range of child i+1 into child i.
func (node *internalNode) mergeIndex(i int) {
	node.children[i].key = node.children[i+1].key
	node.removeIndex(i + 1)
}

func (node *internalNode) indexOf(offset int64) int {
	for i := 0; i < node.n; i++ {
		if node.children[i].offset == offset {
			return i
		}
	}
	return -1
}
