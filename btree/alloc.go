package btree

// The allocator is a bump allocator over meta.Slot. Space is never reused;
// freeing a block only adjusts the counters.

func (t *BTree) allocate(size int) int64 {
	offset := t.meta.Slot
	t.meta.Slot += int64(size)
	return offset
}

func (t *BTree) allocateLeaf(leaf *leafNode) int64 {
	leaf.n = 0
	t.meta.LeafNodeNum++
	return t.allocate(t.layout.leafSize())
}

// allocateInternal starts the node at one live slot, since a fresh internal
// node always addresses at least one child.
func (t *BTree) allocateInternal(node *internalNode) int64 {
	node.n = 1
	t.meta.InternalNodeNum++
	return t.allocate(t.layout.internalSize())
}

func (t *BTree) freeLeaf(offset int64) {
	t.meta.LeafNodeNum--
	t.log.Debug("leaf dropped", "offset", offset)
}

func (t *BTree) freeInternal(offset int64) {
	t.meta.InternalNodeNum--
	t.log.Debug("internal node dropped", "offset", offset)
}
