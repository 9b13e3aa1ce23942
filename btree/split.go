package btree

// chooseLeafSplit picks the first slot that moves to the new right leaf and
// whether the incoming key belongs on the right.
func chooseLeafSplit(key []byte, leaf *leafNode) (mid int, right bool) {
	mid = leaf.n / 2
	right = Compare(key, leaf.children[mid].key) > 0
	if right {
		mid++
	}
	return mid, right
}

// chooseInternalSplit picks the slot whose key is promoted to the parent.
// Slots after mid move to the new right node; mid itself stays on the left
// as its last slot.
func chooseInternalSplit(key []byte, node *internalNode) (mid int, right bool) {
	mid = (node.n - 1) / 2
	right = Compare(key, node.children[mid].key) > 0
	if right {
		mid++
	}
	// the incoming key falls between the two candidates: keep the smaller one
	if right && Compare(key, node.children[mid].key) < 0 {
		mid--
	}
	return mid, right
}

// linkSibling allocates a block and links it into the sibling chain right
// after the node at offset. The new node inherits the parent; the old node's
// next now points at it. Meta is persisted since allocation changed it.
func (t *BTree) linkSibling(offset int64, node, sibling *header, allocate func() int64) error {
	sibling.parent = node.parent
	sibling.next = node.next
	sibling.prev = offset
	node.next = allocate()

	if sibling.next != 0 {
		h, err := t.loadHeader(sibling.next)
		if err != nil {
			return err
		}
		h.prev = node.next
		if err := t.storeHeader(sibling.next, &h); err != nil {
			return err
		}
	}
	return t.storeMeta()
}

// reparent rewrites the parent field of each child's header.
func (t *BTree) reparent(children []index, parent int64) error {
	for _, c := range children {
		h, err := t.loadHeader(c.offset)
		if err != nil {
			return err
		}
		h.parent = parent
		if err := t.storeHeader(c.offset, &h); err != nil {
			return err
		}
	}
	return nil
}
