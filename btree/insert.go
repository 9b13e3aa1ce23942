package btree

// Insert adds key with value. Keys and values shorter than the configured
// sizes are NUL padded.
func (t *BTree) Insert(key, value []byte) error {
	k, err := t.padKey(key)
	if err != nil {
		return err
	}
	v, err := t.padValue(value)
	if err != nil {
		return err
	}

	parent, leafOff, leaf, err := t.locate(k)
	if err != nil {
		return err
	}
	if _, ok := leaf.find(k); ok {
		return ErrAlreadyExists
	}

	if leaf.n < t.meta.Order {
		leaf.insertRecord(k, v)
		return t.storeLeaf(leafOff, leaf)
	}
	return t.splitLeaf(parent, leafOff, leaf, k, v)
}

func (t *BTree) splitLeaf(parent, leafOff int64, leaf *leafNode, key, value []byte) error {
	sibling := t.layout.newLeaf()
	if err := t.linkSibling(leafOff, &leaf.header, &sibling.header, func() int64 {
		return t.allocateLeaf(sibling)
	}); err != nil {
		return err
	}
	siblingOff := leaf.next

	mid, right := chooseLeafSplit(key, leaf)
	copy(sibling.children, leaf.children[mid:leaf.n])
	sibling.n = leaf.n - mid
	leaf.n = mid
	if right {
		sibling.insertRecord(key, value)
	} else {
		leaf.insertRecord(key, value)
	}

	if err := t.storeLeaf(leafOff, leaf); err != nil {
		return err
	}
	if err := t.storeLeaf(siblingOff, sibling); err != nil {
		return err
	}
	t.log.Debug("leaf split", "offset", leafOff, "sibling", siblingOff, "left", leaf.n, "right", sibling.n)

	return t.insertIntoInternal(parent, sibling.children[0].key, leafOff, siblingOff)
}

// insertIntoInternal records that the child at left split and right now
// holds every key from sep upwards.
func (t *BTree) insertIntoInternal(offset int64, sep []byte, left, right int64) error {
	if offset == 0 {
		return t.growRoot(sep, left, right)
	}

	node, err := t.loadInternal(offset)
	if err != nil {
		return err
	}
	if node.n < t.meta.Order {
		node.insertIndex(sep, right)
		return t.storeInternal(offset, node)
	}

	sibling := t.layout.newInternal()
	if err := t.linkSibling(offset, &node.header, &sibling.header, func() int64 {
		return t.allocateInternal(sibling)
	}); err != nil {
		return err
	}
	siblingOff := node.next

	mid, toRight := chooseInternalSplit(sep, node)
	promoted := node.children[mid].key
	copy(sibling.children, node.children[mid+1:node.n])
	sibling.n = node.n - mid - 1
	node.n = mid + 1
	if toRight {
		sibling.insertIndex(sep, right)
	} else {
		node.insertIndex(sep, right)
	}

	if err := t.storeInternal(offset, node); err != nil {
		return err
	}
	if err := t.storeInternal(siblingOff, sibling); err != nil {
		return err
	}
	if err := t.reparent(sibling.children[:sibling.n], siblingOff); err != nil {
		return err
	}
	t.log.Debug("internal split", "offset", offset, "sibling", siblingOff, "left", node.n, "right", sibling.n)

	return t.insertIntoInternal(node.parent, promoted, offset, siblingOff)
}

func (t *BTree) growRoot(sep []byte, left, right int64) error {
	root := t.layout.newInternal()
	rootOff := t.allocateInternal(root)
	root.n = 2
	root.children[0] = index{key: sep, offset: left}
	root.children[1].offset = right

	t.meta.RootOffset = rootOff
	t.meta.Height++
	if err := t.storeMeta(); err != nil {
		return err
	}
	if err := t.storeInternal(rootOff, root); err != nil {
		return err
	}
	t.log.Info("tree grew", "root", rootOff, "height", t.meta.Height)
	return t.reparent(root.children[:2], rootOff)
}
