package btree

import "sort"

// upperBound returns the first slot among children[:n-1] whose key is greater
// than key, or n-1 when there is none. The last slot's key is never read.
func (node *internalNode) upperBound(key []byte) int {
	return sort.Search(node.n-1, func(i int) bool {
		return Compare(node.children[i].key, key) > 0
	})
}

func (leaf *leafNode) upperBound(key []byte) int {
	return sort.Search(leaf.n, func(i int) bool {
		return Compare(leaf.children[i].key, key) > 0
	})
}

// find reports the slot holding key.
func (leaf *leafNode) find(key []byte) (int, bool) {
	i := sort.Search(leaf.n, func(i int) bool {
		return Compare(leaf.children[i].key, key) >= 0
	})
	return i, i < leaf.n && Compare(leaf.children[i].key, key) == 0
}

// findParentOfLeaf descends height-1 internal levels from the root and
// returns the offset of the internal node whose children are leaves.
func (t *BTree) findParentOfLeaf(key []byte) (int64, error) {
	offset := t.meta.RootOffset
	for level := t.meta.Height; level > 1; level-- {
		node, err := t.loadInternal(offset)
		if err != nil {
			return 0, err
		}
		offset = node.children[node.upperBound(key)].offset
	}
	return offset, nil
}

// findLeaf takes the final step from a leaf parent to the leaf.
func (t *BTree) findLeaf(parent int64, key []byte) (int64, error) {
	node, err := t.loadInternal(parent)
	if err != nil {
		return 0, err
	}
	return node.children[node.upperBound(key)].offset, nil
}

// locate resolves the leaf that owns key together with its parent.
func (t *BTree) locate(key []byte) (parent, leafOff int64, leaf *leafNode, err error) {
	if parent, err = t.findParentOfLeaf(key); err != nil {
		return 0, 0, nil, err
	}
	if leafOff, err = t.findLeaf(parent, key); err != nil {
		return 0, 0, nil, err
	}
	if leaf, err = t.loadLeaf(leafOff); err != nil {
		return 0, 0, nil, err
	}
	return parent, leafOff, leaf, nil
}

// Search returns the value stored under key. The value is returned at its
// full padded width.
func (t *BTree) Search(key []byte) ([]byte, error) {
	k, err := t.padKey(key)
	if err != nil {
		return nil, err
	}
	_, _, leaf, err := t.locate(k)
	if err != nil {
		return nil, err
	}
	i, ok := leaf.find(k)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), leaf.children[i].value...), nil
}
