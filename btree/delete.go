package btree

import (
	"github.com/pkg/errors"
)

// minEntries is the fewest live slots a non-root node keeps after a removal.
func (t *BTree) minEntries() int {
	return (t.meta.Order + 1) / 2
}

// Remove deletes key. Underfull leaves first borrow from a sibling under the
// same parent and merge with one when neither sibling can spare a record.
func (t *BTree) Remove(key []byte) error {
	k, err := t.padKey(key)
	if err != nil {
		return err
	}
	parent, leafOff, leaf, err := t.locate(k)
	if err != nil {
		return err
	}
	i, ok := leaf.find(k)
	if !ok {
		return ErrNotFound
	}

	leaf.removeRecord(i)
	if leaf.n >= t.minEntries() || t.meta.LeafNodeNum == 1 {
		return t.storeLeaf(leafOff, leaf)
	}
	return t.rebalanceLeaf(parent, leafOff, leaf)
}

func (t *BTree) rebalanceLeaf(parentOff, leafOff int64, leaf *leafNode) error {
	parent, err := t.loadInternal(parentOff)
	if err != nil {
		return err
	}
	pos := parent.indexOf(leafOff)
	if pos < 0 {
		return errors.Wrapf(ErrCorrupt, "leaf %d not referenced by parent %d", leafOff, parentOff)
	}

	// Try to borrow from the left sibling
	var left, right *leafNode
	var leftOff, rightOff int64
	if pos > 0 {
		leftOff = parent.children[pos-1].offset
		if left, err = t.loadLeaf(leftOff); err != nil {
			return err
		}
		if left.n > t.minEntries() {
			moved := left.children[left.n-1]
			left.n--
			copy(leaf.children[1:leaf.n+1], leaf.children[:leaf.n])
			leaf.children[0] = moved
			leaf.n++
			parent.children[pos-1].key = moved.key
			return t.storeAll(
				func() error { return t.storeLeaf(leftOff, left) },
				func() error { return t.storeLeaf(leafOff, leaf) },
				func() error { return t.storeInternal(parentOff, parent) },
			)
		}
	}

	// Try to borrow from the right sibling
	if pos < parent.n-1 {
		rightOff = parent.children[pos+1].offset
		if right, err = t.loadLeaf(rightOff); err != nil {
			return err
		}
		if right.n > t.minEntries() {
			leaf.children[leaf.n] = right.children[0]
			leaf.n++
			right.removeRecord(0)
			parent.children[pos].key = right.children[0].key
			return t.storeAll(
				func() error { return t.storeLeaf(rightOff, right) },
				func() error { return t.storeLeaf(leafOff, leaf) },
				func() error { return t.storeInternal(parentOff, parent) },
			)
		}
	}

	// Merge, keeping the left block of the pair alive
	if left != nil {
		return t.mergeLeaves(parentOff, parent, pos-1, leftOff, left, leafOff, leaf)
	}
	if right != nil {
		return t.mergeLeaves(parentOff, parent, pos, leafOff, leaf, rightOff, right)
	}
	return t.storeLeaf(leafOff, leaf)
}

// mergeLeaves appends dead onto survivor, where survivor sits at slot i of
// parent and dead at slot i+1.
func (t *BTree) mergeLeaves(parentOff int64, parent *internalNode, i int, survivorOff int64, survivor *leafNode, deadOff int64, dead *leafNode) error {
	if survivor.n+dead.n > t.meta.Order {
		return errors.Wrapf(ErrCorrupt, "merging leaves %d and %d overflows", survivorOff, deadOff)
	}
	copy(survivor.children[survivor.n:], dead.children[:dead.n])
	survivor.n += dead.n
	if err := t.unlink(survivorOff, &survivor.header, dead.next); err != nil {
		return err
	}
	parent.mergeIndex(i)
	t.freeLeaf(deadOff)

	if err := t.storeLeaf(survivorOff, survivor); err != nil {
		return err
	}
	if err := t.storeMeta(); err != nil {
		return err
	}
	t.log.Debug("leaves merged", "survivor", survivorOff, "dead", deadOff, "n", survivor.n)
	return t.rebalanceInternal(parentOff, parent)
}

// unlink splices the block after survivor out of the sibling chain.
func (t *BTree) unlink(survivorOff int64, survivor *header, next int64) error {
	survivor.next = next
	if next == 0 {
		return nil
	}
	h, err := t.loadHeader(next)
	if err != nil {
		return err
	}
	h.prev = survivorOff
	return t.storeHeader(next, &h)
}

// rebalanceInternal persists node after it lost a slot and repairs it if it
// fell below the minimum occupancy.
func (t *BTree) rebalanceInternal(offset int64, node *internalNode) error {
	if node.parent == 0 {
		if node.n == 1 && t.meta.Height > 1 {
			return t.collapseRoot(offset, node)
		}
		return t.storeInternal(offset, node)
	}
	if node.n >= t.minEntries() {
		return t.storeInternal(offset, node)
	}

	parentOff := node.parent
	parent, err := t.loadInternal(parentOff)
	if err != nil {
		return err
	}
	pos := parent.indexOf(offset)
	if pos < 0 {
		return errors.Wrapf(ErrCorrupt, "node %d not referenced by parent %d", offset, parentOff)
	}

	// Try to borrow from the left sibling, rotating through the separator
	var left, right *internalNode
	var leftOff, rightOff int64
	if pos > 0 {
		leftOff = parent.children[pos-1].offset
		if left, err = t.loadInternal(leftOff); err != nil {
			return err
		}
		if left.n > t.minEntries() {
			moved := left.children[left.n-1]
			left.n--
			copy(node.children[1:node.n+1], node.children[:node.n])
			node.children[0] = index{key: parent.children[pos-1].key, offset: moved.offset}
			node.n++
			parent.children[pos-1].key = left.children[left.n-1].key
			return t.storeAll(
				func() error { return t.storeInternal(leftOff, left) },
				func() error { return t.storeInternal(offset, node) },
				func() error { return t.storeInternal(parentOff, parent) },
				func() error { return t.reparent([]index{moved}, offset) },
			)
		}
	}

	// Try to borrow from the right sibling
	if pos < parent.n-1 {
		rightOff = parent.children[pos+1].offset
		if right, err = t.loadInternal(rightOff); err != nil {
			return err
		}
		if right.n > t.minEntries() {
			moved := right.children[0]
			right.removeIndex(0)
			node.children[node.n-1].key = parent.children[pos].key
			node.children[node.n] = moved
			node.n++
			parent.children[pos].key = moved.key
			return t.storeAll(
				func() error { return t.storeInternal(rightOff, right) },
				func() error { return t.storeInternal(offset, node) },
				func() error { return t.storeInternal(parentOff, parent) },
				func() error { return t.reparent([]index{moved}, offset) },
			)
		}
	}

	if left != nil {
		return t.mergeInternal(parentOff, parent, pos-1, leftOff, left, offset, node)
	}
	if right != nil {
		return t.mergeInternal(parentOff, parent, pos, offset, node, rightOff, right)
	}
	return t.storeInternal(offset, node)
}

// mergeInternal appends dead onto survivor. The separator between them comes
// down from the parent as the key of survivor's former last slot.
func (t *BTree) mergeInternal(parentOff int64, parent *internalNode, i int, survivorOff int64, survivor *internalNode, deadOff int64, dead *internalNode) error {
	if survivor.n+dead.n > t.meta.Order {
		return errors.Wrapf(ErrCorrupt, "merging nodes %d and %d overflows", survivorOff, deadOff)
	}
	survivor.children[survivor.n-1].key = parent.children[i].key
	copy(survivor.children[survivor.n:], dead.children[:dead.n])
	survivor.n += dead.n
	if err := t.unlink(survivorOff, &survivor.header, dead.next); err != nil {
		return err
	}
	parent.mergeIndex(i)
	t.freeInternal(deadOff)

	if err := t.storeInternal(survivorOff, survivor); err != nil {
		return err
	}
	if err := t.reparent(dead.children[:dead.n], survivorOff); err != nil {
		return err
	}
	if err := t.storeMeta(); err != nil {
		return err
	}
	t.log.Debug("internal nodes merged", "survivor", survivorOff, "dead", deadOff, "n", survivor.n)
	return t.rebalanceInternal(parentOff, parent)
}

// collapseRoot promotes the only child of the root.
func (t *BTree) collapseRoot(offset int64, root *internalNode) error {
	child := root.children[0].offset
	h, err := t.loadHeader(child)
	if err != nil {
		return err
	}
	h.parent = 0
	if err := t.storeHeader(child, &h); err != nil {
		return err
	}
	t.freeInternal(offset)
	t.meta.RootOffset = child
	t.meta.Height--
	t.log.Info("tree shrank", "root", child, "height", t.meta.Height)
	return t.storeMeta()
}

func (t *BTree) storeAll(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
