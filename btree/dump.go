package btree

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Dump writes the tree level by level, one line per node.
func (t *BTree) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "order=%d key_size=%d value_size=%d height=%d internal=%d leaves=%d root=%d first_leaf=%d\n",
		t.meta.Order, t.meta.KeySize, t.meta.ValueSize, t.meta.Height,
		t.meta.InternalNodeNum, t.meta.LeafNodeNum, t.meta.RootOffset, t.meta.LeafOffset)

	level := []int64{t.meta.RootOffset}
	for depth := t.meta.Height; depth > 0; depth-- {
		var next []int64
		for _, offset := range level {
			node, err := t.loadInternal(offset)
			if err != nil {
				return err
			}
			fmt.Fprintf(bw, "L%d internal@%d parent=%d n=%d [", depth, offset, node.parent, node.n)
			for i := 0; i < node.n; i++ {
				if i > 0 {
					bw.WriteString(" ")
				}
				if i < node.n-1 {
					fmt.Fprintf(bw, "%d|%q", node.children[i].offset, printable(node.children[i].key))
				} else {
					fmt.Fprintf(bw, "%d", node.children[i].offset)
				}
				next = append(next, node.children[i].offset)
			}
			bw.WriteString("]\n")
		}
		level = next
	}

	for _, offset := range level {
		leaf, err := t.loadLeaf(offset)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "L0 leaf@%d parent=%d prev=%d next=%d n=%d [", offset, leaf.parent, leaf.prev, leaf.next, leaf.n)
		for i := 0; i < leaf.n; i++ {
			if i > 0 {
				bw.WriteString(" ")
			}
			fmt.Fprintf(bw, "%q", printable(leaf.children[i].key))
		}
		bw.WriteString("]\n")
	}
	return bw.Flush()
}

func printable(key []byte) string {
	return string(key[:keyLen(key)])
}

// Stats summarizes a verified tree.
type Stats struct {
	Height        int
	InternalNodes int
	Leaves        int
	Records       int
}

type verifier struct {
	t       *BTree
	stats   Stats
	levels  map[int][]int64
	records [][]byte
}

// Verify walks the whole tree and checks ordering, separator bounds, parent
// back-references, sibling links and the meta counters.
func (t *BTree) Verify() (Stats, error) {
	v := &verifier{t: t, levels: make(map[int][]int64)}
	v.stats.Height = t.meta.Height

	root, err := t.loadHeader(t.meta.RootOffset)
	if err != nil {
		return v.stats, err
	}
	if root.prev != 0 || root.next != 0 {
		return v.stats, errors.Wrapf(ErrCorrupt, "root %d has siblings", t.meta.RootOffset)
	}
	if err := v.walkInternal(t.meta.RootOffset, 0, nil, nil, t.meta.Height); err != nil {
		return v.stats, err
	}

	for depth := 0; depth <= t.meta.Height; depth++ {
		if err := v.checkChain(depth); err != nil {
			return v.stats, err
		}
	}
	if v.levels[0][0] != t.meta.LeafOffset {
		return v.stats, errors.Wrapf(ErrCorrupt, "first leaf is %d, meta says %d", v.levels[0][0], t.meta.LeafOffset)
	}
	if v.stats.InternalNodes != t.meta.InternalNodeNum || v.stats.Leaves != t.meta.LeafNodeNum {
		return v.stats, errors.Wrapf(ErrCorrupt, "counted %d internal / %d leaves, meta says %d / %d",
			v.stats.InternalNodes, v.stats.Leaves, t.meta.InternalNodeNum, t.meta.LeafNodeNum)
	}
	for i := 1; i < len(v.records); i++ {
		if Compare(v.records[i-1], v.records[i]) >= 0 {
			return v.stats, errors.Wrapf(ErrCorrupt, "leaf chain out of order at record %d", i)
		}
	}
	return v.stats, nil
}

// inRange reports lo <= key < hi, where nil bounds are open.
func inRange(key, lo, hi []byte) bool {
	return (lo == nil || Compare(key, lo) >= 0) && (hi == nil || Compare(key, hi) < 0)
}

func (v *verifier) walkInternal(offset, parent int64, lo, hi []byte, depth int) error {
	node, err := v.t.loadInternal(offset)
	if err != nil {
		return err
	}
	if node.parent != parent {
		return errors.Wrapf(ErrCorrupt, "node %d has parent %d, want %d", offset, node.parent, parent)
	}
	if node.n < 1 || (parent != 0 && node.n < 2) {
		return errors.Wrapf(ErrCorrupt, "node %d has %d children", offset, node.n)
	}
	v.stats.InternalNodes++
	v.levels[depth] = append(v.levels[depth], offset)

	for i := 0; i < node.n-1; i++ {
		key := node.children[i].key
		if i > 0 && Compare(node.children[i-1].key, key) >= 0 {
			return errors.Wrapf(ErrCorrupt, "node %d separators out of order at %d", offset, i)
		}
		if !inRange(key, lo, hi) {
			return errors.Wrapf(ErrCorrupt, "node %d separator %d outside parent bounds", offset, i)
		}
	}

	for i := 0; i < node.n; i++ {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = node.children[i-1].key
		}
		if i < node.n-1 {
			childHi = node.children[i].key
		}
		child := node.children[i].offset
		if depth > 1 {
			err = v.walkInternal(child, offset, childLo, childHi, depth-1)
		} else {
			err = v.walkLeaf(child, offset, childLo, childHi)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) walkLeaf(offset, parent int64, lo, hi []byte) error {
	leaf, err := v.t.loadLeaf(offset)
	if err != nil {
		return err
	}
	if leaf.parent != parent {
		return errors.Wrapf(ErrCorrupt, "leaf %d has parent %d, want %d", offset, leaf.parent, parent)
	}
	for i := 0; i < leaf.n; i++ {
		if !inRange(leaf.children[i].key, lo, hi) {
			return errors.Wrapf(ErrCorrupt, "leaf %d key %q outside parent bounds", offset, printable(leaf.children[i].key))
		}
		v.records = append(v.records, leaf.children[i].key)
	}
	v.stats.Leaves++
	v.stats.Records += leaf.n
	v.levels[0] = append(v.levels[0], offset)
	return nil
}

// checkChain follows the next pointers of one level and compares them with
// the left-to-right order the descent produced.
func (v *verifier) checkChain(depth int) error {
	want := v.levels[depth]
	var prev int64
	for i, offset := range want {
		h, err := v.t.loadHeader(offset)
		if err != nil {
			return err
		}
		if h.prev != prev {
			return errors.Wrapf(ErrCorrupt, "level %d block %d prev=%d, want %d", depth, offset, h.prev, prev)
		}
		var next int64
		if i+1 < len(want) {
			next = want[i+1]
		}
		if h.next != next {
			return errors.Wrapf(ErrCorrupt, "level %d block %d next=%d, want %d", depth, offset, h.next, next)
		}
		prev = offset
	}
	return nil
}
