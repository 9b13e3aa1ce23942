package btree

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conuredb/bpt/pkg/blockstore"
)

func openMemory(t *testing.T, opts ...Option) (*BTree, *blockstore.Memory) {
	t.Helper()
	store := blockstore.NewMemory()
	tree, err := Open(store, opts...)
	require.NoError(t, err)
	return tree, store
}

func key(i int) []byte {
	return []byte(fmt.Sprintf("k%05d", i))
}

func value(i int) []byte {
	return []byte(fmt.Sprintf("v%d", i))
}

// leafKeys walks the leaf chain from the first leaf.
func leafKeys(t *testing.T, tree *BTree) []string {
	t.Helper()
	var keys []string
	for offset := tree.meta.LeafOffset; offset != 0; {
		leaf, err := tree.loadLeaf(offset)
		require.NoError(t, err)
		for i := 0; i < leaf.n; i++ {
			keys = append(keys, printable(leaf.children[i].key))
		}
		offset = leaf.next
	}
	return keys
}

func mustVerify(t *testing.T, tree *BTree) Stats {
	t.Helper()
	stats, err := tree.Verify()
	require.NoError(t, err)
	return stats
}

func TestOpenInitializesEmptyStore(t *testing.T) {
	tree, store := openMemory(t, WithOrder(4), WithKeySize(8), WithValueSize(8))

	m := tree.Meta()
	assert.Equal(t, 1, m.Height)
	assert.Equal(t, int64(MetaSize), m.RootOffset)
	assert.Equal(t, int64(MetaSize+tree.layout.internalSize()), m.LeafOffset)
	assert.Equal(t, m.LeafOffset+int64(tree.layout.leafSize()), m.Slot)
	internal, leaves := tree.Counts()
	assert.Equal(t, 1, internal)
	assert.Equal(t, 1, leaves)

	// block sizes: header plus order entries
	assert.Equal(t, 32+4*(8+8), tree.layout.internalSize())
	assert.Equal(t, 32+4*(8+8), tree.layout.leafSize())
	assert.Equal(t, int(m.Slot), store.Len())

	h, err := tree.loadHeader(m.LeafOffset)
	require.NoError(t, err)
	assert.Equal(t, m.RootOffset, h.parent)
	assert.Zero(t, h.n)

	stats := mustVerify(t, tree)
	assert.Zero(t, stats.Records)
}

func TestOpenRejectsBadOptions(t *testing.T) {
	store := blockstore.NewMemory()

	_, err := Open(store, WithOrder(3))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = Open(store, WithKeySize(0))
	assert.ErrorIs(t, err, ErrKeySize)
	_, err = Open(store, WithValueSize(-1))
	assert.ErrorIs(t, err, ErrValueSize)
	assert.Zero(t, store.Len())
}

func TestOpenReloadsExistingTree(t *testing.T) {
	tree, store := openMemory(t, WithOrder(5), WithKeySize(8), WithValueSize(4))
	for i := 0; i < 100; i++ {
		require.NoError(t, tree.Insert(key(i), value(i)))
	}

	// stored geometry wins over the defaults and over explicit options
	reopened, err := Open(store, WithOrder(64))
	require.NoError(t, err)
	assert.Equal(t, tree.Meta(), reopened.Meta())
	assert.Equal(t, 5, reopened.Meta().Order)

	for i := 0; i < 100; i++ {
		got, err := reopened.Search(key(i))
		require.NoError(t, err)
		assert.Equal(t, pad(value(i), 4), got)
	}
	mustVerify(t, reopened)
}

func TestOpenForceEmpty(t *testing.T) {
	tree, store := openMemory(t, WithOrder(4))
	require.NoError(t, tree.Insert([]byte("a"), []byte("1")))

	fresh, err := Open(store, WithOrder(4), WithForceEmpty())
	require.NoError(t, err)
	_, err = fresh.Search([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenReinitializesInvalidMeta(t *testing.T) {
	store := blockstore.NewMemory()
	_, err := store.WriteAt(bytes.Repeat([]byte{0xAB}, 500), 0)
	require.NoError(t, err)

	tree, err := Open(store, WithOrder(4))
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Height())
	mustVerify(t, tree)
}

type faultyStore struct {
	*blockstore.Memory
	failReads  bool
	failWrites bool
}

var errDisk = errors.New("disk on fire")

func (s *faultyStore) ReadAt(p []byte, off int64) (int, error) {
	if s.failReads {
		return 0, errDisk
	}
	return s.Memory.ReadAt(p, off)
}

func (s *faultyStore) WriteAt(p []byte, off int64) (int, error) {
	if s.failWrites {
		return 0, errDisk
	}
	return s.Memory.WriteAt(p, off)
}

func TestOpenPropagatesReadErrors(t *testing.T) {
	store := &faultyStore{Memory: blockstore.NewMemory(), failReads: true}
	_, err := Open(store)
	assert.ErrorIs(t, err, errDisk)
	assert.Zero(t, store.Len())
}

func TestIOFailureIsReported(t *testing.T) {
	store := &faultyStore{Memory: blockstore.NewMemory()}
	tree, err := Open(store, WithOrder(4))
	require.NoError(t, err)

	store.failWrites = true
	err = tree.Insert([]byte("a"), []byte("1"))
	assert.ErrorIs(t, err, ErrIOFailure)

	store.failWrites = false
	store.failReads = true
	_, err = tree.Search([]byte("a"))
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestInsertAndSearch(t *testing.T) {
	tree, _ := openMemory(t, WithOrder(4), WithKeySize(8), WithValueSize(8))

	require.NoError(t, tree.Insert([]byte("b"), []byte("2")))
	require.NoError(t, tree.Insert([]byte("ab"), []byte("3")))
	require.NoError(t, tree.Insert([]byte("a"), []byte("1")))

	got, err := tree.Search([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, pad([]byte("3"), 8), got)

	_, err = tree.Search([]byte("zz"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"a", "b", "ab"}, leafKeys(t, tree))
}

func TestInsertRejectsDuplicate(t *testing.T) {
	tree, _ := openMemory(t, WithOrder(4))
	require.NoError(t, tree.Insert([]byte("k"), []byte("first")))

	err := tree.Insert([]byte("k"), []byte("second"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := tree.Search([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, pad([]byte("first"), DefaultValueSize), got)
}

func TestInsertRejectsOversize(t *testing.T) {
	tree, _ := openMemory(t, WithKeySize(4), WithValueSize(2))

	assert.ErrorIs(t, tree.Insert([]byte("12345"), []byte("v")), ErrKeySize)
	assert.ErrorIs(t, tree.Insert([]byte("k"), []byte("abc")), ErrValueSize)
	_, err := tree.Search([]byte("12345"))
	assert.ErrorIs(t, err, ErrKeySize)
	assert.ErrorIs(t, tree.Remove([]byte("12345")), ErrKeySize)

	// a key that fills the whole width has no terminator
	require.NoError(t, tree.Insert([]byte("1234"), []byte("ok")))
	got, err := tree.Search([]byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), got)
}

func TestInsertRejectsEmbeddedNUL(t *testing.T) {
	tree, _ := openMemory(t, WithKeySize(8), WithValueSize(4))

	assert.ErrorIs(t, tree.Insert([]byte("a\x00b"), []byte("v")), ErrKeyNUL)
	_, err := tree.Search([]byte("a\x00b"))
	assert.ErrorIs(t, err, ErrKeyNUL)
	assert.ErrorIs(t, tree.Remove([]byte("a\x00b")), ErrKeyNUL)

	// "a" must not have been stored under the truncated key
	_, err = tree.Search([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tree.Insert([]byte("a"), []byte("v")))
	assert.ErrorIs(t, tree.Insert([]byte("a\x00"), []byte("w")), ErrKeyNUL)
	got, err := tree.Search([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v\x00\x00\x00"), got)
}

func TestLeafSplitOrderFour(t *testing.T) {
	tree, _ := openMemory(t, WithOrder(4), WithKeySize(4), WithValueSize(4))
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, tree.Insert([]byte(k), []byte(k)))
	}

	// the root still has room, so only the leaf level widened
	assert.Equal(t, 1, tree.Height())
	internal, leaves := tree.Counts()
	assert.Equal(t, 1, internal)
	assert.Equal(t, 2, leaves)

	root, err := tree.loadInternal(tree.meta.RootOffset)
	require.NoError(t, err)
	require.Equal(t, 2, root.n)
	assert.Equal(t, "d", printable(root.children[0].key))

	left, err := tree.loadLeaf(tree.meta.LeafOffset)
	require.NoError(t, err)
	assert.Equal(t, 3, left.n)
	right, err := tree.loadLeaf(left.next)
	require.NoError(t, err)
	assert.Equal(t, 2, right.n)
	assert.Equal(t, tree.meta.LeafOffset, right.prev)
	assert.Equal(t, "d", printable(right.children[0].key))

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, leafKeys(t, tree))
	mustVerify(t, tree)
}

func TestLeafSplitKeepsSmallKeyLeft(t *testing.T) {
	tree, _ := openMemory(t, WithOrder(4), WithKeySize(4), WithValueSize(4))
	for _, k := range []string{"b", "c", "d", "e", "a"} {
		require.NoError(t, tree.Insert([]byte(k), []byte(k)))
	}

	left, err := tree.loadLeaf(tree.meta.LeafOffset)
	require.NoError(t, err)
	assert.Equal(t, 3, left.n)
	assert.Equal(t, "a", printable(left.children[0].key))
	mustVerify(t, tree)
}

func TestInsertGrowsHeight(t *testing.T) {
	tree, _ := openMemory(t, WithOrder(4), WithKeySize(8), WithValueSize(8))

	height, grew := tree.Height(), 0
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Insert(key(i), value(i)))
		switch h := tree.Height(); h - height {
		case 0:
		case 1:
			grew++
			root, err := tree.loadInternal(tree.meta.RootOffset)
			require.NoError(t, err)
			assert.Equal(t, 2, root.n, "new root after insert %d", i)
			assert.Zero(t, root.parent)
			height = h
		default:
			t.Fatalf("insert %d moved height from %d to %d", i, height, h)
		}
	}
	assert.GreaterOrEqual(t, height, 3, "order 4 with 300 keys must reach height 3")
	assert.Equal(t, height-1, grew, "every level above the first comes from one root split")

	stats := mustVerify(t, tree)
	assert.Equal(t, 300, stats.Records)
	for i := 0; i < 300; i++ {
		got, err := tree.Search(key(i))
		require.NoError(t, err)
		assert.Equal(t, pad(value(i), 8), got)
	}
}

func TestInsertRandomOrder(t *testing.T) {
	for _, order := range []int{4, 5, 7, 16} {
		t.Run(fmt.Sprintf("order_%d", order), func(t *testing.T) {
			tree, _ := openMemory(t, WithOrder(order), WithKeySize(8), WithValueSize(8))
			rng := rand.New(rand.NewSource(int64(order)))
			perm := rng.Perm(500)

			for n, i := range perm {
				require.NoError(t, tree.Insert(key(i), value(i)))
				if n%50 == 0 {
					mustVerify(t, tree)
				}
			}
			stats := mustVerify(t, tree)
			assert.Equal(t, 500, stats.Records)

			keys := leafKeys(t, tree)
			require.Len(t, keys, 500)
			for i, k := range keys {
				assert.Equal(t, string(key(i)), k)
			}
		})
	}
}

func TestBlocksAreBumpAllocated(t *testing.T) {
	tree, store := openMemory(t, WithOrder(4), WithKeySize(4), WithValueSize(4))
	for i := 0; i < 40; i++ {
		require.NoError(t, tree.Insert([]byte(fmt.Sprintf("%03d", i)), nil))
	}
	internal, leaves := tree.Counts()
	want := int64(MetaSize + internal*tree.layout.internalSize() + leaves*tree.layout.leafSize())
	assert.Equal(t, want, tree.Meta().Slot)
	assert.Equal(t, int(want), store.Len())
}

func TestDump(t *testing.T) {
	tree, _ := openMemory(t, WithOrder(4), WithKeySize(4), WithValueSize(4))
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, tree.Insert([]byte(k), nil))
	}

	var buf bytes.Buffer
	require.NoError(t, tree.Dump(&buf))
	out := buf.String()
	assert.Contains(t, out, "height=1 internal=1 leaves=2")
	assert.Contains(t, out, `|"d"`)
	assert.Contains(t, out, `["a" "b" "c"]`)
	assert.Contains(t, out, `["d" "e"]`)
}

func TestVerifyDetectsBrokenLinks(t *testing.T) {
	tree, _ := openMemory(t, WithOrder(4), WithKeySize(8), WithValueSize(8))
	for i := 0; i < 20; i++ {
		require.NoError(t, tree.Insert(key(i), value(i)))
	}
	mustVerify(t, tree)

	h, err := tree.loadHeader(tree.meta.LeafOffset)
	require.NoError(t, err)
	h.parent = 12345
	require.NoError(t, tree.storeHeader(tree.meta.LeafOffset, &h))

	_, err = tree.Verify()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileBackedPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")

	store, err := blockstore.Open(path, blockstore.Options{})
	require.NoError(t, err)
	tree, err := Open(store, WithOrder(6), WithKeySize(8), WithValueSize(8))
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, tree.Insert(key(i), value(i)))
	}
	for i := 0; i < 200; i += 3 {
		require.NoError(t, tree.Remove(key(i)))
	}
	want := tree.Meta()
	require.NoError(t, store.Close())

	store, err = blockstore.Open(path, blockstore.Options{})
	require.NoError(t, err)
	defer store.Close()
	tree, err = Open(store)
	require.NoError(t, err)
	assert.Equal(t, want, tree.Meta())

	for i := 0; i < 200; i++ {
		_, err := tree.Search(key(i))
		if i%3 == 0 {
			assert.ErrorIs(t, err, ErrNotFound)
		} else {
			assert.NoError(t, err)
		}
	}
	mustVerify(t, tree)
}
