package blockstore

import (
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReadWrite(t *testing.T) {
	m := NewMemory()

	buf := make([]byte, 4)
	_, err := m.ReadAt(buf, 0)
	assert.ErrorIs(t, err, io.EOF, "empty store should report EOF")

	n, err := m.WriteAt([]byte("abcd"), 8)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 12, m.Len(), "store should grow to cover the write")

	_, err = m.ReadAt(buf, 8)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf))

	_, err = m.ReadAt(buf, 10)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "partial read past the end")

	require.NoError(t, m.Close())
	_, err = m.WriteAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")

	f, err := Open(path, Options{Sync: true})
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("header"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("block"), 100)
	require.NoError(t, err)

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(105), size)

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, "block", string(buf))

	_, err = f.ReadAt(buf, 102)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	require.NoError(t, f.Truncate())
	size, err = f.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.Close(), ErrClosed)
}

func TestFileExclusiveLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are unix only")
	}
	path := filepath.Join(t.TempDir(), "locked.db")

	first, err := Open(path, Options{})
	require.NoError(t, err)

	_, err = Open(path, Options{})
	assert.ErrorIs(t, err, ErrLocked, "second open should fail while the lock is held")

	require.NoError(t, first.Close())

	second, err := Open(path, Options{})
	require.NoError(t, err, "lock should be released on close")
	require.NoError(t, second.Close())
}

func TestCachedServesRepeatReads(t *testing.T) {
	mem := NewMemory()
	c, err := NewCached(mem, 16)
	require.NoError(t, err)

	block := []byte("0123456789abcdef")
	_, err = c.WriteAt(block, 64)
	require.NoError(t, err)

	buf := make([]byte, len(block))
	for i := 0; i < 3; i++ {
		_, err = c.ReadAt(buf, 64)
		require.NoError(t, err)
		assert.Equal(t, block, buf)
	}

	stats := c.Stats()
	assert.Equal(t, uint64(3), stats.Hits, "block written through should be cached")
	assert.Zero(t, stats.Reads, "no read should reach the store")
	assert.Equal(t, uint64(1), stats.Writes)
}

func TestCachedHeaderPatch(t *testing.T) {
	mem := NewMemory()
	c, err := NewCached(mem, 16)
	require.NoError(t, err)

	_, err = c.WriteAt([]byte("AAAABBBBCCCC"), 0)
	require.NoError(t, err)

	// A prefix-only write must update both the store and the cached block.
	_, err = c.WriteAt([]byte("zz"), 0)
	require.NoError(t, err)

	buf := make([]byte, 12)
	_, err = c.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "zzAABBBBCCCC", string(buf))
	assert.Equal(t, "zzAABBBBCCCC", string(mem.Bytes()))
}

func TestCachedShortEntryReadsThrough(t *testing.T) {
	mem := NewMemory()
	_, err := mem.WriteAt([]byte("headerpayload"), 0)
	require.NoError(t, err)

	c, err := NewCached(mem, 16)
	require.NoError(t, err)

	head := make([]byte, 6)
	_, err = c.ReadAt(head, 0)
	require.NoError(t, err)
	assert.Equal(t, "header", string(head))

	full := make([]byte, 13)
	_, err = c.ReadAt(full, 0)
	require.NoError(t, err)
	assert.Equal(t, "headerpayload", string(full))
	assert.Equal(t, uint64(2), c.Stats().Misses, "a cached prefix cannot serve a longer read")
}

func TestCachedConcurrentReaders(t *testing.T) {
	const blocks, size = 32, 16
	mem := NewMemory()
	for i := 0; i < blocks; i++ {
		block := make([]byte, size)
		block[0] = byte(i)
		_, err := mem.WriteAt(block, int64(i*size))
		require.NoError(t, err)
	}

	// Far fewer slots than blocks so readers keep evicting each other.
	c, err := NewCached(mem, 4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			buf := make([]byte, size)
			for i := 0; i < 2000; i++ {
				b := (id*5 + i) % blocks
				if _, err := c.ReadAt(buf, int64(b*size)); err != nil {
					errs <- err
					return
				}
				if buf[0] != byte(b) {
					errs <- assert.AnError
					return
				}
			}
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read: %v", err)
	}
	assert.LessOrEqual(t, c.Len(), 4)
}

func TestCachedPatchDoesNotAliasReaders(t *testing.T) {
	c, err := NewCached(NewMemory(), 4)
	require.NoError(t, err)

	_, err = c.WriteAt([]byte("AAAABBBB"), 0)
	require.NoError(t, err)
	before := make([]byte, 8)
	_, err = c.ReadAt(before, 0)
	require.NoError(t, err)

	_, err = c.WriteAt([]byte("zz"), 0)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(before), "earlier reads keep their own copy")

	after := make([]byte, 8)
	_, err = c.ReadAt(after, 0)
	require.NoError(t, err)
	assert.Equal(t, "zzAABBBB", string(after))
}
