// Package blockstore provides offset-addressed byte stores for the tree
// engine: a locked file, an in-memory buffer, and a write-through LRU block
// cache that can wrap either.
package blockstore

import (
	"errors"
	"io"
)

var (
	ErrLocked = errors.New("blockstore: file is locked by another process")
	ErrClosed = errors.New("blockstore: store is closed")
)

// Store is a raw block-addressed store. Reads and writes either transfer the
// whole buffer or return an error.
type Store interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

var (
	_ Store = (*File)(nil)
	_ Store = (*Memory)(nil)
	_ Store = (*Cached)(nil)
)
