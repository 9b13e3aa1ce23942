package btree

import "errors"

var (
	// ErrAlreadyExists is returned by Insert when the key is already present.
	ErrAlreadyExists = errors.New("key already exists")
	// ErrNotFound is returned by Search and Remove when the key is absent.
	ErrNotFound = errors.New("key not found")
	// ErrIOFailure wraps any block read or write that did not transfer the
	// expected number of bytes. The operation that hit it may have left the
	// tree partially updated.
	ErrIOFailure = errors.New("block i/o failure")

	ErrInvalidMeta  = errors.New("invalid meta block")
	ErrInvalidOrder = errors.New("order must be at least 4")
	ErrKeySize      = errors.New("key larger than key size")
	// ErrKeyNUL is returned for keys with an embedded NUL, since a NUL ends
	// the key for comparison purposes.
	ErrKeyNUL    = errors.New("key contains a NUL byte")
	ErrValueSize = errors.New("value larger than value size")
	ErrCorrupt   = errors.New("tree structure is inconsistent")
)
