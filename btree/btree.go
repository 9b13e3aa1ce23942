// Package btree implements a disk-resident B+Tree over a flat byte-addressed
// block store. Every block is addressed by its byte offset; offset 0 holds
// the meta block and is never a valid node address.
//
// A BTree performs no locking. Callers serialize access.
package btree

import (
	"io"

	"github.com/pkg/errors"

	"github.com/conuredb/bpt/pkg/logger"
)

const (
	// MinOrder is the smallest order for which internal splits stay valid.
	MinOrder = 4

	DefaultOrder     = 64
	DefaultKeySize   = 16
	DefaultValueSize = 16
)

// BlockStore is the byte-addressed backing storage of a tree.
type BlockStore interface {
	io.ReaderAt
	io.WriterAt
}

// BTree is an open tree bound to a block store.
type BTree struct {
	store  BlockStore
	meta   Meta
	layout layout
	log    logger.Logger
}

type options struct {
	order       int
	keySize     int
	valueSize   int
	geometrySet bool
	forceEmpty  bool
	log         logger.Logger
}

// Option configures Open.
type Option func(*options)

// WithOrder sets the maximum entries per node for a new tree.
func WithOrder(order int) Option {
	return func(o *options) { o.order, o.geometrySet = order, true }
}

// WithKeySize sets the fixed key width for a new tree.
func WithKeySize(size int) Option {
	return func(o *options) { o.keySize, o.geometrySet = size, true }
}

// WithValueSize sets the fixed value width for a new tree.
func WithValueSize(size int) Option {
	return func(o *options) { o.valueSize, o.geometrySet = size, true }
}

// WithForceEmpty ignores any existing content and initializes a fresh tree.
func WithForceEmpty() Option {
	return func(o *options) { o.forceEmpty = true }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// Open loads the tree stored in store, or initializes an empty one when the
// store holds no valid meta block. The geometry recorded in an existing meta
// block takes precedence over the options.
func Open(store BlockStore, opts ...Option) (*BTree, error) {
	o := options{
		order:     DefaultOrder,
		keySize:   DefaultKeySize,
		valueSize: DefaultValueSize,
		log:       logger.Discard{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.order < MinOrder {
		return nil, errors.Wrapf(ErrInvalidOrder, "order %d", o.order)
	}
	if o.keySize <= 0 {
		return nil, errors.Wrapf(ErrKeySize, "key size %d", o.keySize)
	}
	if o.valueSize <= 0 {
		return nil, errors.Wrapf(ErrValueSize, "value size %d", o.valueSize)
	}

	t := &BTree{store: store, log: o.log}
	if !o.forceEmpty {
		meta, err := t.readMeta()
		switch {
		case err == nil:
			t.meta = meta
			t.layout = layout{order: meta.Order, keySize: meta.KeySize, valueSize: meta.ValueSize}
			if o.geometrySet && (o.order != meta.Order || o.keySize != meta.KeySize || o.valueSize != meta.ValueSize) {
				t.log.Warn("stored geometry overrides options",
					"order", meta.Order, "key_size", meta.KeySize, "value_size", meta.ValueSize)
			}
			t.log.Info("tree loaded", "height", meta.Height,
				"internal_nodes", meta.InternalNodeNum, "leaves", meta.LeafNodeNum)
			return t, nil
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, ErrInvalidMeta):
			t.log.Info("no usable meta block, initializing", "reason", err.Error())
		default:
			return nil, errors.Wrap(err, "read meta")
		}
	}

	t.layout = layout{order: o.order, keySize: o.keySize, valueSize: o.valueSize}
	if err := t.initEmpty(); err != nil {
		return nil, err
	}
	return t, nil
}

// initEmpty writes a root with a single empty leaf beneath it.
func (t *BTree) initEmpty() error {
	t.meta = Meta{
		Order:     t.layout.order,
		KeySize:   t.layout.keySize,
		ValueSize: t.layout.valueSize,
		Height:    1,
		Slot:      MetaSize,
	}

	root := t.layout.newInternal()
	t.meta.RootOffset = t.allocateInternal(root)

	leaf := t.layout.newLeaf()
	leaf.parent = t.meta.RootOffset
	t.meta.LeafOffset = t.allocateLeaf(leaf)
	root.children[0].offset = t.meta.LeafOffset

	if err := t.storeMeta(); err != nil {
		return err
	}
	if err := t.storeInternal(t.meta.RootOffset, root); err != nil {
		return err
	}
	return t.storeLeaf(t.meta.LeafOffset, leaf)
}

// Meta returns a copy of the in-memory meta block.
func (t *BTree) Meta() Meta {
	return t.meta
}

func (t *BTree) Height() int {
	return t.meta.Height
}

// Counts returns the number of live internal nodes and leaves.
func (t *BTree) Counts() (internal, leaves int) {
	return t.meta.InternalNodeNum, t.meta.LeafNodeNum
}

func (t *BTree) KeySize() int {
	return t.meta.KeySize
}

func (t *BTree) ValueSize() int {
	return t.meta.ValueSize
}

func (t *BTree) padKey(key []byte) ([]byte, error) {
	if len(key) > t.meta.KeySize {
		return nil, errors.Wrapf(ErrKeySize, "%d > %d", len(key), t.meta.KeySize)
	}
	if keyLen(key) != len(key) {
		return nil, ErrKeyNUL
	}
	return pad(key, t.meta.KeySize), nil
}

func (t *BTree) padValue(value []byte) ([]byte, error) {
	if len(value) > t.meta.ValueSize {
		return nil, errors.Wrapf(ErrValueSize, "%d > %d", len(value), t.meta.ValueSize)
	}
	return pad(value, t.meta.ValueSize), nil
}

// readMeta returns the raw store error when nothing could be read so Open
// can tell an empty store from a failing one.
func (t *BTree) readMeta() (Meta, error) {
	buf := make([]byte, MetaSize)
	n, err := t.store.ReadAt(buf, 0)
	if err != nil && !(err == io.EOF && n == MetaSize) {
		return Meta{}, err
	}
	return decodeMeta(buf)
}

func (t *BTree) storeMeta() error {
	return t.write(0, t.meta.encode())
}

func (t *BTree) read(offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := t.store.ReadAt(buf, offset)
	if n == size {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, errors.Wrapf(ErrIOFailure, "read %d bytes at %d: got %d: %v", size, offset, n, err)
}

func (t *BTree) write(offset int64, buf []byte) error {
	n, err := t.store.WriteAt(buf, offset)
	if err == nil && n == len(buf) {
		return nil
	}
	if err == nil {
		err = io.ErrShortWrite
	}
	return errors.Wrapf(ErrIOFailure, "write %d bytes at %d: wrote %d: %v", len(buf), offset, n, err)
}

func (t *BTree) loadInternal(offset int64) (*internalNode, error) {
	buf, err := t.read(offset, t.layout.internalSize())
	if err != nil {
		return nil, err
	}
	node, err := t.layout.decodeInternal(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "internal node at %d", offset)
	}
	return node, nil
}

func (t *BTree) storeInternal(offset int64, node *internalNode) error {
	return t.write(offset, t.layout.encodeInternal(node))
}

func (t *BTree) loadLeaf(offset int64) (*leafNode, error) {
	buf, err := t.read(offset, t.layout.leafSize())
	if err != nil {
		return nil, err
	}
	leaf, err := t.layout.decodeLeaf(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "leaf at %d", offset)
	}
	return leaf, nil
}

func (t *BTree) storeLeaf(offset int64, leaf *leafNode) error {
	return t.write(offset, t.layout.encodeLeaf(leaf))
}

// loadHeader reads only the shared header of a block, whatever its kind.
func (t *BTree) loadHeader(offset int64) (header, error) {
	buf, err := t.read(offset, headerSize)
	if err != nil {
		return header{}, err
	}
	h, err := decodeHeader(buf, t.layout.order)
	if err != nil {
		return header{}, errors.Wrapf(err, "header at %d", offset)
	}
	return h, nil
}

func (t *BTree) storeHeader(offset int64, h *header) error {
	buf := make([]byte, headerSize)
	encodeHeader(buf, h)
	return t.write(offset, buf)
}
