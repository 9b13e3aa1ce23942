// Package db exposes a B+Tree file as a key-value database.
package db

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/conuredb/bpt/btree"
	"github.com/conuredb/bpt/pkg/blockstore"
	"github.com/conuredb/bpt/pkg/logger"
)

var (
	ErrClosed      = errors.New("database closed")
	ErrKeyEmpty    = errors.New("key is empty")
	ErrKeyInvalid  = btree.ErrKeyNUL
	ErrKeyExists   = btree.ErrAlreadyExists
	ErrKeyNotFound = btree.ErrNotFound
	// ErrKeyTooLarge and ErrValueTooLarge are returned when an argument does
	// not fit the fixed widths the file was created with.
	ErrKeyTooLarge   = btree.ErrKeySize
	ErrValueTooLarge = btree.ErrValueSize
)

// rename is swapped out in tests.
var rename = os.Rename

// Options configures Open. Order, KeySize and ValueSize only apply when a
// new tree is created.
type Options struct {
	Order     int
	KeySize   int
	ValueSize int
	// CacheBlocks is the number of blocks kept in the read cache; zero
	// disables it.
	CacheBlocks int
	SyncWrites  bool
	ForceEmpty  bool
	Logger      logger.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Order:       btree.DefaultOrder,
		KeySize:     btree.DefaultKeySize,
		ValueSize:   btree.DefaultValueSize,
		CacheBlocks: 1024,
	}
}

// DB represents a key-value database
type DB struct {
	mu       sync.RWMutex
	tree     *btree.BTree
	file     *blockstore.File
	cache    *blockstore.Cached
	path     string
	opts     Options
	log      logger.Logger
	isClosed bool
}

// Stats describes the shape of the tree and the cache counters.
type Stats struct {
	Order         int                   `json:"order"`
	KeySize       int                   `json:"key_size"`
	ValueSize     int                   `json:"value_size"`
	Height        int                   `json:"height"`
	InternalNodes int                   `json:"internal_nodes"`
	Leaves        int                   `json:"leaves"`
	FileSize      int64                 `json:"file_size"`
	Cache         blockstore.CacheStats `json:"cache"`
}

// Open opens a database
func Open(path string, opts Options) (*DB, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Discard{}
	}
	db := &DB{path: path, opts: opts, log: opts.Logger}
	if err := db.open(opts.ForceEmpty); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) open(forceEmpty bool) error {
	file, err := blockstore.Open(db.path, blockstore.Options{Sync: db.opts.SyncWrites})
	if err != nil {
		return err
	}

	var store blockstore.Store = file
	var cache *blockstore.Cached
	if db.opts.CacheBlocks > 0 {
		if cache, err = blockstore.NewCached(file, uint32(db.opts.CacheBlocks)); err != nil {
			_ = file.Close()
			return err
		}
		store = cache
	}

	treeOpts := []btree.Option{btree.WithLogger(db.log)}
	if db.opts.Order != 0 {
		treeOpts = append(treeOpts, btree.WithOrder(db.opts.Order))
	}
	if db.opts.KeySize != 0 {
		treeOpts = append(treeOpts, btree.WithKeySize(db.opts.KeySize))
	}
	if db.opts.ValueSize != 0 {
		treeOpts = append(treeOpts, btree.WithValueSize(db.opts.ValueSize))
	}
	if forceEmpty {
		if err := file.Truncate(); err != nil {
			_ = file.Close()
			return err
		}
		treeOpts = append(treeOpts, btree.WithForceEmpty())
	}

	tree, err := btree.Open(store, treeOpts...)
	if err != nil {
		_ = file.Close()
		return pkgerrors.Wrapf(err, "open tree %s", db.path)
	}
	db.tree, db.file, db.cache = tree, file, cache
	return nil
}

// Close closes the database
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isClosed {
		return ErrClosed
	}
	db.isClosed = true
	if err := db.file.Sync(); err != nil {
		_ = db.file.Close()
		return err
	}
	return db.file.Close()
}

// Path returns the location of the database file.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) checkKey(key []byte) error {
	switch {
	case len(key) == 0:
		return ErrKeyEmpty
	case bytes.IndexByte(key, 0) >= 0:
		return ErrKeyInvalid
	case len(key) > db.tree.KeySize():
		return pkgerrors.Wrapf(ErrKeyTooLarge, "%d > %d", len(key), db.tree.KeySize())
	}
	return nil
}

func (db *DB) checkValue(value []byte) error {
	if len(value) > db.tree.ValueSize() {
		return pkgerrors.Wrapf(ErrValueTooLarge, "%d > %d", len(value), db.tree.ValueSize())
	}
	return nil
}

// Get gets a value from the database. Trailing NUL padding is stripped.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.isClosed {
		return nil, ErrClosed
	}
	if err := db.checkKey(key); err != nil {
		return nil, err
	}
	value, err := db.tree.Search(key)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(value, "\x00"), nil
}

// Insert adds a new key; it fails with ErrKeyExists when the key is present.
func (db *DB) Insert(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isClosed {
		return ErrClosed
	}
	if err := db.checkKey(key); err != nil {
		return err
	}
	if err := db.checkValue(value); err != nil {
		return err
	}
	return db.tree.Insert(key, value)
}

// Put stores value under key, replacing any previous value.
func (db *DB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isClosed {
		return ErrClosed
	}
	if err := db.checkKey(key); err != nil {
		return err
	}
	if err := db.checkValue(value); err != nil {
		return err
	}
	if err := db.tree.Remove(key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	return db.tree.Insert(key, value)
}

// Delete deletes a key from the database
func (db *DB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isClosed {
		return ErrClosed
	}
	if err := db.checkKey(key); err != nil {
		return err
	}
	return db.tree.Remove(key)
}

// Stats reports the tree geometry and cache counters.
func (db *DB) Stats() (Stats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.isClosed {
		return Stats{}, ErrClosed
	}
	m := db.tree.Meta()
	size, err := db.file.Size()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Order:         m.Order,
		KeySize:       m.KeySize,
		ValueSize:     m.ValueSize,
		Height:        m.Height,
		InternalNodes: m.InternalNodeNum,
		Leaves:        m.LeafNodeNum,
		FileSize:      size,
	}
	if db.cache != nil {
		s.Cache = db.cache.Stats()
	}
	return s, nil
}

// Dump prints every node of the tree to w.
func (db *DB) Dump(w io.Writer) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.isClosed {
		return ErrClosed
	}
	return db.tree.Dump(w)
}

// Verify checks the structure of the whole tree.
func (db *DB) Verify() (btree.Stats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.isClosed {
		return btree.Stats{}, ErrClosed
	}
	return db.tree.Verify()
}

// Sync syncs the database to disk
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isClosed {
		return ErrClosed
	}
	return db.file.Sync()
}

// SnapshotTo streams a durable snapshot of the database file to w.
// This acquires the DB lock for the duration for simplicity and consistency.
func (db *DB) SnapshotTo(w io.Writer) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isClosed {
		return ErrClosed
	}

	// Ensure latest state is on disk
	if err := db.file.Sync(); err != nil {
		return err
	}

	f, err := os.Open(db.path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			db.log.Warn("failed to close database file after snapshot", "error", closeErr)
		}
	}()

	_, err = io.Copy(w, f)
	return err
}

// RestoreFrom replaces the on-disk database with the provided snapshot stream.
// The file is swapped in via rename and the tree is reopened from it.
func (db *DB) RestoreFrom(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isClosed {
		return ErrClosed
	}

	tmpPath := filepath.Join(filepath.Dir(db.path), ".bpt.restore.tmp")
	if err := writeFile(tmpPath, r); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Close the current store to release the file lock
	if err := db.file.Close(); err != nil {
		return err
	}
	// Atomically replace the db file
	if err := rename(tmpPath, db.path); err != nil {
		_ = os.Remove(tmpPath)
		if reopenErr := db.open(false); reopenErr != nil {
			db.isClosed = true
			db.log.Error("failed to reopen database after aborted restore", "path", db.path, "error", reopenErr)
		}
		return pkgerrors.Wrap(err, "replace database file")
	}
	if err := db.open(false); err != nil {
		db.isClosed = true
		return err
	}
	db.log.Info("database restored from snapshot", "path", db.path)
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
