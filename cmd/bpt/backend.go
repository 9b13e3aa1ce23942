package main

import (
	"io"

	"github.com/conuredb/bpt/btree"
	"github.com/conuredb/bpt/db"
)

// backend is what the shell drives: a local database file or a remote
// server.
type backend interface {
	Insert(key, value string) error
	Put(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
	Stats() (db.Stats, error)
}

// maintainer is implemented by backends with direct access to the tree.
type maintainer interface {
	Dump(w io.Writer) error
	Verify() (btree.Stats, error)
	Sync() error
}

type localBackend struct {
	db *db.DB
}

func (l *localBackend) Insert(key, value string) error {
	return l.db.Insert([]byte(key), []byte(value))
}

func (l *localBackend) Put(key, value string) error {
	return l.db.Put([]byte(key), []byte(value))
}

func (l *localBackend) Get(key string) (string, error) {
	v, err := l.db.Get([]byte(key))
	return string(v), err
}

func (l *localBackend) Delete(key string) error {
	return l.db.Delete([]byte(key))
}

func (l *localBackend) Stats() (db.Stats, error) {
	return l.db.Stats()
}

func (l *localBackend) Dump(w io.Writer) error {
	return l.db.Dump(w)
}

func (l *localBackend) Verify() (btree.Stats, error) {
	return l.db.Verify()
}

func (l *localBackend) Sync() error {
	return l.db.Sync()
}
