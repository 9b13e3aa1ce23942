package blockstore

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Options configures a File store.
type Options struct {
	// Sync makes every WriteAt durable before it returns.
	Sync bool
	// Mode is the permission used when the file is created.
	Mode os.FileMode
}

// File is a Store backed by a single file. The file is held under an
// exclusive advisory lock for the lifetime of the store.
type File struct {
	file *os.File
	path string
	sync bool
}

// Open opens or creates the file at path and locks it.
func Open(path string, opts Options) (*File, error) {
	mode := opts.Mode
	if mode == 0 {
		mode = 0600
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, mode)
	if err != nil {
		return nil, err
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, err
	}
	return &File{file: file, path: path, sync: opts.Sync}, nil
}

// Path returns the path the store was opened with.
func (f *File) Path() string {
	return f.path
}

// ReadAt reads len(p) bytes at off. A read past the end of the file returns
// io.EOF or io.ErrUnexpectedEOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.file == nil {
		return 0, ErrClosed
	}
	n, err := f.file.ReadAt(p, off)
	if err == io.EOF && n > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// WriteAt writes p at off, growing the file as needed.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.file == nil {
		return 0, ErrClosed
	}
	n, err := f.file.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	if f.sync {
		if err := datasync(f.file); err != nil {
			return n, errors.Wrap(err, "sync after write")
		}
	}
	return n, nil
}

// Truncate discards the whole content of the file.
func (f *File) Truncate() error {
	if f.file == nil {
		return ErrClosed
	}
	return f.file.Truncate(0)
}

// Size returns the current size of the file in bytes.
func (f *File) Size() (int64, error) {
	if f.file == nil {
		return 0, ErrClosed
	}
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Sync flushes written data to stable storage.
func (f *File) Sync() error {
	if f.file == nil {
		return ErrClosed
	}
	return datasync(f.file)
}

// Close releases the lock and closes the file.
func (f *File) Close() error {
	if f.file == nil {
		return ErrClosed
	}
	unlockErr := unlockFile(f.file)
	err := f.file.Close()
	f.file = nil
	if err != nil {
		return err
	}
	return unlockErr
}
