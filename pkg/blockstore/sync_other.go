//go:build !linux

package blockstore

import "os"

func datasync(f *os.File) error {
	return f.Sync()
}
