package btree

import "bytes"

// Compare orders two keys. Keys are NUL-padded to the tree's key size; the
// length of a key is the number of bytes before the first NUL. Shorter keys
// sort first and keys of equal length compare byte-wise, so "b" < "ab".
func Compare(a, b []byte) int {
	la, lb := keyLen(a), keyLen(b)
	if la != lb {
		if la < lb {
			return -1
		}
		return 1
	}
	return bytes.Compare(a[:la], b[:lb])
}

func keyLen(k []byte) int {
	if i := bytes.IndexByte(k, 0); i >= 0 {
		return i
	}
	return len(k)
}

// pad copies b into a zeroed slice of the given width.
func pad(b []byte, width int) []byte {
	out := make([]byte, width)
	copy(out, b)
	return out
}
