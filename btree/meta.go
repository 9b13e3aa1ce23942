package btree

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const (
	// MetaSize is the size of the meta block stored at offset 0.
	MetaSize = 88

	metaMagic   uint32 = 0x42505431 // "BPT1"
	metaVersion uint16 = 1

	checksumOffset = MetaSize - 8
)

var bin = binary.LittleEndian

// Meta is the tree-wide state persisted at offset 0.
//
// Layout: [Magic: 4][Version: 2][Reserved: 2][Order: 8][KeySize: 8]
// [ValueSize: 8][InternalNodeNum: 8][LeafNodeNum: 8][Height: 8][Slot: 8]
// [RootOffset: 8][LeafOffset: 8][Checksum: 8]
type Meta struct {
	Order     int
	KeySize   int
	ValueSize int

	InternalNodeNum int
	LeafNodeNum     int
	// Height counts internal levels and never includes the leaf level.
	Height int

	// Slot is the offset the next allocated block will land at.
	Slot       int64
	RootOffset int64
	// LeafOffset is the first leaf of the sibling chain.
	LeafOffset int64
}

func (m *Meta) encode() []byte {
	buf := make([]byte, MetaSize)
	bin.PutUint32(buf[0:], metaMagic)
	bin.PutUint16(buf[4:], metaVersion)
	bin.PutUint64(buf[8:], uint64(m.Order))
	bin.PutUint64(buf[16:], uint64(m.KeySize))
	bin.PutUint64(buf[24:], uint64(m.ValueSize))
	bin.PutUint64(buf[32:], uint64(m.InternalNodeNum))
	bin.PutUint64(buf[40:], uint64(m.LeafNodeNum))
	bin.PutUint64(buf[48:], uint64(m.Height))
	bin.PutUint64(buf[56:], uint64(m.Slot))
	bin.PutUint64(buf[64:], uint64(m.RootOffset))
	bin.PutUint64(buf[72:], uint64(m.LeafOffset))
	bin.PutUint64(buf[checksumOffset:], xxhash.Sum64(buf[:checksumOffset]))
	return buf
}

func decodeMeta(buf []byte) (Meta, error) {
	if len(buf) < MetaSize {
		return Meta{}, errors.Wrapf(ErrInvalidMeta, "short meta block: %d bytes", len(buf))
	}
	if bin.Uint32(buf[0:]) != metaMagic {
		return Meta{}, errors.Wrap(ErrInvalidMeta, "bad magic")
	}
	if v := bin.Uint16(buf[4:]); v != metaVersion {
		return Meta{}, errors.Wrapf(ErrInvalidMeta, "unsupported version %d", v)
	}
	if bin.Uint64(buf[checksumOffset:]) != xxhash.Sum64(buf[:checksumOffset]) {
		return Meta{}, errors.Wrap(ErrInvalidMeta, "checksum mismatch")
	}

	m := Meta{
		Order:           int(bin.Uint64(buf[8:])),
		KeySize:         int(bin.Uint64(buf[16:])),
		ValueSize:       int(bin.Uint64(buf[24:])),
		InternalNodeNum: int(bin.Uint64(buf[32:])),
		LeafNodeNum:     int(bin.Uint64(buf[40:])),
		Height:          int(bin.Uint64(buf[48:])),
		Slot:            int64(bin.Uint64(buf[56:])),
		RootOffset:      int64(bin.Uint64(buf[64:])),
		LeafOffset:      int64(bin.Uint64(buf[72:])),
	}
	if err := m.validate(); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func (m *Meta) validate() error {
	switch {
	case m.Order < MinOrder:
		return errors.Wrapf(ErrInvalidMeta, "order %d", m.Order)
	case m.KeySize <= 0 || m.ValueSize <= 0:
		return errors.Wrapf(ErrInvalidMeta, "key size %d, value size %d", m.KeySize, m.ValueSize)
	case m.Height < 1:
		return errors.Wrapf(ErrInvalidMeta, "height %d", m.Height)
	case m.RootOffset < MetaSize || m.LeafOffset < MetaSize || m.Slot < MetaSize:
		return errors.Wrapf(ErrInvalidMeta, "offsets root=%d leaf=%d slot=%d", m.RootOffset, m.LeafOffset, m.Slot)
	}
	return nil
}
