package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMeta() Meta {
	return Meta{
		Order: 4, KeySize: 8, ValueSize: 8,
		InternalNodeNum: 3, LeafNodeNum: 7, Height: 2,
		Slot: 4096, RootOffset: 1024, LeafOffset: 200,
	}
}

func TestMetaRoundTrip(t *testing.T) {
	m := sampleMeta()
	buf := m.encode()
	require.Len(t, buf, MetaSize)

	got, err := decodeMeta(buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMetaRejectsDamage(t *testing.T) {
	m := sampleMeta()

	tests := []struct {
		name   string
		damage func([]byte) []byte
	}{
		{"zeroed", func(b []byte) []byte { return make([]byte, MetaSize) }},
		{"short", func(b []byte) []byte { return b[:MetaSize-1] }},
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xff; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }},
		{"flipped field", func(b []byte) []byte { b[50] ^= 0x01; return b }},
		{"flipped checksum", func(b []byte) []byte { b[MetaSize-1] ^= 0x01; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeMeta(tt.damage(m.encode()))
			assert.ErrorIs(t, err, ErrInvalidMeta)
		})
	}
}

func TestMetaRejectsBadGeometry(t *testing.T) {
	m := sampleMeta()
	m.Order = 3
	_, err := decodeMeta(m.encode())
	assert.ErrorIs(t, err, ErrInvalidMeta)

	m = sampleMeta()
	m.RootOffset = 0
	_, err = decodeMeta(m.encode())
	assert.ErrorIs(t, err, ErrInvalidMeta)
}
