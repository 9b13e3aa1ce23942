package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"a", "a", 0},
		{"a", "b", -1},
		{"b", "ab", -1},
		{"ab", "b", 1},
		{"", "a", -1},
		{"abc", "abd", -1},
		{"zz", "aaa", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare([]byte(tt.a), []byte(tt.b)))
		})
	}
}

func TestCompareIgnoresPadding(t *testing.T) {
	assert.Equal(t, 0, Compare(pad([]byte("ab"), 8), []byte("ab")))
	assert.Equal(t, -1, Compare(pad([]byte("b"), 8), pad([]byte("ab"), 4)))
}
