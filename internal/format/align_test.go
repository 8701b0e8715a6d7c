package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlign16(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0},
		{1, 16},
		{15, 16},
		{16, 16},
		{17, 32},
		{64, 64},
		{1000, 1008},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Align16(tt.in), "Align16(%d)", tt.in)
		assert.True(t, IsAligned16(Align16(tt.in)))
	}
	assert.Equal(t, 992, AlignDown16(1000))
	assert.False(t, IsAligned16(24))
}
