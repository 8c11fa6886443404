package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameGetBoundsChecked(t *testing.T) {
	px := []uint16{1, 2, 3, 4, 5, 6}
	f := FromU16(3, 2, px)

	for y := uint32(0); y < 2; y++ {
		for x := uint32(0); x < 3; x++ {
			v, ok := f.Get(x, y)
			require.True(t, ok)
			assert.Equal(t, uint32(px[y*3+x]), v)
		}
	}

	_, ok := f.Get(3, 0)
	assert.False(t, ok)
	_, ok = f.Get(0, 2)
	assert.False(t, ok)
}

func TestFrameGet8Bit(t *testing.T) {
	data := []byte{10, 20, 30, 40}
	f := FromU8(2, 2, data)
	v, ok := f.Get(1, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(40), v)

	_, ok = f.Get(2, 0)
	assert.False(t, ok)
}

func TestFrameGetUnsupportedBitDepth(t *testing.T) {
	f := FromBytes(2, 2, 24, []byte{1, 2, 3, 4})
	_, ok := f.Get(0, 0)
	assert.False(t, ok)
}

func TestAsU16SliceRoundTrip(t *testing.T) {
	px := []uint16{100, 200, 300, 400}
	f := FromU16(2, 2, px)

	got, ok := f.AsU16Slice()
	require.True(t, ok)
	assert.Equal(t, px, got)
}

func TestAsU16SliceRejects8Bit(t *testing.T) {
	f := FromU8(2, 2, []byte{1, 2, 3, 4})
	_, ok := f.AsU16Slice()
	assert.False(t, ok)
}

func TestAsU16SliceRejectsOddLength(t *testing.T) {
	f := FromBytes(1, 1, 16, []byte{1, 2, 3})
	_, ok := f.AsU16Slice()
	assert.False(t, ok)
}

func TestFrameMean(t *testing.T) {
	f8 := FromU8(2, 2, []byte{0, 10, 20, 30})
	assert.InDelta(t, 15.0, f8.Mean(), 0.001)

	f16 := FromU16(2, 1, []uint16{100, 300})
	assert.InDelta(t, 200.0, f16.Mean(), 0.001)
}

func TestFrameRefAsSlice(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	ref := NewFrameRef(2, 2, data, 2)
	assert.Equal(t, data, ref.AsSlice())
}

func TestBufferPoolRoundTrip(t *testing.T) {
	buf := GetBuffer(1024)
	assert.Len(t, buf, 1024)
	assert.GreaterOrEqual(t, cap(buf), 1024)
	for i := range buf {
		buf[i] = 0xAB
	}
	PutBuffer(buf)

	again := GetBuffer(1024)
	assert.Len(t, again, 1024)
}
