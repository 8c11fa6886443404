// Package frame implements the owned and shared image payload types (C3).
// Semantics are ported directly from
// _examples/original_source/crates/daq-core/src/data.rs: the constructors,
// the bounds-checked bit-depth-aware Get, and the alignment-checked
// AsU16Slice all mirror the Rust Frame/FrameRef contract rather than
// inventing new behaviour.
package frame

import (
	"encoding/binary"
	"unsafe"
)

// Frame is an owned image payload. 8-bit images store one byte per pixel;
// 12/16-bit images store two little-endian bytes per pixel.
type Frame struct {
	Width    uint32
	Height   uint32
	BitDepth uint32
	Data     []byte
}

// FromU16 builds a 16-bit Frame from pixel values, packing them little-endian.
func FromU16(width, height uint32, pixels []uint16) *Frame {
	data := make([]byte, len(pixels)*2)
	for i, px := range pixels {
		binary.LittleEndian.PutUint16(data[i*2:], px)
	}
	return &Frame{Width: width, Height: height, BitDepth: 16, Data: data}
}

// FromU8 builds an 8-bit Frame, taking ownership of data.
func FromU8(width, height uint32, data []byte) *Frame {
	return &Frame{Width: width, Height: height, BitDepth: 8, Data: data}
}

// FromBytes builds a Frame with an explicit bit depth. The caller must ensure
// data's length matches what that bit depth implies.
func FromBytes(width, height, bitDepth uint32, data []byte) *Frame {
	return &Frame{Width: width, Height: height, BitDepth: bitDepth, Data: data}
}

// Get returns the pixel value at (x, y) widened to uint32, or false if the
// coordinate is out of bounds or the bit depth is unsupported.
func (f *Frame) Get(x, y uint32) (uint32, bool) {
	if x >= f.Width || y >= f.Height {
		return 0, false
	}
	idx := int(y*f.Width + x)
	switch f.BitDepth {
	case 8:
		if idx >= len(f.Data) {
			return 0, false
		}
		return uint32(f.Data[idx]), true
	case 12, 16:
		start := idx * 2
		if start+1 >= len(f.Data) {
			return 0, false
		}
		return uint32(binary.LittleEndian.Uint16(f.Data[start : start+2])), true
	default:
		return 0, false
	}
}

// AsU16Slice returns the frame's data reinterpreted as a []uint16, or false
// when bit depth is 8-or-less, the byte length is odd, or the backing array
// is not 2-byte aligned — mirroring the Rust align_to check, which refuses
// the zero-copy cast rather than risk a misaligned read.
func (f *Frame) AsU16Slice() ([]uint16, bool) {
	if f.BitDepth <= 8 {
		return nil, false
	}
	if len(f.Data)%2 != 0 {
		return nil, false
	}
	if len(f.Data) == 0 {
		return []uint16{}, true
	}
	if uintptr(unsafe.Pointer(&f.Data[0]))%2 != 0 {
		return nil, false
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&f.Data[0])), len(f.Data)/2), true
}

// Mean returns the average pixel value, 0 for unsupported bit depths or an
// empty buffer.
func (f *Frame) Mean() float64 {
	switch f.BitDepth {
	case 8:
		if len(f.Data) == 0 {
			return 0
		}
		var sum uint64
		for _, v := range f.Data {
			sum += uint64(v)
		}
		return float64(sum) / float64(len(f.Data))
	case 16:
		slice, ok := f.AsU16Slice()
		if !ok || len(slice) == 0 {
			return 0
		}
		var sum uint64
		for _, v := range slice {
			sum += uint64(v)
		}
		return float64(sum) / float64(len(slice))
	default:
		return 0
	}
}

// FrameView is a non-owning, read-only view of a Frame, passed to synchronous
// FrameObservers so they cannot retain or mutate the underlying buffer beyond
// the call (spec's <100us observer timing floor assumes no allocation or
// retention on this path).
type FrameView struct {
	Width    uint32
	Height   uint32
	BitDepth uint32
	Data     []byte
}

// ViewOf returns a FrameView over f without copying.
func ViewOf(f *Frame) *FrameView {
	return &FrameView{Width: f.Width, Height: f.Height, BitDepth: f.BitDepth, Data: f.Data}
}

// FrameRef is a shared, reference-counted-by-the-runtime owned frame —
// multiple goroutines may hold a FrameRef to the same backing array safely
// since Go slices sharing an underlying array need no explicit refcount, but
// the type exists to make that sharing intent explicit at call sites and to
// carry a stride distinct from width*bytes-per-pixel (e.g. padded rows from a
// frame grabber).
type FrameRef struct {
	Width       uint32
	Height      uint32
	Stride      int
	BitDepth    uint32
	FrameNumber uint64
	TimestampNs uint64
	data        []byte
}

// NewFrameRef takes ownership of data and wraps it as a FrameRef.
func NewFrameRef(width, height uint32, data []byte, stride int) *FrameRef {
	return &FrameRef{Width: width, Height: height, Stride: stride, BitDepth: 16, data: data}
}

// NewFrameRefFull wraps data with an explicit bit depth and sequence
// metadata, for producers that tag frames with a capture number and
// timestamp at the point of acquisition.
func NewFrameRefFull(width, height, bitDepth uint32, data []byte, stride int, frameNumber, timestampNs uint64) *FrameRef {
	return &FrameRef{Width: width, Height: height, Stride: stride, BitDepth: bitDepth, data: data, FrameNumber: frameNumber, TimestampNs: timestampNs}
}

// AsSlice returns the backing bytes. Callers must not mutate them; a FrameRef
// is meant to be shared read-only across observers and the reliable pipeline
// sink.
func (r *FrameRef) AsSlice() []byte { return r.data }
