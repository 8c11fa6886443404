package deviceservice

import (
	"github.com/easternanemone/rust-daq-sub009/internal/frame"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

// qualityFactor maps a negotiated StreamQuality onto the box-filter
// decimation factor applied before a frame is put on the wire (spec.md
// §4.8): Full skips downsampling, Half does a 2x2 average, Quarter a 4x4
// average.
func qualityFactor(q daqpb.StreamQuality) int {
	switch q {
	case daqpb.QualityHalf:
		return 2
	case daqpb.QualityQuarter:
		return 4
	default:
		return 1
	}
}

// downsampleU16 box-filters a contiguous (no row padding) 16-bit frame by
// factor, truncating any remainder row/column that doesn't divide evenly.
func downsampleU16(src []uint16, width, height uint32, factor int) ([]uint16, uint32, uint32) {
	f := uint32(factor)
	outW, outH := width/f, height/f
	out := make([]uint16, outW*outH)
	area := factor * factor
	for oy := uint32(0); oy < outH; oy++ {
		for ox := uint32(0); ox < outW; ox++ {
			var sum uint32
			for dy := uint32(0); dy < f; dy++ {
				for dx := uint32(0); dx < f; dx++ {
					sx, sy := ox*f+dx, oy*f+dy
					sum += uint32(src[sy*width+sx])
				}
			}
			out[oy*outW+ox] = uint16(sum / uint32(area))
		}
	}
	return out, outW, outH
}

func downsampleU8(src []byte, width, height uint32, factor int) ([]byte, uint32, uint32) {
	f := uint32(factor)
	outW, outH := width/f, height/f
	out := make([]byte, outW*outH)
	area := factor * factor
	for oy := uint32(0); oy < outH; oy++ {
		for ox := uint32(0); ox < outW; ox++ {
			var sum uint32
			for dy := uint32(0); dy < f; dy++ {
				for dx := uint32(0); dx < f; dx++ {
					sx, sy := ox*f+dx, oy*f+dy
					sum += uint32(src[sy*width+sx])
				}
			}
			out[oy*outW+ox] = byte(sum / uint32(area))
		}
	}
	return out, outW, outH
}

// applyQuality downsamples fr per quality, returning the (possibly
// unchanged) pixel bytes, output width/height, and bit depth. Frames with a
// non-zero stride (padded rows) or a remainder too small to decimate are
// passed through at Full quality rather than risk an out-of-bounds read.
func applyQuality(fr *frame.FrameRef, quality daqpb.StreamQuality) (data []byte, width, height uint32) {
	factor := qualityFactor(quality)
	if factor == 1 || fr.Stride != 0 || fr.Width < uint32(factor) || fr.Height < uint32(factor) {
		return fr.AsSlice(), fr.Width, fr.Height
	}
	switch fr.BitDepth {
	case 8:
		out, w, h := downsampleU8(fr.AsSlice(), fr.Width, fr.Height, factor)
		return out, w, h
	case 12, 16:
		raw := fr.AsSlice()
		if len(raw)%2 != 0 {
			return fr.AsSlice(), fr.Width, fr.Height
		}
		px := bytesToU16(raw)
		out, w, h := downsampleU16(px, fr.Width, fr.Height, factor)
		return u16ToBytes(out), w, h
	default:
		return fr.AsSlice(), fr.Width, fr.Height
	}
}

func bytesToU16(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[i*2]) | uint16(b[i*2+1])<<8
	}
	return out
}

func u16ToBytes(px []uint16) []byte {
	out := make([]byte, len(px)*2)
	for i, v := range px {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
