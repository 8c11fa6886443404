package deviceservice

import (
	"github.com/pierrec/lz4/v4"

	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

// compressFrame LZ4-block-compresses payload, returning the compressed
// bytes, the compression tag to put on the wire, and the uncompressed size
// needed by a reader to preallocate its decompression buffer. Pathologically
// small or incompressible payloads (compressed size not smaller than the
// source) are sent uncompressed rather than paying the framing overhead for
// nothing.
func compressFrame(payload []byte) ([]byte, daqpb.Compression, uint32) {
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(payload)))
	n, err := c.CompressBlock(payload, dst)
	if err != nil || n == 0 || n >= len(payload) {
		return payload, daqpb.CompressionNone, uint32(len(payload))
	}
	return dst[:n], daqpb.CompressionLZ4, uint32(len(payload))
}
