package ringbuffer

import "encoding/binary"

// Header layout (spec.md §6, §4.4): a fixed 128-byte header, little-endian,
// mirroring the manual encoding/binary struct marshal pattern used for
// C-compatible layouts in ehrlich-b-go-ublk/internal/uapi/marshal.go.
//
//	offset  size  field
//	0       8     magic   ("DAQRB001")
//	8       4     version
//	12      4     (padding)
//	16      8     capacity
//	24      8     write_head
//	32      8     read_tail
//	40      8     seq
//	48      80    (padding, reserved)
const (
	HeaderSize = 128
	Magic      = "DAQRB001"
	Version    = 1

	offMagic    = 0
	offVersion  = 8
	offCapacity = 16
	offWriteHd  = 24
	offReadTail = 32
	offSeq      = 40
)

// header is the decoded, in-memory view of the 128-byte mmap'd header.
type header struct {
	Magic      [8]byte
	Version    uint32
	Capacity   uint64
	WriteHead  uint64
	ReadTail   uint64
	Seq        uint64
}

// writeHeader encodes h into buf[:128]. Callers are responsible for the
// seqlock discipline (bump Seq odd, write, bump Seq even) around this call.
func writeHeader(buf []byte, h header) {
	copy(buf[offMagic:offMagic+8], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint64(buf[offCapacity:], h.Capacity)
	binary.LittleEndian.PutUint64(buf[offWriteHd:], h.WriteHead)
	binary.LittleEndian.PutUint64(buf[offReadTail:], h.ReadTail)
	binary.LittleEndian.PutUint64(buf[offSeq:], h.Seq)
}

// readHeaderOnce decodes buf[:128] without any seqlock retry — used by Open's
// magic check and by the seqlock-aware readHeaderSeqlocked below.
func readHeaderOnce(buf []byte) header {
	var h header
	copy(h.Magic[:], buf[offMagic:offMagic+8])
	h.Version = binary.LittleEndian.Uint32(buf[offVersion:])
	h.Capacity = binary.LittleEndian.Uint64(buf[offCapacity:])
	h.WriteHead = binary.LittleEndian.Uint64(buf[offWriteHd:])
	h.ReadTail = binary.LittleEndian.Uint64(buf[offReadTail:])
	h.Seq = binary.LittleEndian.Uint64(buf[offSeq:])
	return h
}

func loadSeq(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[offSeq:])
}

func storeSeq(buf []byte, seq uint64) {
	binary.LittleEndian.PutUint64(buf[offSeq:], seq)
}

// readHeaderSeqlocked samples seq, reads the header fields, and resamples
// seq, retrying on mismatch — the reader side of the writer's odd/even
// seqlock discipline (spec.md §4.4).
func readHeaderSeqlocked(buf []byte) header {
	for {
		seq1 := loadSeq(buf)
		if seq1%2 == 1 {
			continue // writer mid-update; spin
		}
		h := readHeaderOnce(buf)
		seq2 := loadSeq(buf)
		if seq1 == seq2 {
			return h
		}
	}
}
