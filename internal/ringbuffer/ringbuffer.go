// Package ringbuffer implements the memory-mapped SPMC byte log (C4): a
// 128-byte header guarded by a seqlock, followed by a power-of-two-aligned
// circular data region, backed by a file other processes (Python readers,
// HDF5 writers) can mmap at the same path. Grounded on spec.md §4.4/§6 for
// layout and invariants; mmap access uses golang.org/x/sys/unix, the same
// raw-syscall dependency ehrlich-b-go-ublk relies on for its mmap'd I/O
// buffers.
package ringbuffer

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/events"
)

// RingBuffer is a single-writer, multi-reader memory-mapped byte log.
type RingBuffer struct {
	writeMu sync.Mutex // synchronous; writers must not hold this across a suspension point

	f        *os.File
	mapped   []byte // header + data, mmap'd
	capacity uint64

	taps   map[string]*tapState
	tapsMu sync.Mutex

	// broadcast fans out every written payload to lossy subscribers that
	// don't need tap decimation (e.g. a live-preview consumer).
	broadcast *events.Broadcaster[[]byte]
}

// Open creates the backing file at path if needed, sizes it for capacity
// bytes of data plus the 128-byte header, and mmaps it. An existing file whose
// header carries the magic keeps its header (and so its head and tail).
func Open(path string, capacity uint64) (*RingBuffer, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, daqerr.New(daqerr.InvalidConfig, "ring buffer capacity %d must be a power of two", capacity)
	}
	totalSize := int64(HeaderSize) + int64(capacity)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.Communication, err, "open ring buffer file %s", path)
	}
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		return nil, daqerr.Wrap(daqerr.Communication, err, "truncate ring buffer file %s", path)
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, daqerr.Wrap(daqerr.Communication, err, "mmap ring buffer file %s", path)
	}

	rb := &RingBuffer{
		f:         f,
		mapped:    mapped,
		capacity:  capacity,
		taps:      make(map[string]*tapState),
		broadcast: events.NewBroadcaster[[]byte](),
	}

	existing := readHeaderOnce(rb.header())
	if string(existing.Magic[:]) != Magic {
		h := header{Capacity: capacity, Version: Version}
		copy(h.Magic[:], Magic)
		writeHeader(rb.header(), h)
	}

	return rb, nil
}

// Close unmaps and closes the backing file.
func (rb *RingBuffer) Close() error {
	if err := unix.Msync(rb.mapped, unix.MS_SYNC); err != nil {
		return daqerr.Wrap(daqerr.Communication, err, "msync ring buffer")
	}
	if err := unix.Munmap(rb.mapped); err != nil {
		return daqerr.Wrap(daqerr.Communication, err, "munmap ring buffer")
	}
	return rb.f.Close()
}

func (rb *RingBuffer) header() []byte { return rb.mapped[:HeaderSize] }
func (rb *RingBuffer) data() []byte   { return rb.mapped[HeaderSize:] }

// snapshot returns a seqlock-consistent read of the header fields.
func (rb *RingBuffer) snapshot() header {
	return readHeaderSeqlocked(rb.header())
}

// publish bumps seq odd, writes fields, bumps seq even — the writer side of
// the seqlock (spec.md §4.4).
func (rb *RingBuffer) publish(h header) {
	hdr := rb.header()
	seq := loadSeq(hdr)
	storeSeq(hdr, seq+1) // odd: update in progress
	writeHeader(hdr, h)
	storeSeq(hdr, seq+2) // even: update complete
}

const lengthPrefixSize = 8

// Write frames payload with an 8-byte little-endian length prefix into the
// circular data region, advances write_head monotonically, and notifies taps
// and broadcast subscribers. It takes a synchronous mutex and must not be
// called across an await/suspension point in callers built on an async
// runtime equivalent (spec.md §5).
func (rb *RingBuffer) Write(payload []byte) error {
	framed := lengthPrefixSize + uint64(len(payload))
	if framed > rb.capacity {
		return daqerr.New(daqerr.InvalidValue, "payload too large: %d bytes exceeds capacity %d", len(payload), rb.capacity)
	}

	rb.writeMu.Lock()
	defer rb.writeMu.Unlock()

	h := rb.snapshot()
	data := rb.data()
	cap64 := rb.capacity

	frameBuf := make([]byte, framed)
	putUint64LE(frameBuf, uint64(len(payload)))
	copy(frameBuf[lengthPrefixSize:], payload)

	writeCircular(data, h.WriteHead, cap64, frameBuf)

	h.WriteHead += framed
	h.Capacity = cap64
	copy(h.Magic[:], Magic)
	h.Version = Version
	rb.publish(h)

	rb.notifyTaps(payload)
	rb.broadcast.Publish(payload)
	return nil
}

// ReadSnapshot returns a contiguous copy of the bytes currently in
// [tail, head) mod capacity, length <= capacity, reconstructed from a single
// seqlock-consistent header read. When more than capacity bytes lie between
// tail and head, the copy holds the newest capacity bytes, ending at head.
func (rb *RingBuffer) ReadSnapshot() []byte {
	h := rb.snapshot()
	start := h.ReadTail
	length := h.WriteHead - h.ReadTail
	if length > rb.capacity {
		length = rb.capacity
		start = h.WriteHead - rb.capacity
	}
	out := make([]byte, length)
	readCircular(rb.data(), start, rb.capacity, out)
	return out
}

// AdvanceTail moves read_tail forward by at most head-tail, clamping
// requests that would cross write_head.
func (rb *RingBuffer) AdvanceTail(n uint64) {
	rb.writeMu.Lock()
	defer rb.writeMu.Unlock()
	h := rb.snapshot()
	max := h.WriteHead - h.ReadTail
	if n > max {
		n = max
	}
	h.ReadTail += n
	rb.publish(h)
}

// WriteHead and ReadTail expose the monotone counters for tests and metrics.
func (rb *RingBuffer) WriteHead() uint64 { return rb.snapshot().WriteHead }
func (rb *RingBuffer) ReadTail() uint64  { return rb.snapshot().ReadTail }
func (rb *RingBuffer) Capacity() uint64  { return rb.capacity }

// Subscribe returns a lossy broadcast subscription over every written
// payload, independent of the decimated tap mechanism below.
func (rb *RingBuffer) Subscribe(buffer int) *events.Subscription[[]byte] {
	return rb.broadcast.Subscribe(buffer)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// writeCircular copies src into dst starting at the physical offset
// head mod capacity, wrapping around as needed.
func writeCircular(dst []byte, head, capacity uint64, src []byte) {
	offset := head % capacity
	n := copy(dst[offset:], src)
	if n < len(src) {
		copy(dst[:], src[n:])
	}
}

// readCircular copies capacity-wrapped bytes starting at tail mod capacity
// into dst, for len(dst) bytes.
func readCircular(src []byte, tail, capacity uint64, dst []byte) {
	offset := tail % capacity
	n := copy(dst, src[offset:])
	if n < len(dst) {
		copy(dst[n:], src[:len(dst)-n])
	}
}
