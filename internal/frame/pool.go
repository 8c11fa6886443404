package frame

import "sync"

// Pool hands out size-bucketed byte buffers for the reliable pipeline path so
// high-rate camera frames don't churn the allocator on every capture. Ported
// from ehrlich-b-go-ublk/internal/queue/pool.go's size-bucketed sync.Pool
// design, including its pointer-to-slice pattern that avoids the extra
// interface-boxing allocation a plain sync.Pool of []byte incurs.
//
// Buckets are sized for common camera frame footprints: a 2048x2048 16-bit
// frame is 8 MiB; 1024x1024 is 2 MiB; smaller ROIs fit the 512 KiB bucket.
const (
	size512k = 512 * 1024
	size2m   = 2 * 1024 * 1024
	size8m   = 8 * 1024 * 1024
	size16m  = 16 * 1024 * 1024
)

var bufferPool = struct {
	p512k sync.Pool
	p2m   sync.Pool
	p8m   sync.Pool
	p16m  sync.Pool
}{
	p512k: sync.Pool{New: func() any { b := make([]byte, size512k); return &b }},
	p2m:   sync.Pool{New: func() any { b := make([]byte, size2m); return &b }},
	p8m:   sync.Pool{New: func() any { b := make([]byte, size8m); return &b }},
	p16m:  sync.Pool{New: func() any { b := make([]byte, size16m); return &b }},
}

// GetBuffer returns a pooled buffer of at least size bytes. Callers that keep
// the buffer beyond the current frame (e.g. to build a FrameRef shared with
// observers) must not return it via PutBuffer until every holder is done.
func GetBuffer(size int) []byte {
	switch {
	case size <= size512k:
		return (*bufferPool.p512k.Get().(*[]byte))[:size]
	case size <= size2m:
		return (*bufferPool.p2m.Get().(*[]byte))[:size]
	case size <= size8m:
		return (*bufferPool.p8m.Get().(*[]byte))[:size]
	case size <= size16m:
		return (*bufferPool.p16m.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer obtained from GetBuffer to its bucket. Buffers
// with a non-standard capacity (the oversize fallback above) are dropped.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size512k:
		bufferPool.p512k.Put(&buf)
	case size2m:
		bufferPool.p2m.Put(&buf)
	case size8m:
		bufferPool.p8m.Put(&buf)
	case size16m:
		bufferPool.p16m.Put(&buf)
	}
}
