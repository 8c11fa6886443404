package ringbuffer

// tapState tracks one named, decimated consumer attached to the ring buffer
// (spec.md §4.4's TapConsumer): {id, nth_frame, counter, channel,
// dropped_count}.
type tapState struct {
	id          string
	nth         uint64
	counter     uint64
	ch          chan []byte
	droppedHook func()
	droppedN    uint64
}

// TapHandle is the external handle a caller holds to read decimated frames
// and observe drop counts.
type TapHandle struct {
	id string
	rb *RingBuffer
	ch <-chan []byte
}

// C returns the channel to receive decimated frame copies from.
func (h *TapHandle) C() <-chan []byte { return h.ch }

// Dropped returns the number of frames this tap has dropped due to a full
// channel.
func (h *TapHandle) Dropped() uint64 {
	h.rb.tapsMu.Lock()
	defer h.rb.tapsMu.Unlock()
	if t, ok := h.rb.taps[h.id]; ok {
		return t.droppedN
	}
	return 0
}

// Close unregisters the tap.
func (h *TapHandle) Close() { h.rb.UnregisterTap(h.id) }

// RegisterTap attaches a tap receiving every nth-th written frame (1-indexed
// by a per-tap counter), with a bounded channel of the given capacity
// (default 16 per spec.md §4.4). nth must be >= 1.
func (rb *RingBuffer) RegisterTap(id string, nth uint64, bufferSize int) *TapHandle {
	if nth == 0 {
		nth = 1
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}
	ch := make(chan []byte, bufferSize)
	rb.tapsMu.Lock()
	rb.taps[id] = &tapState{id: id, nth: nth, ch: ch}
	rb.tapsMu.Unlock()
	return &TapHandle{id: id, rb: rb, ch: ch}
}

// UnregisterTap removes the tap and closes its channel.
func (rb *RingBuffer) UnregisterTap(id string) {
	rb.tapsMu.Lock()
	defer rb.tapsMu.Unlock()
	if t, ok := rb.taps[id]; ok {
		delete(rb.taps, id)
		close(t.ch)
	}
}

// shouldDeliver atomically increments the tap's counter and reports whether
// this is the Nth frame since the tap was registered (or since the last
// delivery boundary) — spec.md's "counter % nth_frame == 0" decimation rule.
func (t *tapState) shouldDeliver() bool {
	t.counter++
	return t.counter%t.nth == 0
}

// notifyTaps iterates every registered tap; on delivery the payload is
// cloned and try-sent. A full channel is a drop (counted); a closed channel
// is silently skipped — both are non-fatal to the writer.
func (rb *RingBuffer) notifyTaps(payload []byte) {
	rb.tapsMu.Lock()
	defer rb.tapsMu.Unlock()
	for _, t := range rb.taps {
		if !t.shouldDeliver() {
			continue
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		select {
		case t.ch <- cp:
		default:
			t.droppedN++
		}
	}
}
