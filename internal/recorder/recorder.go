// Package recorder wires a FrameProducer's frame stream through the C5 Tee
// into a per-device C4 ring buffer file, independent of the live
// StreamFrames RPC path (which subscribes directly to the producer for
// minimum latency, per DESIGN.md's Open Question decision). This is the
// daemon's durable recording path: every frame a camera produces is framed
// and appended to its ring buffer file regardless of whether an RPC client
// is currently streaming it.
package recorder

import (
	"context"
	"encoding/binary"
	"path/filepath"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/frame"
	"github.com/easternanemone/rust-daq-sub009/internal/obslog"
	"github.com/easternanemone/rust-daq-sub009/internal/pipeline"
	"github.com/easternanemone/rust-daq-sub009/internal/ringbuffer"
)

// frameHeaderSize is the length of the fixed fields encoded ahead of a
// frame's pixel bytes in the ring buffer's payload: frame_number,
// timestamp_ns, width, height, bit_depth.
const frameHeaderSize = 8 + 8 + 4 + 4 + 4

// Recording owns one device's Tee and ring buffer and unsubscribes from its
// producer on Close.
type Recording struct {
	deviceID    string
	rb          *ringbuffer.RingBuffer
	tee         *pipeline.Tee[*frame.FrameRef]
	unsubscribe func()
}

// Start opens a ring buffer file for deviceID under dir (named
// "<deviceID>.ring") sized capacityBytes, and begins recording every frame
// producer emits into it via a Tee observer.
func Start(ctx context.Context, logger obslog.Logger, dir, deviceID string, capacityBytes uint64, producer capability.FrameProducer) (*Recording, error) {
	path := filepath.Join(dir, deviceID+".ring")
	rb, err := ringbuffer.Open(path, capacityBytes)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.Communication, err, "opening ring buffer for device %q", deviceID)
	}

	tee := pipeline.New[*frame.FrameRef](logger)
	sink := &ringSink{rb: rb, logger: logger, deviceID: deviceID}
	unregister := tee.RegisterObserver(sink)

	frames, unsubscribe := producer.SubscribeFrames()
	tee.RegisterInput(ctx, frames)

	return &Recording{
		deviceID: deviceID,
		rb:       rb,
		tee:      tee,
		unsubscribe: func() {
			unregister()
			unsubscribe()
		},
	}, nil
}

// Close stops the Tee, unsubscribes from the producer, and closes the ring
// buffer file.
func (r *Recording) Close() error {
	r.tee.Stop()
	r.unsubscribe()
	return r.rb.Close()
}

// ringSink is the synchronous pipeline.Observer that serializes each frame
// and appends it to the ring buffer. encode/Write must stay well under the
// Tee's 100us observer budget; OnItem allocates one payload buffer per frame,
// and RingBuffer.Write copies it once more into a length-prefixed frame.
type ringSink struct {
	rb       *ringbuffer.RingBuffer
	logger   obslog.Logger
	deviceID string
}

func (s *ringSink) OnItem(fr *frame.FrameRef) {
	pixels := fr.AsSlice()
	payload := make([]byte, frameHeaderSize+len(pixels))
	binary.LittleEndian.PutUint64(payload[0:8], fr.FrameNumber)
	binary.LittleEndian.PutUint64(payload[8:16], fr.TimestampNs)
	binary.LittleEndian.PutUint32(payload[16:20], fr.Width)
	binary.LittleEndian.PutUint32(payload[20:24], fr.Height)
	binary.LittleEndian.PutUint32(payload[24:28], fr.BitDepth)
	copy(payload[frameHeaderSize:], pixels)

	if err := s.rb.Write(payload); err != nil {
		s.logger.WarnCtx(context.Background(), "recorder: dropping frame, ring buffer write failed",
			"device_id", s.deviceID, "error", err.Error())
	}
}
