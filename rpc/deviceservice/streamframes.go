package deviceservice

import (
	"time"

	"google.golang.org/grpc"

	"github.com/easternanemone/rust-daq-sub009/internal/ratequota"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

// metricsInterval is how often a StreamingMetrics event is interleaved on
// a frame stream between frame deliveries (spec.md §4.8).
const metricsInterval = 2 * time.Second

// StreamFrames opens an adaptive-quality, optionally LZ4-compressed frame
// stream for one FrameProducer device, enforcing the caller's per-client
// stream quota and the negotiated max_fps pacing.
func (s *Server) StreamFrames(req *daqpb.StreamFramesRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	ip := clientIP(ctx)

	producer, err := s.frameProducer(req.DeviceID)
	if err != nil {
		return wrapStreamErr(stream, err)
	}

	release, err := s.quota.Acquire(ip)
	if err != nil {
		return wrapStreamErr(stream, err)
	}

	frames, unsubscribe := producer.SubscribeFrames()
	key := ratequota.StreamKey{ClientIP: ip, DeviceID: req.DeviceID, Kind: string(streamKindFrames)}
	cleanup := s.trackStream(key, func() {
		release()
		unsubscribe()
	})
	defer cleanup()

	limiter := s.quota.NewFrameLimiter(req.MaxFPS)
	quality := req.Quality
	if quality == "" {
		quality = daqpb.QualityFull
	}

	var metrics daqpb.StreamingMetrics
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if err := stream.SendMsg(&daqpb.StreamFramesEvent{Metrics: cloneMetrics(&metrics)}); err != nil {
				return err
			}

		case fr, ok := <-frames:
			if !ok {
				return nil
			}
			if !limiter.Allow() {
				metrics.FramesDroppedFPS++
				continue
			}

			pixels, w, h := applyQuality(fr, quality)
			compressed, compression, uncompressedSize := compressFrame(pixels)

			fd := &daqpb.FrameData{
				DeviceID:         req.DeviceID,
				FrameNumber:      fr.FrameNumber,
				TimestampNs:      fr.TimestampNs,
				Width:            w,
				Height:           h,
				BitDepth:         fr.BitDepth,
				Compression:      compression,
				UncompressedSize: uncompressedSize,
				Data:             compressed,
			}
			if err := stream.SendMsg(&daqpb.StreamFramesEvent{Frame: fd}); err != nil {
				return err
			}

			metrics.FramesSent++
			metrics.BytesSent += uint64(len(compressed))
			if uncompressedSize > 0 {
				metrics.CompressionRatioX1000 = uint64(len(compressed)) * 1000 / uint64(uncompressedSize)
			}
		}
	}
}

func cloneMetrics(m *daqpb.StreamingMetrics) *daqpb.StreamingMetrics {
	cp := *m
	return &cp
}
