// Package ratequota enforces the RPC streaming surface's two resource
// limits from spec.md §6: a cap on concurrent frame/parameter streams per
// client, and a per-stream frame-rate ceiling enforced by dropping frames
// that arrive sooner than the minimum interval after the last delivered one.
// Sharded-map-with-idle-eviction shape is
// grounded on engine/internal/ratelimit/limiter.go's AdaptiveRateLimiter in
// the teacher repo, repurposed from its original per-domain HTTP fetch
// throttling onto per-(clientIP, deviceID, kind) streaming keys.
package ratequota

import (
	"fmt"
	"sync"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
)

// StreamKey identifies one logical stream a client may hold open.
type StreamKey struct {
	ClientIP string
	DeviceID string
	Kind     string // e.g. "frames", "observables", "module_events"
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.ClientIP, k.DeviceID, k.Kind)
}

type clientState struct {
	mu          sync.Mutex
	openStreams int
	lastActive  time.Time
}

// Quota enforces MaxStreamsPerClient concurrent streams per client IP
// (counted across all devices and stream kinds) and hands out per-stream
// FrameLimiters bounding delivery to MaxFPS.
type Quota struct {
	maxStreamsPerClient int
	maxFPS              float64
	idleTTL             time.Duration

	mu      sync.RWMutex
	clients map[string]*clientState

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Quota enforcer. maxStreamsPerClient and maxFPS must be
// positive (config.StreamConfig is validated before reaching here).
func New(maxStreamsPerClient int, maxFPS float64) *Quota {
	q := &Quota{
		maxStreamsPerClient: maxStreamsPerClient,
		maxFPS:              maxFPS,
		idleTTL:             10 * time.Minute,
		clients:             make(map[string]*clientState),
		stopCh:              make(chan struct{}),
	}
	q.wg.Add(1)
	go q.evictLoop()
	return q
}

// Acquire reserves one stream slot for clientIP, returning a release
// function the caller must invoke exactly once when the stream ends.
// Exceeding maxStreamsPerClient returns a ResourceExhausted error.
func (q *Quota) Acquire(clientIP string) (release func(), err error) {
	cs := q.getOrCreate(clientIP)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.openStreams >= q.maxStreamsPerClient {
		return nil, daqerr.New(daqerr.ResourceExhausted,
			"client %q already holds %d streams (limit %d)", clientIP, cs.openStreams, q.maxStreamsPerClient)
	}
	cs.openStreams++
	cs.lastActive = time.Now()

	var once sync.Once
	return func() {
		once.Do(func() {
			cs.mu.Lock()
			cs.openStreams--
			cs.lastActive = time.Now()
			cs.mu.Unlock()
		})
	}, nil
}

func (q *Quota) getOrCreate(clientIP string) *clientState {
	q.mu.RLock()
	cs := q.clients[clientIP]
	q.mu.RUnlock()
	if cs != nil {
		return cs
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if cs = q.clients[clientIP]; cs == nil {
		cs = &clientState{lastActive: time.Now()}
		q.clients[clientIP] = cs
	}
	return cs
}

// NewFrameLimiter returns a minimum-interval limiter bounding delivery to
// maxFPS frames per second for one stream, applying Quota's configured
// ceiling (or an override, if the stream negotiated a lower rate).
func (q *Quota) NewFrameLimiter(requestedFPS float64) *FrameLimiter {
	fps := q.maxFPS
	if requestedFPS > 0 && requestedFPS < fps {
		fps = requestedFPS
	}
	return &FrameLimiter{
		interval: time.Duration(float64(time.Second) / fps),
		last:     time.Time{},
	}
}

func (q *Quota) evictLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.evictIdle()
		case <-q.stopCh:
			return
		}
	}
}

func (q *Quota) evictIdle() {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for ip, cs := range q.clients {
		cs.mu.Lock()
		idle := cs.openStreams == 0 && now.Sub(cs.lastActive) >= q.idleTTL
		cs.mu.Unlock()
		if idle {
			delete(q.clients, ip)
		}
	}
}

// Close stops the idle-eviction loop.
func (q *Quota) Close() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

// FrameLimiter decides, for each produced frame, whether enough time has
// elapsed since the last delivered frame to honor the negotiated FPS
// ceiling. It is intentionally not a full token bucket with burst capacity:
// spec.md's adaptive-quality streaming wants strict pacing, not bursts,
// since bursts would spike downstream LZ4 compression CPU use.
type FrameLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// Allow reports whether a frame arriving now should be delivered (true) or
// dropped (false) to stay within the configured rate.
func (f *FrameLimiter) Allow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	if now.Sub(f.last) < f.interval {
		return false
	}
	f.last = now
	return true
}
