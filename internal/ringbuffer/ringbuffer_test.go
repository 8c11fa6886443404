package ringbuffer

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, capacity uint64) *RingBuffer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ring.bin")
	rb, err := Open(path, capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rb.Close() })
	return rb
}

func TestOpenRejectsNonPowerOfTwo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.bin")
	_, err := Open(path, 3)
	require.Error(t, err)
}

func TestWriteHeadMonotonicUnderConcurrency(t *testing.T) {
	rb := newTestRing(t, 1<<20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = rb.Write([]byte("x"))
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, rb.WriteHead(), rb.ReadTail())
	assert.Equal(t, uint64(8*50*(lengthPrefixSize+1)), rb.WriteHead())
}

func TestPayloadTooLargeRejected(t *testing.T) {
	rb := newTestRing(t, 64)
	err := rb.Write(make([]byte, 128))
	require.Error(t, err)
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := newTestRing(t, 1<<20) // 1 MiB

	chunks := make([][]byte, 10)
	chunkSize := 256*1024 - lengthPrefixSize // so framed size is exactly 256KiB
	for i := range chunks {
		chunks[i] = bytes.Repeat([]byte{byte(i)}, chunkSize)
		require.NoError(t, rb.Write(chunks[i]))
	}

	snap := rb.ReadSnapshot()
	assert.Len(t, snap, 1<<20)

	// The last 4 chunks (256KiB framed each) should be present, concatenated,
	// at the tail of the snapshot.
	var want []byte
	for _, c := range chunks[len(chunks)-4:] {
		frame := make([]byte, lengthPrefixSize+len(c))
		putUint64LE(frame, uint64(len(c)))
		copy(frame[lengthPrefixSize:], c)
		want = append(want, frame...)
	}
	assert.Equal(t, want, snap)
}

func TestAdvanceTailClampsToWriteHead(t *testing.T) {
	rb := newTestRing(t, 1<<16)
	require.NoError(t, rb.Write([]byte("hello")))

	before := rb.WriteHead()
	rb.AdvanceTail(before * 100) // way more than available
	assert.Equal(t, before, rb.ReadTail())
}

// TestTapDecimation is the ceil(K/N) scenario from spec.md §8.
func TestTapDecimation(t *testing.T) {
	rb := newTestRing(t, 1<<20)
	tap := rb.RegisterTap("t1", 10, 16)

	for i := 0; i < 100; i++ {
		require.NoError(t, rb.Write([]byte{byte(i)}))
	}

	count := 0
	for {
		select {
		case _, ok := <-tap.C():
			if !ok {
				goto done
			}
			count++
		default:
			goto done
		}
	}
done:
	assert.LessOrEqual(t, count, 10)
	assert.Greater(t, count, 0)
}

func TestTapUnregisterClosesChannel(t *testing.T) {
	rb := newTestRing(t, 1<<16)
	tap := rb.RegisterTap("t1", 1, 4)
	require.NoError(t, rb.Write([]byte("a")))
	tap.Close()

	_, ok := <-tap.C()
	if ok {
		_, ok = <-tap.C()
	}
	assert.False(t, ok)
}

func TestOpenReopenPreservesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.bin")
	rb1, err := Open(path, 1<<16)
	require.NoError(t, err)
	require.NoError(t, rb1.Write([]byte("abc")))
	head := rb1.WriteHead()
	require.NoError(t, rb1.Close())

	rb2, err := Open(path, 1<<16)
	require.NoError(t, err)
	defer rb2.Close()
	assert.Equal(t, head, rb2.WriteHead())
}
