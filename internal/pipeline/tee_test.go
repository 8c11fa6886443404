package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	n *int64
}

func (o *countingObserver) OnItem(m int) { atomic.AddInt64(o.n, 1) }

func TestTeeDeliversToObserverPrimaryAndBroadcast(t *testing.T) {
	tee := New[int](nil, WithPrimary[int](8))

	var count int64
	unregister := tee.RegisterObserver(&countingObserver{n: &count})
	defer unregister()

	sub := tee.Subscribe(8)
	defer sub.Close()

	input := make(chan int, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tee.RegisterInput(ctx, input)

	input <- 42
	close(input)

	select {
	case v := <-tee.Primary():
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on primary")
	}

	select {
	case v := <-sub.C():
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on broadcast")
	}

	require.Eventually(t, func() bool { return atomic.LoadInt64(&count) == 1 }, time.Second, time.Millisecond)
}

func TestTeeWorksWithoutPrimary(t *testing.T) {
	tee := New[string](nil)
	sub := tee.Subscribe(4)
	defer sub.Close()

	input := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tee.RegisterInput(ctx, input)

	input <- "hello"
	assert.Nil(t, tee.Primary())

	select {
	case v := <-sub.C():
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestTeeStopDrainsGoroutines(t *testing.T) {
	tee := New[int](nil, WithPrimary[int](1))
	input := make(chan int)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tee.RegisterInput(ctx, input)

	tee.Stop()
	// Stop must return (not hang) even though input was never closed.
}
