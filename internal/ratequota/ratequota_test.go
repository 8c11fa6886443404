package ratequota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireEnforcesPerClientLimit(t *testing.T) {
	q := New(2, 30)
	defer q.Close()

	release1, err := q.Acquire("10.0.0.1")
	require.NoError(t, err)
	release2, err := q.Acquire("10.0.0.1")
	require.NoError(t, err)

	_, err = q.Acquire("10.0.0.1")
	require.Error(t, err)

	release1()
	_, err = q.Acquire("10.0.0.1")
	require.NoError(t, err)

	release2()
}

func TestAcquireTracksClientsIndependently(t *testing.T) {
	q := New(1, 30)
	defer q.Close()

	_, err := q.Acquire("10.0.0.1")
	require.NoError(t, err)
	_, err = q.Acquire("10.0.0.2")
	require.NoError(t, err)
}

func TestFrameLimiterCapsRate(t *testing.T) {
	q := New(4, 10) // 10 fps -> 100ms interval
	defer q.Close()
	fl := q.NewFrameLimiter(0)

	assert.True(t, fl.Allow())
	assert.False(t, fl.Allow())

	time.Sleep(110 * time.Millisecond)
	assert.True(t, fl.Allow())
}

func TestFrameLimiterHonorsLowerRequestedRate(t *testing.T) {
	q := New(4, 60)
	defer q.Close()
	fl := q.NewFrameLimiter(5) // requested rate below ceiling

	assert.True(t, fl.Allow())
	assert.False(t, fl.Allow())
}
