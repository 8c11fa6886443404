package observable

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetJSONGetJSONRoundTrip(t *testing.T) {
	o := New[float64]("exposure_ms", 100.0, "float")
	WithRange(o, 1.0, 10000.0)

	require.NoError(t, o.SetJSON(context.Background(), []byte("250.5")))
	raw, err := o.GetJSON()
	require.NoError(t, err)
	assert.JSONEq(t, "250.5", string(raw))
}

func TestSetRejectsOutOfRange(t *testing.T) {
	o := New[int64]("gain", 1, "int")
	WithRange(o, int64(0), int64(100))

	err := o.Set(context.Background(), 500)
	require.Error(t, err)
	assert.Equal(t, int64(1), o.Get())
}

func TestWithRangeIntrospectablePublishesMetadata(t *testing.T) {
	o := New[float64]("threshold", 0, "float")
	o, err := WithRangeIntrospectable(o, 0.0, 1000.0)
	require.NoError(t, err)

	md := o.Metadata()
	require.NotNil(t, md.Min)
	require.NotNil(t, md.Max)
	assert.Equal(t, 0.0, *md.Min)
	assert.Equal(t, 1000.0, *md.Max)
}

func TestWithRangeIntrospectableRejectsNonFinite(t *testing.T) {
	o := New[float64]("threshold", 0, "float")
	_, err := WithRangeIntrospectable(o, 0.0, math.Inf(1))
	require.Error(t, err)
}

func TestWithChoicesIntrospectableUsesEnumDtype(t *testing.T) {
	o := New[string]("mode", "auto", "string")
	o = WithChoicesIntrospectable(o, []string{"auto", "manual"})

	md := o.Metadata()
	assert.Equal(t, "enum", md.Dtype)
	assert.Equal(t, []string{"auto", "manual"}, md.EnumValues)

	require.NoError(t, o.Set(context.Background(), "manual"))
	assert.Equal(t, "manual", o.Get())

	err := o.Set(context.Background(), "bogus")
	require.Error(t, err)
}

// TestHardwareWriteSerializedWithPublish is the "Observable race" scenario
// from spec.md §8: two concurrent Sets with a slow hardware callback must
// never leave the logical value disagreeing with the last hardware write.
func TestHardwareWriteSerializedWithPublish(t *testing.T) {
	var mu sync.Mutex
	var hwValue int

	o := New[int]("pos", 0, "int")
	o.WithHardwareWrite(func(ctx context.Context, v int) error {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		hwValue = v
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = o.Set(context.Background(), 1) }()
	go func() { defer wg.Done(); _ = o.Set(context.Background(), 2) }()
	wg.Wait()

	mu.Lock()
	finalHW := hwValue
	mu.Unlock()
	assert.Equal(t, finalHW, o.Get())
}

func TestHardwareWriteFailureLeavesValueUnchanged(t *testing.T) {
	o := New[int]("pos", 5, "int")
	o.WithHardwareWrite(func(ctx context.Context, v int) error {
		return assertErr
	})

	err := o.Set(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, 5, o.Get())
}

var assertErr = &testError{"hardware fault"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestWatchDeliversInWriteOrder(t *testing.T) {
	o := New[int]("counter", 0, "int")
	sub := o.Watch(8)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, o.Set(context.Background(), i))
	}

	for i := 1; i <= 5; i++ {
		select {
		case v := <-sub.C():
			assert.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for value %d", i)
		}
	}
}

func TestParameterSetRejectsDuplicateNames(t *testing.T) {
	ps := NewParameterSet()
	o1 := New[int]("x", 0, "int")
	o2 := New[int]("x", 1, "int")

	require.NoError(t, ps.Register(o1))
	err := ps.Register(o2)
	require.Error(t, err)
}

func TestParameterSetGetTyped(t *testing.T) {
	ps := NewParameterSet()
	o := New[float64]("exposure", 10.0, "float")
	require.NoError(t, ps.Register(o))

	got, ok := GetTyped[float64](ps, "exposure")
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Get())

	assert.Equal(t, []string{"exposure"}, ps.Names())
}

func TestParameterSetSetJSONRejectsReadOnly(t *testing.T) {
	ps := NewParameterSet()
	o := New[int]("ro", 1, "int").WithReadOnly(true)
	require.NoError(t, ps.Register(o))

	err := ps.SetJSON(context.Background(), "ro", []byte("2"))
	require.Error(t, err)
}
