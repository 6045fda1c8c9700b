package executor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 5, 25, 12, 0, 0, 0, time.UTC)

func newPool(t *testing.T) *ants.Pool {
	t.Helper()
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return pool
}

// clockAt returns a clock fixed at the given offset from epoch.
func clockAt(offset time.Duration) func() time.Time {
	return func() time.Time { return epoch.Add(offset) }
}

func TestExecute_BeforeDeadlineRunsInline(t *testing.T) {
	b, err := New(newPool(t), epoch, WithClock(clockAt(-time.Second)))
	require.NoError(t, err)

	for range 3 {
		var got ExecutionType = -1
		fallbackRan := false
		result := b.Execute(func(et ExecutionType) { got = et }, func() { fallbackRan = true })
		assert.Equal(t, Synchronous, result)
		assert.Equal(t, Synchronous, got)
		assert.False(t, fallbackRan)
	}
	assert.True(t, b.HasExecutedAllSynchronously())
}

func TestExecute_AtDeadlineIsSynchronous(t *testing.T) {
	b, err := New(newPool(t), epoch, WithClock(clockAt(0)))
	require.NoError(t, err)

	assert.Equal(t, Synchronous, b.Execute(func(ExecutionType) {}, func() {}))
}

func TestExecute_AfterDeadlineUnboundedQueues(t *testing.T) {
	b, err := New(newPool(t), epoch, WithClock(clockAt(time.Second)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var asyncRuns atomic.Int32
	var fallbacks atomic.Int32
	for range 20 {
		wg.Add(1)
		result := b.Execute(func(et ExecutionType) {
			defer wg.Done()
			if et == Asynchronous {
				asyncRuns.Add(1)
			}
		}, func() { fallbacks.Add(1) })
		assert.Equal(t, Asynchronous, result)
	}
	wg.Wait()

	assert.Equal(t, int32(20), asyncRuns.Load())
	assert.Zero(t, fallbacks.Load())
	assert.False(t, b.HasExecutedAllSynchronously())
}

func TestExecute_AfterDeadlineZeroCapacityFallsBack(t *testing.T) {
	b, err := New(newPool(t), epoch, WithClock(clockAt(time.Second)), WithCapacity(0))
	require.NoError(t, err)

	taskRan := false
	fallbackRan := 0
	for range 3 {
		result := b.Execute(func(ExecutionType) { taskRan = true }, func() { fallbackRan++ })
		assert.Equal(t, Asynchronous, result)
	}
	assert.False(t, taskRan)
	assert.Equal(t, 3, fallbackRan)
	assert.False(t, b.HasExecutedAllSynchronously())
}

func TestExecute_CapacityIsReleasedWhenTaskFinishes(t *testing.T) {
	b, err := New(newPool(t), epoch, WithClock(clockAt(time.Second)), WithCapacity(1))
	require.NoError(t, err)

	block := make(chan struct{})
	done := make(chan struct{})
	result := b.Execute(func(ExecutionType) {
		<-block
		close(done)
	}, func() { t.Fatal("fallback must not run while capacity remains") })
	assert.Equal(t, Asynchronous, result)

	// The only slot is taken.
	fallbackRan := false
	b.Execute(func(ExecutionType) { t.Fatal("task must not run without capacity") }, func() { fallbackRan = true })
	assert.True(t, fallbackRan)

	close(block)
	<-done
	require.Eventually(t, func() bool {
		return b.capacity.TryAcquire(1)
	}, time.Second, time.Millisecond)
	b.capacity.Release(1)
}

func TestExecute_ClockIsSampledPerCall(t *testing.T) {
	now := epoch.Add(-time.Second)
	b, err := New(newPool(t), epoch, WithClock(func() time.Time { return now }), WithCapacity(0))
	require.NoError(t, err)

	assert.Equal(t, Synchronous, b.Execute(func(ExecutionType) {}, func() {}))
	assert.True(t, b.HasExecutedAllSynchronously())

	now = epoch.Add(time.Second)
	assert.Equal(t, Asynchronous, b.Execute(func(ExecutionType) {}, func() {}))
	assert.False(t, b.HasExecutedAllSynchronously())
}

type rejectingPool struct{}

func (rejectingPool) Submit(func()) error { return errors.New("pool overloaded") }

func TestExecute_RejectedSubmitFallsBack(t *testing.T) {
	b, err := New(rejectingPool{}, epoch, WithClock(clockAt(time.Second)), WithCapacity(1))
	require.NoError(t, err)

	fallbackRan := false
	result := b.Execute(func(ExecutionType) { t.Fatal("task must not run") }, func() { fallbackRan = true })
	assert.Equal(t, Asynchronous, result)
	assert.True(t, fallbackRan)

	// The slot taken for the rejected submit was returned.
	assert.True(t, b.capacity.TryAcquire(1))
}

func TestNewWithBudget(t *testing.T) {
	b, err := NewWithBudget(newPool(t), time.Minute, WithClock(clockAt(0)))
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Minute), b.deadline)
}

func TestNew_RequiresPool(t *testing.T) {
	_, err := New(nil, epoch)
	assert.ErrorIs(t, err, ErrPoolRequired)
}
