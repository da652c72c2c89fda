package eventloop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStarted(t *testing.T, cfg Config) *Loop {
	t.Helper()
	l := New(cfg, nil)
	l.Start()
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoop_FIFO(t *testing.T) {
	l := newStarted(t, DefaultConfig())

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Execute(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, l.Close())

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_SingleGoroutine(t *testing.T) {
	l := newStarted(t, DefaultConfig())

	var running, overlap atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Execute(func() {
					if running.Add(1) > 1 {
						overlap.Add(1)
					}
					running.Add(-1)
				})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Close())
	assert.Zero(t, overlap.Load())
	assert.Equal(t, int64(400), l.Executed())
}

func TestLoop_PanicIsRecovered(t *testing.T) {
	l := newStarted(t, DefaultConfig())

	ran := make(chan struct{})
	l.Execute(func() { panic("listener bug") })
	l.Execute(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after panic did not run")
	}
	assert.Equal(t, int64(1), l.Panics())
}

func TestLoop_ExecuteWaitBlocksAtHighWater(t *testing.T) {
	l := New(Config{HighWater: 2, DrainTimeout: time.Second}, nil)
	t.Cleanup(func() { _ = l.Close() })

	// 未启动时任务只排队
	require.True(t, l.ExecuteWait(func() {}))
	require.True(t, l.ExecuteWait(func() {}))

	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		l.ExecuteWait(func() {})
	}()

	select {
	case <-blocked:
		t.Fatal("ExecuteWait should block at high water")
	case <-time.After(30 * time.Millisecond):
	}

	// Execute 不受高水位限制
	assert.True(t, l.Execute(func() {}))
	assert.Equal(t, 3, l.Pending())

	l.Start()
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("ExecuteWait not released after loop drained")
	}
}

func TestLoop_CloseRejectsNewTasks(t *testing.T) {
	l := newStarted(t, DefaultConfig())
	require.NoError(t, l.Close())

	assert.False(t, l.Execute(func() {}))
	assert.False(t, l.ExecuteWait(func() {}))
	<-l.Done()
	assert.NoError(t, l.Close())
}

func TestLoop_CloseReleasesBlockedWriters(t *testing.T) {
	l := New(Config{HighWater: 1, DrainTimeout: 50 * time.Millisecond}, nil)
	l.Execute(func() {})

	result := make(chan bool, 1)
	go func() { result <- l.ExecuteWait(func() {}) }()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, l.Close())
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("blocked writer not released")
	}
}

func TestLoop_DrainTimeout(t *testing.T) {
	l := New(Config{HighWater: 16, DrainTimeout: 20 * time.Millisecond}, nil)
	l.Start()

	release := make(chan struct{})
	l.Execute(func() { <-release })
	defer close(release)

	assert.ErrorIs(t, l.Close(), ErrDrainTimeout)
}

func TestLoop_RunAfter(t *testing.T) {
	clk := clock.NewMock()
	l := New(DefaultConfig(), clk)
	l.Start()
	t.Cleanup(func() { _ = l.Close() })

	fired := make(chan struct{})
	l.RunAfter(100*time.Millisecond, func() { close(fired) })
	cancel := l.RunAfter(100*time.Millisecond, func() { t.Error("cancelled task ran") })
	assert.True(t, cancel())

	clk.Add(100 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed task did not run")
	}
}
