package throttle

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
)

type written struct {
	frame   *envelope.Envelope
	logical []*envelope.Envelope
}

type recorder struct {
	mu     sync.Mutex
	frames []written
}

func (r *recorder) write(frame *envelope.Envelope, logical []*envelope.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, written{frame, logical})
	return nil
}

func (r *recorder) snapshot() []written {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]written(nil), r.frames...)
}

func payload(name string) *envelope.Envelope {
	return envelope.New("1", &envelope.Payload{Type: name})
}

func newTestGovernor(t *testing.T, cfg Config, bundle *atomic.Bool) (*Governor, *clock.Mock, *recorder, *atomic.Int32) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	flushed := &atomic.Int32{}
	g := NewGovernor(cfg, clk, rec.write, bundle.Load, Hooks{
		OnBundleFlushed: func(int) { flushed.Add(1) },
	})
	t.Cleanup(g.Stop)
	return g, clk, rec, flushed
}

func TestGovernor_DirectWhenIdle(t *testing.T) {
	bundle := &atomic.Bool{}
	bundle.Store(true)
	g, clk, rec, _ := newTestGovernor(t, DefaultConfig(), bundle)

	require.NoError(t, g.Send(payload("a"), 10))
	clk.Add(25 * time.Millisecond)
	require.NoError(t, g.Send(payload("b"), 10))

	frames := rec.snapshot()
	require.Len(t, frames, 2)
	assert.Equal(t, "a", frames[0].frame.TypeName())
	assert.Equal(t, "b", frames[1].frame.TypeName())
}

func TestGovernor_CoalescesIntoOneBundle(t *testing.T) {
	bundle := &atomic.Bool{}
	bundle.Store(true)
	g, clk, rec, flushed := newTestGovernor(t, DefaultConfig(), bundle)

	require.NoError(t, g.Send(payload("warmup"), 10))
	clk.Add(time.Millisecond)

	e1, e2, e3 := payload("e1"), payload("e2"), payload("e3")
	for _, e := range []*envelope.Envelope{e1, e2, e3} {
		require.NoError(t, g.Send(e, e.Size()))
	}

	bundles, envs := g.Pending()
	assert.Equal(t, 1, bundles)
	assert.Equal(t, 3, envs)
	assert.Len(t, rec.snapshot(), 1)

	clk.Add(49 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	frame := rec.snapshot()[1]
	inner, ok := frame.frame.AsBundle()
	require.True(t, ok)
	assert.Equal(t, []*envelope.Envelope{e1, e2, e3}, inner)
	assert.Equal(t, []*envelope.Envelope{e1, e2, e3}, frame.logical)
	assert.Equal(t, int32(1), flushed.Load())
}

func TestGovernor_SingleEntryBundleIsUnwrapped(t *testing.T) {
	bundle := &atomic.Bool{}
	bundle.Store(true)
	g, clk, rec, _ := newTestGovernor(t, DefaultConfig(), bundle)

	require.NoError(t, g.Send(payload("warmup"), 10))
	only := payload("only")
	require.NoError(t, g.Send(only, only.Size()))

	clk.Add(50 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Same(t, only, rec.snapshot()[1].frame)
}

func TestGovernor_SplitsWhenBundleFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBundleSize = 100
	bundle := &atomic.Bool{}
	bundle.Store(true)
	g, clk, rec, _ := newTestGovernor(t, cfg, bundle)

	require.NoError(t, g.Send(payload("warmup"), 10))

	big := func(name string) *envelope.Envelope {
		return envelope.New("1", &envelope.Payload{Type: name, Data: []byte(strings.Repeat("x", 30))})
	}
	envs := []*envelope.Envelope{big("b1"), big("b2"), big("b3")}
	for _, e := range envs {
		require.NoError(t, g.Send(e, e.Size()))
	}
	bundles, n := g.Pending()
	assert.Equal(t, 2, bundles)
	assert.Equal(t, 3, n)

	// 第一个 Bundle 在 lastSend+50ms 写出，第二个再晚 50ms
	clk.Add(50 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	first, ok := rec.snapshot()[1].frame.AsBundle()
	require.True(t, ok)
	assert.Equal(t, envs[:2], first)

	clk.Add(50 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Same(t, envs[2], rec.snapshot()[2].frame)
}

func TestGovernor_SleepsWithoutBundleCapability(t *testing.T) {
	bundle := &atomic.Bool{}
	g, clk, rec, _ := newTestGovernor(t, DefaultConfig(), bundle)

	require.NoError(t, g.Send(payload("first"), 10))

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Send(payload("second"), 10))
	}()

	select {
	case <-done:
		t.Fatal("send returned before the throttle sleep elapsed")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Len(t, rec.snapshot(), 1)

	require.Eventually(t, func() bool {
		clk.Add(10 * time.Millisecond)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.snapshot(), 2)
}

func TestGovernor_PendingFlushedBeforeDirectWrite(t *testing.T) {
	bundle := &atomic.Bool{}
	bundle.Store(true)
	g, clk, rec, _ := newTestGovernor(t, DefaultConfig(), bundle)

	require.NoError(t, g.Send(payload("warmup"), 10))
	queued := payload("queued")
	require.NoError(t, g.Send(queued, queued.Size()))

	// 对端能力更新为不支持 Bundle，下一条消息走直接写出路径
	bundle.Store(false)
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Send(payload("direct"), 10))
	}()
	require.Eventually(t, func() bool {
		clk.Add(5 * time.Millisecond)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	var names []string
	for _, w := range rec.snapshot() {
		names = append(names, w.frame.TypeName())
	}
	assert.Equal(t, []string{"warmup", "queued", "direct"}, names)
}

func TestGovernor_StopDropsQueue(t *testing.T) {
	bundle := &atomic.Bool{}
	bundle.Store(true)
	g, clk, rec, _ := newTestGovernor(t, DefaultConfig(), bundle)

	require.NoError(t, g.Send(payload("warmup"), 10))
	require.NoError(t, g.Send(payload("queued"), 10))
	g.Stop()

	clk.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
	assert.ErrorIs(t, g.Send(payload("late"), 10), ErrStopped)
}

func TestGovernor_StaleTimerSkipsLaterBundle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendThrottleTrigger = time.Second
	bundle := &atomic.Bool{}
	bundle.Store(true)
	g, clk, rec, _ := newTestGovernor(t, cfg, bundle)

	require.NoError(t, g.Send(payload("warmup"), 10))
	require.NoError(t, g.Send(payload("queued"), 10))
	g.mu.Lock()
	stale := g.queue[0]
	g.mu.Unlock()

	// 直接路径先把 stale 写出
	bundle.Store(false)
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Send(payload("direct"), 10))
	}()
	require.Eventually(t, func() bool {
		clk.Add(5 * time.Millisecond)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	g.mu.Lock()
	assert.True(t, stale.flushed)
	assert.Empty(t, g.timers)
	g.mu.Unlock()

	bundle.Store(true)
	require.NoError(t, g.Send(payload("later"), 10))
	_, envs := g.Pending()
	require.Equal(t, 1, envs)

	// stale 的定时器迟到，不能提前写出新的 Bundle
	require.NoError(t, g.flushDue(stale))
	_, envs = g.Pending()
	assert.Equal(t, 1, envs)

	var names []string
	for _, w := range rec.snapshot() {
		names = append(names, w.frame.TypeName())
	}
	assert.Equal(t, []string{"warmup", "queued", "direct"}, names)
}

func TestGovernor_StopDoesNotWaitForWrite(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	clk := clock.NewMock()
	g := NewGovernor(DefaultConfig(), clk, func(*envelope.Envelope, []*envelope.Envelope) error {
		close(entered)
		<-release
		return nil
	}, func() bool { return false }, Hooks{})
	defer close(release)

	go func() { _ = g.Send(payload("blocked"), 10) }()
	<-entered

	stopped := make(chan struct{})
	go func() {
		g.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked behind an in-flight write")
	}
	assert.ErrorIs(t, g.Send(payload("late"), 10), ErrStopped)
}
