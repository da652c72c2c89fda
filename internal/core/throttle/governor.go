package throttle

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
)

var logger = log.Logger("core/throttle")

// ErrStopped Governor 已停止
var ErrStopped = errors.New("throttle: governor stopped")

// WriteFunc 把一帧写到线上
//
// frame 是实际写出的 Envelope（可能是 Bundle），logical 是其承载的原始消息。
type WriteFunc func(frame *envelope.Envelope, logical []*envelope.Envelope) error

// Hooks 可选回调
type Hooks struct {
	// OnBundleFlushed 一个待发 Bundle 写出后调用，参数为成员数
	OnBundleFlushed func(size int)

	// OnFlushError 调度写出失败时调用
	OnFlushError func(err error)
}

type pendingBundle struct {
	envs  []*envelope.Envelope
	size  int
	timer *clock.Timer

	// flushed 已从队列取出，之后到期的定时器直接跳过
	flushed bool
}

// ============================================================================
//                              Governor
// ============================================================================

// Governor 出站限流与合并
//
// 锁顺序：writeMu 先于 mu。mu 只保护队列状态，写出期间不持有，
// Stop 因此不会被阻塞在套接字写上。
type Governor struct {
	cfg   Config
	clock clock.Clock
	write WriteFunc
	hooks Hooks

	// supportsBundle 对端当前是否支持 Bundle，能力可能在连接期间更新
	supportsBundle func() bool

	// writeMu 保证帧按出队顺序写出
	writeMu sync.Mutex

	mu       sync.Mutex
	lastSend time.Time
	queue    []*pendingBundle
	timers   map[*clock.Timer]struct{}
	stopped  bool
}

// NewGovernor 创建出站限流器
func NewGovernor(cfg Config, clk clock.Clock, write WriteFunc, supportsBundle func() bool, hooks Hooks) *Governor {
	if clk == nil {
		clk = clock.New()
	}
	return &Governor{
		cfg:            cfg,
		clock:          clk,
		write:          write,
		hooks:          hooks,
		supportsBundle: supportsBundle,
		timers:         make(map[*clock.Timer]struct{}),
	}
}

// Send 发送一条消息
//
// size 为消息序列化后的字节数。进入合并路径时消息只是排队，
// 返回 nil 并不代表已经写出。
func (g *Governor) Send(env *envelope.Envelope, size int) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return ErrStopped
	}
	now := g.clock.Now()
	throttled := now.Sub(g.lastSend) < g.cfg.SendThrottleTrigger

	if throttled && g.supportsBundle() {
		g.enqueueLocked(env, size, now)
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if throttled {
		logger.Debug("对端不支持 Bundle，发送前等待", "sleep", g.cfg.SendThrottleSleep, "type", env.TypeName())
		g.clock.Sleep(g.cfg.SendThrottleSleep)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return ErrStopped
	}
	pending := g.takeLocked(len(g.queue))
	g.lastSend = g.clock.Now()
	g.mu.Unlock()

	if err := g.flush(pending); err != nil {
		return err
	}
	return g.write(env, []*envelope.Envelope{env})
}

// enqueueLocked 把消息加入队尾 Bundle，必要时新建并调度
func (g *Governor) enqueueLocked(env *envelope.Envelope, size int, now time.Time) {
	entry := bundleEntrySize(size)
	var tail *pendingBundle
	if len(g.queue) > 0 {
		tail = g.queue[len(g.queue)-1]
	}
	if tail == nil || tail.size+entry > g.cfg.MaxBundleSize {
		tail = &pendingBundle{}
		g.queue = append(g.queue, tail)

		g.lastSend = g.lastSend.Add(g.cfg.SendThrottleSleep)
		if g.lastSend.Before(now) {
			g.lastSend = now
		}
		g.scheduleLocked(tail, g.lastSend.Sub(now))
	}
	tail.envs = append(tail.envs, env)
	tail.size += entry
}

func (g *Governor) scheduleLocked(b *pendingBundle, delay time.Duration) {
	b.timer = g.clock.AfterFunc(delay, func() {
		if err := g.flushDue(b); err != nil && g.hooks.OnFlushError != nil {
			g.hooks.OnFlushError(err)
		}
	})
	g.timers[b.timer] = struct{}{}
}

// flushDue 定时器到期时写出 b
//
// b 之前仍在排队的 Bundle 时间更早，一并按顺序写出；b 已被直接路径取走时什么也不做。
func (g *Governor) flushDue(b *pendingBundle) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	delete(g.timers, b.timer)
	if g.stopped || b.flushed {
		g.mu.Unlock()
		return nil
	}
	n := 0
	for n < len(g.queue) && g.queue[n] != b {
		n++
	}
	batch := g.takeLocked(n + 1)
	g.mu.Unlock()

	return g.flush(batch)
}

// takeLocked 取出队首 n 个 Bundle 并停止它们的定时器
func (g *Governor) takeLocked(n int) []*pendingBundle {
	if n > len(g.queue) {
		n = len(g.queue)
	}
	if n == 0 {
		return nil
	}
	batch := make([]*pendingBundle, n)
	copy(batch, g.queue[:n])
	for i := 0; i < n; i++ {
		g.queue[i] = nil
	}
	g.queue = g.queue[n:]
	for _, b := range batch {
		b.flushed = true
		if b.timer != nil {
			b.timer.Stop()
			delete(g.timers, b.timer)
		}
	}
	return batch
}

// flush 依次写出已出队的 Bundle，调用方持有 writeMu
func (g *Governor) flush(batch []*pendingBundle) error {
	for _, b := range batch {
		if len(b.envs) == 0 {
			continue
		}
		frame := b.envs[0]
		if len(b.envs) > 1 {
			frame = envelope.New(b.envs[0].MessageVersion, &envelope.Bundle{Envelopes: b.envs})
		}
		if err := g.write(frame, b.envs); err != nil {
			return err
		}
		if g.hooks.OnBundleFlushed != nil {
			g.hooks.OnBundleFlushed(len(b.envs))
		}
	}
	return nil
}

// Pending 返回排队中的 Bundle 数与消息数
func (g *Governor) Pending() (bundles, envelopes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.queue {
		envelopes += len(b.envs)
	}
	return len(g.queue), envelopes
}

// Stop 停止调度并丢弃排队中的消息
//
// 不等待正在进行的写出。
func (g *Governor) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	g.stopped = true
	for t := range g.timers {
		t.Stop()
	}
	g.timers = nil
	if n := len(g.queue); n > 0 {
		logger.Debug("丢弃未发送的 Bundle", "count", n)
	}
	g.queue = nil
}

// bundleEntrySize 一个成员在 Bundle 中占用的字节数（字段标签 + 长度前缀 + 内容）
func bundleEntrySize(size int) int {
	return protowire.SizeTag(1) + protowire.SizeBytes(size)
}
