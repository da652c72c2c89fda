package eventloop

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-onionp2p/pkg/lib/log"
)

var logger = log.Logger("core/eventloop")

// Config 事件循环配置
type Config struct {
	// HighWater ExecuteWait 开始阻塞的队列长度
	HighWater int

	// DrainTimeout 关闭时等待队列排空的上限
	DrainTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		HighWater:    1024,
		DrainTimeout: 500 * time.Millisecond,
	}
}

// Loop 单 goroutine 事件循环
type Loop struct {
	cfg   Config
	clock clock.Clock

	mu      sync.Mutex
	ready   *sync.Cond // 有新任务或已关闭
	space   *sync.Cond // 队列低于高水位或已关闭
	tasks   []func()
	closed  bool
	started bool

	done     chan struct{}
	panics   atomic.Int64
	executed atomic.Int64
}

// New 创建事件循环
func New(cfg Config, clk clock.Clock) *Loop {
	if cfg.HighWater <= 0 {
		cfg.HighWater = DefaultConfig().HighWater
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	l := &Loop{
		cfg:   cfg,
		clock: clk,
		done:  make(chan struct{}),
	}
	l.ready = sync.NewCond(&l.mu)
	l.space = sync.NewCond(&l.mu)
	return l
}

// Start 启动事件循环 goroutine
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true
	go l.run()
}

// Execute 投递任务，从不阻塞
//
// 事件循环关闭后返回 false，任务被丢弃。
func (l *Loop) Execute(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.ready.Signal()
	return true
}

// ExecuteWait 投递任务，队列达到高水位时阻塞
//
// 只能在事件循环之外的 goroutine 调用（例如连接的输入 goroutine），
// 在事件循环内部调用会在队列满时死锁。
func (l *Loop) ExecuteWait(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for !l.closed && len(l.tasks) >= l.cfg.HighWater {
		l.space.Wait()
	}
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.ready.Signal()
	return true
}

// RunAfter 在 d 之后把任务投递到事件循环，返回取消函数
func (l *Loop) RunAfter(d time.Duration, fn func()) (cancel func() bool) {
	t := l.clock.AfterFunc(d, func() { l.Execute(fn) })
	return t.Stop
}

// Pending 返回排队中的任务数
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Executed 返回已执行的任务数
func (l *Loop) Executed() int64 {
	return l.executed.Load()
}

// Panics 返回被恢复的 panic 次数
func (l *Loop) Panics() int64 {
	return l.panics.Load()
}

// Done 事件循环退出后关闭
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close 拒绝新任务并等待已排队任务执行完毕
//
// 等待时间受 DrainTimeout 限制，超时返回 ErrDrainTimeout，
// 剩余任务仍会在后台继续执行。
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.started
	pending := len(l.tasks)
	l.ready.Broadcast()
	l.space.Broadcast()
	l.mu.Unlock()

	if !started {
		if pending > 0 {
			logger.Debug("事件循环未启动，丢弃排队任务", "count", pending)
		}
		close(l.done)
		return nil
	}

	timer := time.NewTimer(l.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return nil
	case <-timer.C:
		logger.Warn("事件循环排空超时", "pending", l.Pending(), "timeout", l.cfg.DrainTimeout)
		return ErrDrainTimeout
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.ready.Wait()
		}
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		if len(l.tasks) < l.cfg.HighWater {
			l.space.Broadcast()
		}
		l.mu.Unlock()

		l.safeRun(fn)
	}
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			logger.Error("监听器 panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
	l.executed.Add(1)
}
