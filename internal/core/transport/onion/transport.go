package onion

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/net/proxy"

	"github.com/dep2p/go-onionp2p/internal/core/transport"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var logger = log.Logger("core/transport/onion")

// Deps 可注入的依赖，零值字段使用默认实现
type Deps struct {
	// Pool 守护进程池，默认 DefaultPool()
	Pool *DaemonPool

	// Factory 守护进程工厂，默认 StartTor
	Factory DaemonFactory

	// Clock 时钟，用于重试间隔与备份时间戳
	Clock clock.Clock

	// Rand 随机源，用于私钥与流隔离标签
	Rand io.Reader
}

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport 洋葱网络传输
type Transport struct {
	cfg     Config
	pool    *DaemonPool
	factory DaemonFactory
	clock   clock.Clock
	rand    io.Reader

	mu       sync.Mutex
	handle   *DaemonHandle
	listener net.Listener
	dialer   proxy.Dialer
	addr     types.NodeAddress
	progress *transport.Progress

	started  atomic.Bool
	closed   atomic.Bool
	attempts atomic.Int32

	ctx       context.Context
	cancel    context.CancelFunc
	startDone chan struct{}
	closeOnce sync.Once
}

// 确保实现 interfaces.Transport 接口
var _ interfaces.Transport = (*Transport)(nil)

// New 创建洋葱传输
func New(cfg Config, deps Deps) *Transport {
	if deps.Pool == nil {
		deps.Pool = DefaultPool()
	}
	if deps.Factory == nil {
		deps.Factory = StartTor
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Rand == nil {
		deps.Rand = rand.Reader
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:       cfg,
		pool:      deps.Pool,
		factory:   deps.Factory,
		clock:     deps.Clock,
		rand:      deps.Rand,
		ctx:       ctx,
		cancel:    cancel,
		startDone: make(chan struct{}),
	}
}

// Start 异步启动守护进程并发布隐藏服务
func (t *Transport) Start(listener interfaces.SetupListener, serve func(net.Listener)) {
	if t.closed.Load() || !t.started.CompareAndSwap(false, true) {
		logger.Warn("忽略重复或关闭后的启动请求")
		return
	}

	keyDir := filepath.Join(t.cfg.HiddenServiceDir, keyDirName)
	if err := rollingBackup(keyDir, keyFileName, t.cfg.KeyBackups, t.clock.Now()); err != nil {
		logger.Warn("私钥滚动备份失败", "err", err)
	}

	p := transport.NewProgress("onion", listener)
	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()
	go t.run(p, serve)
}

// run 启动 goroutine，失败时按次数重试
func (t *Transport) run(p *transport.Progress, serve func(net.Listener)) {
	defer close(t.startDone)

	for {
		attempt := int(t.attempts.Add(1))
		start := t.clock.Now()
		ln, err := t.setUp(p)
		if err == nil {
			addr, _ := t.NodeAddress()
			logger.Info("隐藏服务已发布",
				"addr", addr.String(),
				"attempt", attempt,
				"elapsed", t.clock.Since(start))
			p.Published()
			if serve != nil {
				serve(ln)
			}
			return
		}
		t.releaseHandle()
		if t.closed.Load() {
			return
		}

		if errors.Is(err, ErrDaemonUnreachable) {
			p.Failed(fmt.Errorf("%w: %v", transport.ErrSetupFailed, err))
			return
		}
		if attempt > t.cfg.MaxRestartAttempts {
			p.Failed(fmt.Errorf("%w after %d attempts: %v", transport.ErrSetupFailed, attempt, err))
			return
		}

		logger.Warn("启动失败，准备重试", "attempt", attempt, "max", t.cfg.MaxRestartAttempts, "err", err)
		p.RequestBridges()
		if !t.wait(t.cfg.RetryDelay) {
			return
		}
	}
}

// setUp 获取守护进程并发布隐藏服务
func (t *Transport) setUp(p *transport.Progress) (net.Listener, error) {
	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.StartTimeout)
	defer cancel()

	h, err := t.pool.Acquire(ctx, t.factory, t.cfg)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	p.Ready()

	key, err := loadOrCreateKey(keyPath(t.cfg.HiddenServiceDir), t.rand)
	if err != nil {
		return nil, err
	}
	ln, id, err := h.Daemon().Publish(ctx, PublishRequest{
		LocalPort:   t.cfg.LocalPort,
		ServicePort: t.cfg.ServicePort,
		Key:         key,
	})
	if err != nil {
		return nil, err
	}
	dialer, err := h.Daemon().Dialer(ctx, nil)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		_ = ln.Close()
		return nil, transport.ErrClosed
	}
	t.listener = ln
	t.dialer = dialer
	t.addr = types.NewNodeAddress(id+types.OnionSuffix, t.cfg.ServicePort)
	return ln, nil
}

// wait 等待 d，关闭时提前返回 false
func (t *Transport) wait(d time.Duration) bool {
	if d <= 0 {
		return t.ctx.Err() == nil
	}
	timer := t.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// releaseHandle 释放守护进程并清空发布状态
func (t *Transport) releaseHandle() {
	t.mu.Lock()
	h := t.handle
	t.handle = nil
	t.dialer = nil
	t.mu.Unlock()
	if err := h.Release(); err != nil {
		logger.Debug("释放守护进程出错", "err", err)
	}
}

// Attempts 已进行的启动尝试次数
func (t *Transport) Attempts() int {
	return int(t.attempts.Load())
}

// Connect 经 SOCKS5 代理拨号到洋葱对端
func (t *Transport) Connect(ctx context.Context, addr types.NodeAddress) (net.Conn, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	if !addr.IsOnion() {
		return nil, fmt.Errorf("%w: %s", transport.ErrNotOnion, addr)
	}

	t.mu.Lock()
	h, dialer := t.handle, t.dialer
	t.mu.Unlock()
	if h == nil || dialer == nil {
		return nil, transport.ErrNotReady
	}

	if t.cfg.StreamIsolation {
		auth, err := isolationAuth(t.rand)
		if err != nil {
			return nil, err
		}
		dialer, err = h.Daemon().Dialer(ctx, auth)
		if err != nil {
			return nil, err
		}
	}

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr.HostPort())
	} else {
		conn, err = dialer.Dial("tcp", addr.HostPort())
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	logger.Debug("已建立出站连接", "peer", addr.String(), "isolated", t.cfg.StreamIsolation)
	return conn, nil
}

// SocksProxy 返回共享的 SOCKS5 拨号器，发布前为 nil
func (t *Transport) SocksProxy() proxy.Dialer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialer
}

// NodeAddress 本节点洋葱地址，发布前返回 false
func (t *Transport) NodeAddress() (types.NodeAddress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr, !t.addr.IsZero()
}

// ShutDown 停止启动流程，关闭隐藏服务并释放守护进程
func (t *Transport) ShutDown(done func()) {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()

		t.mu.Lock()
		ln := t.listener
		if t.progress != nil {
			t.progress.Stop()
		}
		t.mu.Unlock()
		if ln != nil {
			if err := ln.Close(); err != nil {
				logger.Debug("关闭隐藏服务监听器出错", "err", err)
			}
		}
	})

	go func() {
		if t.started.Load() {
			timer := time.NewTimer(t.cfg.ShutdownWait)
			select {
			case <-t.startDone:
			case <-timer.C:
				logger.Warn("启动 goroutine 未在限定时间内退出")
			}
			timer.Stop()
		}
		t.releaseHandle()
		logger.Info("洋葱传输已关闭")
		if done != nil {
			done()
		}
	}()
}
