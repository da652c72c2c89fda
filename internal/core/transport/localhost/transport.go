// Package localhost 实现本地回环模拟传输
//
// 用于开发和测试：不启动任何匿名网络守护进程，用两段人为延迟
// 模拟守护进程就绪与隐藏服务发布，然后在回环地址上监听 TCP。
// 本节点地址为 localhost:<端口>，出站直接拨号，没有 SOCKS 代理。
package localhost

import (
	"context"
	"fmt"
	"net"
	"strconv"
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

var logger = log.Logger("core/transport/localhost")

// loopbackIP 监听与拨号使用的回环地址
const loopbackIP = "127.0.0.1"

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport 本地回环模拟传输
type Transport struct {
	cfg   Config
	clock clock.Clock

	mu       sync.Mutex
	listener net.Listener
	addr     types.NodeAddress
	progress *transport.Progress

	started atomic.Bool
	closed  atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	startDone chan struct{}
	closeOnce sync.Once
}

// 确保实现 interfaces.Transport 接口
var _ interfaces.Transport = (*Transport)(nil)

// New 创建本地模拟传输
func New(cfg Config, clk clock.Clock) *Transport {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:       cfg,
		clock:     clk,
		ctx:       ctx,
		cancel:    cancel,
		startDone: make(chan struct{}),
	}
}

// Start 异步启动
func (t *Transport) Start(listener interfaces.SetupListener, serve func(net.Listener)) {
	if t.closed.Load() || !t.started.CompareAndSwap(false, true) {
		logger.Warn("忽略重复或关闭后的启动请求")
		return
	}
	p := transport.NewProgress("localhost", listener)
	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()
	go t.run(p, serve)
}

func (t *Transport) run(p *transport.Progress, serve func(net.Listener)) {
	defer close(t.startDone)

	if !t.sleep(t.cfg.ReadyDelay) {
		return
	}
	p.Ready()

	if !t.sleep(t.cfg.PublishDelay) {
		return
	}

	lc := net.ListenConfig{KeepAlive: t.cfg.KeepAlive}
	ln, err := lc.Listen(t.ctx, "tcp", net.JoinHostPort(loopbackIP, strconv.Itoa(t.cfg.Port)))
	if err != nil {
		p.Failed(fmt.Errorf("%w: listen on port %d: %v", transport.ErrSetupFailed, t.cfg.Port, err))
		return
	}

	// 端口为 0 时以实际分配的端口作为本节点地址
	port := ln.Addr().(*net.TCPAddr).Port
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		_ = ln.Close()
		return
	}
	t.listener = ln
	t.addr = types.NewNodeAddress(types.LocalhostHost, port)
	t.mu.Unlock()

	logger.Info("本地模拟服务已监听", "addr", t.addr.String())
	p.Published()

	if serve != nil {
		serve(ln)
	}
}

// sleep 等待 d，传输层关闭时提前返回 false
func (t *Transport) sleep(d time.Duration) bool {
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

// Connect 直接拨号到对端
func (t *Transport) Connect(ctx context.Context, addr types.NodeAddress) (net.Conn, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	host := addr.Host
	if host == types.LocalhostHost {
		host = loopbackIP
	}
	dialer := &net.Dialer{
		Timeout:   t.cfg.DialTimeout,
		KeepAlive: t.cfg.KeepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(addr.Port)))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	logger.Debug("已建立出站连接", "peer", addr.String(), "local", conn.LocalAddr().String())
	return conn, nil
}

// SocksProxy 本地模拟没有 SOCKS 代理
func (t *Transport) SocksProxy() proxy.Dialer {
	return nil
}

// NodeAddress 本节点地址，监听前返回 false
func (t *Transport) NodeAddress() (types.NodeAddress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr, !t.addr.IsZero()
}

// ShutDown 关闭监听套接字并等待启动 goroutine 退出
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
				logger.Debug("关闭监听套接字出错", "err", err)
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
		logger.Debug("本地模拟传输已关闭")
		if done != nil {
			done()
		}
	}()
}
