package onion

import (
	"context"
	"crypto/ed25519"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/net/proxy"
)

// ============================================================================
//                              Daemon
// ============================================================================

// PublishRequest 隐藏服务发布参数
type PublishRequest struct {
	// LocalPort 本地监听端口，0 表示由系统分配
	LocalPort int

	// ServicePort 对外服务端口
	ServicePort int

	// Key 隐藏服务私钥
	Key ed25519.PrivateKey
}

// Daemon 匿名网络守护进程
type Daemon interface {
	// Publish 发布隐藏服务，返回接受入站连接的监听器与服务 ID（不含 .onion）
	Publish(ctx context.Context, req PublishRequest) (net.Listener, string, error)

	// Dialer 返回经 SOCKS5 代理的拨号器，auth 非空时作为 SOCKS 身份
	Dialer(ctx context.Context, auth *proxy.Auth) (proxy.Dialer, error)

	// Close 停止守护进程
	Close() error
}

// DaemonFactory 启动守护进程
type DaemonFactory func(ctx context.Context, cfg Config) (Daemon, error)

// ============================================================================
//                              DaemonPool
// ============================================================================

// DaemonPool 进程内共享的守护进程，按引用计数管理
//
// 第一个 Acquire 启动守护进程，最后一个 Release 关闭它。
type DaemonPool struct {
	mu     sync.Mutex
	daemon Daemon
	refs   int
}

var defaultPool = &DaemonPool{}

// DefaultPool 返回进程级默认池
func DefaultPool() *DaemonPool {
	return defaultPool
}

// DaemonHandle 守护进程的一次持有
//
// 持有方负责调用 Release；Release 可重复调用，只生效一次。
type DaemonHandle struct {
	pool     *DaemonPool
	daemon   Daemon
	released atomic.Bool
}

// Acquire 获取守护进程，必要时用 factory 启动
func (p *DaemonPool) Acquire(ctx context.Context, factory DaemonFactory, cfg Config) (*DaemonHandle, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.daemon == nil {
		d, err := factory(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p.daemon = d
		logger.Debug("守护进程已启动")
	}
	p.refs++
	return &DaemonHandle{pool: p, daemon: p.daemon}, nil
}

// Refs 当前持有数
func (p *DaemonPool) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Daemon 返回被持有的守护进程
func (h *DaemonHandle) Daemon() Daemon {
	return h.daemon
}

// Release 释放持有，最后一个持有方关闭守护进程
func (h *DaemonHandle) Release() error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs--
	if p.refs > 0 || p.daemon == nil {
		return nil
	}
	d := p.daemon
	p.daemon = nil
	p.refs = 0
	logger.Debug("关闭守护进程")
	return d.Close()
}
