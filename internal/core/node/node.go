package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-onionp2p/internal/core/connection"
	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var logger = log.Logger("core/node")

// ============================================================================
//                              Node
// ============================================================================

// Node 网络节点
type Node struct {
	cfg       Config
	transport interfaces.Transport
	factory   *connection.Factory
	loop      *eventloop.Loop
	limiter   *rate.Limiter

	// mu 保护 listener、conns、byPeer
	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*connection.Connection
	byPeer   map[types.NodeAddress]*connection.Connection

	messageListeners    listenerSet[interfaces.MessageListener]
	connectionListeners listenerSet[interfaces.ConnectionListener]
	setupListeners      listenerSet[interfaces.SetupListener]

	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New 创建节点
func New(cfg Config, tr interfaces.Transport, factory *connection.Factory, loop *eventloop.Loop) (*Node, error) {
	if tr == nil {
		return nil, ErrNilTransport
	}
	if factory == nil {
		return nil, ErrNilFactory
	}
	if loop == nil {
		return nil, ErrNilLoop
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.AcceptRate > 0 {
		limit = rate.Limit(cfg.AcceptRate)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:       cfg,
		transport: tr,
		factory:   factory,
		loop:      loop,
		limiter:   rate.NewLimiter(limit, cfg.AcceptBurst),
		conns:     make(map[string]*connection.Connection),
		byPeer:    make(map[types.NodeAddress]*connection.Connection),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start 启动传输层，发布后开始接受入站连接
func (n *Node) Start() error {
	if n.closed.Load() {
		return ErrClosed
	}
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	logger.Info("启动网络节点", "maxConnections", n.cfg.MaxConnections)
	n.transport.Start(setupListener{n: n}, n.serve)
	return nil
}

// ============================================================================
//                              接受循环
// ============================================================================

// serve 接受循环，由传输层在发布后调用，监听器关闭时返回
func (n *Node) serve(ln net.Listener) {
	n.mu.Lock()
	if n.closed.Load() {
		n.mu.Unlock()
		_ = ln.Close()
		return
	}
	n.listener = ln
	n.mu.Unlock()

	logger.Debug("接受循环启动", "addr", ln.Addr().String())
	for {
		if err := n.limiter.Wait(n.ctx); err != nil {
			return
		}
		nc, err := ln.Accept()
		if err != nil {
			if n.closed.Load() || errors.Is(err, net.ErrClosed) {
				logger.Debug("接受循环退出")
				return
			}
			logger.Warn("接受入站连接失败", "err", err)
			if !n.sleep(n.cfg.AcceptBackoff) {
				return
			}
			continue
		}
		n.accept(nc)
	}
}

// accept 把入站套接字包装为连接
func (n *Node) accept(nc net.Conn) {
	c, err := n.factory.New(nc, types.DirInbound, types.NodeAddress{}, connListener{n: n})
	if err != nil {
		logger.Warn("创建入站连接失败", "remote", nc.RemoteAddr(), "err", err)
		_ = nc.Close()
		return
	}

	n.mu.Lock()
	if n.closed.Load() {
		n.mu.Unlock()
		_ = nc.Close()
		return
	}
	n.conns[c.UID()] = c
	count := len(n.conns)
	n.mu.Unlock()

	c.Start()
	if n.cfg.MaxConnections > 0 && count > n.cfg.MaxConnections {
		logger.Warn("连接数超过上限，关闭入站连接",
			"uid", log.TruncateID(c.UID(), 8),
			"count", count,
			"max", n.cfg.MaxConnections)
		c.ShutDown(types.CloseTooManyConnectionsOpen, nil)
	}
}

// sleep 等待 d，节点关闭时提前返回 false
func (n *Node) sleep(d time.Duration) bool {
	if d <= 0 {
		return n.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-n.ctx.Done():
		return false
	}
}

// ============================================================================
//                              发送
// ============================================================================

// Send 向节点地址发送消息
//
// 已有该地址的连接时复用，否则经传输层拨号创建出站连接。
// 返回承载该消息的连接；之后的 I/O 错误只以 OnDisconnect 通知。
func (n *Node) Send(ctx context.Context, addr types.NodeAddress, env *envelope.Envelope) (interfaces.Connection, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	if env == nil {
		return nil, ErrNilEnvelope
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if self, ok := n.NodeAddress(); ok && self == addr {
		return nil, fmt.Errorf("%w: %s", ErrSelfConnection, addr)
	}

	c, err := n.connectionTo(ctx, addr)
	if err != nil {
		return nil, err
	}
	c.SendMessage(env)
	return c, nil
}

// connectionTo 返回到 addr 的可用连接，必要时拨号
func (n *Node) connectionTo(ctx context.Context, addr types.NodeAddress) (*connection.Connection, error) {
	if c, ok := n.lookup(addr); ok {
		return c, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()
	start := time.Now()
	nc, err := n.transport.Connect(dialCtx, addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	c, err := n.factory.New(nc, types.DirOutbound, addr, connListener{n: n})
	if err != nil {
		_ = nc.Close()
		return nil, err
	}

	n.mu.Lock()
	if n.closed.Load() {
		n.mu.Unlock()
		_ = nc.Close()
		return nil, ErrClosed
	}
	if existing, ok := n.byPeer[addr]; ok && !existing.IsStopped() {
		// 并发拨号，保留先注册的连接
		n.mu.Unlock()
		_ = nc.Close()
		logger.Debug("复用并发建立的连接", "peer", addr.String(), "uid", log.TruncateID(existing.UID(), 8))
		return existing, nil
	}
	n.conns[c.UID()] = c
	n.byPeer[addr] = c
	n.mu.Unlock()

	c.Start()
	logger.Debug("出站连接已建立",
		"peer", addr.String(),
		"uid", log.TruncateID(c.UID(), 8),
		"elapsed", time.Since(start))

	if n.cfg.AnnounceAddress {
		if self, ok := n.NodeAddress(); ok {
			c.SendMessage(envelope.New(n.factory.Config().MessageVersion, &envelope.SenderNodeAddress{Address: self}))
		}
	}
	return c, nil
}

// lookup 查找已注册且未停止的连接
func (n *Node) lookup(addr types.NodeAddress) (*connection.Connection, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.byPeer[addr]
	if !ok || c.IsStopped() {
		return nil, false
	}
	return c, true
}

// ============================================================================
//                              注册表
// ============================================================================

// onPeerAddressSet 入站连接得知对端地址，重复时关闭较新的连接
func (n *Node) onPeerAddressSet(addr types.NodeAddress, conn interfaces.Connection) {
	n.mu.Lock()
	c, ok := n.conns[conn.UID()]
	if !ok {
		n.mu.Unlock()
		return
	}
	existing, had := n.byPeer[addr]
	if !had || existing == c || existing.IsStopped() {
		n.byPeer[addr] = c
		n.mu.Unlock()
		return
	}

	younger := c
	if c.Statistic().CreatedAt.Before(existing.Statistic().CreatedAt) {
		younger = existing
		n.byPeer[addr] = c
	}
	n.mu.Unlock()

	logger.Info("对端重复连接，关闭较新的连接",
		"peer", addr.String(),
		"uid", log.TruncateID(younger.UID(), 8))
	younger.ShutDown(types.CloseDuplicatePeerConnection, nil)
}

// unregister 从注册表移除连接
func (n *Node) unregister(conn interfaces.Connection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[conn.UID()]
	if !ok {
		return
	}
	delete(n.conns, conn.UID())
	if addr, ok := c.PeerAddress(); ok && n.byPeer[addr] == c {
		delete(n.byPeer, addr)
	}
}

// ============================================================================
//                              访问器
// ============================================================================

// Connections 返回全部已注册连接
func (n *Node) Connections() []interfaces.Connection {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]interfaces.Connection, 0, len(n.conns))
	for _, c := range n.conns {
		out = append(out, c)
	}
	return out
}

// ConfirmedConnections 返回已知对端地址的连接
func (n *Node) ConfirmedConnections() []interfaces.Connection {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]interfaces.Connection, 0, len(n.byPeer))
	for _, c := range n.byPeer {
		out = append(out, c)
	}
	return out
}

// FindConnection 按对端地址查找连接
func (n *Node) FindConnection(addr types.NodeAddress) (interfaces.Connection, bool) {
	c, ok := n.lookup(addr)
	if !ok {
		return nil, false
	}
	return c, true
}

// NodeAddress 本节点地址，传输层发布前返回 false
func (n *Node) NodeAddress() (types.NodeAddress, bool) {
	return n.transport.NodeAddress()
}

// Transport 返回传输层
func (n *Node) Transport() interfaces.Transport {
	return n.transport
}
