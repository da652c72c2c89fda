package onionp2p

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"golang.org/x/net/proxy"

	"github.com/dep2p/go-onionp2p/internal/core/gater"
	"github.com/dep2p/go-onionp2p/internal/core/node"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var logger = log.Logger("onionp2p")

// ════════════════════════════════════════════════════════════════════════════
//                              Node 结构
// ════════════════════════════════════════════════════════════════════════════

// Node 用户入口
//
// 通过 New 创建，Start 启动传输层并开始接受连接，Close 优雅关闭。
// 监听器可在 Start 之前注册，以免错过启动回调。
type Node struct {
	app    *fx.App
	config *options

	// 内部组件（由 Fx 注入）
	node  *node.Node
	gater *gater.Gater

	// 发布状态
	ready *readiness

	mu      sync.Mutex
	started bool
	closed  bool
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建新节点
//
// 创建节点但不启动，需要调用 Start() 启动。
//
// 示例：
//
//	node, err := onionp2p.New(
//	    onionp2p.WithHiddenServiceDir("/var/lib/onionp2p"),
//	    onionp2p.WithStreamIsolation(true),
//	)
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	n := &Node{config: o, ready: newReadiness()}
	app, err := buildFxApp(o, n)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	n.app = app
	n.node.AddSetupListener(n.ready)
	return n, nil
}

// Start 快捷启动函数，等价于 New() + Start()
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return n, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 传输层异步启动，返回时节点地址通常尚未发布，
// 需要地址时调用 WaitPublished。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	logger.Info("正在启动节点", "mode", n.config.config.Network.Mode, "version", Version)
	if err := n.app.Start(ctx); err != nil {
		logger.Error("节点启动失败", "err", err)
		return fmt.Errorf("start fx app: %w", err)
	}
	n.started = true
	return nil
}

// Close 优雅关闭节点并释放所有资源
//
// 所有连接以 APP_SHUT_DOWN 关闭，随后关闭传输层并排空事件循环。可重复调用。
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if !n.started {
		// 未启动时各组件没有需要释放的资源
		return nil
	}

	logger.Info("正在关闭节点")
	ctx, cancel := context.WithTimeout(context.Background(), n.config.config.Network.ShutdownTimeout.Duration()+stopMargin)
	defer cancel()
	if err := n.app.Stop(ctx); err != nil {
		logger.Warn("节点关闭出错", "err", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已关闭")
	return nil
}

// ShutDown 异步关闭节点，完成后调用 done
func (n *Node) ShutDown(done func()) {
	go func() {
		_ = n.Close()
		if done != nil {
			done()
		}
	}()
}

// WaitPublished 等待节点地址发布
//
// 传输层启动最终失败时返回该错误。
func (n *Node) WaitPublished(ctx context.Context) error {
	n.mu.Lock()
	started, closed := n.started, n.closed
	n.mu.Unlock()
	if closed {
		return ErrNodeClosed
	}
	if !started {
		return ErrNotStarted
	}
	return n.ready.wait(ctx)
}

// ════════════════════════════════════════════════════════════════════════════
//                              消息
// ════════════════════════════════════════════════════════════════════════════

// Send 向节点地址发送消息，返回承载消息的连接
func (n *Node) Send(ctx context.Context, addr types.NodeAddress, env *envelope.Envelope) (interfaces.Connection, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.node.Send(ctx, addr, env)
}

// NewEnvelope 以节点配置的协议版本包装消息
func (n *Node) NewEnvelope(msg envelope.Message) *envelope.Envelope {
	return envelope.New(n.config.config.Connection.MessageVersion, msg)
}

// AddMessageListener 注册消息监听器
func (n *Node) AddMessageListener(l interfaces.MessageListener) interfaces.ListenerHandle {
	return n.node.AddMessageListener(l)
}

// AddConnectionListener 注册连接生命周期监听器
func (n *Node) AddConnectionListener(l interfaces.ConnectionListener) interfaces.ListenerHandle {
	return n.node.AddConnectionListener(l)
}

// AddSetupListener 注册传输层启动监听器
func (n *Node) AddSetupListener(l interfaces.SetupListener) interfaces.ListenerHandle {
	return n.node.AddSetupListener(l)
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// NodeAddress 本节点地址，发布前返回 false
func (n *Node) NodeAddress() (types.NodeAddress, bool) {
	return n.node.NodeAddress()
}

// Connections 返回全部连接
func (n *Node) Connections() []interfaces.Connection {
	return n.node.Connections()
}

// ConfirmedConnections 返回已知对端地址的连接
func (n *Node) ConfirmedConnections() []interfaces.Connection {
	return n.node.ConfirmedConnections()
}

// FindConnection 按对端地址查找连接
func (n *Node) FindConnection(addr types.NodeAddress) (interfaces.Connection, bool) {
	return n.node.FindConnection(addr)
}

// SocksProxy 洋葱网络的 SOCKS5 拨号器，本地模拟模式返回 nil
func (n *Node) SocksProxy() proxy.Dialer {
	return n.node.Transport().SocksProxy()
}

// ════════════════════════════════════════════════════════════════════════════
//                              封禁
// ════════════════════════════════════════════════════════════════════════════

// Ban 封禁对端地址，已有连接在下次收发时按 PEER_BANNED 处理
func (n *Node) Ban(addr types.NodeAddress) {
	n.gater.Ban(addr)
}

// Unban 解除封禁
func (n *Node) Unban(addr types.NodeAddress) {
	n.gater.Unban(addr)
}

// IsPeerBanned 对端地址是否被封禁
func (n *Node) IsPeerBanned(addr types.NodeAddress) bool {
	return n.gater.IsPeerBanned(addr)
}

func (n *Node) checkRunning() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              发布状态
// ════════════════════════════════════════════════════════════════════════════

// readiness 记录传输层是否已发布或最终失败
type readiness struct {
	once sync.Once
	done chan struct{}
	err  error
}

var _ interfaces.SetupListener = (*readiness)(nil)

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *readiness) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *readiness) OnTorNodeReady()           {}
func (r *readiness) OnHiddenServicePublished() { r.finish(nil) }
func (r *readiness) OnSetupFailed(err error)   { r.finish(err) }
func (r *readiness) OnRequestCustomBridges()   {}
