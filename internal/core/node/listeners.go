package node

import (
	"runtime/debug"
	"slices"
	"sync"

	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              监听器集合
// ============================================================================

type listenerEntry[T any] struct {
	id uint64
	l  T
}

// listenerSet 按注册顺序保存监听器
//
// 函数类型的监听器不可比较，注销依赖句柄中的 id。
type listenerSet[T any] struct {
	mu      sync.Mutex
	next    uint64
	entries []listenerEntry[T]
}

func (s *listenerSet[T]) add(l T) interfaces.ListenerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.entries = append(s.entries, listenerEntry[T]{id: id, l: l})
	return &listenerHandle{remove: func() { s.remove(id) }}
}

func (s *listenerSet[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = slices.DeleteFunc(s.entries, func(e listenerEntry[T]) bool { return e.id == id })
}

func (s *listenerSet[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.l
	}
	return out
}

func (s *listenerSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type listenerHandle struct {
	once   sync.Once
	remove func()
}

// Remove 实现 interfaces.ListenerHandle
func (h *listenerHandle) Remove() {
	h.once.Do(h.remove)
}

// ============================================================================
//                              注册
// ============================================================================

// AddMessageListener 注册消息监听器
func (n *Node) AddMessageListener(l interfaces.MessageListener) interfaces.ListenerHandle {
	return n.messageListeners.add(l)
}

// AddConnectionListener 注册连接生命周期监听器
func (n *Node) AddConnectionListener(l interfaces.ConnectionListener) interfaces.ListenerHandle {
	return n.connectionListeners.add(l)
}

// AddSetupListener 注册传输层启动监听器
func (n *Node) AddSetupListener(l interfaces.SetupListener) interfaces.ListenerHandle {
	return n.setupListeners.add(l)
}

// each 依次调用监听器，单个监听器 panic 不影响其后的监听器
func each[T any](ls []T, callback string, fn func(T)) {
	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("监听器 panic", "callback", callback, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			fn(l)
		}()
	}
}

// ============================================================================
//                              连接回调
// ============================================================================

// connListener 连接回调的接收方，回调已在事件循环上
type connListener struct {
	n *Node
}

func (a connListener) OnConnection(conn interfaces.Connection) {
	each(a.n.connectionListeners.snapshot(), "OnConnection", func(l interfaces.ConnectionListener) {
		l.OnConnection(conn)
	})
}

func (a connListener) OnDisconnect(reason types.CloseConnectionReason, conn interfaces.Connection) {
	a.n.unregister(conn)
	each(a.n.connectionListeners.snapshot(), "OnDisconnect", func(l interfaces.ConnectionListener) {
		l.OnDisconnect(reason, conn)
	})
}

func (a connListener) OnMessage(env *envelope.Envelope, conn interfaces.Connection) {
	each(a.n.messageListeners.snapshot(), "OnMessage", func(l interfaces.MessageListener) {
		l.OnMessage(env, conn)
	})
}

func (a connListener) OnMessageSent(env *envelope.Envelope, conn interfaces.Connection) {
	each(a.n.messageListeners.snapshot(), "OnMessageSent", func(l interfaces.MessageListener) {
		l.OnMessageSent(env, conn)
	})
}

func (a connListener) OnPeerAddressSet(addr types.NodeAddress, conn interfaces.Connection) {
	a.n.onPeerAddressSet(addr, conn)
}

// ============================================================================
//                              启动回调
// ============================================================================

// setupListener 把传输层回调投递到事件循环
type setupListener struct {
	n *Node
}

func (s setupListener) post(fn func(l interfaces.SetupListener)) {
	s.n.loop.Execute(func() {
		each(s.n.setupListeners.snapshot(), "SetupListener", fn)
	})
}

func (s setupListener) OnTorNodeReady() {
	logger.Info("匿名网络守护进程就绪")
	s.post(func(l interfaces.SetupListener) { l.OnTorNodeReady() })
}

func (s setupListener) OnHiddenServicePublished() {
	addr, _ := s.n.NodeAddress()
	logger.Info("节点地址已发布", "addr", addr.String())
	s.post(func(l interfaces.SetupListener) { l.OnHiddenServicePublished() })
}

func (s setupListener) OnSetupFailed(err error) {
	logger.Error("传输层启动失败", "err", err)
	s.post(func(l interfaces.SetupListener) { l.OnSetupFailed(err) })
}

func (s setupListener) OnRequestCustomBridges() {
	logger.Warn("传输层启动失败，请求自定义网桥")
	s.post(func(l interfaces.SetupListener) { l.OnRequestCustomBridges() })
}
