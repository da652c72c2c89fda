package interfaces

import (
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              消息监听
// ============================================================================

// MessageListener 消息监听器
type MessageListener interface {
	// OnMessage 收到消息（Bundle 已展开）
	OnMessage(env *envelope.Envelope, conn Connection)

	// OnMessageSent 消息已写到线上
	OnMessageSent(env *envelope.Envelope, conn Connection)
}

// MessageListenerFunc 只关心收到消息的适配器
type MessageListenerFunc func(env *envelope.Envelope, conn Connection)

// OnMessage 实现 MessageListener
func (f MessageListenerFunc) OnMessage(env *envelope.Envelope, conn Connection) { f(env, conn) }

// OnMessageSent 实现 MessageListener
func (f MessageListenerFunc) OnMessageSent(*envelope.Envelope, Connection) {}

// ============================================================================
//                              连接监听
// ============================================================================

// ConnectionListener 连接生命周期监听器
//
// 对同一连接，OnConnection 先于任何 OnMessage，OnDisconnect 恰好一次且在最后。
type ConnectionListener interface {
	OnConnection(conn Connection)
	OnDisconnect(reason types.CloseConnectionReason, conn Connection)
}

// PeerAddressListener 可选接口：入站连接得知对端地址时回调
type PeerAddressListener interface {
	OnPeerAddressSet(addr types.NodeAddress, conn Connection)
}

// CapabilitiesListener 能力变化监听器
type CapabilitiesListener interface {
	OnCapabilitiesChanged(caps types.Capabilities)
}

// CapabilitiesListenerFunc 函数适配器
type CapabilitiesListenerFunc func(caps types.Capabilities)

// OnCapabilitiesChanged 实现 CapabilitiesListener
func (f CapabilitiesListenerFunc) OnCapabilitiesChanged(caps types.Capabilities) { f(caps) }

// ============================================================================
//                              启动监听
// ============================================================================

// SetupListener 传输层启动监听器
type SetupListener interface {
	// OnTorNodeReady 匿名网络守护进程就绪
	OnTorNodeReady()

	// OnHiddenServicePublished 隐藏服务已发布，本节点地址可用
	OnHiddenServicePublished()

	// OnSetupFailed 启动最终失败
	OnSetupFailed(err error)

	// OnRequestCustomBridges 启动失败，提示用户配置自定义网桥
	OnRequestCustomBridges()
}
