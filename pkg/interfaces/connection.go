package interfaces

import (
	"net"

	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// Connection 与单个对端之间的双向帧消息通道
type Connection interface {
	// UID 连接唯一标识
	UID() string

	// Direction 连接方向
	Direction() types.Direction

	// RemoteAddr 底层套接字的远端地址（洋葱网络下为本地代理地址）
	RemoteAddr() net.Addr

	// PeerAddress 对端自身声明或拨号时指定的节点地址
	PeerAddress() (types.NodeAddress, bool)

	// Capabilities 对端最近一次声明的能力集合
	Capabilities() types.Capabilities

	// State 当前状态
	State() types.ConnectionState

	// IsStopped 是否已停止收发
	IsStopped() bool

	// CloseReason 连接关闭原因（仅在关闭开始后有效）
	CloseReason() (types.CloseConnectionReason, bool)

	// Statistic 统计快照
	Statistic() types.StatisticSnapshot

	// RuleViolations 规则违例计数快照
	RuleViolations() map[types.RuleViolation]int

	// SendMessage 发送消息
	//
	// 连接已停止时静默丢弃；I/O 错误不会返回给调用方，
	// 而是驱动连接关闭并以 OnDisconnect 形式通知。
	SendMessage(env *envelope.Envelope)

	// ShutDown 以指定原因关闭连接，onComplete 在 OnDisconnect 之后于事件循环上调用
	ShutDown(reason types.CloseConnectionReason, onComplete func())

	// AddCapabilitiesListener 注册能力变化监听器
	//
	// 持有方负责在不再需要时调用返回句柄的 Remove。
	AddCapabilitiesListener(l CapabilitiesListener) ListenerHandle

	// Done 连接完全关闭后关闭
	Done() <-chan struct{}
}

// ListenerHandle 监听器注册句柄
type ListenerHandle interface {
	// Remove 注销监听器，可重复调用
	Remove()
}
