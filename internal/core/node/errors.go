package node

import "errors"

var (
	// ErrClosed 节点已关闭
	ErrClosed = errors.New("node closed")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNilTransport 未提供传输层
	ErrNilTransport = errors.New("nil transport")

	// ErrNilFactory 未提供连接工厂
	ErrNilFactory = errors.New("nil connection factory")

	// ErrNilLoop 未提供事件循环
	ErrNilLoop = errors.New("nil event loop")

	// ErrNilEnvelope 发送空消息
	ErrNilEnvelope = errors.New("nil envelope")

	// ErrSelfConnection 向本节点地址发送
	ErrSelfConnection = errors.New("cannot send to own address")

	// ErrShutdownTimeout 关闭未在限定时间内完成
	ErrShutdownTimeout = errors.New("node shutdown timed out")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid node config")
)
