package types

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接（对端地址初始为空）
	DirInbound
	// DirOutbound 出站连接（对端地址在拨号时确定）
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              ConnectionState - 连接状态
// ============================================================================

// ConnectionState 连接状态
//
// 状态只会单向推进：handshaking → running → shutting-down → closed。
type ConnectionState int32

const (
	// StateHandshaking 套接字已建立，输入循环尚未启动
	StateHandshaking ConnectionState = iota
	// StateRunning 正常收发
	StateRunning
	// StateShuttingDown 关闭中
	StateShuttingDown
	// StateClosed 已关闭
	StateClosed
)

// String 返回状态的字符串表示
func (s ConnectionState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
