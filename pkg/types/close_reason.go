package types

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              CloseConnectionReason - 关闭原因
// ============================================================================

// CloseConnectionReason 连接关闭原因
type CloseConnectionReason int

const (
	// CloseSocketClosed 套接字已在本地关闭
	CloseSocketClosed CloseConnectionReason = iota
	// CloseReset 对端重置连接
	CloseReset
	// CloseSocketTimeout 读超时
	CloseSocketTimeout
	// CloseTerminated 帧读取到一半时遇到 EOF
	CloseTerminated
	// CloseCorruptedData 数据损坏
	CloseCorruptedData
	// CloseUnknownException 未归类的错误
	CloseUnknownException
	// CloseNoProtoEnv 帧边界处读到空帧
	CloseNoProtoEnv
	// CloseRequestedByPeer 对端请求关闭
	CloseRequestedByPeer

	// ClosePeerBanned 对端被封禁
	ClosePeerBanned
	// CloseRuleViolation 违反协议规则
	CloseRuleViolation
	// CloseInvalidClassReceived 收到未知的消息类型
	CloseInvalidClassReceived
	// CloseMandatoryCapabilitiesNotSupported 对端缺少强制能力
	CloseMandatoryCapabilitiesNotSupported
	// CloseAppShutDown 应用关闭
	CloseAppShutDown
	// CloseMaxMsgSizeExceeded 消息超过大小上限
	CloseMaxMsgSizeExceeded
	// CloseWrongNetworkID 协议版本不匹配
	CloseWrongNetworkID
	// CloseInvalidDataType 消息数据无效
	CloseInvalidDataType
	// CloseDuplicatePeerConnection 同一对端存在重复连接
	CloseDuplicatePeerConnection
	// CloseTooManyConnectionsOpen 连接数达到上限
	CloseTooManyConnectionsOpen
	// CloseUnknownPeerAddress 对端地址未知
	CloseUnknownPeerAddress
)

type closeReasonInfo struct {
	name             string
	sendCloseMessage bool
}

var closeReasons = map[CloseConnectionReason]closeReasonInfo{
	CloseSocketClosed:                      {"SOCKET_CLOSED", false},
	CloseReset:                             {"RESET", false},
	CloseSocketTimeout:                     {"SOCKET_TIMEOUT", false},
	CloseTerminated:                        {"TERMINATED", false},
	CloseCorruptedData:                     {"CORRUPTED_DATA", false},
	CloseUnknownException:                  {"UNKNOWN_EXCEPTION", false},
	CloseNoProtoEnv:                        {"NO_PROTO_ENV", false},
	CloseRequestedByPeer:                   {"CLOSE_REQUESTED_BY_PEER", false},
	ClosePeerBanned:                        {"PEER_BANNED", true},
	CloseRuleViolation:                     {"RULE_VIOLATION", true},
	CloseInvalidClassReceived:              {"INVALID_CLASS_RECEIVED", true},
	CloseMandatoryCapabilitiesNotSupported: {"MANDATORY_CAPABILITIES_NOT_SUPPORTED", true},
	CloseAppShutDown:                       {"APP_SHUT_DOWN", true},
	CloseMaxMsgSizeExceeded:                {"MAX_MSG_SIZE_EXCEEDED", true},
	CloseWrongNetworkID:                    {"WRONG_NETWORK_ID", true},
	CloseInvalidDataType:                   {"INVALID_DATA_TYPE", true},
	CloseDuplicatePeerConnection:           {"DUPLICATE_PEER_CONNECTION", true},
	CloseTooManyConnectionsOpen:            {"TOO_MANY_CONNECTIONS_OPEN", true},
	CloseUnknownPeerAddress:                {"UNKNOWN_PEER_ADDRESS", false},
}

// String 返回原因名称（与线上 CloseConnection.reason 一致）
func (r CloseConnectionReason) String() string {
	if info, ok := closeReasons[r]; ok {
		return info.name
	}
	return fmt.Sprintf("CLOSE_REASON_%d", int(r))
}

// SendCloseMessage 关闭前是否需要先向对端发送 CloseConnection 消息
func (r CloseConnectionReason) SendCloseMessage() bool {
	return closeReasons[r].sendCloseMessage
}

// IsIntended 是否为本端或对端主动发起的关闭（非 I/O 故障）
func (r CloseConnectionReason) IsIntended() bool {
	switch r {
	case CloseAppShutDown, CloseRequestedByPeer, CloseDuplicatePeerConnection:
		return true
	default:
		return false
	}
}

// ParseCloseConnectionReason 按名称解析关闭原因
func ParseCloseConnectionReason(name string) (CloseConnectionReason, error) {
	name = strings.TrimSpace(name)
	for r, info := range closeReasons {
		if info.name == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCloseReason, name)
}
