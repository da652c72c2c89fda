package types

import "fmt"

// ============================================================================
//                              RuleViolation - 规则违例类型
// ============================================================================

// RuleViolation 规则违例类型
//
// 每种违例带有一个容忍度；单个计数达到容忍度即强制关闭连接，
// 关闭原因由 CloseReason 给出。容忍度为 0 表示首次即关闭。
type RuleViolation int

const (
	// ViolationMaxMsgSizeExceeded 消息超过大小上限（或持久化载荷哈希长度错误）
	ViolationMaxMsgSizeExceeded RuleViolation = iota
	// ViolationThrottleLimitExceeded 入站速率超限
	ViolationThrottleLimitExceeded
	// ViolationWrongNetworkID 协议版本不匹配
	ViolationWrongNetworkID
	// ViolationInvalidClass 未知消息类型
	ViolationInvalidClass
	// ViolationInvalidDataType 消息数据无效
	ViolationInvalidDataType
	// ViolationPeerBanned 对端被封禁
	ViolationPeerBanned
)

type ruleViolationInfo struct {
	name      string
	tolerance int
	reason    CloseConnectionReason
}

var ruleViolations = map[RuleViolation]ruleViolationInfo{
	ViolationMaxMsgSizeExceeded:    {"MAX_MSG_SIZE_EXCEEDED", 2, CloseMaxMsgSizeExceeded},
	ViolationThrottleLimitExceeded: {"THROTTLE_LIMIT_EXCEEDED", 4, CloseRuleViolation},
	ViolationWrongNetworkID:        {"WRONG_NETWORK_ID", 2, CloseWrongNetworkID},
	ViolationInvalidClass:          {"INVALID_CLASS", 0, CloseInvalidClassReceived},
	ViolationInvalidDataType:       {"INVALID_DATA_TYPE", 2, CloseInvalidDataType},
	ViolationPeerBanned:            {"PEER_BANNED", 0, ClosePeerBanned},
}

// AllRuleViolations 返回全部违例类型
func AllRuleViolations() []RuleViolation {
	return []RuleViolation{
		ViolationMaxMsgSizeExceeded,
		ViolationThrottleLimitExceeded,
		ViolationWrongNetworkID,
		ViolationInvalidClass,
		ViolationInvalidDataType,
		ViolationPeerBanned,
	}
}

// String 返回违例名称
func (v RuleViolation) String() string {
	if info, ok := ruleViolations[v]; ok {
		return info.name
	}
	return fmt.Sprintf("RULE_VIOLATION_%d", int(v))
}

// Tolerance 返回容忍度
func (v RuleViolation) Tolerance() int {
	return ruleViolations[v].tolerance
}

// CloseReason 返回达到容忍度时使用的关闭原因
func (v RuleViolation) CloseReason() CloseConnectionReason {
	if info, ok := ruleViolations[v]; ok {
		return info.reason
	}
	return CloseRuleViolation
}
