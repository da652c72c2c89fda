package types

import (
	"fmt"
	"slices"
	"strings"
)

// ============================================================================
//                              Capability - 能力标签
// ============================================================================

// Capability 能力标签
//
// 数值即线上编码，必须与已部署节点保持一致，不得重排。
type Capability int32

const (
	CapTradeStatistics           Capability = 0
	CapTradeStatistics2          Capability = 1
	CapAccountAgeWitness         Capability = 2
	CapSeedNode                  Capability = 3
	CapDAOFullNode               Capability = 4
	CapProposal                  Capability = 5
	CapBlindVote                 Capability = 6
	CapAckMsg                    Capability = 7
	CapReceiveBSQBlock           Capability = 8
	CapDAOState                  Capability = 9
	CapBundleOfEnvelopes         Capability = 10
	CapSignedAccountAgeWitness   Capability = 11
	CapMediation                 Capability = 12
	CapRefundAgent               Capability = 13
	CapTradeStatisticsHashUpdate Capability = 14
	CapNoAddressPreFix           Capability = 15
	CapTradeStatistics3          Capability = 16
)

var capabilityNames = map[Capability]string{
	CapTradeStatistics:           "TRADE_STATISTICS",
	CapTradeStatistics2:          "TRADE_STATISTICS_2",
	CapAccountAgeWitness:         "ACCOUNT_AGE_WITNESS",
	CapSeedNode:                  "SEED_NODE",
	CapDAOFullNode:               "DAO_FULL_NODE",
	CapProposal:                  "PROPOSAL",
	CapBlindVote:                 "BLIND_VOTE",
	CapAckMsg:                    "ACK_MSG",
	CapReceiveBSQBlock:           "RECEIVE_BSQ_BLOCK",
	CapDAOState:                  "DAO_STATE",
	CapBundleOfEnvelopes:         "BUNDLE_OF_ENVELOPES",
	CapSignedAccountAgeWitness:   "SIGNED_ACCOUNT_AGE_WITNESS",
	CapMediation:                 "MEDIATION",
	CapRefundAgent:               "REFUND_AGENT",
	CapTradeStatisticsHashUpdate: "TRADE_STATISTICS_HASH_UPDATE",
	CapNoAddressPreFix:           "NO_ADDRESS_PRE_FIX",
	CapTradeStatistics3:          "TRADE_STATISTICS_3",
}

// String 返回能力名称，未知值返回数字形式
func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CAPABILITY_%d", int32(c))
}

// ParseCapability 按名称解析能力标签
func ParseCapability(name string) (Capability, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for c, n := range capabilityNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
}

// ============================================================================
//                              Capabilities - 能力集合
// ============================================================================

// Capabilities 不可变的有序能力集合
//
// 零值为空集合。所有操作都返回新值，可以在 goroutine 间自由共享。
type Capabilities struct {
	tags []Capability
}

// NewCapabilities 创建能力集合（自动排序去重）
func NewCapabilities(tags ...Capability) Capabilities {
	if len(tags) == 0 {
		return Capabilities{}
	}
	cp := slices.Clone(tags)
	slices.Sort(cp)
	return Capabilities{tags: slices.Compact(cp)}
}

// CapabilitiesFromInts 从线上整数列表构造能力集合
//
// 未知的整数标签原样保留，新版本节点可能声明本地不认识的能力。
func CapabilitiesFromInts(values []int32) Capabilities {
	tags := make([]Capability, 0, len(values))
	for _, v := range values {
		tags = append(tags, Capability(v))
	}
	return NewCapabilities(tags...)
}

// DefaultMandatoryCapabilities 默认的强制能力子集
func DefaultMandatoryCapabilities() Capabilities {
	return NewCapabilities(CapTradeStatistics3)
}

// Contains 是否包含指定能力
func (c Capabilities) Contains(tag Capability) bool {
	_, found := slices.BinarySearch(c.tags, tag)
	return found
}

// ContainsAll 是否包含 other 中的全部能力
func (c Capabilities) ContainsAll(other Capabilities) bool {
	for _, t := range other.tags {
		if !c.Contains(t) {
			return false
		}
	}
	return true
}

// Equal 两个集合是否相同
func (c Capabilities) Equal(other Capabilities) bool {
	return slices.Equal(c.tags, other.tags)
}

// HasMandatory 是否至少包含 mandatory 中的一个能力
//
// mandatory 为空时视为没有强制要求。
func (c Capabilities) HasMandatory(mandatory Capabilities) bool {
	if mandatory.IsEmpty() {
		return true
	}
	for _, t := range mandatory.tags {
		if c.Contains(t) {
			return true
		}
	}
	return false
}

// IsEmpty 是否为空集合
func (c Capabilities) IsEmpty() bool {
	return len(c.tags) == 0
}

// Len 集合大小
func (c Capabilities) Len() int {
	return len(c.tags)
}

// Tags 返回能力列表的副本
func (c Capabilities) Tags() []Capability {
	return slices.Clone(c.tags)
}

// Ints 返回线上编码
func (c Capabilities) Ints() []int32 {
	out := make([]int32, len(c.tags))
	for i, t := range c.tags {
		out[i] = int32(t)
	}
	return out
}

// Union 返回并集
func (c Capabilities) Union(other Capabilities) Capabilities {
	return NewCapabilities(append(c.Tags(), other.tags...)...)
}

// String 返回 "[A, B]" 形式
func (c Capabilities) String() string {
	names := make([]string, len(c.tags))
	for i, t := range c.tags {
		names[i] = t.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}
