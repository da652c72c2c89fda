package types

import (
	"maps"
	"time"
)

// ============================================================================
//                              StatisticSnapshot - 连接统计快照
// ============================================================================

// StatisticSnapshot 连接统计的不可变视图
type StatisticSnapshot struct {
	// CreatedAt 连接创建时间
	CreatedAt time.Time

	// LastActivity 最后一次非心跳消息收发时间
	LastActivity time.Time

	// SentBytes 发送字节数（含帧长度前缀）
	SentBytes uint64

	// ReceivedBytes 接收字节数（含帧长度前缀）
	ReceivedBytes uint64

	// SentMessages 按消息类型统计的发送数
	SentMessages map[string]int

	// ReceivedMessages 按消息类型统计的接收数
	ReceivedMessages map[string]int

	// RoundTripTime 最近一次心跳往返时间
	RoundTripTime time.Duration
}

// TotalSentMessages 发送消息总数
func (s StatisticSnapshot) TotalSentMessages() int {
	return sum(s.SentMessages)
}

// TotalReceivedMessages 接收消息总数
func (s StatisticSnapshot) TotalReceivedMessages() int {
	return sum(s.ReceivedMessages)
}

// Clone 深拷贝
func (s StatisticSnapshot) Clone() StatisticSnapshot {
	s.SentMessages = maps.Clone(s.SentMessages)
	s.ReceivedMessages = maps.Clone(s.ReceivedMessages)
	return s
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
