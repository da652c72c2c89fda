// Package statistic 实现单个连接的收发统计
//
// 输入 goroutine 与发送方都会写入，因此所有计数由互斥锁保护。
// 心跳消息不更新最后活跃时间，由调用方决定何时调用 UpdateLastActivity。
package statistic

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// Statistic 连接统计
type Statistic struct {
	clock clock.Clock

	mu            sync.Mutex
	createdAt     time.Time
	lastActivity  time.Time
	sentBytes     uint64
	receivedBytes uint64
	sent          map[string]int
	received      map[string]int
	roundTripTime time.Duration
}

// New 创建统计
func New(clk clock.Clock) *Statistic {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	return &Statistic{
		clock:        clk,
		createdAt:    now,
		lastActivity: now,
		sent:         make(map[string]int),
		received:     make(map[string]int),
	}
}

// ==================== 接收 ====================

// AddReceivedBytes 记录接收字节数
func (s *Statistic) AddReceivedBytes(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.receivedBytes += uint64(n)
	s.mu.Unlock()
}

// AddReceivedMessage 记录接收到的消息
func (s *Statistic) AddReceivedMessage(env *envelope.Envelope) {
	s.mu.Lock()
	s.received[env.TypeName()]++
	s.mu.Unlock()
}

// ==================== 发送 ====================

// AddSentBytes 记录发送字节数
func (s *Statistic) AddSentBytes(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.sentBytes += uint64(n)
	s.mu.Unlock()
}

// AddSentMessage 记录发送的消息
func (s *Statistic) AddSentMessage(env *envelope.Envelope) {
	s.mu.Lock()
	s.sent[env.TypeName()]++
	s.mu.Unlock()
}

// ==================== 活跃度 ====================

// UpdateLastActivity 更新最后活跃时间
func (s *Statistic) UpdateLastActivity() {
	now := s.clock.Now()
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity 返回最后活跃时间
func (s *Statistic) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SetRoundTripTime 记录心跳往返时间
func (s *Statistic) SetRoundTripTime(rtt time.Duration) {
	s.mu.Lock()
	s.roundTripTime = rtt
	s.mu.Unlock()
}

// RoundTripTime 返回最近一次心跳往返时间
func (s *Statistic) RoundTripTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundTripTime
}

// Snapshot 返回不可变快照
func (s *Statistic) Snapshot() types.StatisticSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := types.StatisticSnapshot{
		CreatedAt:        s.createdAt,
		LastActivity:     s.lastActivity,
		SentBytes:        s.sentBytes,
		ReceivedBytes:    s.receivedBytes,
		SentMessages:     s.sent,
		ReceivedMessages: s.received,
		RoundTripTime:    s.roundTripTime,
	}
	return snap.Clone()
}
