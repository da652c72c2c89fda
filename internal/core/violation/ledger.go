// Package violation 实现连接级规则违例账本
//
// 每种违例单调计数，计数达到该类型的容忍度即视为升级，
// 调用方随后以对应的关闭原因关闭连接。
package violation

import (
	"maps"
	"sync"

	"github.com/dep2p/go-onionp2p/pkg/types"
)

// Ledger 规则违例账本
type Ledger struct {
	mu      sync.Mutex
	counts  map[types.RuleViolation]int
	last    types.RuleViolation
	hasLast bool
}

// NewLedger 创建账本
func NewLedger() *Ledger {
	return &Ledger{counts: make(map[types.RuleViolation]int)}
}

// Report 记录一次违例
//
// 返回新的计数以及是否达到容忍度。
func (l *Ledger) Report(kind types.RuleViolation) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[kind]++
	count := l.counts[kind]
	escalated := count >= kind.Tolerance()
	if escalated {
		l.last = kind
		l.hasLast = true
	}
	return count, escalated
}

// Count 返回指定类型的计数
func (l *Ledger) Count(kind types.RuleViolation) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[kind]
}

// Last 返回最近一次升级的违例类型
func (l *Ledger) Last() (types.RuleViolation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.hasLast
}

// Snapshot 返回计数副本
func (l *Ledger) Snapshot() map[types.RuleViolation]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.counts)
}
