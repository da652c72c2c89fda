// Package transporttest 提供传输层测试辅助
package transporttest

import (
	"sync"

	"github.com/dep2p/go-onionp2p/pkg/interfaces"
)

// 启动事件名称
const (
	EventReady     = "ready"
	EventPublished = "published"
	EventFailed    = "failed"
	EventBridges   = "bridges"
)

// SetupRecorder 按顺序记录启动事件
type SetupRecorder struct {
	mu     sync.Mutex
	events []string
	err    error
}

var _ interfaces.SetupListener = (*SetupRecorder)(nil)

func (r *SetupRecorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// OnTorNodeReady 实现 SetupListener
func (r *SetupRecorder) OnTorNodeReady() { r.add(EventReady) }

// OnHiddenServicePublished 实现 SetupListener
func (r *SetupRecorder) OnHiddenServicePublished() { r.add(EventPublished) }

// OnRequestCustomBridges 实现 SetupListener
func (r *SetupRecorder) OnRequestCustomBridges() { r.add(EventBridges) }

// OnSetupFailed 实现 SetupListener
func (r *SetupRecorder) OnSetupFailed(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.add(EventFailed)
}

// Events 返回事件副本
func (r *SetupRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Err 返回 OnSetupFailed 收到的错误
func (r *SetupRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Count 统计某类事件次数
func (r *SetupRecorder) Count(ev string) int {
	n := 0
	for _, e := range r.Events() {
		if e == ev {
			n++
		}
	}
	return n
}

// Has 是否出现过某类事件
func (r *SetupRecorder) Has(ev string) bool {
	return r.Count(ev) > 0
}
