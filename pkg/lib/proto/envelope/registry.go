package envelope

import (
	"fmt"
	"sync"
)

// Registry 已知应用载荷类型表
//
// 收到未登记类型的载荷时，连接层按 INVALID_CLASS 处理。
// 零值 Registry 是开放的，接受所有类型。
type Registry struct {
	mu     sync.RWMutex
	strict bool
	names  map[string]struct{}
}

// NewRegistry 创建只接受指定类型的 Registry
func NewRegistry(names ...string) *Registry {
	r := &Registry{strict: true, names: make(map[string]struct{}, len(names))}
	r.Register(names...)
	return r
}

// Register 登记载荷类型
func (r *Registry) Register(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names == nil {
		r.names = make(map[string]struct{}, len(names))
	}
	for _, n := range names {
		r.names[n] = struct{}{}
	}
}

// Known 类型是否已登记
func (r *Registry) Known(name string) bool {
	if r == nil {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.strict {
		return true
	}
	_, ok := r.names[name]
	return ok
}

// Check 校验 Envelope（含 Bundle 成员）中的全部载荷类型
func (r *Registry) Check(e *Envelope) error {
	switch m := e.Message.(type) {
	case nil:
		return ErrNoMessage
	case *Bundle:
		for _, inner := range m.Envelopes {
			if err := r.Check(inner); err != nil {
				return err
			}
		}
	case *Payload:
		if !r.Known(m.Type) {
			return fmt.Errorf("%w: %q", ErrUnknownPayloadType, m.Type)
		}
	}
	return nil
}
