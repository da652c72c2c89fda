// Package envelope 定义点对点连接层的线上消息（Envelope）
//
// Envelope 是一个带协议版本标签的标记联合（tagged union），
// 连接层只识别少量结构性子类型：
//
//   - Bundle：一帧承载的多个 Envelope
//   - CloseConnection：携带关闭原因
//   - Ping / Pong：心跳，不更新活跃时间
//   - SupportedCapabilities：声明发送方能力集合
//   - SenderNodeAddress：声明发送方自身地址
//   - Payload：不透明的应用载荷，可声明所需能力、超大尺寸许可、
//     发送方地址、发送方能力以及持久化哈希
//
// 线上编码使用 protobuf wire format（见 wire.go 中的字段编号）。
package envelope

import (
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              Envelope
// ============================================================================

// Envelope 一条线上消息
type Envelope struct {
	// MessageVersion 协议版本标签，按字节比较
	MessageVersion string

	// Message 具体子类型
	Message Message
}

// Message 标记联合的成员
type Message interface {
	// TypeName 消息类型名称，用于统计与日志
	TypeName() string

	isMessage()
}

// New 创建 Envelope
func New(version string, msg Message) *Envelope {
	return &Envelope{MessageVersion: version, Message: msg}
}

// ============================================================================
//                              子类型
// ============================================================================

// Bundle 一帧承载的多个 Envelope，按顺序投递
type Bundle struct {
	Envelopes []*Envelope
}

// CloseConnection 关闭通知
type CloseConnection struct {
	Reason string
}

// Ping 心跳请求
type Ping struct {
	Nonce             int32
	LastRoundTripTime int32
}

// Pong 心跳响应
type Pong struct {
	RequestNonce int32
}

// SupportedCapabilities 能力声明
type SupportedCapabilities struct {
	Capabilities types.Capabilities

	// SenderAddress 可选的发送方地址
	SenderAddress *types.NodeAddress
}

// SenderNodeAddress 发送方地址声明
type SenderNodeAddress struct {
	Address types.NodeAddress
}

// Payload 不透明的应用载荷
type Payload struct {
	// Type 应用消息类型名，必须在 Registry 中登记
	Type string

	// Data 应用数据，连接层不解析
	Data []byte

	// RequiredCapabilities 接收方必须支持的能力
	RequiredCapabilities types.Capabilities

	// ExtendedSize 允许超过普通帧大小上限
	ExtendedSize bool

	// SenderAddress 可选的发送方地址
	SenderAddress *types.NodeAddress

	// SupportedCapabilities 发送方能力（部分请求类消息携带）
	SupportedCapabilities types.Capabilities

	// Hash 持久化载荷的哈希，非空即视为持久化载荷
	Hash []byte
}

func (*Bundle) isMessage()                {}
func (*CloseConnection) isMessage()       {}
func (*Ping) isMessage()                  {}
func (*Pong) isMessage()                  {}
func (*SupportedCapabilities) isMessage() {}
func (*SenderNodeAddress) isMessage()     {}
func (*Payload) isMessage()               {}

func (*Bundle) TypeName() string                { return "Bundle" }
func (*CloseConnection) TypeName() string       { return "CloseConnection" }
func (*Ping) TypeName() string                  { return "Ping" }
func (*Pong) TypeName() string                  { return "Pong" }
func (*SupportedCapabilities) TypeName() string { return "SupportedCapabilities" }
func (*SenderNodeAddress) TypeName() string     { return "SenderNodeAddress" }

// TypeName 返回应用消息类型名
func (p *Payload) TypeName() string {
	if p.Type == "" {
		return "Payload"
	}
	return p.Type
}

// ============================================================================
//                              结构特征
// ============================================================================

// TypeName 返回消息类型名称
func (e *Envelope) TypeName() string {
	if e == nil || e.Message == nil {
		return "Empty"
	}
	return e.Message.TypeName()
}

// IsKeepAlive 是否为心跳消息
func (e *Envelope) IsKeepAlive() bool {
	switch e.Message.(type) {
	case *Ping, *Pong:
		return true
	default:
		return false
	}
}

// AsBundle 返回 Bundle 的成员
func (e *Envelope) AsBundle() ([]*Envelope, bool) {
	if b, ok := e.Message.(*Bundle); ok {
		return b.Envelopes, true
	}
	return nil, false
}

// CloseReason 返回 CloseConnection 的原因
func (e *Envelope) CloseReason() (string, bool) {
	if c, ok := e.Message.(*CloseConnection); ok {
		return c.Reason, true
	}
	return "", false
}

// RequiredCapabilities 返回接收方必须支持的能力
func (e *Envelope) RequiredCapabilities() (types.Capabilities, bool) {
	if p, ok := e.Message.(*Payload); ok && !p.RequiredCapabilities.IsEmpty() {
		return p.RequiredCapabilities, true
	}
	return types.Capabilities{}, false
}

// AllowsExtendedSize 是否允许使用超大帧上限
//
// Bundle 总是允许，否则合并后的帧会被普通上限拒收。
func (e *Envelope) AllowsExtendedSize() bool {
	switch m := e.Message.(type) {
	case *Bundle:
		return true
	case *Payload:
		return m.ExtendedSize
	default:
		return false
	}
}

// SenderAddress 返回声明的发送方地址
//
// 第二个返回值表示消息是否属于携带发送方地址的类型；
// 此时地址可能为空值，由调用方判定为无效数据。
func (e *Envelope) SenderAddress() (types.NodeAddress, bool) {
	switch m := e.Message.(type) {
	case *SenderNodeAddress:
		return m.Address, true
	case *SupportedCapabilities:
		if m.SenderAddress != nil {
			return *m.SenderAddress, true
		}
	case *Payload:
		if m.SenderAddress != nil {
			return *m.SenderAddress, true
		}
	}
	return types.NodeAddress{}, false
}

// AdvertisedCapabilities 返回发送方声明的能力集合
func (e *Envelope) AdvertisedCapabilities() (types.Capabilities, bool) {
	switch m := e.Message.(type) {
	case *SupportedCapabilities:
		return m.Capabilities, true
	case *Payload:
		if !m.SupportedCapabilities.IsEmpty() {
			return m.SupportedCapabilities, true
		}
	}
	return types.Capabilities{}, false
}

// PersistableHash 返回持久化载荷的哈希
func (e *Envelope) PersistableHash() ([]byte, bool) {
	if p, ok := e.Message.(*Payload); ok && len(p.Hash) > 0 {
		return p.Hash, true
	}
	return nil, false
}
