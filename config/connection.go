package config

import (
	"fmt"
	"time"
)

// maxFrameSize 帧长度上限，与线上编解码保持一致
const maxFrameSize = 10 * 1024 * 1024

// ConnectionConfig 连接配置
type ConnectionConfig struct {
	// MessageVersion 网络协议版本，不一致的消息视为 WRONG_NETWORK_ID
	MessageVersion string `json:"message_version"`

	// PermittedMessageSize 普通消息大小上限（字节）
	PermittedMessageSize int `json:"permitted_message_size"`

	// MaxPermittedMessageSize 允许扩展大小的消息上限（字节）
	MaxPermittedMessageSize int `json:"max_permitted_message_size"`

	// PersistableHashSize 持久化载荷哈希长度
	PersistableHashSize int `json:"persistable_hash_size"`

	// ReadTimeout 读超时
	ReadTimeout Duration `json:"read_timeout"`

	// WriteTimeout 写超时
	WriteTimeout Duration `json:"write_timeout"`

	// CloseDrain 发送 CloseConnection 后等待对端读取的时间
	CloseDrain Duration `json:"close_drain"`

	// InputJoinTimeout 关闭时等待输入 goroutine 退出的上限
	InputJoinTimeout Duration `json:"input_join_timeout"`

	// MandatoryCapabilities 对端必须声明其中之一的能力名称
	MandatoryCapabilities []string `json:"mandatory_capabilities,omitempty"`
}

// DefaultConnectionConfig 返回默认连接配置
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MessageVersion:          "1",
		PermittedMessageSize:    200 * 1024,
		MaxPermittedMessageSize: maxFrameSize,
		PersistableHashSize:     20,
		ReadTimeout:             Duration(180 * time.Second),
		WriteTimeout:            Duration(60 * time.Second),
		CloseDrain:              Duration(200 * time.Millisecond),
		InputJoinTimeout:        Duration(500 * time.Millisecond),
		MandatoryCapabilities:   []string{"TRADE_STATISTICS_3"},
	}
}

// Validate 验证连接配置
func (c ConnectionConfig) Validate() error {
	if c.MessageVersion == "" {
		return fmt.Errorf("%w: message version is required", ErrInvalidConnection)
	}
	if c.PermittedMessageSize <= 0 || c.PermittedMessageSize > c.MaxPermittedMessageSize {
		return fmt.Errorf("%w: permitted message size must be in (0, max permitted]", ErrInvalidConnection)
	}
	if c.MaxPermittedMessageSize > maxFrameSize {
		return fmt.Errorf("%w: max permitted message size exceeds %d", ErrInvalidConnection, maxFrameSize)
	}
	if c.PersistableHashSize <= 0 {
		return fmt.Errorf("%w: persistable hash size must be positive", ErrInvalidConnection)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: read and write timeouts must be positive", ErrInvalidConnection)
	}
	if c.CloseDrain <= 0 || c.InputJoinTimeout <= 0 {
		return fmt.Errorf("%w: close timings must be positive", ErrInvalidConnection)
	}
	return nil
}
