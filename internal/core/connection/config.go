package connection

import (
	"fmt"
	"time"

	"github.com/dep2p/go-onionp2p/config"
	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/internal/core/throttle"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// DefaultMessageVersion 默认协议版本标签
const DefaultMessageVersion = "1"

// ============================================================================
//                              配置
// ============================================================================

// Config 连接配置
type Config struct {
	// MessageVersion 本地协议版本标签，与入站消息逐字节比较
	MessageVersion string

	// PermittedMessageSize 普通消息的大小上限（200 KB）
	PermittedMessageSize int

	// MaxPermittedMessageSize 允许超大尺寸消息的上限（10 MB），同时是帧读取上限
	MaxPermittedMessageSize int

	// PersistableHashSize 持久化载荷哈希的固定长度
	PersistableHashSize int

	// ReadTimeout 单帧读取超时
	ReadTimeout time.Duration

	// WriteTimeout 单帧写入超时
	WriteTimeout time.Duration

	// CloseDrain 写出 CloseConnection 后关闭套接字前的等待
	CloseDrain time.Duration

	// InputJoinTimeout 关闭时等待输入 goroutine 退出的上限
	InputJoinTimeout time.Duration

	// MandatoryCapabilities 对端至少要声明其中一个能力
	MandatoryCapabilities types.Capabilities

	// Throttle 入站限流与出站合并参数
	Throttle throttle.Config
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MessageVersion:          DefaultMessageVersion,
		PermittedMessageSize:    200 * 1024,
		MaxPermittedMessageSize: codec.MaxFrameSize,
		PersistableHashSize:     20,
		ReadTimeout:             180 * time.Second,
		WriteTimeout:            60 * time.Second,
		CloseDrain:              200 * time.Millisecond,
		InputJoinTimeout:        500 * time.Millisecond,
		MandatoryCapabilities:   types.DefaultMandatoryCapabilities(),
		Throttle:                throttle.DefaultConfig(),
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.PermittedMessageSize <= 0 || c.PermittedMessageSize > c.MaxPermittedMessageSize {
		return fmt.Errorf("%w: permitted message size %d must be in (0, %d]",
			ErrInvalidConfig, c.PermittedMessageSize, c.MaxPermittedMessageSize)
	}
	if c.MaxPermittedMessageSize > codec.MaxFrameSize {
		return fmt.Errorf("%w: max permitted message size %d exceeds frame limit %d",
			ErrInvalidConfig, c.MaxPermittedMessageSize, codec.MaxFrameSize)
	}
	if c.PersistableHashSize <= 0 {
		return fmt.Errorf("%w: persistable hash size must be positive", ErrInvalidConfig)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: read and write timeouts must be positive", ErrInvalidConfig)
	}
	if c.CloseDrain <= 0 {
		return fmt.Errorf("%w: close drain must be positive", ErrInvalidConfig)
	}
	if c.InputJoinTimeout <= 0 {
		return fmt.Errorf("%w: input join timeout must be positive", ErrInvalidConfig)
	}
	if err := c.Throttle.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建连接配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return DefaultConfig(), nil
	}
	c := cfg.Connection
	mandatory := make([]types.Capability, 0, len(c.MandatoryCapabilities))
	for _, name := range c.MandatoryCapabilities {
		tag, err := types.ParseCapability(name)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		mandatory = append(mandatory, tag)
	}
	return Config{
		MessageVersion:          c.MessageVersion,
		PermittedMessageSize:    c.PermittedMessageSize,
		MaxPermittedMessageSize: c.MaxPermittedMessageSize,
		PersistableHashSize:     c.PersistableHashSize,
		ReadTimeout:             c.ReadTimeout.Duration(),
		WriteTimeout:            c.WriteTimeout.Duration(),
		CloseDrain:              c.CloseDrain.Duration(),
		InputJoinTimeout:        c.InputJoinTimeout.Duration(),
		MandatoryCapabilities:   types.NewCapabilities(mandatory...),
		Throttle:                throttle.ConfigFromUnified(cfg),
	}, nil
}
