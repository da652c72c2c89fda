package types

import "errors"

// ============================================================================
//                              地址相关错误
// ============================================================================

var (
	// ErrEmptyAddress 空地址
	ErrEmptyAddress = errors.New("empty node address")

	// ErrInvalidAddress 地址格式无效
	ErrInvalidAddress = errors.New("invalid node address")

	// ErrInvalidPort 端口超出 1-65535
	ErrInvalidPort = errors.New("invalid port: must be 1-65535")
)

// ============================================================================
//                              枚举解析错误
// ============================================================================

var (
	// ErrUnknownCloseReason 未知关闭原因
	ErrUnknownCloseReason = errors.New("unknown close connection reason")

	// ErrUnknownCapability 未知能力名称
	ErrUnknownCapability = errors.New("unknown capability")
)
