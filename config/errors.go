package config

import "errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("config is nil")

	// ErrInvalidNetwork 网络配置无效
	ErrInvalidNetwork = errors.New("invalid network config")

	// ErrInvalidConnection 连接配置无效
	ErrInvalidConnection = errors.New("invalid connection config")

	// ErrInvalidThrottle 限流配置无效
	ErrInvalidThrottle = errors.New("invalid throttle config")

	// ErrInvalidKeepAlive 心跳配置无效
	ErrInvalidKeepAlive = errors.New("invalid keep-alive config")

	// ErrInvalidEventLoop 事件循环配置无效
	ErrInvalidEventLoop = errors.New("invalid event loop config")
)
