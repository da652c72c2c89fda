package transport

import "errors"

var (
	// ErrClosed 传输层已关闭
	ErrClosed = errors.New("transport: closed")

	// ErrNotReady 监听套接字尚未就绪
	ErrNotReady = errors.New("transport: not ready")

	// ErrAlreadyStarted 重复启动
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrNotOnion 对端不是洋葱地址
	ErrNotOnion = errors.New("transport: peer address is not an onion address")

	// ErrSetupFailed 启动最终失败
	ErrSetupFailed = errors.New("transport: setup failed")
)
