package onion

import "errors"

var (
	// ErrDaemonUnreachable 守护进程无法启动或无法连接，重试无意义
	ErrDaemonUnreachable = errors.New("onion: daemon unreachable")

	// ErrInvalidKey 私钥文件内容无效
	ErrInvalidKey = errors.New("onion: invalid hidden service key")

	// ErrNilFactory 未提供守护进程工厂
	ErrNilFactory = errors.New("onion: nil daemon factory")
)
