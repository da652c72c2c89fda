package eventloop

import "errors"

var (
	// ErrClosed 事件循环已关闭
	ErrClosed = errors.New("eventloop: closed")

	// ErrDrainTimeout 关闭时未能在限定时间内排空队列
	ErrDrainTimeout = errors.New("eventloop: drain timeout")
)
