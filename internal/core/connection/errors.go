package connection

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var (
	// ErrNilConn 未提供套接字
	ErrNilConn = errors.New("connection: nil net.Conn")

	// ErrNilLoop 未提供事件循环
	ErrNilLoop = errors.New("connection: nil event loop")

	// ErrNilListener 未提供监听器
	ErrNilListener = errors.New("connection: nil listener")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("connection: invalid config")

	errWriteBroken = errors.New("connection: previous frame partially written")
)

// classifyError 把输入或输出错误映射为关闭原因
func classifyError(err error) types.CloseConnectionReason {
	switch {
	case errors.Is(err, codec.ErrNullFrame):
		return types.CloseNoProtoEnv
	case errors.Is(err, io.ErrUnexpectedEOF):
		return types.CloseTerminated
	case errors.Is(err, codec.ErrCorrupted):
		return types.CloseCorruptedData
	case errors.Is(err, net.ErrClosed):
		return types.CloseSocketClosed
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNABORTED):
		return types.CloseReset
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return types.CloseSocketTimeout
	}
	return types.CloseUnknownException
}

// decodeViolation 把解码失败映射为违例类型
//
// 空帧与不带已知子类型的 Envelope 按 INVALID_DATA_TYPE 处理，
// 只有未注册的载荷类型是 INVALID_CLASS。
func decodeViolation(err error) types.RuleViolation {
	if errors.Is(err, envelope.ErrUnknownPayloadType) {
		return types.ViolationInvalidClass
	}
	return types.ViolationInvalidDataType
}
