package envelope

import "errors"

var (
	// ErrMalformed 数据无法按 wire format 解码
	ErrMalformed = errors.New("malformed envelope")

	// ErrNoMessage Envelope 未携带任何可识别的子类型
	ErrNoMessage = errors.New("envelope carries no known message")

	// ErrUnknownPayloadType 载荷类型未登记
	ErrUnknownPayloadType = errors.New("unknown payload type")

	// ErrTooDeep Bundle 嵌套过深
	ErrTooDeep = errors.New("bundle nesting too deep")
)
