package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrNullFrame 帧边界处读到 EOF
	ErrNullFrame = errors.New("codec: null frame")

	// ErrCorrupted 长度前缀损坏
	ErrCorrupted = errors.New("codec: corrupted length prefix")

	// ErrFrameTooLarge 声明长度超过上限
	ErrFrameTooLarge = errors.New("codec: frame too large")
)

// FrameTooLargeError 携带声明长度的超限错误
type FrameTooLargeError struct {
	Declared uint64
	Limit    int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("codec: declared frame length %d exceeds limit %d", e.Declared, e.Limit)
}

// Is 支持 errors.Is(err, ErrFrameTooLarge)
func (e *FrameTooLargeError) Is(target error) bool {
	return target == ErrFrameTooLarge
}
