package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
)

// MaxFrameSize 帧的绝对上限（10 MB）
const MaxFrameSize = 10 * 1024 * 1024

// ============================================================================
//                              写入
// ============================================================================

// Encode 把 Envelope 编码为一个完整帧
//
// 返回的帧可以用一次 Write 写出，保证并发写入者之间不会交错。
func Encode(env *envelope.Envelope) ([]byte, error) {
	data, err := env.Marshal()
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", env.TypeName(), err)
	}
	frame := make([]byte, 0, varint.UvarintSize(uint64(len(data)))+len(data))
	frame = append(frame, varint.ToUvarint(uint64(len(data)))...)
	return append(frame, data...), nil
}

// WriteFrame 写入一帧，返回写出的字节数（含长度前缀）
func WriteFrame(w io.Writer, env *envelope.Envelope) (int, error) {
	frame, err := Encode(env)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(frame)
	if err != nil {
		return n, err
	}
	return n, nil
}

// FrameSize 返回 Envelope 编码后的帧长度（含长度前缀）
func FrameSize(env *envelope.Envelope) int {
	size := env.Size()
	return varint.UvarintSize(uint64(size)) + size
}

// ============================================================================
//                              读取
// ============================================================================

// Reader 帧读取器
//
// 非并发安全，每个连接只有输入 goroutine 使用。
type Reader struct {
	br    *bufio.Reader
	limit int
}

// NewReader 创建帧读取器
//
// limit <= 0 时使用 MaxFrameSize。
func NewReader(r io.Reader, limit int) *Reader {
	if limit <= 0 || limit > MaxFrameSize {
		limit = MaxFrameSize
	}
	return &Reader{br: bufio.NewReader(r), limit: limit}
}

// ReadFrame 读取一帧的原始字节
//
// 返回帧数据与线上字节数（含长度前缀）。
func (r *Reader) ReadFrame() ([]byte, int, error) {
	length, err := varint.ReadUvarint(r.br)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, 0, ErrNullFrame
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, 0, io.ErrUnexpectedEOF
		case errors.Is(err, varint.ErrOverflow), errors.Is(err, varint.ErrNotMinimal), errors.Is(err, varint.ErrUnderflow):
			return nil, 0, fmt.Errorf("%w: %v", ErrCorrupted, err)
		default:
			return nil, 0, err
		}
	}

	if length > uint64(r.limit) {
		return nil, 0, &FrameTooLargeError{Declared: length, Limit: r.limit}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}
	return buf, varint.UvarintSize(length) + int(length), nil
}

// ReadEnvelope 读取并解码一帧
func (r *Reader) ReadEnvelope() (*envelope.Envelope, int, error) {
	data, n, err := r.ReadFrame()
	if err != nil {
		return nil, 0, err
	}
	env, err := envelope.Unmarshal(data)
	if err != nil {
		return nil, n, err
	}
	return env, n, nil
}
