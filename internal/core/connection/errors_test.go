package connection

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.CloseConnectionReason
	}{
		{"null frame", codec.ErrNullFrame, types.CloseNoProtoEnv},
		{"mid-frame eof", io.ErrUnexpectedEOF, types.CloseTerminated},
		{"corrupted prefix", fmt.Errorf("%w: overflow", codec.ErrCorrupted), types.CloseCorruptedData},
		{"closed locally", &net.OpError{Op: "read", Err: net.ErrClosed}, types.CloseSocketClosed},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, types.CloseReset},
		{"broken pipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, types.CloseReset},
		{"timeout", &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, types.CloseSocketTimeout},
		{"unknown", errors.New("boom"), types.CloseUnknownException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestDecodeViolation(t *testing.T) {
	assert.Equal(t, types.ViolationInvalidDataType, decodeViolation(envelope.ErrNoMessage))
	assert.Equal(t, types.ViolationInvalidClass, decodeViolation(fmt.Errorf("%w: x", envelope.ErrUnknownPayloadType)))
	assert.Equal(t, types.ViolationInvalidDataType, decodeViolation(envelope.ErrMalformed))
	assert.Equal(t, types.ViolationInvalidDataType, decodeViolation(envelope.ErrTooDeep))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"permitted above max", func(c *Config) { c.PermittedMessageSize = c.MaxPermittedMessageSize + 1 }},
		{"max above frame limit", func(c *Config) { c.MaxPermittedMessageSize = codec.MaxFrameSize + 1 }},
		{"hash size", func(c *Config) { c.PersistableHashSize = 0 }},
		{"read timeout", func(c *Config) { c.ReadTimeout = 0 }},
		{"close drain", func(c *Config) { c.CloseDrain = 0 }},
		{"join timeout", func(c *Config) { c.InputJoinTimeout = -1 }},
		{"throttle", func(c *Config) { c.Throttle.PerSecond = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
