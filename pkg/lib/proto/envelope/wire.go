package envelope

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-onionp2p/pkg/types"
)

// 字段编号
//
//	Envelope              { 1 message_version; oneof 2 bundle, 3 close_connection, 4 ping,
//	                        5 pong, 6 supported_capabilities, 7 sender_node_address, 8 payload }
//	Bundle                { 1 repeated Envelope envelopes }
//	CloseConnection       { 1 reason }
//	Ping                  { 1 nonce, 2 last_round_trip_time }
//	Pong                  { 1 request_nonce }
//	SupportedCapabilities { 1 repeated int32 (packed), 2 NodeAddress sender }
//	SenderNodeAddress     { 1 NodeAddress }
//	NodeAddress           { 1 host, 2 port }
//	Payload               { 1 type, 2 data, 3 repeated int32 required_capabilities,
//	                        4 extended_size, 5 NodeAddress sender,
//	                        6 repeated int32 supported_capabilities, 7 hash }
const (
	fieldMessageVersion        protowire.Number = 1
	fieldBundle                protowire.Number = 2
	fieldCloseConnection       protowire.Number = 3
	fieldPing                  protowire.Number = 4
	fieldPong                  protowire.Number = 5
	fieldSupportedCapabilities protowire.Number = 6
	fieldSenderNodeAddress     protowire.Number = 7
	fieldPayload               protowire.Number = 8
)

// maxDepth Bundle 最大嵌套层数
const maxDepth = 8

// ============================================================================
//                              编码
// ============================================================================

// Marshal 序列化 Envelope
func (e *Envelope) Marshal() ([]byte, error) {
	if e == nil || e.Message == nil {
		return nil, ErrNoMessage
	}
	return appendEnvelope(nil, e)
}

// Size 返回序列化后的字节数（不含帧长度前缀）
func (e *Envelope) Size() int {
	b, err := e.Marshal()
	if err != nil {
		return 0
	}
	return len(b)
}

func appendEnvelope(b []byte, e *Envelope) ([]byte, error) {
	if e.MessageVersion != "" {
		b = protowire.AppendTag(b, fieldMessageVersion, protowire.BytesType)
		b = protowire.AppendString(b, e.MessageVersion)
	}

	var (
		num  protowire.Number
		body []byte
	)
	switch m := e.Message.(type) {
	case *Bundle:
		num = fieldBundle
		for _, inner := range m.Envelopes {
			if inner == nil || inner.Message == nil {
				return nil, ErrNoMessage
			}
			sub, err := appendEnvelope(nil, inner)
			if err != nil {
				return nil, err
			}
			body = appendBytesField(body, 1, sub)
		}
	case *CloseConnection:
		num = fieldCloseConnection
		body = appendStringField(body, 1, m.Reason)
	case *Ping:
		num = fieldPing
		body = appendInt32Field(body, 1, m.Nonce)
		body = appendInt32Field(body, 2, m.LastRoundTripTime)
	case *Pong:
		num = fieldPong
		body = appendInt32Field(body, 1, m.RequestNonce)
	case *SupportedCapabilities:
		num = fieldSupportedCapabilities
		body = appendPackedCapabilities(body, 1, m.Capabilities)
		if m.SenderAddress != nil {
			body = appendBytesField(body, 2, appendNodeAddress(nil, *m.SenderAddress))
		}
	case *SenderNodeAddress:
		num = fieldSenderNodeAddress
		body = appendBytesField(body, 1, appendNodeAddress(nil, m.Address))
	case *Payload:
		num = fieldPayload
		body = appendStringField(body, 1, m.Type)
		if len(m.Data) > 0 {
			body = appendBytesField(body, 2, m.Data)
		}
		body = appendPackedCapabilities(body, 3, m.RequiredCapabilities)
		if m.ExtendedSize {
			body = protowire.AppendTag(body, 4, protowire.VarintType)
			body = protowire.AppendVarint(body, 1)
		}
		if m.SenderAddress != nil {
			body = appendBytesField(body, 5, appendNodeAddress(nil, *m.SenderAddress))
		}
		body = appendPackedCapabilities(body, 6, m.SupportedCapabilities)
		if len(m.Hash) > 0 {
			body = appendBytesField(body, 7, m.Hash)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrNoMessage, m)
	}

	// oneof 成员即使为空也要写出，接收方据此识别子类型
	return appendBytesField(b, num, body), nil
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendInt32Field(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendPackedCapabilities(b []byte, num protowire.Number, caps types.Capabilities) []byte {
	if caps.IsEmpty() {
		return b
	}
	var packed []byte
	for _, v := range caps.Ints() {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	return appendBytesField(b, num, packed)
}

func appendNodeAddress(b []byte, addr types.NodeAddress) []byte {
	b = appendStringField(b, 1, addr.Host)
	return appendInt32Field(b, 2, int32(addr.Port))
}

// ============================================================================
//                              解码
// ============================================================================

// Unmarshal 反序列化 Envelope
//
// 未知字段被跳过。没有携带任何已知子类型时返回 ErrNoMessage，
// 数据损坏时返回 ErrMalformed。
func Unmarshal(data []byte) (*Envelope, error) {
	return unmarshalEnvelope(data, 0)
}

func unmarshalEnvelope(data []byte, depth int) (*Envelope, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	e := &Envelope{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num < fieldMessageVersion || num > fieldPayload {
			return nil
		}
		if typ != protowire.BytesType {
			return malformed("envelope field %d: wire type %d", num, typ)
		}
		var err error
		switch num {
		case fieldMessageVersion:
			e.MessageVersion = string(v)
		case fieldBundle:
			e.Message, err = unmarshalBundle(v, depth)
		case fieldCloseConnection:
			e.Message, err = unmarshalCloseConnection(v)
		case fieldPing:
			e.Message, err = unmarshalPing(v)
		case fieldPong:
			e.Message, err = unmarshalPong(v)
		case fieldSupportedCapabilities:
			e.Message, err = unmarshalSupportedCapabilities(v)
		case fieldSenderNodeAddress:
			e.Message, err = unmarshalSenderNodeAddress(v)
		case fieldPayload:
			e.Message, err = unmarshalPayload(v)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if e.Message == nil {
		return nil, ErrNoMessage
	}
	return e, nil
}

func unmarshalBundle(data []byte, depth int) (*Bundle, error) {
	b := &Bundle{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != 1 {
			return nil
		}
		if typ != protowire.BytesType {
			return malformed("bundle envelopes: wire type %d", typ)
		}
		inner, err := unmarshalEnvelope(v, depth+1)
		if err != nil {
			return err
		}
		b.Envelopes = append(b.Envelopes, inner)
		return nil
	})
	return b, err
}

func unmarshalCloseConnection(data []byte) (*CloseConnection, error) {
	c := &CloseConnection{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num == 1 {
			if typ != protowire.BytesType {
				return malformed("close_connection reason: wire type %d", typ)
			}
			c.Reason = string(v)
		}
		return nil
	})
	return c, err
}

func unmarshalPing(data []byte) (*Ping, error) {
	p := &Ping{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		switch num {
		case 1:
			if typ != protowire.VarintType {
				return malformed("ping nonce: wire type %d", typ)
			}
			p.Nonce = int32(x)
		case 2:
			if typ != protowire.VarintType {
				return malformed("ping last_round_trip_time: wire type %d", typ)
			}
			p.LastRoundTripTime = int32(x)
		}
		return nil
	})
	return p, err
}

func unmarshalPong(data []byte) (*Pong, error) {
	p := &Pong{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		if num == 1 {
			if typ != protowire.VarintType {
				return malformed("pong request_nonce: wire type %d", typ)
			}
			p.RequestNonce = int32(x)
		}
		return nil
	})
	return p, err
}

func unmarshalSupportedCapabilities(data []byte) (*SupportedCapabilities, error) {
	s := &SupportedCapabilities{}
	var ints []int32
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch num {
		case 1:
			var err error
			ints, err = appendRepeatedInt32(ints, typ, v, x)
			return err
		case 2:
			if typ != protowire.BytesType {
				return malformed("supported_capabilities sender: wire type %d", typ)
			}
			addr, err := unmarshalNodeAddress(v)
			if err != nil {
				return err
			}
			s.SenderAddress = &addr
		}
		return nil
	})
	s.Capabilities = types.CapabilitiesFromInts(ints)
	return s, err
}

func unmarshalSenderNodeAddress(data []byte) (*SenderNodeAddress, error) {
	s := &SenderNodeAddress{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != 1 {
			return nil
		}
		if typ != protowire.BytesType {
			return malformed("sender_node_address: wire type %d", typ)
		}
		addr, err := unmarshalNodeAddress(v)
		s.Address = addr
		return err
	})
	return s, err
}

func unmarshalPayload(data []byte) (*Payload, error) {
	p := &Payload{}
	var required, supported []int32
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		var err error
		switch num {
		case 1, 2, 5, 7:
			if typ != protowire.BytesType {
				return malformed("payload field %d: wire type %d", num, typ)
			}
		case 4:
			if typ != protowire.VarintType {
				return malformed("payload extended_size: wire type %d", typ)
			}
		}
		switch num {
		case 1:
			p.Type = string(v)
		case 2:
			p.Data = append([]byte(nil), v...)
		case 3:
			required, err = appendRepeatedInt32(required, typ, v, x)
		case 4:
			p.ExtendedSize = x != 0
		case 5:
			var addr types.NodeAddress
			addr, err = unmarshalNodeAddress(v)
			p.SenderAddress = &addr
		case 6:
			supported, err = appendRepeatedInt32(supported, typ, v, x)
		case 7:
			p.Hash = append([]byte(nil), v...)
		}
		return err
	})
	p.RequiredCapabilities = types.CapabilitiesFromInts(required)
	p.SupportedCapabilities = types.CapabilitiesFromInts(supported)
	return p, err
}

func unmarshalNodeAddress(data []byte) (types.NodeAddress, error) {
	var addr types.NodeAddress
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch num {
		case 1:
			if typ != protowire.BytesType {
				return malformed("node_address host: wire type %d", typ)
			}
			addr.Host = string(v)
		case 2:
			if typ != protowire.VarintType {
				return malformed("node_address port: wire type %d", typ)
			}
			addr.Port = int(int32(x))
		}
		return nil
	})
	return addr, err
}

// appendRepeatedInt32 同时接受 packed 与非 packed 编码
func appendRepeatedInt32(dst []int32, typ protowire.Type, v []byte, x uint64) ([]int32, error) {
	switch typ {
	case protowire.VarintType:
		return append(dst, int32(x)), nil
	case protowire.BytesType:
		for len(v) > 0 {
			n, l := protowire.ConsumeVarint(v)
			if l < 0 {
				return dst, malformed("packed int32: %v", protowire.ParseError(l))
			}
			dst = append(dst, int32(n))
			v = v[l:]
		}
		return dst, nil
	default:
		return dst, malformed("repeated int32: wire type %d", typ)
	}
}

// walk 逐字段遍历消息
//
// BytesType 字段通过 v 传入，VarintType 字段通过 x 传入，其余类型直接跳过。
func walk(data []byte, visit func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return malformed("tag: %v", protowire.ParseError(n))
		}
		data = data[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(data)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		if n < 0 {
			return malformed("field %d: %v", num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := visit(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}
