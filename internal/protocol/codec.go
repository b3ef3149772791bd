package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// Wire formats a codec can encode with.
const (
	WireFormatJSON    = "json"
	WireFormatMsgpack = "msgpack"
)

// Codec turns messages into data-channel payloads and back. Decode accepts
// both wire formats regardless of which one the codec encodes with.
type Codec struct {
	format string
}

func NewCodec(format string) (*Codec, error) {
	switch format {
	case "", WireFormatJSON:
		return &Codec{format: WireFormatJSON}, nil
	case WireFormatMsgpack:
		return &Codec{format: WireFormatMsgpack}, nil
	default:
		return nil, fmt.Errorf("unsupported wire format %q", format)
	}
}

func (c *Codec) Format() string {
	return c.format
}

func (c *Codec) Encode(m Message) ([]byte, error) {
	if c.format == WireFormatMsgpack {
		return msgpack.Marshal(&m)
	}
	return json.Marshal(&m)
}

// Decode parses data. A payload that is neither a typed JSON object nor a
// msgpack map is taken as plain clipboard text. A payload that parses but fails
// validation is reported as domain.ErrMalformedMessage.
func (c *Codec) Decode(data []byte) (Message, error) {
	var (
		m      Message
		err    error
		parsed bool
	)

	switch {
	case len(data) > 0 && data[0] == '{':
		if err = json.Unmarshal(data, &m); err == nil {
			parsed = true
		}
	case isMsgpackMap(data):
		if err = msgpack.Unmarshal(data, &m); err == nil {
			parsed = true
		}
	}

	if !parsed || m.Type == "" {
		if utf8.Valid(data) {
			return Text(string(data)), nil
		}
		return Message{}, domain.NewError("protocol.decode", domain.ErrMalformedMessage, "payload is neither structured nor text")
	}

	if err := m.Validate(); err != nil {
		return Message{}, domain.WrapError("protocol.decode", domain.ErrMalformedMessage, err)
	}
	return m, nil
}

// isMsgpackMap reports whether data starts with a msgpack map header.
func isMsgpackMap(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	b := data[0]
	return (b >= 0x80 && b <= 0x8f) || b == 0xde || b == 0xdf
}
