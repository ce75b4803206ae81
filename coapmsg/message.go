package coapmsg

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Type is the CoAP message type (RFC 7252 section 3).
type Type uint8

const (
	CON Type = 0
	NON Type = 1
	ACK Type = 2
	RST Type = 3
)

var typeNames = [4]string{"CON", "NON", "ACK", "RST"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Code is the 8-bit class.detail method/status code (RFC 7252 section
// 3). The top 3 bits are the class, the bottom 5 the detail.
type Code uint8

func NewCode(class, detail uint8) Code {
	return Code((class << 5) | (detail & 0x1f))
}

func (c Code) Class() uint8  { return uint8(c) >> 5 }
func (c Code) Detail() uint8 { return uint8(c) & 0x1f }

// Request methods.
const (
	Empty  Code = 0
	GET    Code = 1
	POST   Code = 2
	PUT    Code = 3
	DELETE Code = 4
)

// Response codes actually used by the reference test scenarios; the
// codec accepts any class/detail combination the caller builds, per
// spec.md's permissive response-code stance.
const (
	Created  = Code(2<<5 | 1)
	Deleted  = Code(2<<5 | 2)
	Valid    = Code(2<<5 | 3)
	Changed  = Code(2<<5 | 4)
	Content  = Code(2<<5 | 5)
	BadOption = Code(4<<5 | 2)
)

// IsRequest reports whether Code is a request method (class 0, nonzero
// detail).
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c.Detail() != 0
}

// String renders Code in RFC 7252's "c.dd" notation, e.g. "2.05".
func (c Code) String() string {
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// IsResponse is a convenience predicate (class 2, 4 or 5); the engine
// itself does not consult it to decide whether to accept a message —
// spec.md's permissive stance on response-code validation means any
// non-request code is accepted as a response.
func (c Code) IsResponse() bool {
	class := c.Class()
	return class == 2 || class == 4 || class == 5
}

const protocolVersion = 1

// Message is a decoded CoAP message (RFC 7252 section 3).
type Message struct {
	Version   uint8
	Type      Type
	Code      Code
	Token     []byte
	MessageID uint16
	Options   Options
	Payload   []byte
}

// NewEmpty builds an empty message (code 0.00) of the given type and
// message-id, as used for ACKs and RSTs.
func NewEmpty(t Type, messageID uint16) *Message {
	return &Message{Version: protocolVersion, Type: t, Code: Empty, MessageID: messageID}
}

// IsEmpty reports whether the message is the empty message (code 0.00):
// no token, no options, no payload.
func (m *Message) IsEmpty() bool {
	return m.Code == Empty && len(m.Token) == 0 && len(m.Options) == 0 && len(m.Payload) == 0
}

// Parse decodes a full CoAP message from a datagram payload.
func Parse(data []byte) (*Message, error) {
	c := newCursor(data)

	b0, err := c.readByte()
	if err != nil {
		return nil, ErrShortHeader
	}
	version := b0 >> 6
	if version != protocolVersion {
		return nil, ErrBadVersion
	}
	msgType := Type((b0 >> 4) & 0x3)
	tokenLen := int(b0 & 0xf)
	if tokenLen > 8 {
		return nil, ErrBadTokenLength
	}

	codeByte, err := c.readByte()
	if err != nil {
		return nil, ErrShortHeader
	}
	code := Code(codeByte)

	messageID, err := c.readUint16()
	if err != nil {
		return nil, ErrShortHeader
	}

	if code == Empty && (tokenLen != 0 || c.remaining() != 0) {
		return nil, ErrMalformedEmptyMessage
	}

	m := &Message{
		Version:   version,
		Type:      msgType,
		Code:      code,
		MessageID: messageID,
	}

	if tokenLen > 0 {
		token, err := c.readBytes(tokenLen)
		if err != nil {
			return nil, ErrTruncatedToken
		}
		m.Token = append([]byte(nil), token...)
	}

	if c.remaining() == 0 {
		return m, nil
	}

	if err := m.parseOptionsAndPayload(c.rest()); err != nil {
		return nil, err
	}

	return m, nil
}

// parseOptionsAndPayload consumes the option sequence and trailing
// payload following the header/token, per the TLV-delta layout in
// RFC 7252 section 3.1.
func (m *Message) parseOptionsAndPayload(data []byte) error {
	lastNumber := 0
	i := 0
	n := len(data)

	for i < n {
		if data[i] == 0xff {
			if n-i < 2 {
				return ErrMissingPayloadAfterMarker
			}
			m.Payload = append([]byte(nil), data[i+1:]...)
			return nil
		}

		deltaNibble := int(data[i] >> 4)
		lengthNibble := int(data[i] & 0x0f)
		i++

		delta, ni, err := extendField(deltaNibble, data, i)
		if err == ErrTruncatedOption {
			return err
		}
		if err != nil {
			return ErrBadOptionDelta
		}
		i = ni

		length, ni, err := extendField(lengthNibble, data, i)
		if err == ErrTruncatedOption {
			return err
		}
		if err != nil {
			return ErrBadOptionLength
		}
		i = ni

		if n-i < length {
			return ErrTruncatedPayload
		}

		lastNumber += delta
		number := OptionNumber(lastNumber)
		value := data[i : i+length]

		if def, ok := optionDefs[number]; ok && (length < def.MinLength || length > def.MaxLength) {
			if number.Critical() {
				return errors.Wrapf(ErrBadOptionLength, "option %d length %d outside [%d,%d]", number, length, def.MinLength, def.MaxLength)
			}
			// Elective options with an invalid length are silently
			// ignored, per RFC 7252 section 5.4.1.
		} else {
			m.Options.Add(number, append([]byte(nil), value...))
		}

		i += length
	}

	return nil
}

// errReservedNibble marks nibble 15, reserved and never valid in a
// delta/length position. Callers map it to ErrBadOptionDelta or
// ErrBadOptionLength depending on which field they were resolving;
// ErrTruncatedOption is never remapped and passes straight through.
var errReservedNibble = errors.New("coapmsg: reserved nibble 15")

// extendField resolves a 4-bit delta/length nibble into its absolute
// value, consuming the 0, 1 or 2 extension bytes the 13/14 escapes
// require. 15 is reserved and always an error in this position.
func extendField(nibble int, data []byte, i int) (value int, next int, err error) {
	switch nibble {
	case 13:
		if len(data)-i < 1 {
			return 0, i, ErrTruncatedOption
		}
		return int(data[i]) + 13, i + 1, nil
	case 14:
		if len(data)-i < 2 {
			return 0, i, ErrTruncatedOption
		}
		return (int(data[i])<<8 | int(data[i+1])) + 269, i + 2, nil
	case 15:
		return 0, i, errReservedNibble
	default:
		return nibble, i, nil
	}
}

// ParsePartial decodes only the type and message-id from the first 4
// header bytes, without validating the token or options. It succeeds
// whenever the full header is present and the version is valid, even
// if Parse on the same bytes would fail — used by the engine to
// recover a message-id to RST against a malformed CON.
func ParsePartial(data []byte) (t Type, messageID uint16, err error) {
	if len(data) < 4 {
		return 0, 0, ErrShortHeader
	}
	if data[0]>>6 != protocolVersion {
		return 0, 0, ErrBadVersion
	}
	t = Type((data[0] >> 4) & 0x3)
	messageID = uint16(data[2])<<8 | uint16(data[3])
	return t, messageID, nil
}

// Bytes serializes the message. Options are sorted by ascending number
// before delta-encoding; equal numbers keep their relative insertion
// order (sort.Stable).
func (m *Message) Bytes() ([]byte, error) {
	if len(m.Token) > 8 {
		return nil, ErrInvalidTokenLen
	}

	w := newWriteCursor(4 + len(m.Token) + optionsUpperBound(m.Options) + 1 + len(m.Payload))

	b0 := (protocolVersion&0x3)<<6 | (uint8(m.Type)&0x3)<<4 | uint8(len(m.Token)&0xf)
	if err := w.writeByte(b0); err != nil {
		return nil, ErrBufferTooSmall
	}
	if err := w.writeByte(byte(m.Code)); err != nil {
		return nil, ErrBufferTooSmall
	}
	if err := w.writeUint16(m.MessageID); err != nil {
		return nil, ErrBufferTooSmall
	}
	if err := w.write(m.Token); err != nil {
		return nil, ErrBufferTooSmall
	}

	sorted := make(Options, len(m.Options))
	copy(sorted, m.Options)
	sort.Stable(sorted)

	last := 0
	for _, opt := range sorted {
		if opt.Len() > 65535+269 {
			return nil, ErrOptionValueTooLong
		}
		delta := int(opt.Number) - last
		if delta < 0 {
			return nil, errors.New("coapmsg: options not ascending after sort")
		}
		if err := writeOptionHeader(w, delta, opt.Len()); err != nil {
			return nil, err
		}
		if err := w.write(opt.Value); err != nil {
			return nil, ErrBufferTooSmall
		}
		last = int(opt.Number)
	}

	if len(m.Payload) > 0 {
		if err := w.writeByte(0xff); err != nil {
			return nil, ErrBufferTooSmall
		}
		if err := w.write(m.Payload); err != nil {
			return nil, ErrBufferTooSmall
		}
	}

	return w.bytes(), nil
}

func optionsUpperBound(opts Options) int {
	n := 0
	for _, o := range opts {
		n += 5 + o.Len() // 1 header byte + up to 2+2 extension bytes + value
	}
	return n
}

// writeOptionHeader emits the delta/length nibble pair plus any 13/14
// escape extension bytes, for a single option whose absolute delta from
// the previous option and value length are already known.
func writeOptionHeader(w *writeCursor, delta, length int) error {
	dNibble, dExt, dExtLen := encodeField(delta)
	lNibble, lExt, lExtLen := encodeField(length)

	if err := w.writeByte(byte(dNibble<<4) | byte(lNibble)); err != nil {
		return ErrBufferTooSmall
	}
	if err := writeExtension(w, dExtLen, dExt); err != nil {
		return err
	}
	if err := writeExtension(w, lExtLen, lExt); err != nil {
		return err
	}
	return nil
}

// encodeField splits an absolute delta or length into its 4-bit nibble
// and (if escaped) the 1- or 2-byte extension value, per RFC 7252
// section 3.1's escape table (13 => +13, 14 => +269).
func encodeField(v int) (nibble int, ext int, extLen int) {
	switch {
	case v < 13:
		return v, 0, 0
	case v < 269:
		return 13, v - 13, 1
	default:
		return 14, v - 269, 2
	}
}

func writeExtension(w *writeCursor, extLen, ext int) error {
	switch extLen {
	case 0:
		return nil
	case 1:
		if err := w.writeByte(byte(ext)); err != nil {
			return ErrBufferTooSmall
		}
	case 2:
		if err := w.writeUint16(uint16(ext)); err != nil {
			return ErrBufferTooSmall
		}
	}
	return nil
}
