package packet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Control packet types, MQTT 3.1.1 §2.2.1. The high nibble of the first
// fixed-header byte.
const (
	RESERVED    byte = 0x0
	CONNECT     byte = 0x1
	CONNACK     byte = 0x2
	PUBLISH     byte = 0x3
	PUBACK      byte = 0x4
	PUBREC      byte = 0x5
	PUBREL      byte = 0x6
	PUBCOMP     byte = 0x7
	SUBSCRIBE   byte = 0x8
	SUBACK      byte = 0x9
	UNSUBSCRIBE byte = 0xA
	UNSUBACK    byte = 0xB
	PINGREQ     byte = 0xC
	PINGRESP    byte = 0xD
	DISCONNECT  byte = 0xE
)

// Kind names the control packet types for logging.
var Kind = map[byte]string{
	CONNECT:     "CONNECT",
	CONNACK:     "CONNACK",
	PUBLISH:     "PUBLISH",
	PUBACK:      "PUBACK",
	PUBREC:      "PUBREC",
	PUBREL:      "PUBREL",
	PUBCOMP:     "PUBCOMP",
	SUBSCRIBE:   "SUBSCRIBE",
	SUBACK:      "SUBACK",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	UNSUBACK:    "UNSUBACK",
	PINGREQ:     "PINGREQ",
	PINGRESP:    "PINGRESP",
	DISCONNECT:  "DISCONNECT",
}

// ErrMalformedFlags is returned when a packet's reserved fixed-header bits
// are non-zero, or an optional bit carries a value the control type forbids.
var ErrMalformedFlags = errors.New("packet: malformed fixed-header flags")

// ErrProtocolViolationQosOutOfRange is returned by PUBLISH flag validation
// when QoS is 3, which MQTT 3.1.1 §3.3.1.2 reserves.
var ErrProtocolViolationQosOutOfRange = errors.New("packet: protocol violation, QoS out of range")

// FixedHeader is the first 2-5 bytes present on every control packet: a
// type+flags byte followed by the remaining-length varint.
type FixedHeader struct {
	Kind            byte
	Dup             bool
	QoS             byte
	Retain          bool
	RemainingLength uint32
}

// Pack validates the flags for Kind and writes the two-part fixed header.
// The caller is expected to have already set RemainingLength to the size of
// the variable header plus payload that follows.
func (h *FixedHeader) Pack(buf *bytes.Buffer) error {
	flags, err := h.flagsByte()
	if err != nil {
		return err
	}
	buf.WriteByte(h.Kind<<4 | flags)
	length, err := encodeRemainingLength(h.RemainingLength)
	if err != nil {
		return err
	}
	buf.Write(length)
	return nil
}

// Unpack reads the type+flags byte and the remaining-length varint from buf,
// validating the flags against Kind's fixed requirements.
func (h *FixedHeader) Unpack(buf *bytes.Buffer) error {
	return h.readFrom(buf)
}

// ReadFixedHeader reads a fixed header directly off a streaming byte source
// (a net.Conn wrapped in a *bufio.Reader, typically), one byte at a time,
// so the caller never has to know RemainingLength before the header is
// fully parsed.
func ReadFixedHeader(r io.ByteReader) (*FixedHeader, error) {
	h := &FixedHeader{}
	if err := h.readFrom(r); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *FixedHeader) readFrom(r io.ByteReader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	h.Kind, _, err = splitByte(b, 4)
	if err != nil {
		return err
	}
	_, flags, err := splitByte(b, 4)
	if err != nil {
		return err
	}
	if err := h.setFlags(flags); err != nil {
		return err
	}
	h.RemainingLength, err = decodeRemainingLength(r)
	if err != nil {
		return err
	}
	return nil
}

func (h *FixedHeader) flagsByte() (byte, error) {
	switch h.Kind {
	case PUBLISH:
		if h.QoS > 2 {
			return 0, ErrProtocolViolationQosOutOfRange
		}
		if h.QoS == 0 && h.Dup {
			return 0, ErrMalformedFlags
		}
		var b byte
		if h.Dup {
			b |= 0x08
		}
		b |= h.QoS << 1
		if h.Retain {
			b |= 0x01
		}
		return b, nil
	case PUBREL, SUBSCRIBE, UNSUBSCRIBE:
		return 0x02, nil
	default:
		return 0x00, nil
	}
}

func (h *FixedHeader) setFlags(flags byte) error {
	switch h.Kind {
	case PUBLISH:
		h.Dup = flags&0x08 != 0
		h.QoS = (flags >> 1) & 0x03
		h.Retain = flags&0x01 != 0
		if h.QoS > 2 {
			return ErrProtocolViolationQosOutOfRange
		}
		if h.QoS == 0 && h.Dup {
			return ErrMalformedFlags
		}
		return nil
	case PUBREL, SUBSCRIBE, UNSUBSCRIBE:
		if flags != 0x02 {
			return ErrMalformedFlags
		}
		return nil
	default:
		if flags != 0x00 {
			return ErrMalformedFlags
		}
		return nil
	}
}

func (h *FixedHeader) String() string {
	return fmt.Sprintf("%s(dup=%v qos=%d retain=%v len=%d)", Kind[h.Kind], h.Dup, h.QoS, h.Retain, h.RemainingLength)
}
