// Package packet implements the MQTT 3.1.1 control packet wire format:
// the fixed header, the per-type variable headers and payloads, and the
// remaining-length/length-prefixed-string codec they are built from.
package packet

import (
	"bytes"
	"fmt"
	"io"
)

// Packet is implemented by every control packet type. Pack serializes the
// packet (including its fixed header) onto buf; Unpack fills in the
// variable header and payload from buf, which holds exactly
// FixedHeader.RemainingLength bytes and no more.
type Packet interface {
	Kind() byte
	Pack(buf *bytes.Buffer) error
	Unpack(buf *bytes.Buffer) error
}

// New constructs the zero-value Packet for kind, with FixedHeader attached.
func New(fh *FixedHeader) (Packet, error) {
	switch fh.Kind {
	case CONNECT:
		return &CONNECT{FixedHeader: fh}, nil
	case CONNACK:
		return &CONNACK{FixedHeader: fh}, nil
	case PUBLISH:
		return &PUBLISH{FixedHeader: fh}, nil
	case PUBACK:
		return &PUBACK{FixedHeader: fh}, nil
	case PUBREC:
		return &PUBREC{FixedHeader: fh}, nil
	case PUBREL:
		return &PUBREL{FixedHeader: fh}, nil
	case PUBCOMP:
		return &PUBCOMP{FixedHeader: fh}, nil
	case SUBSCRIBE:
		return &SUBSCRIBE{FixedHeader: fh}, nil
	case SUBACK:
		return &SUBACK{FixedHeader: fh}, nil
	case UNSUBSCRIBE:
		return &UNSUBSCRIBE{FixedHeader: fh}, nil
	case UNSUBACK:
		return &UNSUBACK{FixedHeader: fh}, nil
	case PINGREQ:
		return &PINGREQ{FixedHeader: fh}, nil
	case PINGRESP:
		return &PINGRESP{FixedHeader: fh}, nil
	case DISCONNECT:
		return &DISCONNECT{FixedHeader: fh}, nil
	default:
		return nil, NewMalformed(fmt.Errorf("packet: unknown control type %#x", fh.Kind))
	}
}

// Read parses exactly one control packet from r: a fixed header followed by
// RemainingLength bytes of variable header and payload.
func Read(r io.Reader) (Packet, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufByteReader{r}
	}
	fh, err := ReadFixedHeader(br)
	if err != nil {
		return nil, err
	}

	body := make([]byte, fh.RemainingLength)
	if fh.RemainingLength > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, NewMalformed(err)
		}
	}

	pkt, err := New(fh)
	if err != nil {
		return nil, err
	}
	if err := pkt.Unpack(bytes.NewBuffer(body)); err != nil {
		return nil, err
	}
	return pkt, nil
}

// bufByteReader adapts an io.Reader without ReadByte into one, one byte at
// a time. It exists only as a fallback for exotic transports (e.g. the
// WebSocket frame reader) that don't already satisfy io.ByteReader.
type bufByteReader struct{ io.Reader }

func (b bufByteReader) ReadByte() (byte, error) {
	var p [1]byte
	if _, err := io.ReadFull(b.Reader, p[:]); err != nil {
		return 0, err
	}
	return p[0], nil
}

// Write serializes pkt onto w using a pooled buffer.
func Write(w io.Writer, pkt Packet) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if err := pkt.Pack(buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
