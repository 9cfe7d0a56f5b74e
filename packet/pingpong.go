package packet

import "bytes"

// PINGREQ is a keep-alive heartbeat from the client, MQTT 3.1.1 §3.12.
type PINGREQ struct{ *FixedHeader }

func (p *PINGREQ) Kind() byte { return PINGREQ }

func (p *PINGREQ) Pack(buf *bytes.Buffer) error {
	p.FixedHeader.RemainingLength = 0
	return p.FixedHeader.Pack(buf)
}

func (p *PINGREQ) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return NewMalformed(ErrMalformedFlags)
	}
	return nil
}

// PINGRESP answers a PINGREQ, MQTT 3.1.1 §3.13.
type PINGRESP struct{ *FixedHeader }

func (p *PINGRESP) Kind() byte { return PINGRESP }

func (p *PINGRESP) Pack(buf *bytes.Buffer) error {
	p.FixedHeader.RemainingLength = 0
	return p.FixedHeader.Pack(buf)
}

func (p *PINGRESP) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return NewMalformed(ErrMalformedFlags)
	}
	return nil
}

// DISCONNECT is the client's orderly close notice, MQTT 3.1.1 §3.14.
type DISCONNECT struct{ *FixedHeader }

func (d *DISCONNECT) Kind() byte { return DISCONNECT }

func (d *DISCONNECT) Pack(buf *bytes.Buffer) error {
	d.FixedHeader.RemainingLength = 0
	return d.FixedHeader.Pack(buf)
}

func (d *DISCONNECT) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		// A non-empty DISCONNECT body is reserved and must not appear, but
		// MQTT-3.14.4-3 still requires treating the close as orderly: the
		// will is discarded, not published.
		return NewOrderly(ErrMalformedFlags)
	}
	return nil
}
