package packet

import "bytes"

// CONNACK is the broker's reply to CONNECT, MQTT 3.1.1 §3.2.
type CONNACK struct {
	*FixedHeader

	SessionPresent bool
	ReturnCode     ConnackCode
}

func (c *CONNACK) Kind() byte { return CONNACK }

func (c *CONNACK) Pack(buf *bytes.Buffer) error {
	c.FixedHeader.RemainingLength = 2
	if err := c.FixedHeader.Pack(buf); err != nil {
		return err
	}
	var ack byte
	if c.SessionPresent {
		ack = 0x01
	}
	buf.WriteByte(ack)
	buf.WriteByte(byte(c.ReturnCode))
	return nil
}

func (c *CONNACK) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 2 {
		return NewMalformed(ErrMalformedString)
	}
	ack, _ := buf.ReadByte()
	if ack&0xFE != 0 {
		return NewMalformed(ErrMalformedFlags)
	}
	c.SessionPresent = ack&0x01 != 0
	code, _ := buf.ReadByte()
	c.ReturnCode = ConnackCode(code)
	return nil
}
