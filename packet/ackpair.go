package packet

import "bytes"

// ackPair packs and unpacks the four-byte "fixed header + 16-bit packet id"
// shape shared by PUBACK, PUBREC, PUBREL, PUBCOMP and UNSUBACK.
func packAckPair(fh *FixedHeader, buf *bytes.Buffer, packetID uint16) error {
	fh.RemainingLength = 2
	if err := fh.Pack(buf); err != nil {
		return err
	}
	pair := splitU16BE(packetID)
	buf.Write(pair[:])
	return nil
}

func unpackAckPair(buf *bytes.Buffer) (uint16, error) {
	if buf.Len() < 2 {
		return 0, NewMalformed(ErrMalformedString)
	}
	msb, _ := buf.ReadByte()
	lsb, _ := buf.ReadByte()
	return joinU16BE(msb, lsb), nil
}

// PUBACK acknowledges a QoS 1 PUBLISH, MQTT 3.1.1 §3.4.
type PUBACK struct {
	*FixedHeader
	PacketID uint16
}

func (p *PUBACK) Kind() byte                     { return PUBACK }
func (p *PUBACK) Pack(buf *bytes.Buffer) error    { return packAckPair(p.FixedHeader, buf, p.PacketID) }
func (p *PUBACK) Unpack(buf *bytes.Buffer) error {
	id, err := unpackAckPair(buf)
	p.PacketID = id
	return err
}

// PUBREC is the first QoS 2 acknowledgement, MQTT 3.1.1 §3.5.
type PUBREC struct {
	*FixedHeader
	PacketID uint16
}

func (p *PUBREC) Kind() byte                     { return PUBREC }
func (p *PUBREC) Pack(buf *bytes.Buffer) error    { return packAckPair(p.FixedHeader, buf, p.PacketID) }
func (p *PUBREC) Unpack(buf *bytes.Buffer) error {
	id, err := unpackAckPair(buf)
	p.PacketID = id
	return err
}

// PUBREL is the second QoS 2 acknowledgement, MQTT 3.1.1 §3.6. Its fixed
// header reserved bits are fixed at 0010, validated by FixedHeader itself.
type PUBREL struct {
	*FixedHeader
	PacketID uint16
}

func (p *PUBREL) Kind() byte                     { return PUBREL }
func (p *PUBREL) Pack(buf *bytes.Buffer) error    { return packAckPair(p.FixedHeader, buf, p.PacketID) }
func (p *PUBREL) Unpack(buf *bytes.Buffer) error {
	id, err := unpackAckPair(buf)
	p.PacketID = id
	return err
}

// PUBCOMP is the final QoS 2 acknowledgement, MQTT 3.1.1 §3.7.
type PUBCOMP struct {
	*FixedHeader
	PacketID uint16
}

func (p *PUBCOMP) Kind() byte                     { return PUBCOMP }
func (p *PUBCOMP) Pack(buf *bytes.Buffer) error    { return packAckPair(p.FixedHeader, buf, p.PacketID) }
func (p *PUBCOMP) Unpack(buf *bytes.Buffer) error {
	id, err := unpackAckPair(buf)
	p.PacketID = id
	return err
}

// UNSUBACK acknowledges UNSUBSCRIBE, MQTT 3.1.1 §3.11.
type UNSUBACK struct {
	*FixedHeader
	PacketID uint16
}

func (u *UNSUBACK) Kind() byte                  { return UNSUBACK }
func (u *UNSUBACK) Pack(buf *bytes.Buffer) error { return packAckPair(u.FixedHeader, buf, u.PacketID) }
func (u *UNSUBACK) Unpack(buf *bytes.Buffer) error {
	id, err := unpackAckPair(buf)
	u.PacketID = id
	return err
}
