package packet

import "bytes"

// PUBLISH carries application data to or from the broker, MQTT 3.1.1 §3.3.
type PUBLISH struct {
	*FixedHeader

	TopicName string
	PacketID  uint16 // present only when QoS > 0
	Payload   []byte
}

func (p *PUBLISH) Kind() byte { return PUBLISH }

func (p *PUBLISH) Pack(buf *bytes.Buffer) error {
	var body bytes.Buffer
	if err := writeString(&body, p.TopicName); err != nil {
		return err
	}
	if p.FixedHeader.QoS > 0 {
		pair := splitU16BE(p.PacketID)
		body.Write(pair[:])
	}
	body.Write(p.Payload)

	p.FixedHeader.RemainingLength = uint32(body.Len())
	if err := p.FixedHeader.Pack(buf); err != nil {
		return err
	}
	_, err := buf.Write(body.Bytes())
	return err
}

func (p *PUBLISH) Unpack(buf *bytes.Buffer) error {
	var err error
	if p.TopicName, err = readString(buf); err != nil {
		return NewMalformed(err)
	}
	if p.FixedHeader.QoS > 0 {
		if buf.Len() < 2 {
			return NewMalformed(ErrMalformedString)
		}
		msb, _ := buf.ReadByte()
		lsb, _ := buf.ReadByte()
		p.PacketID = joinU16BE(msb, lsb)
	}
	p.Payload = append([]byte(nil), buf.Bytes()...)
	return nil
}

// Clone returns a deep copy suitable for handing to a separate subscriber
// delivery task, which may mutate PacketID/DUP independently.
func (p *PUBLISH) Clone() *PUBLISH {
	fh := *p.FixedHeader
	return &PUBLISH{
		FixedHeader: &fh,
		TopicName:   p.TopicName,
		PacketID:    p.PacketID,
		Payload:     append([]byte(nil), p.Payload...),
	}
}
