package packet

import "bytes"

// SubackFailure is the sentinel granted-QoS byte for a rejected
// subscription, MQTT 3.1.1 §3.9.3.
const SubackFailure byte = 0x80

// Subscription is one (topic filter, requested QoS) pair carried in a
// SUBSCRIBE payload. This broker matches topic filters byte-exactly; it does
// not implement the '+'/'#' wildcard grammar.
type Subscription struct {
	TopicFilter string
	QoS         byte
}

// SUBSCRIBE requests one or more topic subscriptions, MQTT 3.1.1 §3.8.
type SUBSCRIBE struct {
	*FixedHeader
	PacketID      uint16
	Subscriptions []Subscription
}

func (s *SUBSCRIBE) Kind() byte { return SUBSCRIBE }

func (s *SUBSCRIBE) Pack(buf *bytes.Buffer) error {
	var body bytes.Buffer
	pair := splitU16BE(s.PacketID)
	body.Write(pair[:])
	for _, sub := range s.Subscriptions {
		if err := writeString(&body, sub.TopicFilter); err != nil {
			return err
		}
		body.WriteByte(sub.QoS)
	}
	s.FixedHeader.RemainingLength = uint32(body.Len())
	if err := s.FixedHeader.Pack(buf); err != nil {
		return err
	}
	_, err := buf.Write(body.Bytes())
	return err
}

func (s *SUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 2 {
		return NewMalformed(ErrMalformedString)
	}
	msb, _ := buf.ReadByte()
	lsb, _ := buf.ReadByte()
	s.PacketID = joinU16BE(msb, lsb)

	for buf.Len() > 0 {
		topic, err := readString(buf)
		if err != nil {
			return NewMalformed(err)
		}
		qos, err := buf.ReadByte()
		if err != nil {
			return NewMalformed(err)
		}
		if qos&0xFC != 0 {
			return NewMalformed(ErrMalformedFlags)
		}
		s.Subscriptions = append(s.Subscriptions, Subscription{TopicFilter: topic, QoS: qos})
	}
	if len(s.Subscriptions) == 0 {
		return NewMalformed(ErrMalformedFlags)
	}
	return nil
}

// SUBACK grants (or rejects) each requested subscription, MQTT 3.1.1 §3.9.
type SUBACK struct {
	*FixedHeader
	PacketID    uint16
	ReturnCodes []byte
}

func (s *SUBACK) Kind() byte { return SUBACK }

func (s *SUBACK) Pack(buf *bytes.Buffer) error {
	s.FixedHeader.RemainingLength = uint32(2 + len(s.ReturnCodes))
	if err := s.FixedHeader.Pack(buf); err != nil {
		return err
	}
	pair := splitU16BE(s.PacketID)
	buf.Write(pair[:])
	buf.Write(s.ReturnCodes)
	return nil
}

func (s *SUBACK) Unpack(buf *bytes.Buffer) error {
	id, err := unpackAckPair(buf)
	if err != nil {
		return err
	}
	s.PacketID = id
	s.ReturnCodes = append([]byte(nil), buf.Bytes()...)
	return nil
}

// UNSUBSCRIBE removes one or more topic subscriptions, MQTT 3.1.1 §3.10.
type UNSUBSCRIBE struct {
	*FixedHeader
	PacketID     uint16
	TopicFilters []string
}

func (u *UNSUBSCRIBE) Kind() byte { return UNSUBSCRIBE }

func (u *UNSUBSCRIBE) Pack(buf *bytes.Buffer) error {
	var body bytes.Buffer
	pair := splitU16BE(u.PacketID)
	body.Write(pair[:])
	for _, topic := range u.TopicFilters {
		if err := writeString(&body, topic); err != nil {
			return err
		}
	}
	u.FixedHeader.RemainingLength = uint32(body.Len())
	if err := u.FixedHeader.Pack(buf); err != nil {
		return err
	}
	_, err := buf.Write(body.Bytes())
	return err
}

func (u *UNSUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 2 {
		return NewMalformed(ErrMalformedString)
	}
	msb, _ := buf.ReadByte()
	lsb, _ := buf.ReadByte()
	u.PacketID = joinU16BE(msb, lsb)

	for buf.Len() > 0 {
		topic, err := readString(buf)
		if err != nil {
			return NewMalformed(err)
		}
		u.TopicFilters = append(u.TopicFilters, topic)
	}
	if len(u.TopicFilters) == 0 {
		return NewMalformed(ErrMalformedFlags)
	}
	return nil
}
