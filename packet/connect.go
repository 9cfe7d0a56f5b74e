package packet

import (
	"bytes"
)

// protocolName is the literal "MQTT" string frame required by MQTT 3.1.1
// §3.1.2.1, encoded as its own length-prefixed UTF-8 string.
var protocolName = []byte{0x00, 0x04, 'M', 'Q', 'T', 'T'}

// protocolLevel311 is the only protocol level this broker accepts.
const protocolLevel311 = 0x04

// Connect flag bits, MQTT 3.1.1 §3.1.2.3, packed into a single byte.
const (
	flagReserved     = 0x01
	flagCleanSession = 0x02
	flagWill         = 0x04
	flagWillQoSShift = 3
	flagWillQoSMask  = 0x18
	flagWillRetain   = 0x20
	flagPassword     = 0x40
	flagUsername     = 0x80
)

// CONNECT is the first packet a client must send, MQTT 3.1.1 §3.1.
type CONNECT struct {
	*FixedHeader

	ProtocolLevel byte
	CleanSession  bool
	WillFlag      bool
	WillQoS       byte
	WillRetain    bool

	KeepAlive uint16

	ClientID    string
	WillTopic   string
	WillMessage string
	Username    string
	Password    string
	HasUsername bool
	HasPassword bool
}

func (c *CONNECT) Kind() byte { return CONNECT }

// Pack writes the CONNECT variable header and payload. Callers that build a
// CONNECT programmatically (tests, bridging tools) are expected to have set
// every field; the broker itself only ever Unpacks CONNECT.
func (c *CONNECT) Pack(buf *bytes.Buffer) error {
	var body bytes.Buffer
	body.Write(protocolName)
	body.WriteByte(protocolLevel311)
	body.WriteByte(c.flagsByte())
	pair := splitU16BE(c.KeepAlive)
	body.Write(pair[:])

	if err := writeString(&body, c.ClientID); err != nil {
		return err
	}
	if c.WillFlag {
		if err := writeString(&body, c.WillTopic); err != nil {
			return err
		}
		if err := writeString(&body, c.WillMessage); err != nil {
			return err
		}
	}
	if c.HasUsername {
		if err := writeString(&body, c.Username); err != nil {
			return err
		}
	}
	if c.HasPassword {
		if err := writeString(&body, c.Password); err != nil {
			return err
		}
	}

	c.FixedHeader.RemainingLength = uint32(body.Len())
	if err := c.FixedHeader.Pack(buf); err != nil {
		return err
	}
	_, err := buf.Write(body.Bytes())
	return err
}

func (c *CONNECT) flagsByte() byte {
	var b byte
	if c.CleanSession {
		b |= flagCleanSession
	}
	if c.WillFlag {
		b |= flagWill
		b |= c.WillQoS << flagWillQoSShift
		if c.WillRetain {
			b |= flagWillRetain
		}
	}
	if c.HasUsername {
		b |= flagUsername
	}
	if c.HasPassword {
		b |= flagPassword
	}
	return b
}

// Unpack parses the CONNECT variable header and payload out of buf, which
// contains exactly FixedHeader.RemainingLength bytes.
func (c *CONNECT) Unpack(buf *bytes.Buffer) error {
	name := make([]byte, 6)
	if _, err := buf.Read(name); err != nil || !bytes.Equal(name, protocolName) {
		return NewViolation(ConnackAccepted, ErrMalformedFlags)
	}
	level, err := buf.ReadByte()
	if err != nil {
		return NewMalformed(err)
	}
	if level != protocolLevel311 {
		return NewViolation(ConnackUnacceptableProtocol, nil)
	}
	c.ProtocolLevel = level

	flags, err := buf.ReadByte()
	if err != nil {
		return NewMalformed(err)
	}
	if flags&flagReserved != 0 {
		return NewMalformed(ErrMalformedFlags)
	}
	c.CleanSession = flags&flagCleanSession != 0
	c.WillFlag = flags&flagWill != 0
	c.WillQoS = (flags & flagWillQoSMask) >> flagWillQoSShift
	c.WillRetain = flags&flagWillRetain != 0
	c.HasUsername = flags&flagUsername != 0
	c.HasPassword = flags&flagPassword != 0

	if c.WillQoS > 2 {
		return NewMalformed(ErrProtocolViolationQosOutOfRange)
	}
	if !c.WillFlag && (c.WillQoS != 0 || c.WillRetain) {
		return NewMalformed(ErrMalformedFlags)
	}
	if !c.HasUsername && c.HasPassword {
		return NewMalformed(ErrMalformedFlags)
	}

	if buf.Len() < 2 {
		return NewMalformed(ErrMalformedString)
	}
	msb, _ := buf.ReadByte()
	lsb, _ := buf.ReadByte()
	c.KeepAlive = joinU16BE(msb, lsb)

	if c.ClientID, err = readString(buf); err != nil {
		return NewMalformed(err)
	}
	if c.WillFlag {
		if c.WillTopic, err = readString(buf); err != nil {
			return NewMalformed(err)
		}
		if c.WillMessage, err = readString(buf); err != nil {
			return NewMalformed(err)
		}
	}
	if c.HasUsername {
		if c.Username, err = readString(buf); err != nil {
			return NewMalformed(err)
		}
	}
	if c.HasPassword {
		if c.Password, err = readString(buf); err != nil {
			return NewMalformed(err)
		}
	}
	if buf.Len() != 0 {
		return NewMalformed(ErrMalformedString)
	}
	if c.ClientID == "" && !c.CleanSession {
		return NewViolation(ConnackIdentifierRejected, nil)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	b, err := encodeLengthPrefixed(s)
	if err != nil {
		return err
	}
	_, err = buf.Write(b)
	return err
}

func readString(buf *bytes.Buffer) (string, error) {
	_, s, err := readLengthPrefixed(buf, true)
	return s, err
}
