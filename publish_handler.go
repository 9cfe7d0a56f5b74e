package mqttd

import (
	"log"

	"github.com/riverrun/mqttd/packet"
)

// handlePublish dispatches an inbound PUBLISH by QoS, per §4.4 PublishHandler.
func (c *conn) handlePublish(req *packet.PUBLISH) error {
	switch req.QoS {
	case 0:
		return c.fanout(req)
	case 1:
		if err := c.fanout(req); err != nil {
			return err
		}
		return c.writePacket(&packet.PUBACK{FixedHeader: &packet.FixedHeader{Kind: packet.PUBACK}, PacketID: req.PacketID})
	case 2:
		return c.handleQoS2Publish(req)
	default:
		return packet.NewMalformed(packet.ErrProtocolViolationQosOutOfRange)
	}
}

func (c *conn) fanout(req *packet.PUBLISH) error {
	if err := c.server.Fanout.Publish(req.TopicName, req.Payload, req.QoS, req.Retain); err != nil {
		log.Printf("mqttd: %s: publish %q: %v", c.rwc.RemoteAddr(), req.TopicName, err)
	}
	return nil
}

// handleQoS2Publish implements the inbound half of the QoS 2 handshake. A
// duplicate PUBLISH (the publisher never saw our PUBREC) finds the existing
// exchange and gets another PUBREC without re-fanning the message out; a
// fresh PUBLISH fans the message out to subscribers immediately and starts
// a new exchange whose first "send" action is PUBREC, whose done predicate
// is satisfied once PUBREL arrives and PUBCOMP has gone out.
func (c *conn) handleQoS2Publish(req *packet.PUBLISH) error {
	if _, dup := c.server.Queue.Lookup(req.PacketID, FromPublisher); dup {
		return c.writePacket(&packet.PUBREC{FixedHeader: &packet.FixedHeader{Kind: packet.PUBREC}, PacketID: req.PacketID})
	}

	fanned := false
	c.server.Queue.Start(req.PacketID, FromPublisher, 2, AwaitingPubrel,
		func(state State, isRetry bool, advance func(State)) error {
			switch state {
			case AwaitingPubrel:
				if !fanned {
					fanned = true
					_ = c.fanout(req)
				}
				return c.writePacket(&packet.PUBREC{FixedHeader: &packet.FixedHeader{Kind: packet.PUBREC}, PacketID: req.PacketID})
			case PubrelReceived:
				return c.writePacket(&packet.PUBCOMP{FixedHeader: &packet.FixedHeader{Kind: packet.PUBCOMP}, PacketID: req.PacketID})
			}
			return nil
		},
		func(s State) bool { return s == PubrelReceived },
	)
	return nil
}
