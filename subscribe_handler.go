package mqttd

import (
	"log"

	"github.com/riverrun/mqttd/packet"
)

// handleSubscribe grants each requested subscription (capping QoS 2 is the
// ceiling this broker supports; anything higher gets the 0x80 failure
// sentinel), attaches the client to topic.Registry, acknowledges with
// SUBACK, and then replays any retained message stored for each granted
// topic.
func (c *conn) handleSubscribe(req *packet.SUBSCRIBE) error {
	returnCodes := make([]byte, len(req.Subscriptions))
	for i, sub := range req.Subscriptions {
		if sub.QoS > 2 {
			returnCodes[i] = packet.SubackFailure
			continue
		}
		c.server.Topics.Attach(c.session.ClientID, sub.TopicFilter, sub.QoS)
		returnCodes[i] = sub.QoS
	}

	if err := c.writePacket(&packet.SUBACK{
		FixedHeader: &packet.FixedHeader{Kind: packet.SUBACK},
		PacketID:    req.PacketID,
		ReturnCodes: returnCodes,
	}); err != nil {
		return packet.NewMalformed(err)
	}

	for i, sub := range req.Subscriptions {
		if returnCodes[i] == packet.SubackFailure {
			continue
		}
		retained, ok := c.server.Topics.Retained(sub.TopicFilter)
		if !ok {
			continue
		}
		qos := retained.QoS
		if sub.QoS < qos {
			qos = sub.QoS
		}
		template := &packet.PUBLISH{
			FixedHeader: &packet.FixedHeader{Kind: packet.PUBLISH},
			TopicName:   sub.TopicFilter,
			Payload:     retained.Payload,
		}
		c.server.Fanout.deliverTo(c.session.ClientID, template, qos, true)
	}

	log.Printf("mqttd: %s: subscribed %v", c.session.ClientID, req.Subscriptions)
	return nil
}

// handleUnsubscribe detaches the requested topic filters and acknowledges.
func (c *conn) handleUnsubscribe(req *packet.UNSUBSCRIBE) error {
	for _, filter := range req.TopicFilters {
		c.server.Topics.Detach(c.session.ClientID, filter)
	}
	if err := c.writePacket(&packet.UNSUBACK{
		FixedHeader: &packet.FixedHeader{Kind: packet.UNSUBACK},
		PacketID:    req.PacketID,
	}); err != nil {
		return packet.NewMalformed(err)
	}
	log.Printf("mqttd: %s: unsubscribed %v", c.session.ClientID, req.TopicFilters)
	return nil
}
