package mqttd

import (
	"context"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/riverrun/mqttd/packet"
	"github.com/riverrun/mqttd/topic"
)

// FanoutEngine turns one published message into a PUBLISH per subscriber,
// each carried at the minimum of the publisher's QoS and that subscriber's
// granted QoS, and (for QoS >= 1) drives that subscriber's delivery state
// machine through PublishQueue.
type FanoutEngine struct {
	topics    *topic.Registry
	sessions  *SessionRegistry
	queue     *PublishQueue
	nextPktID atomic.Uint32
}

// NewFanoutEngine wires the engine to the broker's shared registries.
func NewFanoutEngine(topics *topic.Registry, sessions *SessionRegistry, queue *PublishQueue) *FanoutEngine {
	return &FanoutEngine{topics: topics, sessions: sessions, queue: queue}
}

// allocPacketID returns the next packet id in 1..65535, wrapping past 0.
func (f *FanoutEngine) allocPacketID() uint16 {
	for {
		id := uint16(f.nextPktID.Add(1))
		if id != 0 {
			return id
		}
	}
}

// Publish fans payload out to topicName's current subscribers concurrently,
// via errgroup exactly as the teacher's MemorySubscribed.Exchange does.
// publisherQoS is the QoS the PUBLISH arrived at; each subscriber receives
// it at min(publisherQoS, grantedQoS).
func (f *FanoutEngine) Publish(topicName string, payload []byte, publisherQoS byte, retain bool) error {
	subs := f.topics.Publish(topicName, payload, publisherQoS, retain)
	if len(subs) == 0 {
		return nil
	}

	template := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Kind: packet.PUBLISH},
		TopicName:   topicName,
		Payload:     payload,
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			f.deliverTo(sub.ClientID, template, minQoS(publisherQoS, sub.QoS), retain)
			return nil
		})
	}
	return g.Wait()
}

func minQoS(a, b byte) byte {
	if a < b {
		return a
	}
	return b
}

// deliverTo clones template for clientID and sends it, and for QoS >= 1
// starts that subscriber's own delivery state machine (§4.4 FanoutEngine).
// Cloning gives each subscriber an independent packet id and DUP flag even
// though they all deliver the same underlying publish.
func (f *FanoutEngine) deliverTo(clientID string, template *packet.PUBLISH, qos byte, retain bool) {
	sess, ok := f.sessions.Lookup(clientID)
	if !ok || !sess.IsConnected() {
		return
	}

	pub := template.Clone()
	pub.FixedHeader.QoS = qos
	pub.FixedHeader.Retain = retain
	if qos == 0 {
		f.send(sess, pub)
		return
	}

	pktID := f.allocPacketID()
	pub.PacketID = pktID

	if qos == 1 {
		f.queue.Start(pktID, ToSubscriber, 1, AwaitingPuback,
			func(state State, isRetry bool, advance func(State)) error {
				if state == AwaitingPuback {
					pub.FixedHeader.Dup = isRetry
					f.send(sess, pub)
				}
				return nil
			},
			func(s State) bool { return s == PubackReceived },
		)
		return
	}

	// QoS 2: AwaitingPubrec -(PUBREC)-> emit PUBREL, AwaitingPubcomp -(PUBCOMP)-> done.
	f.queue.Start(pktID, ToSubscriber, 2, AwaitingPubrec,
		func(state State, isRetry bool, advance func(State)) error {
			switch state {
			case AwaitingPubrec:
				pub.FixedHeader.Dup = isRetry
				f.send(sess, pub)
			case PubrecReceived:
				rel := &packet.PUBREL{FixedHeader: &packet.FixedHeader{Kind: packet.PUBREL}, PacketID: pktID}
				f.send(sess, rel)
				advance(AwaitingPubcomp)
			case AwaitingPubcomp:
				rel := &packet.PUBREL{FixedHeader: &packet.FixedHeader{Kind: packet.PUBREL}, PacketID: pktID}
				f.send(sess, rel)
			}
			return nil
		},
		func(s State) bool { return s == PubcompReceived },
	)
}

func (f *FanoutEngine) send(sess *Session, pkt packet.Packet) {
	buf := packet.GetBuffer()
	defer packet.PutBuffer(buf)
	if err := pkt.Pack(buf); err != nil {
		log.Printf("mqttd: fanout: pack %T for %s: %v", pkt, sess.ClientID, err)
		return
	}
	select {
	case sess.Outbound() <- append([]byte(nil), buf.Bytes()...):
	default:
		log.Printf("mqttd: fanout: outbound queue full for %s, dropping %T", sess.ClientID, pkt)
	}
}
