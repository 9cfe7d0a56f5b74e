package mqttd

import (
	"io"
	"testing"
	"time"

	"github.com/riverrun/mqttd/packet"
	"github.com/riverrun/mqttd/topic"
)

func newTestFanout(t *testing.T) (*FanoutEngine, *SessionRegistry, *topic.Registry, *PublishQueue) {
	t.Helper()
	sessions := NewSessionRegistry()
	topics := topic.NewRegistry()
	queue, err := NewPublishQueue(4)
	if err != nil {
		t.Fatalf("NewPublishQueue() error: %v", err)
	}
	t.Cleanup(queue.Release)
	return NewFanoutEngine(topics, sessions, queue), sessions, topics, queue
}

func readPacket(t *testing.T, ch chan []byte) packet.Packet {
	t.Helper()
	select {
	case b := <-ch:
		pkt, err := packet.Read(&byteSliceReader{b: b})
		if err != nil {
			t.Fatalf("packet.Read() error: %v", err)
		}
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivered packet")
		return nil
	}
}

// byteSliceReader adapts a single already-framed packet's bytes into the
// io.Reader packet.Read expects.
type byteSliceReader struct {
	b   []byte
	pos int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	n := copy(p, r.b[r.pos:])
	r.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func TestFanoutQoS0Delivery(t *testing.T) {
	f, sessions, topics, _ := newTestFanout(t)
	res := sessions.Connect("sub", "addr", true, 60, "", "", false, 0, false, "", "")
	topics.Attach("sub", "a/b", 0)

	if err := f.Publish("a/b", []byte("hi"), 0, false); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	pub := readPacket(t, res.Session.Outbound()).(*packet.PUBLISH)
	if pub.TopicName != "a/b" || string(pub.Payload) != "hi" || pub.FixedHeader.QoS != 0 {
		t.Errorf("got %+v, want QoS0 a/b=hi", pub)
	}
}

func TestFanoutQoS1DeliveryRetriesUntilAck(t *testing.T) {
	f, sessions, topics, queue := newTestFanout(t)
	res := sessions.Connect("sub", "addr", true, 60, "", "", false, 0, false, "", "")
	topics.Attach("sub", "a/b", 1)

	if err := f.Publish("a/b", []byte("hi"), 1, false); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	first := readPacket(t, res.Session.Outbound()).(*packet.PUBLISH)
	if first.FixedHeader.Dup {
		t.Error("first delivery should not carry DUP")
	}

	retry := readPacket(t, res.Session.Outbound()).(*packet.PUBLISH)
	if !retry.FixedHeader.Dup {
		t.Error("expected a retransmission with DUP=1 before the ack")
	}

	if !queue.Ack(first.PacketID, ToSubscriber, PubackReceived) {
		t.Fatal("Ack() should find the in-flight exchange")
	}
	deadline := time.After(2 * time.Second)
	for queue.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the exchange to clear after ack")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestFanoutQoS2HandshakeCompletes(t *testing.T) {
	f, sessions, topics, queue := newTestFanout(t)
	res := sessions.Connect("sub", "addr", true, 60, "", "", false, 0, false, "", "")
	topics.Attach("sub", "a/b", 2)

	if err := f.Publish("a/b", []byte("hi"), 2, false); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	pub := readPacket(t, res.Session.Outbound()).(*packet.PUBLISH)
	if pub.FixedHeader.QoS != 2 {
		t.Fatalf("got QoS %d, want 2", pub.FixedHeader.QoS)
	}

	queue.Ack(pub.PacketID, ToSubscriber, PubrecReceived)
	rel := readPacket(t, res.Session.Outbound()).(*packet.PUBREL)
	if rel.PacketID != pub.PacketID {
		t.Errorf("PUBREL packet id = %d, want %d", rel.PacketID, pub.PacketID)
	}

	queue.Ack(pub.PacketID, ToSubscriber, PubcompReceived)
	deadline := time.After(2 * time.Second)
	for queue.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the QoS2 exchange to clear")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestMinQoS(t *testing.T) {
	cases := []struct{ a, b, want byte }{
		{0, 2, 0}, {2, 0, 0}, {1, 1, 1}, {2, 2, 2},
	}
	for _, c := range cases {
		if got := minQoS(c.a, c.b); got != c.want {
			t.Errorf("minQoS(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
