package mqttd

import (
	"net"
	"testing"
	"time"

	"github.com/riverrun/mqttd/packet"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.QueuePoolSize = 4
	cfg.Auth = map[string]string{"": "", "alice": "secret"}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	t.Cleanup(srv.Queue.Release)
	return srv
}

// dial wires up an in-process client<->server connection served by conn.serve
// on a goroutine, and returns the client side.
func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	c := newConn(srv, server)
	go c.serve()
	t.Cleanup(func() { client.Close() })
	return client
}

func mustConnect(t *testing.T, client net.Conn, clientID string) *packet.CONNACK {
	t.Helper()
	req := &packet.CONNECT{
		FixedHeader:  &packet.FixedHeader{Kind: packet.CONNECT},
		ClientID:     clientID,
		CleanSession: true,
		KeepAlive:    60,
	}
	if err := packet.Write(client, req); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}
	pkt, err := packet.Read(client)
	if err != nil {
		t.Fatalf("read CONNACK: %v", err)
	}
	ack, ok := pkt.(*packet.CONNACK)
	if !ok {
		t.Fatalf("got %T, want *packet.CONNACK", pkt)
	}
	return ack
}

func TestConnConnectAccepted(t *testing.T) {
	srv := newTestServer(t)
	client := dial(t, srv)
	ack := mustConnect(t, client, "c1")
	if ack.ReturnCode != packet.ConnackAccepted {
		t.Fatalf("ReturnCode = %v, want Accepted", ack.ReturnCode)
	}
	if ack.SessionPresent {
		t.Error("a fresh clean session should not report SessionPresent")
	}
}

func TestConnConnectBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	client := dial(t, srv)
	req := &packet.CONNECT{
		FixedHeader:  &packet.FixedHeader{Kind: packet.CONNECT},
		ClientID:     "c1",
		CleanSession: true,
		HasUsername:  true,
		Username:     "alice",
		Password:     "wrong",
	}
	if err := packet.Write(client, req); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}
	pkt, err := packet.Read(client)
	if err != nil {
		t.Fatalf("read CONNACK: %v", err)
	}
	ack := pkt.(*packet.CONNACK)
	if ack.ReturnCode != packet.ConnackBadUsernameOrPassword {
		t.Errorf("ReturnCode = %v, want BadUsernameOrPassword", ack.ReturnCode)
	}
}

func TestConnSubscribePublishQoS0(t *testing.T) {
	srv := newTestServer(t)
	sub := dial(t, srv)
	mustConnect(t, sub, "subscriber")

	if err := packet.Write(sub, &packet.SUBSCRIBE{
		FixedHeader:   &packet.FixedHeader{Kind: packet.SUBSCRIBE},
		PacketID:      1,
		Subscriptions: []packet.Subscription{{TopicFilter: "a/b", QoS: 0}},
	}); err != nil {
		t.Fatalf("write SUBSCRIBE: %v", err)
	}
	pkt, err := packet.Read(sub)
	if err != nil {
		t.Fatalf("read SUBACK: %v", err)
	}
	suback := pkt.(*packet.SUBACK)
	if len(suback.ReturnCodes) != 1 || suback.ReturnCodes[0] != 0 {
		t.Fatalf("got %+v, want a single granted QoS0", suback)
	}

	pub := dial(t, srv)
	mustConnect(t, pub, "publisher")
	if err := packet.Write(pub, &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Kind: packet.PUBLISH, QoS: 0},
		TopicName:   "a/b",
		Payload:     []byte("hello"),
	}); err != nil {
		t.Fatalf("write PUBLISH: %v", err)
	}

	pkt, err = packet.Read(sub)
	if err != nil {
		t.Fatalf("read delivered PUBLISH: %v", err)
	}
	delivered := pkt.(*packet.PUBLISH)
	if delivered.TopicName != "a/b" || string(delivered.Payload) != "hello" {
		t.Errorf("got %+v, want a/b=hello", delivered)
	}
}

func TestConnSubscribeRejectsQoSAbove2(t *testing.T) {
	srv := newTestServer(t)
	client := dial(t, srv)
	mustConnect(t, client, "c1")

	if err := packet.Write(client, &packet.SUBSCRIBE{
		FixedHeader:   &packet.FixedHeader{Kind: packet.SUBSCRIBE},
		PacketID:      7,
		Subscriptions: []packet.Subscription{{TopicFilter: "a", QoS: 3}},
	}); err != nil {
		t.Fatalf("write SUBSCRIBE: %v", err)
	}
	pkt, err := packet.Read(client)
	if err != nil {
		t.Fatalf("read SUBACK: %v", err)
	}
	suback := pkt.(*packet.SUBACK)
	if suback.ReturnCodes[0] != packet.SubackFailure {
		t.Errorf("ReturnCodes[0] = %#x, want SubackFailure", suback.ReturnCodes[0])
	}
}
