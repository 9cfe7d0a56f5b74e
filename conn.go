package mqttd

import (
	"bufio"
	"errors"
	"log"
	"net"
	"time"

	"github.com/riverrun/mqttd/packet"
)

// connState is the per-connection protocol state machine (§4.4).
type connState int32

const (
	stateAwaitingConnect connState = iota
	stateEstablished
	stateClosed
)

var (
	errFirstPacketMustBeConnect = errors.New("mqttd: first packet must be CONNECT")
	errUnexpectedSecondConnect  = errors.New("mqttd: unexpected second CONNECT")
	errUnsupportedControlPacket = errors.New("mqttd: unsupported control packet")
)

// conn is one accepted TCP connection running the MQTT 3.1.1 protocol state
// machine: a read loop on the calling goroutine, paired with a WriterTask
// goroutine that drains the session's outbound channel (fan-out deliveries)
// onto rwc in FIFO order. Response packets are written to rwc directly by
// writePacket, so they are not ordered relative to the WriterTask's writes.
type conn struct {
	server *Server
	rwc    net.Conn
	reader *bufio.Reader

	state   connState
	session *Session

	outbound    chan []byte
	writerDone  chan struct{}
	discardWill bool
}

func newConn(s *Server, rwc net.Conn) *conn {
	return &conn{
		server: s,
		rwc:    rwc,
		reader: bufio.NewReaderSize(rwc, 8192),
		state:  stateAwaitingConnect,
	}
}

// serve runs the read loop until the connection closes, then tears down the
// session: publishes the will message (unless discardWill), marks the
// session disconnected, and detaches its subscriptions if it was a
// clean session.
func (c *conn) serve() {
	defer c.teardown()

	for {
		if c.session != nil {
			if d := keepAliveTimeout(c.session); d > 0 {
				_ = c.rwc.SetReadDeadline(time.Now().Add(d))
			} else {
				_ = c.rwc.SetReadDeadline(time.Time{})
			}
		} else {
			_ = c.rwc.SetReadDeadline(time.Now().Add(c.server.Config.ConnectTimeout))
		}

		pkt, err := packet.Read(c.reader)
		if err != nil {
			if _, ok := err.(*packet.Error); ok {
				c.handleProtocolError(err)
			} else {
				c.handleReadError(err)
			}
			return
		}
		stat.PacketReceived.Inc()
		if err := c.dispatch(pkt); err != nil {
			c.handleProtocolError(err)
			return
		}
		if c.state == stateClosed {
			return
		}
	}
}

// keepAliveTimeout implements §4.4's 1.5x keep-alive grace period. A
// keep-alive of 0 disables the server-side read timeout for this client.
func keepAliveTimeout(s *Session) time.Duration {
	if s.keepAlive == 0 {
		return 0
	}
	return time.Duration(float64(s.keepAlive) * 1.5 * float64(time.Second))
}

func (c *conn) handleReadError(err error) {
	// Any failure to read the next packet -- EOF, a reset connection, a
	// read-deadline timeout, or a malformed fixed header -- is Transient:
	// the connection closes and, per the error taxonomy, an armed will
	// message is still published by teardown.
	if c.session != nil {
		log.Printf("mqttd: %s: %s: read: %v", c.rwc.RemoteAddr(), c.session.ClientID, err)
	}
}

func (c *conn) handleProtocolError(err error) {
	perr, ok := err.(*packet.Error)
	if !ok {
		log.Printf("mqttd: %s: %v", c.rwc.RemoteAddr(), err)
		return
	}
	switch perr.Kind {
	case packet.Violation, packet.Conflict:
		if perr.Connack != packet.ConnackAccepted {
			ack := &packet.CONNACK{FixedHeader: &packet.FixedHeader{Kind: packet.CONNACK}, ReturnCode: perr.Connack}
			_ = c.writePacket(ack)
		}
	case packet.Orderly:
		c.discardWill = true
		if perr.Err != nil {
			log.Printf("mqttd: %s: %v", c.rwc.RemoteAddr(), perr.Err)
		}
	}
}

func (c *conn) teardown() {
	c.state = stateClosed
	_ = c.rwc.Close()

	if c.outbound != nil {
		close(c.outbound)
	}
	if c.session == nil {
		return
	}

	clientID := c.session.ClientID
	if !c.discardWill {
		if topicName, message, qos, retain, armed := c.session.Will(); armed {
			if err := c.server.Fanout.Publish(topicName, []byte(message), qos, retain); err != nil {
				log.Printf("mqttd: %s: will publish: %v", clientID, err)
			}
		}
	}

	c.server.Sessions.Disconnect(clientID)
	if sess, ok := c.server.Sessions.Lookup(clientID); !ok || sess.CleanSession() {
		c.server.Topics.DetachAll(clientID)
	}
	stat.ActiveConnections.Dec()
	log.Printf("mqttd: %s: disconnected (%s)", clientID, c.rwc.RemoteAddr())
}

// dispatch routes pkt to its handler by control type (§4.4's dispatch table).
func (c *conn) dispatch(pkt packet.Packet) error {
	if c.state == stateAwaitingConnect {
		connect, ok := pkt.(*packet.CONNECT)
		if !ok {
			return packet.NewViolation(packet.ConnackAccepted, errFirstPacketMustBeConnect)
		}
		return c.handleConnect(connect)
	}

	switch p := pkt.(type) {
	case *packet.CONNECT:
		return packet.NewViolation(packet.ConnackAccepted, errUnexpectedSecondConnect)
	case *packet.PUBLISH:
		return c.handlePublish(p)
	case *packet.PUBACK:
		c.server.Queue.Ack(p.PacketID, ToSubscriber, PubackReceived)
		return nil
	case *packet.PUBREC:
		c.server.Queue.Ack(p.PacketID, ToSubscriber, PubrecReceived)
		return nil
	case *packet.PUBREL:
		c.server.Queue.Ack(p.PacketID, FromPublisher, PubrelReceived)
		return nil
	case *packet.PUBCOMP:
		c.server.Queue.Ack(p.PacketID, ToSubscriber, PubcompReceived)
		return nil
	case *packet.SUBSCRIBE:
		return c.handleSubscribe(p)
	case *packet.UNSUBSCRIBE:
		return c.handleUnsubscribe(p)
	case *packet.PINGREQ:
		return c.writePacket(&packet.PINGRESP{FixedHeader: &packet.FixedHeader{Kind: packet.PINGRESP}})
	case *packet.DISCONNECT:
		return packet.NewOrderly(nil)
	default:
		return packet.NewMalformed(errUnsupportedControlPacket)
	}
}

// writePacket serializes pkt directly onto the socket. Response packets
// emitted synchronously from dispatch (CONNACK, SUBACK, PINGRESP, …) go out
// this way; asynchronous deliveries from FanoutEngine go through the
// session's outbound channel and the WriterTask instead.
func (c *conn) writePacket(pkt packet.Packet) error {
	if err := packet.Write(c.rwc, pkt); err != nil {
		return err
	}
	stat.PacketSent.Inc()
	return nil
}

// startWriter launches the WriterTask that drains sess.Outbound() onto rwc,
// giving this connection its second long-lived goroutine (§5).
func (c *conn) startWriter(sess *Session) {
	c.outbound = sess.Outbound()
	c.writerDone = make(chan struct{})
	go func() {
		defer close(c.writerDone)
		for b := range c.outbound {
			if _, err := c.rwc.Write(b); err != nil {
				log.Printf("mqttd: %s: write: %v", sess.ClientID, err)
				_ = c.rwc.Close()
				return
			}
			stat.PacketSent.Inc()
		}
	}()
}
