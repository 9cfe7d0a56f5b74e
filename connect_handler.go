package mqttd

import (
	"log"

	"github.com/google/uuid"

	"github.com/riverrun/mqttd/packet"
)

// handleConnect processes the first packet on a new connection: validates
// credentials against the static auth table, resolves session takeover and
// clean_session reuse through SessionRegistry, and replies with CONNACK.
func (c *conn) handleConnect(req *packet.CONNECT) error {
	if req.ClientID == "" {
		// Only reachable when CleanSession is set: CONNECT.Unpack already
		// rejects a blank client id with CleanSession=false.
		req.ClientID = "mqttd-" + uuid.NewString()
	}

	if req.HasUsername {
		password, ok := c.server.Config.Auth[req.Username]
		if !ok || password != req.Password {
			_ = c.writePacket(&packet.CONNACK{
				FixedHeader: &packet.FixedHeader{Kind: packet.CONNACK},
				ReturnCode:  packet.ConnackBadUsernameOrPassword,
			})
			log.Printf("mqttd: %s: auth failed for username=%q", c.rwc.RemoteAddr(), req.Username)
			return &packet.Error{Kind: packet.Violation, Connack: packet.ConnackAccepted}
		}
	}

	result := c.server.Sessions.Connect(
		req.ClientID, c.rwc.RemoteAddr().String(), req.CleanSession, req.KeepAlive,
		req.Username, req.Password,
		req.WillFlag, req.WillQoS, req.WillRetain, req.WillTopic, req.WillMessage,
	)
	if result.Rejected {
		// handleProtocolError sends the CONNACK carried by the Conflict error.
		return packet.NewConflict()
	}

	c.session = result.Session
	c.state = stateEstablished
	c.startWriter(result.Session)

	if err := c.writePacket(&packet.CONNACK{
		FixedHeader:    &packet.FixedHeader{Kind: packet.CONNACK},
		SessionPresent: result.SessionPresent,
		ReturnCode:     packet.ConnackAccepted,
	}); err != nil {
		return packet.NewMalformed(err)
	}

	stat.ActiveConnections.Inc()
	log.Printf("mqttd: %s: connected clientID=%s sessionPresent=%v", c.rwc.RemoteAddr(), req.ClientID, result.SessionPresent)
	return nil
}
