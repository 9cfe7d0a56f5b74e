package mqttd

import (
	"sync"
)

// Session is the per-client protocol state that outlives any one TCP
// connection when the client connects with clean_session=0: its pending
// will message, its auth record, and (via topic.Registry) its
// subscriptions. SessionRegistry owns the Session's lifecycle; Outbound is
// the channel a live WriterTask drains.
type Session struct {
	ClientID   string
	RemoteAddr string

	mu            sync.Mutex
	connected     bool
	outbound      chan []byte
	cleanSession  bool
	keepAlive     uint16
	username      string
	password      string
	willFlag      bool
	willQoS       byte
	willRetain    bool
	willTopic     string
	willMessage   string
}

// IsConnected reports whether a live connection currently owns this session.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Outbound returns the channel the connection's WriterTask drains. Sends to
// it must never happen while any registry lock is held.
func (s *Session) Outbound() chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbound
}

// Will returns the will-message fields, and whether a will is armed.
func (s *Session) Will() (topic, message string, qos byte, retain bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.willTopic, s.willMessage, s.willQoS, s.willRetain, s.willFlag
}

// CleanSession reports the clean_session flag recorded at CONNECT.
func (s *Session) CleanSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanSession
}

// SessionRegistry is the process-wide client_id → *Session map. It enforces
// that at most one live connection owns a given client id at a time.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// ConnectResult reports how Connect resolved a CONNECT against the registry.
type ConnectResult struct {
	Session        *Session
	SessionPresent bool
	Rejected       bool // a live session already owns this client id
}

// Connect installs or reattaches a Session for clientID. If a session
// already exists and is connected, Rejected is true and the caller must
// refuse the CONNECT (CONNACK return code 2). If a disconnected session
// exists and cleanSession is false, it is reused and SessionPresent is
// true; otherwise a fresh session replaces it.
func (r *SessionRegistry) Connect(clientID, remoteAddr string, cleanSession bool, keepAlive uint16, username, password string, willFlag bool, willQoS byte, willRetain bool, willTopic, willMessage string) ConnectResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[clientID]; ok {
		if existing.IsConnected() {
			return ConnectResult{Rejected: true}
		}
		if !cleanSession {
			existing.mu.Lock()
			existing.RemoteAddr = remoteAddr
			existing.connected = true
			existing.outbound = make(chan []byte, 64)
			existing.keepAlive = keepAlive
			existing.username, existing.password = username, password
			if willFlag {
				existing.willFlag, existing.willQoS, existing.willRetain = willFlag, willQoS, willRetain
				existing.willTopic, existing.willMessage = willTopic, willMessage
			}
			existing.mu.Unlock()
			return ConnectResult{Session: existing, SessionPresent: true}
		}
	}

	s := &Session{
		ClientID:     clientID,
		RemoteAddr:   remoteAddr,
		connected:    true,
		outbound:     make(chan []byte, 64),
		cleanSession: cleanSession,
		keepAlive:    keepAlive,
		username:     username,
		password:     password,
		willFlag:     willFlag,
		willQoS:      willQoS,
		willRetain:   willRetain,
		willTopic:    willTopic,
		willMessage:  willMessage,
	}
	r.sessions[clientID] = s
	return ConnectResult{Session: s, SessionPresent: false}
}

// Disconnect marks clientID's session as no longer connected and, if its
// clean_session flag is set, removes it entirely. It does not touch the
// session's topic subscriptions; the caller detaches those through
// topic.Registry.DetachAll.
func (r *SessionRegistry) Disconnect(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	if !ok {
		return
	}
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	if s.CleanSession() {
		delete(r.sessions, clientID)
	}
}

// Lookup returns the session for clientID, if any.
func (r *SessionRegistry) Lookup(clientID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	return s, ok
}

// Count returns the number of sessions currently tracked (connected or not).
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
