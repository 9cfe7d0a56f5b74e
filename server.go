package mqttd

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/riverrun/mqttd/topic"
)

// shutdownPollIntervalMax is the max polling interval when checking
// quiescence during Server.Shutdown. Polling starts with a small interval
// and backs off to the max.
const shutdownPollIntervalMax = 500 * time.Millisecond

// ErrServerClosed is returned by Serve after a call to Shutdown.
var ErrServerClosed = errors.New("mqttd: server closed")

// Server owns the broker's three shared registries (§5) and accepts
// connections for them over one or more net.Listeners.
type Server struct {
	Config   *Config
	Sessions *SessionRegistry
	Topics   *topic.Registry
	Queue    *PublishQueue
	Fanout   *FanoutEngine

	inShutdown atomic.Bool

	mu            sync.Mutex
	listeners     map[*net.Listener]struct{}
	activeConn    map[*conn]struct{}
	listenerGroup sync.WaitGroup
}

// NewServer wires a fresh Server from cfg: its own SessionRegistry,
// topic.Registry, PublishQueue and FanoutEngine, all scoped to this
// process's lifetime.
func NewServer(cfg *Config) (*Server, error) {
	queue, err := NewPublishQueue(cfg.QueuePoolSize)
	if err != nil {
		return nil, err
	}
	sessions := NewSessionRegistry()
	topics := topic.NewRegistry()
	return &Server{
		Config:     cfg,
		Sessions:   sessions,
		Topics:     topics,
		Queue:      queue,
		Fanout:     NewFanoutEngine(topics, sessions, queue),
		listeners:  make(map[*net.Listener]struct{}),
		activeConn: make(map[*conn]struct{}),
	}, nil
}

// Serve accepts connections on l until it errors or Shutdown is called,
// spawning one conn.serve goroutine per accepted connection.
func (s *Server) Serve(l net.Listener) error {
	defer l.Close()
	if !s.trackListener(&l, true) {
		return ErrServerClosed
	}
	defer s.trackListener(&l, false)

	for {
		rwc, err := l.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			return err
		}
		c := newConn(s, rwc)
		s.trackConn(c, true)
		go func() {
			defer s.trackConn(c, false)
			c.serve()
		}()
	}
}

// ListenAndServe binds the TCP MQTT listener from Config.MQTT and serves it.
func (s *Server) ListenAndServe() error {
	if s.shuttingDown() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", s.Config.MQTT.URL)
	if err != nil {
		return err
	}
	log.Printf("mqttd: serving MQTT on %s", s.Config.MQTT.URL)
	return s.Serve(ln)
}

// ListenAndServeTLS binds a TLS-wrapped MQTT listener.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	if s.shuttingDown() {
		return ErrServerClosed
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	ln, err := tls.Listen("tcp", s.Config.MQTT.URL, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return err
	}
	log.Printf("mqttd: serving MQTT(TLS) on %s", s.Config.MQTT.URL)
	return s.Serve(ln)
}

// ListenAndServeWebsocket binds Config.WebSocket and runs the same
// ConnectionHandler over WebSocket binary frames, reusing net.Conn-shaped
// access to websocket.Conn the way the teacher's websocket transport did.
func (s *Server) ListenAndServeWebsocket() error {
	if s.shuttingDown() {
		return ErrServerClosed
	}
	u, err := url.Parse(s.Config.WebSocket.URL)
	if err != nil {
		return err
	}
	handler := websocket.Handler(func(ws *websocket.Conn) {
		ws.PayloadType = websocket.BinaryFrame
		c := newConn(s, ws)
		s.trackConn(c, true)
		defer s.trackConn(c, false)
		c.serve()
	})

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return err
	}
	log.Printf("mqttd: serving MQTT-over-WebSocket on %s", u.Host)
	defer ln.Close()
	if !s.trackListener(&ln, true) {
		return ErrServerClosed
	}
	defer s.trackListener(&ln, false)
	return (&http.Server{Handler: handler}).Serve(ln)
}

// Shutdown stops accepting new connections and waits for in-flight
// connections to close, polling with exponential backoff in the teacher's
// manner, until ctx is done or the broker is quiescent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	lnerr := s.closeListenersLocked()
	s.mu.Unlock()
	s.listenerGroup.Wait()
	s.Queue.Release()

	pollIntervalBase := time.Millisecond
	nextPollInterval := func() time.Duration {
		interval := pollIntervalBase + time.Duration(rand.Intn(int(pollIntervalBase/10+1)))
		pollIntervalBase *= 2
		if pollIntervalBase > shutdownPollIntervalMax {
			pollIntervalBase = shutdownPollIntervalMax
		}
		return interval
	}

	timer := time.NewTimer(nextPollInterval())
	defer timer.Stop()
	for {
		if s.closeIdleConns() {
			return lnerr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(nextPollInterval())
		}
	}
}

func (s *Server) closeIdleConns() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConn) == 0
}

func (s *Server) closeListenersLocked() error {
	var err error
	for ln := range s.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Server) trackConn(c *conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.activeConn[c] = struct{}{}
	} else {
		delete(s.activeConn, c)
	}
}

func (s *Server) trackListener(ln *net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.shuttingDown() {
			return false
		}
		s.listeners[ln] = struct{}{}
		s.listenerGroup.Add(1)
	} else {
		delete(s.listeners, ln)
		s.listenerGroup.Done()
	}
	return true
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}
