// Package topic implements the broker's topic registry: the process-wide
// map from topic name to its subscriber list and retained message.
//
// Unlike the teacher this is adapted from, matching here is byte-exact —
// there is no '+'/'#' wildcard grammar. A client subscribed to "a/b" never
// receives a publish to "a/+" or "a/b/c".
package topic

import "sync"

// Retained holds the most recent retained PUBLISH payload on a topic. An
// empty Payload means "no retained message" (MQTT 3.1.1 §3.3.1.3: an empty
// payload with retain=1 clears any previously retained message).
type Retained struct {
	Payload []byte
	QoS     byte
}

type subscriber struct {
	clientID string
	qos      byte
}

type entry struct {
	mu          sync.Mutex
	subscribers []subscriber
	retained    Retained
}

// Registry is the process-wide topic-name → (subscribers, retained
// message) map. The zero value is not usable; construct with NewRegistry.
// Each topic entry has its own mutex so that concurrent publishes to
// unrelated topics never contend; the registry mutex itself is only held
// long enough to look up or create that per-topic entry.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*entry
}

// NewRegistry constructs an empty topic registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*entry)}
}

func (r *Registry) entryFor(name string) *entry {
	r.mu.RLock()
	e, ok := r.topics[name]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.topics[name]; ok {
		return e
	}
	e = &entry{}
	r.topics[name] = e
	return e
}

// Subscriber is one (client id, granted QoS) attachment returned by Publish.
type Subscriber struct {
	ClientID string
	QoS      byte
}

// Attach records that clientID subscribes to topicName at qos, replacing
// any previous grant for that client on that topic.
func (r *Registry) Attach(clientID, topicName string, qos byte) {
	e := r.entryFor(topicName)
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subscribers {
		if s.clientID == clientID {
			e.subscribers[i].qos = qos
			return
		}
	}
	e.subscribers = append(e.subscribers, subscriber{clientID: clientID, qos: qos})
}

// Detach removes clientID's subscription to topicName, if any.
func (r *Registry) Detach(clientID, topicName string) {
	r.mu.RLock()
	e, ok := r.topics[topicName]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subscribers {
		if s.clientID == clientID {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return
		}
	}
}

// DetachAll removes clientID's subscription from every topic. Called on
// disconnect/session-end.
func (r *Registry) DetachAll(clientID string) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.topics))
	for _, e := range r.topics {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	for _, e := range entries {
		e.mu.Lock()
		for i, s := range e.subscribers {
			if s.clientID == clientID {
				e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
				break
			}
		}
		e.mu.Unlock()
	}
}

// Publish records (or clears) topicName's retained message when retain is
// true, and returns the current subscriber list to fan the message out to.
func (r *Registry) Publish(topicName string, payload []byte, qos byte, retain bool) []Subscriber {
	e := r.entryFor(topicName)
	e.mu.Lock()
	if retain {
		e.retained = Retained{Payload: append([]byte(nil), payload...), QoS: qos}
	}
	out := make([]Subscriber, len(e.subscribers))
	for i, s := range e.subscribers {
		out[i] = Subscriber{ClientID: s.clientID, QoS: s.qos}
	}
	e.mu.Unlock()
	return out
}

// Retained returns topicName's current retained message, if any, and
// whether one is set (an unset or explicitly-cleared retained message both
// report ok=false).
func (r *Registry) Retained(topicName string) (Retained, bool) {
	r.mu.RLock()
	e, ok := r.topics[topicName]
	r.mu.RUnlock()
	if !ok {
		return Retained{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.retained.Payload) == 0 {
		return Retained{}, false
	}
	return e.retained, true
}

// Count returns the number of distinct topic names the registry has ever
// seen, used by the broker's Prometheus gauge.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
